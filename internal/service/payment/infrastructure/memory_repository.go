// internal/service/payment/infrastructure/memory_repository.go
package infrastructure

import (
	"context"
	"sync"
	"time"

	"github.com/trvannhanh/elaris-marketplace-sub000/internal/pkg/outbox"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/service/payment/domain"
)

// MemoryRepository 是 domain.Repository 的进程内实现，供测试与单机模式使用。
// InTx 在全量快照上执行回调，失败时丢弃快照，以此模拟数据库事务的回滚。
type MemoryRepository struct {
	mu       sync.Mutex
	byOrder  map[string]*domain.Payment
	history  []*domain.PaymentHistory
	Outbox   *outbox.MemoryStore
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byOrder: make(map[string]*domain.Payment),
		Outbox:  outbox.NewMemoryStore(),
	}
}

func (r *MemoryRepository) InTx(_ context.Context, fn func(tx domain.TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx := &memoryTx{byOrder: make(map[string]*domain.Payment, len(r.byOrder))}
	for k, v := range r.byOrder {
		cp := *v
		tx.byOrder[k] = &cp
	}

	if err := fn(tx); err != nil {
		return err
	}

	r.byOrder = tx.byOrder
	r.history = append(r.history, tx.history...)
	for _, msg := range tx.pendingOutbox {
		r.Outbox.Enqueue(msg)
	}
	return nil
}

func (r *MemoryRepository) FindByOrder(_ context.Context, orderID string) (*domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byOrder[orderID]
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *MemoryRepository) FindStuckProcessing(_ context.Context, before time.Time, limit int) ([]*domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Payment
	for _, p := range r.byOrder {
		if p.Status == domain.PaymentProcessing && p.CreatedAt.Before(before) {
			cp := *p
			out = append(out, &cp)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// History 返回审计记录快照，测试用
func (r *MemoryRepository) History() []*domain.PaymentHistory {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.PaymentHistory, len(r.history))
	copy(out, r.history)
	return out
}

type memoryTx struct {
	byOrder       map[string]*domain.Payment
	history       []*domain.PaymentHistory
	pendingOutbox []*outbox.Message
}

func (t *memoryTx) PaymentForUpdate(_ context.Context, orderID string) (*domain.Payment, error) {
	p, ok := t.byOrder[orderID]
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	return p, nil
}

func (t *memoryTx) PaymentByIDForUpdate(_ context.Context, paymentID string) (*domain.Payment, error) {
	for _, p := range t.byOrder {
		if p.ID == paymentID {
			return p, nil
		}
	}
	return nil, domain.ErrPaymentNotFound
}

func (t *memoryTx) CreatePayment(_ context.Context, p *domain.Payment) error {
	t.byOrder[p.OrderID] = p
	return nil
}

func (t *memoryTx) SavePayment(_ context.Context, p *domain.Payment) error {
	t.byOrder[p.OrderID] = p
	return nil
}

func (t *memoryTx) AppendHistory(_ context.Context, h *domain.PaymentHistory) error {
	t.history = append(t.history, h)
	return nil
}

func (t *memoryTx) EnqueueOutbox(_ context.Context, msg *outbox.Message) error {
	t.pendingOutbox = append(t.pendingOutbox, msg)
	return nil
}
