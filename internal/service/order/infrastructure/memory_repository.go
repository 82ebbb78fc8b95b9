// internal/service/order/infrastructure/memory_repository.go
package infrastructure

import (
	"context"
	"sync"

	"github.com/trvannhanh/elaris-marketplace-sub000/internal/pkg/outbox"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/service/order/domain"
)

// MemoryRepository 是 domain.Repository 的进程内实现，供测试与单机模式使用。
// InTx 在全量快照上执行回调，失败时丢弃快照，以此模拟数据库事务的回滚。
type MemoryRepository struct {
	mu     sync.Mutex
	sagas  map[string]*domain.OrderSaga
	Outbox *outbox.MemoryStore
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		sagas:  make(map[string]*domain.OrderSaga),
		Outbox: outbox.NewMemoryStore(),
	}
}

func (r *MemoryRepository) InTx(_ context.Context, fn func(tx domain.TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx := &memoryTx{sagas: make(map[string]*domain.OrderSaga, len(r.sagas))}
	for k, v := range r.sagas {
		cp := *v
		cp.Items = append([]domain.OrderLine(nil), v.Items...)
		tx.sagas[k] = &cp
	}

	if err := fn(tx); err != nil {
		return err
	}

	r.sagas = tx.sagas
	for _, msg := range tx.pendingOutbox {
		r.Outbox.Enqueue(msg)
	}
	return nil
}

func (r *MemoryRepository) FindSaga(_ context.Context, orderID string) (*domain.OrderSaga, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sagas[orderID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	cp := *s
	cp.Items = append([]domain.OrderLine(nil), s.Items...)
	return &cp, nil
}

type memoryTx struct {
	sagas         map[string]*domain.OrderSaga
	pendingOutbox []*outbox.Message
}

func (t *memoryTx) SagaForUpdate(_ context.Context, orderID string) (*domain.OrderSaga, error) {
	s, ok := t.sagas[orderID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return s, nil
}

func (t *memoryTx) CreateSaga(_ context.Context, s *domain.OrderSaga) error {
	t.sagas[s.OrderID] = s
	return nil
}

func (t *memoryTx) SaveSaga(_ context.Context, s *domain.OrderSaga) error {
	t.sagas[s.OrderID] = s
	return nil
}

func (t *memoryTx) EnqueueOutbox(_ context.Context, msg *outbox.Message) error {
	t.pendingOutbox = append(t.pendingOutbox, msg)
	return nil
}
