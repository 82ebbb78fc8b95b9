// internal/service/inventory/infrastructure/memory_repository.go
package infrastructure

import (
	"context"
	"sync"
	"time"

	"github.com/trvannhanh/elaris-marketplace-sub000/internal/pkg/outbox"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/service/inventory/domain"
)

// MemoryRepository 是 domain.Repository 的进程内实现，供测试与单机模式使用。
// InTx 在全量快照上执行回调，失败时丢弃快照，以此模拟数据库事务的回滚；
// 全局互斥锁提供了与行级锁等价（虽然更粗）的串行化保证。
type MemoryRepository struct {
	mu           sync.Mutex
	items        map[string]*domain.InventoryItem
	reservations map[string]*domain.StockReservation // key: orderID+"|"+productID
	history      []*domain.InventoryHistory
	Outbox       *outbox.MemoryStore
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		items:        make(map[string]*domain.InventoryItem),
		reservations: make(map[string]*domain.StockReservation),
		Outbox:       outbox.NewMemoryStore(),
	}
}

func reservationKey(orderID, productID string) string {
	return orderID + "|" + productID
}

func (r *MemoryRepository) InTx(_ context.Context, fn func(tx domain.TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx := &memoryTx{
		items:        make(map[string]*domain.InventoryItem, len(r.items)),
		reservations: make(map[string]*domain.StockReservation, len(r.reservations)),
	}
	for k, v := range r.items {
		cp := *v
		tx.items[k] = &cp
	}
	for k, v := range r.reservations {
		cp := *v
		tx.reservations[k] = &cp
	}

	if err := fn(tx); err != nil {
		return err
	}

	// 提交：快照替换主状态，追加审计与出站消息
	r.items = tx.items
	r.reservations = tx.reservations
	r.history = append(r.history, tx.history...)
	for _, msg := range tx.pendingOutbox {
		r.Outbox.Enqueue(msg)
	}
	return nil
}

func (r *MemoryRepository) FindItem(_ context.Context, productID string) (*domain.InventoryItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[productID]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	cp := *item
	return &cp, nil
}

func (r *MemoryRepository) FindExpiredActive(_ context.Context, before time.Time, limit int) ([]*domain.StockReservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.StockReservation
	for _, res := range r.reservations {
		if res.Status == domain.ReservationActive && res.ReservedAt.Before(before) {
			cp := *res
			out = append(out, &cp)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// History 返回审计记录快照，测试用
func (r *MemoryRepository) History() []*domain.InventoryHistory {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.InventoryHistory, len(r.history))
	copy(out, r.history)
	return out
}

// Reservation 返回一笔预占的快照，测试用
func (r *MemoryRepository) Reservation(orderID, productID string) (*domain.StockReservation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.reservations[reservationKey(orderID, productID)]
	if !ok {
		return nil, false
	}
	cp := *res
	return &cp, true
}

type memoryTx struct {
	items         map[string]*domain.InventoryItem
	reservations  map[string]*domain.StockReservation
	history       []*domain.InventoryHistory
	pendingOutbox []*outbox.Message
}

func (t *memoryTx) ItemForUpdate(_ context.Context, productID string) (*domain.InventoryItem, error) {
	item, ok := t.items[productID]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	return item, nil
}

func (t *memoryTx) SaveItem(_ context.Context, item *domain.InventoryItem) error {
	t.items[item.ProductID] = item
	return nil
}

func (t *memoryTx) CreateItem(_ context.Context, item *domain.InventoryItem) error {
	t.items[item.ProductID] = item
	return nil
}

func (t *memoryTx) CreateReservation(_ context.Context, r *domain.StockReservation) error {
	t.reservations[reservationKey(r.OrderID, r.ProductID)] = r
	return nil
}

func (t *memoryTx) ReservationForUpdate(_ context.Context, orderID, productID string) (*domain.StockReservation, error) {
	r, ok := t.reservations[reservationKey(orderID, productID)]
	if !ok {
		return nil, domain.ErrReservationNotFound
	}
	return r, nil
}

func (t *memoryTx) SaveReservation(_ context.Context, r *domain.StockReservation) error {
	t.reservations[reservationKey(r.OrderID, r.ProductID)] = r
	return nil
}

func (t *memoryTx) AppendHistory(_ context.Context, h *domain.InventoryHistory) error {
	t.history = append(t.history, h)
	return nil
}

func (t *memoryTx) EnqueueOutbox(_ context.Context, msg *outbox.Message) error {
	t.pendingOutbox = append(t.pendingOutbox, msg)
	return nil
}
