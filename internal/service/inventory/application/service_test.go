package application

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"

	"github.com/trvannhanh/elaris-marketplace-sub000/internal/service/inventory/domain"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/service/inventory/infrastructure"
)

func newTestService(t *testing.T) (*InventoryApplicationService, *infrastructure.MemoryRepository) {
	t.Helper()
	repo := infrastructure.NewMemoryRepository()
	svc := NewInventoryApplicationService(repo, nil, otel.Tracer("test"))
	return svc, repo
}

func seed(t *testing.T, svc *InventoryApplicationService, productID string, quantity int) {
	t.Helper()
	if err := svc.SeedItem(context.Background(), productID, quantity, 2); err != nil {
		t.Fatalf("SeedItem failed: %v", err)
	}
}

func mustItem(t *testing.T, repo *infrastructure.MemoryRepository, productID string) *domain.InventoryItem {
	t.Helper()
	item, err := repo.FindItem(context.Background(), productID)
	if err != nil {
		t.Fatalf("FindItem(%s) failed: %v", productID, err)
	}
	return item
}

// Scenario A: 预占后确认，总量与预占量同时扣减
func TestReserveThenConfirm(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	seed(t, svc, "product-x", 10)

	if err := svc.Reserve(ctx, "order-1", []domain.ItemLine{{ProductID: "product-x", Quantity: 3}}); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	item := mustItem(t, repo, "product-x")
	if item.AvailableQuantity != 7 || item.ReservedQuantity != 3 {
		t.Errorf("after reserve: available=%d reserved=%d, expected 7/3", item.AvailableQuantity, item.ReservedQuantity)
	}
	if r, ok := repo.Reservation("order-1", "product-x"); !ok || r.Status != domain.ReservationActive {
		t.Fatalf("expected an Active reservation")
	}

	if err := svc.Confirm(ctx, "order-1", []domain.ItemLine{{ProductID: "product-x", Quantity: 3}}); err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}
	item = mustItem(t, repo, "product-x")
	if item.Quantity != 7 || item.ReservedQuantity != 0 || item.AvailableQuantity != 7 {
		t.Errorf("after confirm: quantity=%d reserved=%d available=%d, expected 7/0/7",
			item.Quantity, item.ReservedQuantity, item.AvailableQuantity)
	}
	if r, _ := repo.Reservation("order-1", "product-x"); r.Status != domain.ReservationConfirmed {
		t.Errorf("expected reservation Confirmed, got %s", r.Status)
	}
}

// Scenario B: 可用量不足时整单拒绝，且不留下任何预占记录
func TestReserveInsufficientStockRejectsWholeOrder(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	seed(t, svc, "product-x", 10)

	if err := svc.Reserve(ctx, "order-2", []domain.ItemLine{{ProductID: "product-x", Quantity: 5}}); err != nil {
		t.Fatalf("first reserve failed: %v", err)
	}

	err := svc.Reserve(ctx, "order-3", []domain.ItemLine{{ProductID: "product-x", Quantity: 5}})
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if _, ok := repo.Reservation("order-3", "product-x"); ok {
		t.Errorf("rejected order must not leave a reservation behind")
	}
	item := mustItem(t, repo, "product-x")
	if item.AvailableQuantity != 5 {
		t.Errorf("available=%d, expected 5", item.AvailableQuantity)
	}

	// 拒绝以 StockRejected 事件的形式进入 Outbox
	found := false
	for _, msg := range repo.Outbox.All() {
		if msg.EventType == domain.EventStockRejected {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a StockRejected event in the outbox")
	}
}

// 多行订单中途失败必须整体回滚
func TestReserveMultiLineRollsBackOnFailure(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	seed(t, svc, "product-a", 10)
	seed(t, svc, "product-b", 1)

	err := svc.Reserve(ctx, "order-4", []domain.ItemLine{
		{ProductID: "product-a", Quantity: 2},
		{ProductID: "product-b", Quantity: 5},
	})
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if item := mustItem(t, repo, "product-a"); item.ReservedQuantity != 0 {
		t.Errorf("product-a reservation must be rolled back, reserved=%d", item.ReservedQuantity)
	}
}

// Round trip: Reserve 后 Release 恢复原状
func TestReserveReleaseRoundTrip(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	seed(t, svc, "product-x", 10)

	line := []domain.ItemLine{{ProductID: "product-x", Quantity: 4}}
	if err := svc.Reserve(ctx, "order-5", line); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if err := svc.Release(ctx, "order-5", line, false); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	item := mustItem(t, repo, "product-x")
	if item.ReservedQuantity != 0 || item.AvailableQuantity != 10 {
		t.Errorf("round trip must restore counters, reserved=%d available=%d", item.ReservedQuantity, item.AvailableQuantity)
	}
	if r, _ := repo.Reservation("order-5", "product-x"); r.Status != domain.ReservationReleased {
		t.Errorf("expected reservation Released, got %s", r.Status)
	}
}

// 幂等性: Confirm 重复到达不会二次扣减
func TestConfirmIsIdempotent(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	seed(t, svc, "product-x", 10)

	line := []domain.ItemLine{{ProductID: "product-x", Quantity: 3}}
	if err := svc.Reserve(ctx, "order-6", line); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if err := svc.Confirm(ctx, "order-6", line); err != nil {
		t.Fatalf("first Confirm failed: %v", err)
	}
	if err := svc.Confirm(ctx, "order-6", line); err != nil {
		t.Fatalf("redelivered Confirm must be a no-op, got %v", err)
	}

	item := mustItem(t, repo, "product-x")
	if item.Quantity != 7 || item.ReservedQuantity != 0 {
		t.Errorf("double confirm must not deduct twice: quantity=%d reserved=%d", item.Quantity, item.ReservedQuantity)
	}
}

// 幂等性: Release 重复到达不会把计数释放成负数
func TestDoubleReleaseIsNoop(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	seed(t, svc, "product-x", 10)

	line := []domain.ItemLine{{ProductID: "product-x", Quantity: 4}}
	if err := svc.Reserve(ctx, "order-7", line); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if err := svc.Release(ctx, "order-7", line, false); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if err := svc.Release(ctx, "order-7", line, false); err != nil {
		t.Fatalf("second Release must be a no-op, got %v", err)
	}
	if item := mustItem(t, repo, "product-x"); item.ReservedQuantity != 0 || item.AvailableQuantity != 10 {
		t.Errorf("counters drifted after double release: reserved=%d available=%d", item.ReservedQuantity, item.AvailableQuantity)
	}
}

// 确认一笔已被释放的预占必须失败并发出 InventoryFailed
func TestConfirmReleasedReservationFails(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	seed(t, svc, "product-x", 10)

	line := []domain.ItemLine{{ProductID: "product-x", Quantity: 3}}
	if err := svc.Reserve(ctx, "order-8", line); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if err := svc.Release(ctx, "order-8", line, false); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	if err := svc.Confirm(ctx, "order-8", line); !errors.Is(err, domain.ErrReservationNotFound) {
		t.Fatalf("expected ErrReservationNotFound, got %v", err)
	}
	found := false
	for _, msg := range repo.Outbox.All() {
		if msg.EventType == domain.EventInventoryFailed {
			found = true
		}
	}
	if !found {
		t.Errorf("expected an InventoryFailed event in the outbox")
	}
}

func TestReserveUnknownProduct(t *testing.T) {
	svc, _ := newTestService(t)
	err := svc.Reserve(context.Background(), "order-9", []domain.ItemLine{{ProductID: "ghost", Quantity: 1}})
	if !errors.Is(err, domain.ErrProductNotFound) {
		t.Errorf("expected ErrProductNotFound, got %v", err)
	}
}

func TestCheckStockIsAdvisoryAndReadOnly(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	seed(t, svc, "product-x", 10)

	available, remaining, err := svc.CheckStock(ctx, "product-x", 4)
	if err != nil || !available || remaining != 10 {
		t.Fatalf("CheckStock = (%v, %d, %v), expected (true, 10, nil)", available, remaining, err)
	}
	available, _, err = svc.CheckStock(ctx, "product-x", 11)
	if err != nil || available {
		t.Fatalf("expected not available for quantity 11")
	}
	if item := mustItem(t, repo, "product-x"); item.ReservedQuantity != 0 {
		t.Errorf("CheckStock must not mutate state")
	}
}
