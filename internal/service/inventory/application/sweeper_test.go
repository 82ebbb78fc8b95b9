package application

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/trvannhanh/elaris-marketplace-sub000/internal/service/inventory/domain"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/service/inventory/infrastructure"
)

// backdate 把一笔预占的时间拨回过去，模拟超时
func backdate(t *testing.T, repo *infrastructure.MemoryRepository, orderID, productID string, age time.Duration) {
	t.Helper()
	err := repo.InTx(context.Background(), func(tx domain.TxRepository) error {
		r, err := tx.ReservationForUpdate(context.Background(), orderID, productID)
		if err != nil {
			return err
		}
		r.ReservedAt = time.Now().UTC().Add(-age)
		return tx.SaveReservation(context.Background(), r)
	})
	if err != nil {
		t.Fatalf("backdate failed: %v", err)
	}
}

func TestSweeperReleasesStaleReservationExactlyOnce(t *testing.T) {
	repo := infrastructure.NewMemoryRepository()
	svc := NewInventoryApplicationService(repo, nil, otel.Tracer("test"))
	sweeper := NewExpirySweeper(svc, repo, nil, time.Second, 15*time.Minute)
	ctx := context.Background()

	if err := svc.SeedItem(ctx, "product-x", 10, 2); err != nil {
		t.Fatalf("SeedItem failed: %v", err)
	}
	if err := svc.Reserve(ctx, "order-stale", []domain.ItemLine{{ProductID: "product-x", Quantity: 3}}); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	backdate(t, repo, "order-stale", "product-x", 30*time.Minute)

	if n := sweeper.SweepOnce(ctx); n != 1 {
		t.Fatalf("first sweep released %d reservations, expected 1", n)
	}
	r, _ := repo.Reservation("order-stale", "product-x")
	if r.Status != domain.ReservationExpired {
		t.Errorf("expected reservation Expired, got %s", r.Status)
	}
	item, err := repo.FindItem(ctx, "product-x")
	if err != nil {
		t.Fatalf("FindItem failed: %v", err)
	}
	if item.ReservedQuantity != 0 || item.AvailableQuantity != 10 {
		t.Errorf("stock not restored: reserved=%d available=%d", item.ReservedQuantity, item.AvailableQuantity)
	}

	// 第二轮不应重复释放
	if n := sweeper.SweepOnce(ctx); n != 0 {
		t.Errorf("second sweep released %d reservations, expected 0", n)
	}
}

func TestSweeperIgnoresFreshReservations(t *testing.T) {
	repo := infrastructure.NewMemoryRepository()
	svc := NewInventoryApplicationService(repo, nil, otel.Tracer("test"))
	sweeper := NewExpirySweeper(svc, repo, nil, time.Second, 15*time.Minute)
	ctx := context.Background()

	if err := svc.SeedItem(ctx, "product-x", 10, 2); err != nil {
		t.Fatalf("SeedItem failed: %v", err)
	}
	if err := svc.Reserve(ctx, "order-fresh", []domain.ItemLine{{ProductID: "product-x", Quantity: 3}}); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}

	if n := sweeper.SweepOnce(ctx); n != 0 {
		t.Errorf("sweep released %d fresh reservations, expected 0", n)
	}
	if r, _ := repo.Reservation("order-fresh", "product-x"); r.Status != domain.ReservationActive {
		t.Errorf("fresh reservation must stay Active, got %s", r.Status)
	}
}

// 先被清扫过期，随后到达的确认必须失败（库存早已归还）
func TestSweeperThenConfirmFails(t *testing.T) {
	repo := infrastructure.NewMemoryRepository()
	svc := NewInventoryApplicationService(repo, nil, otel.Tracer("test"))
	sweeper := NewExpirySweeper(svc, repo, nil, time.Second, 15*time.Minute)
	ctx := context.Background()

	if err := svc.SeedItem(ctx, "product-x", 10, 2); err != nil {
		t.Fatalf("SeedItem failed: %v", err)
	}
	line := []domain.ItemLine{{ProductID: "product-x", Quantity: 3}}
	if err := svc.Reserve(ctx, "order-late", line); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	backdate(t, repo, "order-late", "product-x", 30*time.Minute)
	if n := sweeper.SweepOnce(ctx); n != 1 {
		t.Fatalf("sweep released %d reservations, expected 1", n)
	}

	if err := svc.Confirm(ctx, "order-late", line); err == nil {
		t.Fatalf("confirm after expiry must fail")
	}
	item, err := repo.FindItem(ctx, "product-x")
	if err != nil {
		t.Fatalf("FindItem failed: %v", err)
	}
	if item.Quantity != 10 || item.ReservedQuantity != 0 {
		t.Errorf("late confirm must not deduct: quantity=%d reserved=%d", item.Quantity, item.ReservedQuantity)
	}
}
