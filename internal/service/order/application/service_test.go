package application

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"

	"github.com/trvannhanh/elaris-marketplace-sub000/internal/service/order/domain"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/service/order/domain/port"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/service/order/infrastructure"
)

type fakeStockChecker struct {
	unavailable map[string]bool
}

func (f *fakeStockChecker) CheckStock(_ context.Context, productID string, _ int) (*port.StockCheckResult, error) {
	if f.unavailable[productID] {
		return &port.StockCheckResult{Available: false, Remaining: 0}, nil
	}
	return &port.StockCheckResult{Available: true, Remaining: 100}, nil
}

type fakePreAuthorizer struct {
	declineAbove float64
}

func (f *fakePreAuthorizer) PreAuthorize(_ context.Context, _, _ string, amount float64) (*port.PreAuthResult, error) {
	if f.declineAbove > 0 && amount > f.declineAbove {
		return &port.PreAuthResult{Success: false, Status: "DECLINED"}, nil
	}
	return &port.PreAuthResult{Success: true, Status: "ELIGIBLE"}, nil
}

func newTestService(t *testing.T, checker port.StockChecker, preAuth port.PaymentPreAuthorizer) (*OrderApplicationService, *infrastructure.MemoryRepository) {
	t.Helper()
	repo := infrastructure.NewMemoryRepository()
	svc := NewOrderApplicationService(repo, checker, preAuth, otel.Tracer("test"))
	return svc, repo
}

var testLines = []domain.OrderLine{{ProductID: "product-x", Quantity: 2, Price: 50}}

func TestCreateOrderPersistsSagaAndEvent(t *testing.T) {
	svc, repo := newTestService(t, &fakeStockChecker{}, &fakePreAuthorizer{})

	orderID, err := svc.CreateOrder(context.Background(), CreateOrderRequest{UserID: "user-1", Items: testLines})
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}

	saga, err := repo.FindSaga(context.Background(), orderID)
	if err != nil {
		t.Fatalf("saga not persisted: %v", err)
	}
	if saga.Status != domain.OrderCreated || saga.TotalAmount != 100 {
		t.Errorf("saga = %s/%v, expected CREATED/100", saga.Status, saga.TotalAmount)
	}

	// 快照与 OrderCreated 事件在同一事务里落库
	found := false
	for _, msg := range repo.Outbox.All() {
		if msg.EventType == domain.EventOrderCreated && msg.Key == orderID {
			found = true
		}
	}
	if !found {
		t.Errorf("expected an OrderCreated event in the outbox")
	}
}

// 预检查拒绝要在任何事件、任何 Saga 实例存在之前中止
func TestStockPrecheckRejectionAbortsBeforeAnything(t *testing.T) {
	svc, repo := newTestService(t,
		&fakeStockChecker{unavailable: map[string]bool{"product-x": true}},
		&fakePreAuthorizer{})

	_, err := svc.CreateOrder(context.Background(), CreateOrderRequest{UserID: "user-1", Items: testLines})
	if !errors.Is(err, domain.ErrPrecheckRejected) {
		t.Fatalf("expected ErrPrecheckRejected, got %v", err)
	}
	if msgs := repo.Outbox.All(); len(msgs) != 0 {
		t.Errorf("rejected order must not produce events, got %d", len(msgs))
	}
}

func TestPaymentPrecheckRejectionAbortsBeforeAnything(t *testing.T) {
	svc, repo := newTestService(t, &fakeStockChecker{}, &fakePreAuthorizer{declineAbove: 50})

	_, err := svc.CreateOrder(context.Background(), CreateOrderRequest{UserID: "user-1", Items: testLines})
	if !errors.Is(err, domain.ErrPrecheckRejected) {
		t.Fatalf("expected ErrPrecheckRejected, got %v", err)
	}
	if msgs := repo.Outbox.All(); len(msgs) != 0 {
		t.Errorf("rejected order must not produce events, got %d", len(msgs))
	}
}

func TestCreateOrderValidation(t *testing.T) {
	svc, _ := newTestService(t, &fakeStockChecker{}, &fakePreAuthorizer{})

	if _, err := svc.CreateOrder(context.Background(), CreateOrderRequest{Items: testLines}); !errors.Is(err, domain.ErrInvalidOrder) {
		t.Errorf("missing user: expected ErrInvalidOrder, got %v", err)
	}
	if _, err := svc.CreateOrder(context.Background(), CreateOrderRequest{UserID: "user-1"}); !errors.Is(err, domain.ErrInvalidOrder) {
		t.Errorf("no items: expected ErrInvalidOrder, got %v", err)
	}
	if _, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		UserID: "user-1",
		Items:  []domain.OrderLine{{ProductID: "product-x", Quantity: 0, Price: 50}},
	}); !errors.Is(err, domain.ErrInvalidOrder) {
		t.Errorf("zero quantity: expected ErrInvalidOrder, got %v", err)
	}
}
