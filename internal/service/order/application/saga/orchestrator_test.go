package saga

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"

	invdomain "github.com/trvannhanh/elaris-marketplace-sub000/internal/service/inventory/domain"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/service/order/domain"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/service/order/infrastructure"
	paydomain "github.com/trvannhanh/elaris-marketplace-sub000/internal/service/payment/domain"
)

func newTestOrchestrator(t *testing.T) (*Orchestrator, *infrastructure.MemoryRepository) {
	t.Helper()
	repo := infrastructure.NewMemoryRepository()
	return NewOrchestrator(repo, otel.Tracer("test")), repo
}

func seedSaga(t *testing.T, repo *infrastructure.MemoryRepository, orderID string) {
	t.Helper()
	err := repo.InTx(context.Background(), func(tx domain.TxRepository) error {
		return tx.CreateSaga(context.Background(), domain.NewOrderSaga(orderID, "user-1", 150, []domain.OrderLine{
			{ProductID: "product-x", Quantity: 3, Price: 50},
		}))
	})
	if err != nil {
		t.Fatalf("seedSaga failed: %v", err)
	}
}

func mustSaga(t *testing.T, repo *infrastructure.MemoryRepository, orderID string) *domain.OrderSaga {
	t.Helper()
	s, err := repo.FindSaga(context.Background(), orderID)
	if err != nil {
		t.Fatalf("FindSaga(%s) failed: %v", orderID, err)
	}
	return s
}

func commandTypes(repo *infrastructure.MemoryRepository) []string {
	var out []string
	for _, msg := range repo.Outbox.All() {
		out = append(out, msg.EventType)
	}
	return out
}

func hasCommand(repo *infrastructure.MemoryRepository, eventType string) bool {
	for _, msg := range repo.Outbox.All() {
		if msg.EventType == eventType {
			return true
		}
	}
	return false
}

func TestHappyPathTransitions(t *testing.T) {
	o, repo := newTestOrchestrator(t)
	ctx := context.Background()
	seedSaga(t, repo, "order-1")

	steps := []struct {
		event      Event
		wantStatus domain.OrderStatus
		wantCmd    string
	}{
		{Event{Type: domain.EventOrderCreated, OrderID: "order-1"}, domain.OrderCreated, invdomain.CmdReserveInventory},
		{Event{Type: invdomain.EventItemsReserved, OrderID: "order-1"}, domain.OrderStockReserved, paydomain.CmdAuthorizePayment},
		{Event{Type: paydomain.EventPaymentSucceeded, OrderID: "order-1"}, domain.OrderPaymentSucceeded, invdomain.CmdConfirmInventory},
		{Event{Type: invdomain.EventInventoryUpdate, OrderID: "order-1"}, domain.OrderCompleted, paydomain.CmdCapturePayment},
	}
	for _, step := range steps {
		if err := o.HandleEvent(ctx, step.event); err != nil {
			t.Fatalf("HandleEvent(%s) failed: %v", step.event.Type, err)
		}
		if s := mustSaga(t, repo, "order-1"); s.Status != step.wantStatus {
			t.Fatalf("after %s: status=%s, expected %s", step.event.Type, s.Status, step.wantStatus)
		}
		if !hasCommand(repo, step.wantCmd) {
			t.Fatalf("after %s: command %s not issued, outbox: %v", step.event.Type, step.wantCmd, commandTypes(repo))
		}
	}

	s := mustSaga(t, repo, "order-1")
	if s.ReservedAt == nil || s.PaidAt == nil || s.CompletedAt == nil {
		t.Errorf("transition timestamps must be recorded")
	}
}

// Scenario C: 库存拒绝后订单取消；之后到达的支付事件因终态被丢弃
func TestStockRejectedCancelsAndTerminalDropsLateEvents(t *testing.T) {
	o, repo := newTestOrchestrator(t)
	ctx := context.Background()
	seedSaga(t, repo, "order-2")

	if err := o.HandleEvent(ctx, Event{Type: invdomain.EventStockRejected, OrderID: "order-2", Reason: "insufficient stock"}); err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}
	s := mustSaga(t, repo, "order-2")
	if s.Status != domain.OrderCanceled || s.CancelReason != "insufficient stock" {
		t.Fatalf("expected CANCELED with reason, got %s/%q", s.Status, s.CancelReason)
	}

	before := len(repo.Outbox.All())
	if err := o.HandleEvent(ctx, Event{Type: paydomain.EventPaymentSucceeded, OrderID: "order-2"}); err != nil {
		t.Fatalf("late event must be dropped, not fail: %v", err)
	}
	if s := mustSaga(t, repo, "order-2"); s.Status != domain.OrderCanceled {
		t.Errorf("terminal saga must not transition, got %s", s.Status)
	}
	if len(repo.Outbox.All()) != before {
		t.Errorf("dropped event must not issue commands")
	}
}

// Scenario D: StockReserved 后支付失败，发出 ReleaseInventory 补偿并取消
func TestPaymentFailedCompensatesWithRelease(t *testing.T) {
	o, repo := newTestOrchestrator(t)
	ctx := context.Background()
	seedSaga(t, repo, "order-3")

	if err := o.HandleEvent(ctx, Event{Type: invdomain.EventItemsReserved, OrderID: "order-3"}); err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}
	if err := o.HandleEvent(ctx, Event{Type: paydomain.EventPaymentFailed, OrderID: "order-3", Reason: "card declined"}); err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}

	s := mustSaga(t, repo, "order-3")
	if s.Status != domain.OrderCanceled || s.CancelReason != "card declined" {
		t.Errorf("expected CANCELED with reason, got %s/%q", s.Status, s.CancelReason)
	}
	if !hasCommand(repo, invdomain.CmdReleaseInventory) {
		t.Errorf("compensation ReleaseInventory not issued, outbox: %v", commandTypes(repo))
	}
}

// 确认阶段失败要双重补偿：撤销支付授权 + 归还库存预占
func TestInventoryFailedCompensatesVoidAndRelease(t *testing.T) {
	o, repo := newTestOrchestrator(t)
	ctx := context.Background()
	seedSaga(t, repo, "order-4")

	for _, ev := range []Event{
		{Type: invdomain.EventItemsReserved, OrderID: "order-4"},
		{Type: paydomain.EventPaymentSucceeded, OrderID: "order-4"},
		{Type: invdomain.EventInventoryFailed, OrderID: "order-4", Reason: "reservation expired"},
	} {
		if err := o.HandleEvent(ctx, ev); err != nil {
			t.Fatalf("HandleEvent(%s) failed: %v", ev.Type, err)
		}
	}

	s := mustSaga(t, repo, "order-4")
	if s.Status != domain.OrderCanceled {
		t.Errorf("expected CANCELED, got %s", s.Status)
	}
	if !hasCommand(repo, paydomain.CmdVoidPayment) || !hasCommand(repo, invdomain.CmdReleaseInventory) {
		t.Errorf("both compensations must be issued, outbox: %v", commandTypes(repo))
	}
}

func TestEventForUnknownOrderIsDropped(t *testing.T) {
	o, repo := newTestOrchestrator(t)
	if err := o.HandleEvent(context.Background(), Event{Type: invdomain.EventItemsReserved, OrderID: "ghost"}); err != nil {
		t.Fatalf("unknown order must be dropped, not fail: %v", err)
	}
	if len(repo.Outbox.All()) != 0 {
		t.Errorf("dropped event must not issue commands")
	}
}

// 事件在当前状态下查不到转移时被丢弃（跨主题乱序防御）
func TestOutOfOrderEventIsDropped(t *testing.T) {
	o, repo := newTestOrchestrator(t)
	ctx := context.Background()
	seedSaga(t, repo, "order-5")

	// PaymentSucceeded 先于 ItemsReserved 到达
	if err := o.HandleEvent(ctx, Event{Type: paydomain.EventPaymentSucceeded, OrderID: "order-5"}); err != nil {
		t.Fatalf("out-of-order event must be dropped, not fail: %v", err)
	}
	if s := mustSaga(t, repo, "order-5"); s.Status != domain.OrderCreated {
		t.Errorf("status must not change on out-of-order event, got %s", s.Status)
	}
}

// 每次状态流转都要向 order-status 发布一条事件
func TestStatusEventPublishedOnTransition(t *testing.T) {
	o, repo := newTestOrchestrator(t)
	ctx := context.Background()
	seedSaga(t, repo, "order-6")

	if err := o.HandleEvent(ctx, Event{Type: invdomain.EventItemsReserved, OrderID: "order-6"}); err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}
	found := false
	for _, msg := range repo.Outbox.All() {
		if msg.Topic == domain.TopicOrderStatus && msg.EventType == domain.EventOrderStatusChanged {
			found = true
		}
	}
	if !found {
		t.Errorf("expected an order-status event after the transition")
	}
}
