package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/trvannhanh/elaris-marketplace-sub000/internal/service/payment/domain"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/service/payment/infrastructure"
)

func newTestService(t *testing.T) (*PaymentApplicationService, *infrastructure.MemoryRepository, *infrastructure.SimulatedGateway) {
	t.Helper()
	repo := infrastructure.NewMemoryRepository()
	gateway := infrastructure.NewSimulatedGateway(1000)
	svc := NewPaymentApplicationService(repo, gateway, otel.Tracer("test"))
	return svc, repo, gateway
}

func mustPayment(t *testing.T, repo *infrastructure.MemoryRepository, orderID string) *domain.Payment {
	t.Helper()
	p, err := repo.FindByOrder(context.Background(), orderID)
	if err != nil {
		t.Fatalf("FindByOrder(%s) failed: %v", orderID, err)
	}
	return p
}

func countEvents(repo *infrastructure.MemoryRepository, eventType string) int {
	n := 0
	for _, msg := range repo.Outbox.All() {
		if msg.EventType == eventType {
			n++
		}
	}
	return n
}

func TestAuthorizeSuccess(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.Authorize(ctx, "order-1", "user-1", 100); err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
	p := mustPayment(t, repo, "order-1")
	if p.Status != domain.PaymentAuthorized {
		t.Errorf("expected AUTHORIZED, got %s", p.Status)
	}
	if p.TransactionID == "" {
		t.Errorf("authorized payment must carry a transaction id")
	}
	if countEvents(repo, domain.EventPaymentSucceeded) != 1 {
		t.Errorf("expected exactly one PaymentSucceeded event")
	}
}

func TestAuthorizeDeclined(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.Authorize(ctx, "order-2", "user-1", 5000); err != nil {
		t.Fatalf("declined authorize must still land a result, got %v", err)
	}
	p := mustPayment(t, repo, "order-2")
	if p.Status != domain.PaymentFailed {
		t.Errorf("expected FAILED, got %s", p.Status)
	}
	if countEvents(repo, domain.EventPaymentFailed) != 1 {
		t.Errorf("expected exactly one PaymentFailed event")
	}
}

// 幂等性: 重投递的 Authorize 不会二次授权，transactionID 不变
func TestAuthorizeIsIdempotentPerOrder(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.Authorize(ctx, "order-3", "user-1", 100); err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
	first := mustPayment(t, repo, "order-3")

	if err := svc.Authorize(ctx, "order-3", "user-1", 100); err != nil {
		t.Fatalf("redelivered Authorize failed: %v", err)
	}
	second := mustPayment(t, repo, "order-3")
	if second.ID != first.ID || second.TransactionID != first.TransactionID {
		t.Errorf("redelivery must reuse the existing authorization: %q vs %q", second.TransactionID, first.TransactionID)
	}
	// 结果事件被重发，编排器靠它推进
	if countEvents(repo, domain.EventPaymentSucceeded) != 2 {
		t.Errorf("expected the succeeded event to be re-emitted on redelivery")
	}
}

func TestAuthorizeRetriesTransientGatewayFailure(t *testing.T) {
	svc, repo, gateway := newTestService(t)
	ctx := context.Background()

	gateway.FailNext(2) // 两次瞬时失败后第三次成功
	if err := svc.Authorize(ctx, "order-4", "user-1", 100); err != nil {
		t.Fatalf("Authorize with transient failures failed: %v", err)
	}
	if p := mustPayment(t, repo, "order-4"); p.Status != domain.PaymentAuthorized {
		t.Errorf("expected AUTHORIZED after retries, got %s", p.Status)
	}
}

func TestCaptureCompletesPayment(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.Authorize(ctx, "order-5", "user-1", 100); err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
	if err := svc.Capture(ctx, "order-5"); err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	p := mustPayment(t, repo, "order-5")
	if p.Status != domain.PaymentCompleted || p.CapturedAt == nil {
		t.Errorf("expected COMPLETED with capture timestamp, got %s", p.Status)
	}
	if countEvents(repo, domain.EventPaymentCaptured) != 1 {
		t.Errorf("expected exactly one PaymentCaptured event")
	}
}

// 扣款失败时支付单保持 Authorized，留给编排器重试或撤销
func TestCaptureFailureLeavesAuthorized(t *testing.T) {
	svc, repo, gateway := newTestService(t)
	ctx := context.Background()

	if err := svc.Authorize(ctx, "order-6", "user-1", 100); err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
	gateway.FailNext(10) // 超过重试上限
	if err := svc.Capture(ctx, "order-6"); err == nil {
		t.Fatalf("expected capture to fail")
	}
	if p := mustPayment(t, repo, "order-6"); p.Status != domain.PaymentAuthorized {
		t.Errorf("failed capture must leave payment AUTHORIZED, got %s", p.Status)
	}
	if countEvents(repo, domain.EventPaymentCaptureFailed) != 1 {
		t.Errorf("expected a PaymentCaptureFailed event")
	}

	// 网关恢复后重试成功
	gateway.FailNext(0)
	if err := svc.Capture(ctx, "order-6"); err != nil {
		t.Fatalf("retried capture failed: %v", err)
	}
	if p := mustPayment(t, repo, "order-6"); p.Status != domain.PaymentCompleted {
		t.Errorf("expected COMPLETED after retry, got %s", p.Status)
	}
}

// 补偿必须在正向操作从未发生时也安全：撤销不存在的支付是空操作
func TestVoidNonexistentPaymentIsNoop(t *testing.T) {
	svc, repo, _ := newTestService(t)
	if err := svc.Void(context.Background(), "order-ghost", "order canceled"); err != nil {
		t.Fatalf("void of nonexistent payment must be a no-op, got %v", err)
	}
	if countEvents(repo, domain.EventPaymentVoided) != 1 {
		t.Errorf("no-op void must still acknowledge with PaymentVoided")
	}
}

func TestVoidAuthorizedPayment(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.Authorize(ctx, "order-7", "user-1", 100); err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
	if err := svc.Void(ctx, "order-7", "inventory confirmation failed"); err != nil {
		t.Fatalf("Void failed: %v", err)
	}
	p := mustPayment(t, repo, "order-7")
	if p.Status != domain.PaymentVoided || p.CancelledAt == nil {
		t.Errorf("expected VOIDED with cancellation timestamp, got %s", p.Status)
	}
}

func TestVoidCapturedPaymentFails(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.Authorize(ctx, "order-8", "user-1", 100); err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
	if err := svc.Capture(ctx, "order-8"); err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if err := svc.Void(ctx, "order-8", "too late"); !errors.Is(err, domain.ErrInvalidStatusTransition) {
		t.Fatalf("expected ErrInvalidStatusTransition, got %v", err)
	}
	if countEvents(repo, domain.EventPaymentVoidFailed) != 1 {
		t.Errorf("expected a PaymentVoidFailed event")
	}
}

// Scenario E: 100 元完成的支付，退 60 成 PARTIALLY_REFUNDED，再退 50 超额被拒
func TestRefundPartialThenExceeding(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.Authorize(ctx, "order-9", "user-1", 100); err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
	if err := svc.Capture(ctx, "order-9"); err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	paymentID := mustPayment(t, repo, "order-9").ID

	if err := svc.Refund(ctx, paymentID, 60, "customer return"); err != nil {
		t.Fatalf("first refund failed: %v", err)
	}
	p := mustPayment(t, repo, "order-9")
	if p.Status != domain.PaymentPartiallyRefunded || p.RefundedAmount != 60 {
		t.Errorf("expected PARTIALLY_REFUNDED/60, got %s/%v", p.Status, p.RefundedAmount)
	}

	if err := svc.Refund(ctx, paymentID, 50, "second return"); !errors.Is(err, domain.ErrRefundExceedsCaptured) {
		t.Fatalf("expected ErrRefundExceedsCaptured, got %v", err)
	}
	p = mustPayment(t, repo, "order-9")
	if p.RefundedAmount != 60 {
		t.Errorf("rejected refund must not change refundedAmount, got %v", p.RefundedAmount)
	}
	if countEvents(repo, domain.EventPaymentRefunded) != 1 {
		t.Errorf("expected exactly one PaymentRefunded event")
	}
}

func TestPreAuthorizeIsAdvisoryAndPersistsNothing(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	result, err := svc.PreAuthorize(ctx, "order-10", "user-1", 100)
	if err != nil || !result.Success {
		t.Fatalf("PreAuthorize = (%+v, %v), expected success", result, err)
	}
	if _, err := repo.FindByOrder(ctx, "order-10"); !errors.Is(err, domain.ErrPaymentNotFound) {
		t.Errorf("pre-authorization must not persist a payment")
	}

	declined, err := svc.PreAuthorize(ctx, "order-11", "user-1", 5000)
	if err != nil || declined.Success {
		t.Fatalf("expected pre-authorization decline for amount over limit")
	}
}

func backdateProcessing(t *testing.T, repo *infrastructure.MemoryRepository, orderID string, age time.Duration) {
	t.Helper()
	err := repo.InTx(context.Background(), func(tx domain.TxRepository) error {
		p, err := tx.PaymentForUpdate(context.Background(), orderID)
		if err != nil {
			return err
		}
		p.CreatedAt = time.Now().UTC().Add(-age)
		return tx.SavePayment(context.Background(), p)
	})
	if err != nil {
		t.Fatalf("backdate failed: %v", err)
	}
}

// 卡在 Processing 的支付单被清理任务判为失败并发出 PaymentFailed
func TestJanitorFailsStuckPayment(t *testing.T) {
	repo := infrastructure.NewMemoryRepository()
	ctx := context.Background()

	// 直接制造一条卡住的 Processing 记录，模拟网关调用期间进程崩溃
	err := repo.InTx(ctx, func(tx domain.TxRepository) error {
		p := domain.NewPayment("pay-stuck", "order-stuck", "user-1", 100)
		if err := p.BeginProcessing(); err != nil {
			return err
		}
		return tx.CreatePayment(ctx, p)
	})
	if err != nil {
		t.Fatalf("failed to seed stuck payment: %v", err)
	}
	backdateProcessing(t, repo, "order-stuck", time.Hour)

	janitor := NewStuckPaymentJanitor(repo, nil, time.Second, 10*time.Minute)
	if n := janitor.RunOnce(ctx); n != 1 {
		t.Fatalf("first pass failed %d payments, expected 1", n)
	}
	p := mustPayment(t, repo, "order-stuck")
	if p.Status != domain.PaymentFailed {
		t.Errorf("expected FAILED, got %s", p.Status)
	}
	if countEvents(repo, domain.EventPaymentFailed) != 1 {
		t.Errorf("expected a PaymentFailed event for the stuck payment")
	}

	// 第二轮没有新的卡单
	if n := janitor.RunOnce(ctx); n != 0 {
		t.Errorf("second pass failed %d payments, expected 0", n)
	}
}
