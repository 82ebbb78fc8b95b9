package domain

import "testing"

func authorizedPayment(t *testing.T) *Payment {
	t.Helper()
	p := NewPayment("pay-1", "order-1", "user-1", 100)
	if err := p.BeginProcessing(); err != nil {
		t.Fatalf("BeginProcessing failed: %v", err)
	}
	if err := p.MarkAuthorized("txn-1"); err != nil {
		t.Fatalf("MarkAuthorized failed: %v", err)
	}
	return p
}

func completedPayment(t *testing.T) *Payment {
	t.Helper()
	p := authorizedPayment(t)
	if err := p.Capture(); err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if err := p.Complete(); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	return p
}

func TestPayment_HappyPathTransitions(t *testing.T) {
	p := completedPayment(t)
	if p.Status != PaymentCompleted {
		t.Errorf("expected COMPLETED, got %s", p.Status)
	}
	if p.TransactionID != "txn-1" {
		t.Errorf("transaction id lost: %q", p.TransactionID)
	}
	if p.ProcessedAt == nil || p.CapturedAt == nil {
		t.Errorf("transition timestamps must be recorded")
	}
}

func TestPayment_CaptureRequiresAuthorized(t *testing.T) {
	p := NewPayment("pay-1", "order-1", "user-1", 100)
	if err := p.Capture(); err != ErrInvalidStatusTransition {
		t.Errorf("capture from Pending: expected ErrInvalidStatusTransition, got %v", err)
	}
	if err := p.BeginProcessing(); err != nil {
		t.Fatalf("BeginProcessing failed: %v", err)
	}
	if err := p.MarkFailed("declined"); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}
	if err := p.Capture(); err != ErrInvalidStatusTransition {
		t.Errorf("capture from Failed: expected ErrInvalidStatusTransition, got %v", err)
	}
}

func TestPayment_VoidOnlyFromAuthorized(t *testing.T) {
	p := authorizedPayment(t)
	if err := p.Void("order canceled"); err != nil {
		t.Fatalf("Void failed: %v", err)
	}
	if p.Status != PaymentVoided || p.CancelledAt == nil {
		t.Errorf("expected VOIDED with cancellation timestamp, got %s", p.Status)
	}

	captured := completedPayment(t)
	if err := captured.Void("too late"); err != ErrInvalidStatusTransition {
		t.Errorf("void after capture: expected ErrInvalidStatusTransition, got %v", err)
	}
}

// Scenario E: 部分退款后二次退款超额必须被拒绝
func TestPayment_RefundValidation(t *testing.T) {
	p := completedPayment(t)

	if err := p.ApplyRefund(60); err != nil {
		t.Fatalf("first refund failed: %v", err)
	}
	if p.Status != PaymentPartiallyRefunded || p.RefundedAmount != 60 {
		t.Errorf("expected PARTIALLY_REFUNDED/60, got %s/%v", p.Status, p.RefundedAmount)
	}

	if err := p.ApplyRefund(50); err != ErrRefundExceedsCaptured {
		t.Errorf("expected ErrRefundExceedsCaptured, got %v", err)
	}
	if p.RefundedAmount != 60 {
		t.Errorf("failed refund must not change refundedAmount, got %v", p.RefundedAmount)
	}

	if err := p.ApplyRefund(40); err != nil {
		t.Fatalf("refund of remainder failed: %v", err)
	}
	if p.Status != PaymentRefunded {
		t.Errorf("expected REFUNDED after full refund, got %s", p.Status)
	}
}

func TestPayment_RefundRequiresCompleted(t *testing.T) {
	p := authorizedPayment(t)
	if err := p.ApplyRefund(10); err != ErrInvalidStatusTransition {
		t.Errorf("refund from Authorized: expected ErrInvalidStatusTransition, got %v", err)
	}
}
