// internal/service/payment/domain/payment.go
package domain

import "time"

// PaymentStatus 支付单的生命周期状态
type PaymentStatus string

const (
	PaymentPending           PaymentStatus = "PENDING"
	PaymentProcessing        PaymentStatus = "PROCESSING"
	PaymentAuthorized        PaymentStatus = "AUTHORIZED"
	PaymentFailed            PaymentStatus = "FAILED"
	PaymentCaptured          PaymentStatus = "CAPTURED"
	PaymentVoided            PaymentStatus = "VOIDED"
	PaymentCompleted         PaymentStatus = "COMPLETED"
	PaymentPartiallyRefunded PaymentStatus = "PARTIALLY_REFUNDED"
	PaymentRefunded          PaymentStatus = "REFUNDED"
)

// Payment 是一个订单的支付单，每个订单至多一条。
// 状态机: Pending → Processing → {Authorized | Failed}；
// Authorized → {Captured | Voided}；Captured → {Completed | PartiallyRefunded | Refunded}。
type Payment struct {
	ID             string
	OrderID        string
	UserID         string
	Amount         float64
	RefundedAmount float64
	Status         PaymentStatus
	TransactionID  string
	FailureReason  string
	CreatedAt      time.Time
	ProcessedAt    *time.Time
	CapturedAt     *time.Time
	RefundedAt     *time.Time
	CancelledAt    *time.Time
}

// NewPayment 创建一笔 Pending 支付单
func NewPayment(id, orderID, userID string, amount float64) *Payment {
	return &Payment{
		ID:        id,
		OrderID:   orderID,
		UserID:    userID,
		Amount:    amount,
		Status:    PaymentPending,
		CreatedAt: time.Now().UTC(),
	}
}

// BeginProcessing 标记授权流程开始，网关调用期间支付单处于 Processing
func (p *Payment) BeginProcessing() error {
	if p.Status != PaymentPending {
		return ErrInvalidStatusTransition
	}
	p.Status = PaymentProcessing
	return nil
}

// MarkAuthorized 记录网关授权成功
func (p *Payment) MarkAuthorized(transactionID string) error {
	if p.Status != PaymentProcessing {
		return ErrInvalidStatusTransition
	}
	p.Status = PaymentAuthorized
	p.TransactionID = transactionID
	now := time.Now().UTC()
	p.ProcessedAt = &now
	return nil
}

// MarkFailed 记录授权失败（网关拒绝或授权超时）
func (p *Payment) MarkFailed(reason string) error {
	if p.Status != PaymentPending && p.Status != PaymentProcessing {
		return ErrInvalidStatusTransition
	}
	p.Status = PaymentFailed
	p.FailureReason = reason
	now := time.Now().UTC()
	p.ProcessedAt = &now
	return nil
}

// Capture 把授权转为实际扣款，只允许从 Authorized 发起
func (p *Payment) Capture() error {
	if p.Status != PaymentAuthorized {
		return ErrInvalidStatusTransition
	}
	p.Status = PaymentCaptured
	now := time.Now().UTC()
	p.CapturedAt = &now
	return nil
}

// Complete 扣款落账完成，此后才允许退款
func (p *Payment) Complete() error {
	if p.Status != PaymentCaptured {
		return ErrInvalidStatusTransition
	}
	p.Status = PaymentCompleted
	return nil
}

// Void 撤销一笔已授权但尚未扣款的支付
func (p *Payment) Void(reason string) error {
	if p.Status != PaymentAuthorized {
		return ErrInvalidStatusTransition
	}
	p.Status = PaymentVoided
	p.FailureReason = reason
	now := time.Now().UTC()
	p.CancelledAt = &now
	return nil
}

// ApplyRefund 记录一笔退款，累计退款不得超过支付金额。
// 全额退完进入 Refunded，否则 PartiallyRefunded，后者仍可继续退款。
func (p *Payment) ApplyRefund(amount float64) error {
	if p.Status != PaymentCompleted && p.Status != PaymentPartiallyRefunded {
		return ErrInvalidStatusTransition
	}
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if p.RefundedAmount+amount > p.Amount {
		return ErrRefundExceedsCaptured
	}
	p.RefundedAmount += amount
	now := time.Now().UTC()
	p.RefundedAt = &now
	if p.RefundedAmount == p.Amount {
		p.Status = PaymentRefunded
	} else {
		p.Status = PaymentPartiallyRefunded
	}
	return nil
}

// IsTerminal Failed / Voided / Refunded 之后支付单不再流转
func (p *Payment) IsTerminal() bool {
	return p.Status == PaymentFailed || p.Status == PaymentVoided || p.Status == PaymentRefunded
}
