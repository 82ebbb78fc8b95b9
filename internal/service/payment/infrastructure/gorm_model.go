// internal/service/payment/infrastructure/gorm_model.go
package infrastructure

import (
	"time"

	"github.com/trvannhanh/elaris-marketplace-sub000/internal/service/payment/domain"
)

// PaymentModel 对应数据库中的 payments 表，订单号唯一
type PaymentModel struct {
	ID             string `gorm:"primaryKey;size:64"`
	OrderID        string `gorm:"size:64;uniqueIndex"`
	UserID         string `gorm:"size:64;index"`
	Amount         float64
	RefundedAmount float64
	Status         string `gorm:"size:24;index:idx_payment_status"`
	TransactionID  string `gorm:"size:64"`
	FailureReason  string `gorm:"size:255"`
	CreatedAt      time.Time `gorm:"index:idx_payment_status,priority:2"`
	ProcessedAt    *time.Time
	CapturedAt     *time.Time
	RefundedAt     *time.Time
	CancelledAt    *time.Time
}

// TableName 指定 GORM 应该使用的表名
func (PaymentModel) TableName() string {
	return "payments"
}

// PaymentHistoryModel 对应数据库中的 payment_history 表（只追加）
type PaymentHistoryModel struct {
	ID         int64  `gorm:"primaryKey;autoIncrement"`
	PaymentID  string `gorm:"size:64;index"`
	OrderID    string `gorm:"size:64"`
	FromStatus string `gorm:"size:24"`
	ToStatus   string `gorm:"size:24"`
	Actor      string `gorm:"size:32"`
	Note       string `gorm:"size:255"`
	CreatedAt  time.Time
}

// TableName 指定 GORM 应该使用的表名
func (PaymentHistoryModel) TableName() string {
	return "payment_history"
}

func toPaymentModel(p *domain.Payment) *PaymentModel {
	return &PaymentModel{
		ID:             p.ID,
		OrderID:        p.OrderID,
		UserID:         p.UserID,
		Amount:         p.Amount,
		RefundedAmount: p.RefundedAmount,
		Status:         string(p.Status),
		TransactionID:  p.TransactionID,
		FailureReason:  p.FailureReason,
		CreatedAt:      p.CreatedAt,
		ProcessedAt:    p.ProcessedAt,
		CapturedAt:     p.CapturedAt,
		RefundedAt:     p.RefundedAt,
		CancelledAt:    p.CancelledAt,
	}
}

func toDomainPayment(m *PaymentModel) *domain.Payment {
	return &domain.Payment{
		ID:             m.ID,
		OrderID:        m.OrderID,
		UserID:         m.UserID,
		Amount:         m.Amount,
		RefundedAmount: m.RefundedAmount,
		Status:         domain.PaymentStatus(m.Status),
		TransactionID:  m.TransactionID,
		FailureReason:  m.FailureReason,
		CreatedAt:      m.CreatedAt,
		ProcessedAt:    m.ProcessedAt,
		CapturedAt:     m.CapturedAt,
		RefundedAt:     m.RefundedAt,
		CancelledAt:    m.CancelledAt,
	}
}

func toPaymentHistoryModel(h *domain.PaymentHistory) *PaymentHistoryModel {
	return &PaymentHistoryModel{
		PaymentID:  h.PaymentID,
		OrderID:    h.OrderID,
		FromStatus: string(h.FromStatus),
		ToStatus:   string(h.ToStatus),
		Actor:      h.Actor,
		Note:       h.Note,
	}
}
