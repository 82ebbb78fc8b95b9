// internal/service/payment/domain/history.go
package domain

import "time"

// PaymentHistory 支付单的审计记录，每次状态流转追加一条，只增不改
type PaymentHistory struct {
	ID         uint
	PaymentID  string
	OrderID    string
	FromStatus PaymentStatus
	ToStatus   PaymentStatus
	Actor      string
	Note       string
	CreatedAt  time.Time
}
