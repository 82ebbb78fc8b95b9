// internal/service/order/domain/port/precheck.go
package port

import "context"

// StockCheckResult 库存预检查的响应
type StockCheckResult struct {
	Available bool `json:"available"`
	Remaining int  `json:"remaining"`
}

// StockChecker 下单前的同步库存预检查端口，实现方是咨询性的只读调用
type StockChecker interface {
	CheckStock(ctx context.Context, productID string, quantity int) (*StockCheckResult, error)
}

// PreAuthResult 支付预授权的响应
type PreAuthResult struct {
	Success   bool   `json:"success"`
	PaymentID string `json:"paymentId"`
	Status    string `json:"status"`
}

// PaymentPreAuthorizer 下单前的同步支付预检查端口，不产生持久化支付状态
type PaymentPreAuthorizer interface {
	PreAuthorize(ctx context.Context, orderID, userID string, amount float64) (*PreAuthResult, error)
}
