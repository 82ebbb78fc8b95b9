// internal/service/order/domain/saga.go
package domain

import "time"

// OrderStatus Saga 实例的状态
type OrderStatus string

const (
	OrderCreated          OrderStatus = "CREATED"
	OrderStockReserved    OrderStatus = "STOCK_RESERVED"
	OrderPaymentSucceeded OrderStatus = "PAYMENT_SUCCEEDED"
	OrderCompleted        OrderStatus = "COMPLETED"
	OrderCanceled         OrderStatus = "CANCELED"
)

// OrderLine 订单快照中的一行
type OrderLine struct {
	ProductID string  `json:"productId"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

// OrderSaga 是一个订单的 Saga 实例，按订单号关联所有事件。
// 它只记录事实（状态、时间戳）并触发下一条命令，
// 库存与支付的业务不变量由各自的引擎持有，这里一概不碰。
type OrderSaga struct {
	OrderID      string
	UserID       string
	TotalAmount  float64
	Items        []OrderLine
	Status       OrderStatus
	CancelReason string
	CreatedAt    time.Time
	ReservedAt   *time.Time
	PaidAt       *time.Time
	CompletedAt  *time.Time
	CanceledAt   *time.Time
	UpdatedAt    time.Time
}

// NewOrderSaga 创建一个处于 Created 的实例
func NewOrderSaga(orderID, userID string, totalAmount float64, items []OrderLine) *OrderSaga {
	now := time.Now().UTC()
	return &OrderSaga{
		OrderID:     orderID,
		UserID:      userID,
		TotalAmount: totalAmount,
		Items:       items,
		Status:      OrderCreated,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// IsTerminal Completed / Canceled 之后实例不再接受任何事件
func (s *OrderSaga) IsTerminal() bool {
	return s.Status == OrderCompleted || s.Status == OrderCanceled
}

// MarkStatus 流转到新状态并记录对应的时间戳
func (s *OrderSaga) MarkStatus(status OrderStatus, reason string) {
	now := time.Now().UTC()
	s.Status = status
	s.UpdatedAt = now
	switch status {
	case OrderStockReserved:
		s.ReservedAt = &now
	case OrderPaymentSucceeded:
		s.PaidAt = &now
	case OrderCompleted:
		s.CompletedAt = &now
	case OrderCanceled:
		s.CanceledAt = &now
		s.CancelReason = reason
	}
}
