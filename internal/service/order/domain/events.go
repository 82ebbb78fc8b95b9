// internal/service/order/domain/events.go
package domain

// 订单服务的消息主题。order-events 由订单服务自产自销
// （下单 API 写出 OrderCreated，编排器消费它来触发第一条命令），
// order-status 供推送网关等外部订阅者消费。
const (
	TopicOrderEvents = "order-events"
	TopicOrderStatus = "order-status"
)

const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
)

// OrderCreatedEvent 下单成功后的初始事件，驱动 Saga 的第一步
type OrderCreatedEvent struct {
	OrderID     string      `json:"orderId"`
	UserID      string      `json:"userId"`
	TotalAmount float64     `json:"totalPrice"`
	Items       []OrderLine `json:"items"`
}

// OrderStatusChangedEvent 每次状态流转都发布一条，供推送网关转发给用户
type OrderStatusChangedEvent struct {
	OrderID string `json:"orderId"`
	UserID  string `json:"userId"`
	Status  string `json:"status"`
	Reason  string `json:"reason,omitempty"`
}
