// internal/service/payment/domain/events.go
package domain

// 支付服务的消息主题
const (
	TopicPaymentCommands = "payment-commands"
	TopicPaymentEvents   = "payment-events"
)

// 命令与事件的类型标识，随消息头 event-type 传递
const (
	CmdAuthorizePayment = "payment.authorize"
	CmdCapturePayment   = "payment.capture"
	CmdVoidPayment      = "payment.void"
	CmdRefundPayment    = "payment.refund"

	EventPaymentSucceeded     = "payment.succeeded"
	EventPaymentFailed        = "payment.failed"
	EventPaymentCaptured      = "payment.captured"
	EventPaymentCaptureFailed = "payment.capture_failed"
	EventPaymentVoided        = "payment.voided"
	EventPaymentVoidFailed    = "payment.void_failed"
	EventPaymentRefunded      = "payment.refunded"
)

// AuthorizePaymentCommand 由编排器在库存预占成功后发出
type AuthorizePaymentCommand struct {
	OrderID string  `json:"orderId"`
	UserID  string  `json:"userId"`
	Amount  float64 `json:"amount"`
}

// CapturePaymentCommand 库存永久扣减完成后的实际扣款命令
type CapturePaymentCommand struct {
	OrderID string `json:"orderId"`
}

// VoidPaymentCommand 补偿命令，撤销尚未扣款的授权
type VoidPaymentCommand struct {
	OrderID string `json:"orderId"`
	Reason  string `json:"reason"`
}

// RefundPaymentCommand 对已完成支付的退款请求
type RefundPaymentCommand struct {
	PaymentID string  `json:"paymentId"`
	Amount    float64 `json:"amount"`
	Reason    string  `json:"reason"`
}

// PaymentSucceededEvent 授权成功的结果事件
type PaymentSucceededEvent struct {
	OrderID       string `json:"orderId"`
	PaymentID     string `json:"paymentId"`
	TransactionID string `json:"transactionId"`
}

// PaymentFailedEvent 授权失败的结果事件
type PaymentFailedEvent struct {
	OrderID string `json:"orderId"`
	Reason  string `json:"reason"`
}

// PaymentCapturedEvent 扣款成功的结果事件
type PaymentCapturedEvent struct {
	OrderID   string `json:"orderId"`
	PaymentID string `json:"paymentId"`
}

// PaymentCaptureFailedEvent 扣款失败，支付单仍保持 Authorized 可重试
type PaymentCaptureFailedEvent struct {
	OrderID string `json:"orderId"`
	Reason  string `json:"reason"`
}

// PaymentVoidedEvent 授权撤销完成（含对从未授权成功的支付的空操作确认）
type PaymentVoidedEvent struct {
	OrderID string `json:"orderId"`
}

// PaymentVoidFailedEvent 授权撤销失败
type PaymentVoidFailedEvent struct {
	OrderID string `json:"orderId"`
	Reason  string `json:"reason"`
}

// PaymentRefundedEvent 退款完成的结果事件
type PaymentRefundedEvent struct {
	PaymentID string  `json:"paymentId"`
	OrderID   string  `json:"orderId"`
	Amount    float64 `json:"amount"`
	Status    string  `json:"status"`
}
