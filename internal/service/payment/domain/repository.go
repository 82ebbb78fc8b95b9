// internal/service/payment/domain/repository.go
package domain

import (
	"context"
	"time"

	"github.com/trvannhanh/elaris-marketplace-sub000/internal/pkg/outbox"
)

// TxRepository 是单个原子事务内可用的操作集合。
// ForUpdate 语义的读取必须对该行加锁，同一订单上的并发命令由此串行化。
type TxRepository interface {
	// PaymentForUpdate 按订单号锁定并返回支付单，不存在时返回 ErrPaymentNotFound
	PaymentForUpdate(ctx context.Context, orderID string) (*Payment, error)
	// PaymentByIDForUpdate 按支付单号锁定并返回支付单（退款入口使用）
	PaymentByIDForUpdate(ctx context.Context, paymentID string) (*Payment, error)
	// CreatePayment 插入一笔 Pending 支付单
	CreatePayment(ctx context.Context, p *Payment) error
	// SavePayment 持久化支付单状态变更
	SavePayment(ctx context.Context, p *Payment) error
	// AppendHistory 追加一条审计记录
	AppendHistory(ctx context.Context, h *PaymentHistory) error
	// EnqueueOutbox 在同一事务内写入一条出站消息
	EnqueueOutbox(ctx context.Context, msg *outbox.Message) error
}

// Repository 是支付聚合的持久化接口，由基础设施层实现
type Repository interface {
	// InTx 在一个本地事务中执行 fn，fn 返回错误时整体回滚
	InTx(ctx context.Context, fn func(tx TxRepository) error) error
	// FindByOrder 无锁读取一个订单的支付单，用于查询与预检查
	FindByOrder(ctx context.Context, orderID string) (*Payment, error)
	// FindStuckProcessing 找出在 before 之前进入 Processing 且仍未出结果的支付单
	FindStuckProcessing(ctx context.Context, before time.Time, limit int) ([]*Payment, error)
}

// Gateway 抽象外部支付处理器。实现方自行决定授权/扣款/撤销/退款的语义，
// 可重试的失败以 *GatewayError{Transient: true} 返回。
type Gateway interface {
	Authorize(ctx context.Context, orderID, userID string, amount float64) (transactionID string, err error)
	Capture(ctx context.Context, transactionID string) error
	Void(ctx context.Context, transactionID string) error
	Refund(ctx context.Context, transactionID string, amount float64) error
}
