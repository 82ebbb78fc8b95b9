// internal/service/order/domain/repository.go
package domain

import (
	"context"

	"github.com/trvannhanh/elaris-marketplace-sub000/internal/pkg/outbox"
)

// TxRepository 是单个原子事务内可用的操作集合。
// 状态流转与它触发的命令共享同一个事务：要么一起生效，要么一起消失。
type TxRepository interface {
	// SagaForUpdate 按订单号锁定并返回实例，不存在时返回 ErrOrderNotFound
	SagaForUpdate(ctx context.Context, orderID string) (*OrderSaga, error)
	// CreateSaga 插入一个新实例
	CreateSaga(ctx context.Context, s *OrderSaga) error
	// SaveSaga 持久化状态流转
	SaveSaga(ctx context.Context, s *OrderSaga) error
	// EnqueueOutbox 在同一事务内写入一条出站消息
	EnqueueOutbox(ctx context.Context, msg *outbox.Message) error
}

// Repository 是 Saga 实例的持久化接口，由基础设施层实现
type Repository interface {
	// InTx 在一个本地事务中执行 fn，fn 返回错误时整体回滚
	InTx(ctx context.Context, fn func(tx TxRepository) error) error
	// FindSaga 无锁读取一个实例，用于状态查询
	FindSaga(ctx context.Context, orderID string) (*OrderSaga, error)
}
