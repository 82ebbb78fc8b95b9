// internal/service/inventory/domain/repository.go
package domain

import (
	"context"
	"time"

	"github.com/trvannhanh/elaris-marketplace-sub000/internal/pkg/outbox"
)

// TxRepository 是单个原子事务内可用的操作集合。
// ForUpdate 语义的读取必须对该行加锁（行级锁或等价物），
// 同一 productID 上的并发预占由此串行化。
type TxRepository interface {
	// ItemForUpdate 锁定并返回一个库存商品，不存在时返回 ErrProductNotFound
	ItemForUpdate(ctx context.Context, productID string) (*InventoryItem, error)
	// SaveItem 持久化商品计数器的变更
	SaveItem(ctx context.Context, item *InventoryItem) error
	// CreateItem 新建商品（种子数据入口）
	CreateItem(ctx context.Context, item *InventoryItem) error
	// CreateReservation 插入一笔 Active 预占
	CreateReservation(ctx context.Context, r *StockReservation) error
	// ReservationForUpdate 锁定并返回一笔预占，不存在时返回 ErrReservationNotFound
	ReservationForUpdate(ctx context.Context, orderID, productID string) (*StockReservation, error)
	// SaveReservation 持久化预占状态变更
	SaveReservation(ctx context.Context, r *StockReservation) error
	// AppendHistory 追加一条审计记录
	AppendHistory(ctx context.Context, h *InventoryHistory) error
	// EnqueueOutbox 在同一事务内写入一条出站消息
	EnqueueOutbox(ctx context.Context, msg *outbox.Message) error
}

// Repository 是库存聚合的持久化接口，由基础设施层实现
type Repository interface {
	// InTx 在一个本地事务中执行 fn，fn 返回错误时整体回滚
	InTx(ctx context.Context, fn func(tx TxRepository) error) error
	// FindItem 无锁读取一个商品，用于查询与预检查
	FindItem(ctx context.Context, productID string) (*InventoryItem, error)
	// FindExpiredActive 找出在 before 之前创建且仍为 Active 的预占
	FindExpiredActive(ctx context.Context, before time.Time, limit int) ([]*StockReservation, error)
}
