// internal/service/inventory/domain/history.go
package domain

import "time"

// ChangeType 库存变更的类别
type ChangeType string

const (
	ChangeReserved  ChangeType = "RESERVED"
	ChangeConfirmed ChangeType = "CONFIRMED"
	ChangeReleased  ChangeType = "RELEASED"
	ChangeExpired   ChangeType = "EXPIRED"
	ChangeSeeded    ChangeType = "SEEDED"
)

// InventoryHistory 是只追加的审计记录，每次数量变更写一行，永不修改。
// Before/After 记录的是变更前后的 (quantity, reserved) 快照。
type InventoryHistory struct {
	ID             int64
	ProductID      string
	OrderID        string
	Type           ChangeType
	QuantityBefore int
	QuantityAfter  int
	ReservedBefore int
	ReservedAfter  int
	Actor          string
	CreatedAt      time.Time
}
