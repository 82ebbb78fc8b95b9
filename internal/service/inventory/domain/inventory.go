// internal/service/inventory/domain/inventory.go
package domain

import "time"

// ItemStatus 定义了库存商品的售卖状态
type ItemStatus string

const (
	ItemStatusInStock      ItemStatus = "IN_STOCK"
	ItemStatusLowStock     ItemStatus = "LOW_STOCK"
	ItemStatusOutOfStock   ItemStatus = "OUT_OF_STOCK"
	ItemStatusDiscontinued ItemStatus = "DISCONTINUED"
)

// InventoryItem 是库存聚合的根实体。
// 不变量: 0 <= ReservedQuantity <= Quantity，
// AvailableQuantity = Quantity - ReservedQuantity，每次写入时重新计算，绝不漂移。
// 所有数量变更只允许经过 Reserve / ConfirmDeduction / ReleaseReserved 三个方法。
type InventoryItem struct {
	ProductID         string
	Quantity          int
	ReservedQuantity  int
	AvailableQuantity int
	LowStockThreshold int
	Status            ItemStatus
	UpdatedAt         time.Time
}

// NewInventoryItem 创建一个新的库存商品
func NewInventoryItem(productID string, quantity, lowStockThreshold int) *InventoryItem {
	item := &InventoryItem{
		ProductID:         productID,
		Quantity:          quantity,
		LowStockThreshold: lowStockThreshold,
	}
	item.recompute()
	return item
}

// Reserve 预占 quantity 个库存。
// 只增加 ReservedQuantity，总量不变；可用量不足时拒绝。
func (i *InventoryItem) Reserve(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if i.Status == ItemStatusDiscontinued {
		return ErrProductNotFound
	}
	if i.AvailableQuantity < quantity {
		return ErrInsufficientStock
	}
	i.ReservedQuantity += quantity
	i.recompute()
	return nil
}

// ConfirmDeduction 把一笔预占转为永久扣减：
// Quantity 和 ReservedQuantity 同时减少 quantity。
func (i *InventoryItem) ConfirmDeduction(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if i.ReservedQuantity < quantity || i.Quantity < quantity {
		return ErrReservationNotFound
	}
	i.Quantity -= quantity
	i.ReservedQuantity -= quantity
	i.recompute()
	return nil
}

// ReleaseReserved 归还一笔预占。
// ReservedQuantity 以零为下界钳制：重复释放是静默的空操作，
// 避免补偿消息与清扫任务并发时把计数释放成负数。
func (i *InventoryItem) ReleaseReserved(quantity int) {
	if quantity <= 0 {
		return
	}
	i.ReservedQuantity -= quantity
	if i.ReservedQuantity < 0 {
		i.ReservedQuantity = 0
	}
	i.recompute()
}

// recompute 重新推导可用量与售卖状态
func (i *InventoryItem) recompute() {
	i.AvailableQuantity = i.Quantity - i.ReservedQuantity
	i.UpdatedAt = time.Now()

	if i.Status == ItemStatusDiscontinued {
		return
	}
	switch {
	case i.AvailableQuantity <= 0:
		i.Status = ItemStatusOutOfStock
	case i.AvailableQuantity <= i.LowStockThreshold:
		i.Status = ItemStatusLowStock
	default:
		i.Status = ItemStatusInStock
	}
}
