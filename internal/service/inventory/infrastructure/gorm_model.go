// internal/service/inventory/infrastructure/gorm_model.go
package infrastructure

import (
	"time"

	"github.com/trvannhanh/elaris-marketplace-sub000/internal/service/inventory/domain"
)

// InventoryItemModel 对应数据库中的 inventory_items 表
type InventoryItemModel struct {
	ProductID         string `gorm:"primaryKey;size:64"`
	Quantity          int
	ReservedQuantity  int
	AvailableQuantity int
	LowStockThreshold int
	Status            string `gorm:"size:16"`
	UpdatedAt         time.Time
}

// TableName 指定 GORM 应该使用的表名
func (InventoryItemModel) TableName() string {
	return "inventory_items"
}

// StockReservationModel 对应数据库中的 stock_reservations 表
type StockReservationModel struct {
	OrderID    string `gorm:"primaryKey;size:64"`
	ProductID  string `gorm:"primaryKey;size:64"`
	Quantity   int
	Status     string    `gorm:"size:16;index:idx_reservation_status"`
	ReservedAt time.Time `gorm:"index:idx_reservation_status,priority:2"`
	ReleasedAt *time.Time
}

// TableName 指定 GORM 应该使用的表名
func (StockReservationModel) TableName() string {
	return "stock_reservations"
}

// InventoryHistoryModel 对应数据库中的 inventory_history 表（只追加）
type InventoryHistoryModel struct {
	ID             int64  `gorm:"primaryKey;autoIncrement"`
	ProductID      string `gorm:"size:64;index"`
	OrderID        string `gorm:"size:64"`
	Type           string `gorm:"size:16"`
	QuantityBefore int
	QuantityAfter  int
	ReservedBefore int
	ReservedAfter  int
	Actor          string `gorm:"size:32"`
	CreatedAt      time.Time
}

// TableName 指定 GORM 应该使用的表名
func (InventoryHistoryModel) TableName() string {
	return "inventory_history"
}

func toItemModel(i *domain.InventoryItem) *InventoryItemModel {
	return &InventoryItemModel{
		ProductID:         i.ProductID,
		Quantity:          i.Quantity,
		ReservedQuantity:  i.ReservedQuantity,
		AvailableQuantity: i.AvailableQuantity,
		LowStockThreshold: i.LowStockThreshold,
		Status:            string(i.Status),
		UpdatedAt:         i.UpdatedAt,
	}
}

func toDomainItem(m *InventoryItemModel) *domain.InventoryItem {
	return &domain.InventoryItem{
		ProductID:         m.ProductID,
		Quantity:          m.Quantity,
		ReservedQuantity:  m.ReservedQuantity,
		AvailableQuantity: m.AvailableQuantity,
		LowStockThreshold: m.LowStockThreshold,
		Status:            domain.ItemStatus(m.Status),
		UpdatedAt:         m.UpdatedAt,
	}
}

func toReservationModel(r *domain.StockReservation) *StockReservationModel {
	return &StockReservationModel{
		OrderID:    r.OrderID,
		ProductID:  r.ProductID,
		Quantity:   r.Quantity,
		Status:     string(r.Status),
		ReservedAt: r.ReservedAt,
		ReleasedAt: r.ReleasedAt,
	}
}

func toDomainReservation(m *StockReservationModel) *domain.StockReservation {
	return &domain.StockReservation{
		OrderID:    m.OrderID,
		ProductID:  m.ProductID,
		Quantity:   m.Quantity,
		Status:     domain.ReservationStatus(m.Status),
		ReservedAt: m.ReservedAt,
		ReleasedAt: m.ReleasedAt,
	}
}

func toHistoryModel(h *domain.InventoryHistory) *InventoryHistoryModel {
	return &InventoryHistoryModel{
		ProductID:      h.ProductID,
		OrderID:        h.OrderID,
		Type:           string(h.Type),
		QuantityBefore: h.QuantityBefore,
		QuantityAfter:  h.QuantityAfter,
		ReservedBefore: h.ReservedBefore,
		ReservedAfter:  h.ReservedAfter,
		Actor:          h.Actor,
	}
}
