// internal/service/inventory/domain/reservation.go
package domain

import "time"

// ReservationStatus 预占记录的生命周期状态
type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "ACTIVE"
	ReservationConfirmed ReservationStatus = "CONFIRMED"
	ReservationReleased  ReservationStatus = "RELEASED"
	ReservationExpired   ReservationStatus = "EXPIRED"
)

// StockReservation 是一笔预占台账，以 (OrderID, ProductID) 为键。
// Active 之后流转到 Confirmed / Released / Expired 之一，终态不再复用。
type StockReservation struct {
	OrderID    string
	ProductID  string
	Quantity   int
	Status     ReservationStatus
	ReservedAt time.Time
	ReleasedAt *time.Time
}

// NewStockReservation 创建一笔 Active 预占
func NewStockReservation(orderID, productID string, quantity int) *StockReservation {
	return &StockReservation{
		OrderID:    orderID,
		ProductID:  productID,
		Quantity:   quantity,
		Status:     ReservationActive,
		ReservedAt: time.Now().UTC(),
	}
}

// IsTerminal 终态预占不允许再被任何操作改变
func (r *StockReservation) IsTerminal() bool {
	return r.Status != ReservationActive
}

// Confirm 标记为已确认（永久扣减已发生）
func (r *StockReservation) Confirm() {
	r.Status = ReservationConfirmed
}

// Release 标记为已释放，expired 为 true 时记为清扫过期
func (r *StockReservation) Release(expired bool) {
	if expired {
		r.Status = ReservationExpired
	} else {
		r.Status = ReservationReleased
	}
	now := time.Now().UTC()
	r.ReleasedAt = &now
}
