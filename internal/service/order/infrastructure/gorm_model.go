// internal/service/order/infrastructure/gorm_model.go
package infrastructure

import (
	"encoding/json"
	"time"

	"github.com/trvannhanh/elaris-marketplace-sub000/internal/service/order/domain"
)

// OrderSagaModel 对应数据库中的 order_sagas 表，订单行快照以 JSON 存储
type OrderSagaModel struct {
	OrderID      string `gorm:"primaryKey;size:64"`
	UserID       string `gorm:"size:64;index"`
	TotalAmount  float64
	ItemsJSON    string `gorm:"column:items;type:text"`
	Status       string `gorm:"size:24;index"`
	CancelReason string `gorm:"size:255"`
	CreatedAt    time.Time
	ReservedAt   *time.Time
	PaidAt       *time.Time
	CompletedAt  *time.Time
	CanceledAt   *time.Time
	UpdatedAt    time.Time
}

// TableName 指定 GORM 应该使用的表名
func (OrderSagaModel) TableName() string {
	return "order_sagas"
}

func toSagaModel(s *domain.OrderSaga) (*OrderSagaModel, error) {
	items, err := json.Marshal(s.Items)
	if err != nil {
		return nil, err
	}
	return &OrderSagaModel{
		OrderID:      s.OrderID,
		UserID:       s.UserID,
		TotalAmount:  s.TotalAmount,
		ItemsJSON:    string(items),
		Status:       string(s.Status),
		CancelReason: s.CancelReason,
		CreatedAt:    s.CreatedAt,
		ReservedAt:   s.ReservedAt,
		PaidAt:       s.PaidAt,
		CompletedAt:  s.CompletedAt,
		CanceledAt:   s.CanceledAt,
		UpdatedAt:    s.UpdatedAt,
	}, nil
}

func toDomainSaga(m *OrderSagaModel) (*domain.OrderSaga, error) {
	var items []domain.OrderLine
	if m.ItemsJSON != "" {
		if err := json.Unmarshal([]byte(m.ItemsJSON), &items); err != nil {
			return nil, err
		}
	}
	return &domain.OrderSaga{
		OrderID:      m.OrderID,
		UserID:       m.UserID,
		TotalAmount:  m.TotalAmount,
		Items:        items,
		Status:       domain.OrderStatus(m.Status),
		CancelReason: m.CancelReason,
		CreatedAt:    m.CreatedAt,
		ReservedAt:   m.ReservedAt,
		PaidAt:       m.PaidAt,
		CompletedAt:  m.CompletedAt,
		CanceledAt:   m.CanceledAt,
		UpdatedAt:    m.UpdatedAt,
	}, nil
}
