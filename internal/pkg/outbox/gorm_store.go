// internal/pkg/outbox/gorm_store.go
package outbox

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// OutboxModel 对应数据库中的 outbox_messages 表
type OutboxModel struct {
	ID          string `gorm:"primaryKey;size:36"`
	Topic       string `gorm:"size:128;index:idx_outbox_pending,priority:2"`
	MessageKey  string `gorm:"size:128"`
	EventType   string `gorm:"size:64"`
	Payload     []byte `gorm:"type:blob"`
	CreatedAt   time.Time
	Delivered   bool `gorm:"index:idx_outbox_pending,priority:1"`
	DeliveredAt *time.Time
}

// TableName 指定 GORM 应该使用的表名
func (OutboxModel) TableName() string {
	return "outbox_messages"
}

func toModel(m *Message) *OutboxModel {
	return &OutboxModel{
		ID:          m.ID,
		Topic:       m.Topic,
		MessageKey:  m.Key,
		EventType:   m.EventType,
		Payload:     m.Payload,
		CreatedAt:   m.CreatedAt,
		Delivered:   m.Delivered,
		DeliveredAt: m.DeliveredAt,
	}
}

func toMessage(m *OutboxModel) *Message {
	return &Message{
		ID:          m.ID,
		Topic:       m.Topic,
		Key:         m.MessageKey,
		EventType:   m.EventType,
		Payload:     m.Payload,
		CreatedAt:   m.CreatedAt,
		Delivered:   m.Delivered,
		DeliveredAt: m.DeliveredAt,
	}
}

// Enqueue 在调用方持有的事务 tx 中插入一行 Outbox 记录。
// 各服务的 GORM 仓储在业务写入的同一事务里调用它，
// 这是"状态变更与事件通知同生共死"保证的落点。
func Enqueue(tx *gorm.DB, msg *Message) error {
	if err := tx.Create(toModel(msg)).Error; err != nil {
		return errors.Wrap(err, "failed to enqueue outbox message")
	}
	return nil
}

// GormStore 是 Relay 读取端的 GORM 实现
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) FetchUndelivered(ctx context.Context, limit int) ([]*Message, error) {
	var models []*OutboxModel
	err := s.db.WithContext(ctx).
		Where("delivered = ?", false).
		Order("created_at asc").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch undelivered outbox messages")
	}

	msgs := make([]*Message, 0, len(models))
	for _, m := range models {
		msgs = append(msgs, toMessage(m))
	}
	return msgs, nil
}

func (s *GormStore) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	err := s.db.WithContext(ctx).
		Model(&OutboxModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"delivered": true, "delivered_at": at}).Error
	return errors.Wrap(err, "failed to mark outbox message delivered")
}
