// internal/pkg/outbox/outbox.go
package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Message 是 Outbox 表中的一行。
// 它必须与触发它的业务写入处于同一个本地事务中，
// 由独立的 Relay 轮询发布，发布确认后才标记 delivered。
// ID 同时作为下游消费侧去重所依据的消息 ID。
type Message struct {
	ID          string
	Topic       string
	Key         string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
	Delivered   bool
	DeliveredAt *time.Time
}

// NewMessage 构造一条待发布消息，payload 会被序列化为 JSON
func NewMessage(topic, key, eventType string, payload interface{}) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		ID:        uuid.New().String(),
		Topic:     topic,
		Key:       key,
		EventType: eventType,
		Payload:   data,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Store 是 Relay 读取端的接口。
// 写入端（业务事务内的 Enqueue）由各存储实现自行提供，
// 因为写入必须参与业务事务，无法抽象成跨存储的统一签名。
type Store interface {
	// FetchUndelivered 按创建时间顺序取出未投递的消息
	FetchUndelivered(ctx context.Context, limit int) ([]*Message, error)
	// MarkDelivered 在发布被 broker 确认后标记消息已投递
	MarkDelivered(ctx context.Context, id string, at time.Time) error
}
