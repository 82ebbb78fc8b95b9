// internal/pkg/outbox/memory_store.go
package outbox

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore 是进程内的 Outbox 存储，供测试与单机模式使用。
// 写入端通过 Enqueue 在调用方的临界区内追加。
type MemoryStore struct {
	mu       sync.Mutex
	messages []*Message
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Enqueue 追加一条消息
func (s *MemoryStore) Enqueue(msg *Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
}

func (s *MemoryStore) FetchUndelivered(_ context.Context, limit int) ([]*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []*Message
	for _, m := range s.messages {
		if !m.Delivered {
			pending = append(pending, m)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool { return pending[i].CreatedAt.Before(pending[j].CreatedAt) })
	if len(pending) > limit {
		pending = pending[:limit]
	}

	// 返回副本，避免调用方在锁外修改内部状态
	out := make([]*Message, len(pending))
	for i, m := range pending {
		cp := *m
		out[i] = &cp
	}
	return out, nil
}

func (s *MemoryStore) MarkDelivered(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.ID == id {
			m.Delivered = true
			t := at
			m.DeliveredAt = &t
			return nil
		}
	}
	return nil
}

// All 返回全部消息的快照，测试用
func (s *MemoryStore) All() []*Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Message, len(s.messages))
	for i, m := range s.messages {
		cp := *m
		out[i] = &cp
	}
	return out
}
