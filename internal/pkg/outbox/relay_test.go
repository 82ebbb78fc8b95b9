package outbox

import (
	"context"
	"errors"
	"testing"
)

type fakePublisher struct {
	published []*Message
	failIDs   map[string]bool
}

func (f *fakePublisher) Publish(_ context.Context, msg *Message) error {
	if f.failIDs[msg.ID] {
		return errors.New("broker unavailable")
	}
	f.published = append(f.published, msg)
	return nil
}

func TestRelay_PublishesAndMarksDelivered(t *testing.T) {
	store := NewMemoryStore()
	msg, err := NewMessage("order-events", "order-1", "orders.created", map[string]string{"orderId": "order-1"})
	if err != nil {
		t.Fatalf("NewMessage failed: %v", err)
	}
	store.Enqueue(msg)

	pub := &fakePublisher{}
	relay := NewRelay(store, pub, 0, 10)

	if n := relay.RunOnce(context.Background()); n != 1 {
		t.Fatalf("expected 1 published message, got %d", n)
	}

	all := store.All()
	if len(all) != 1 || !all[0].Delivered {
		t.Errorf("expected message to be marked delivered")
	}
	if all[0].DeliveredAt == nil {
		t.Errorf("expected DeliveredAt to be set")
	}
	if len(pub.published) != 1 || pub.published[0].ID != msg.ID {
		t.Errorf("expected publisher to receive the enqueued message")
	}
}

func TestRelay_PublishFailureLeavesRowPending(t *testing.T) {
	store := NewMemoryStore()
	msg, _ := NewMessage("order-events", "order-2", "orders.created", map[string]string{"orderId": "order-2"})
	store.Enqueue(msg)

	pub := &fakePublisher{failIDs: map[string]bool{msg.ID: true}}
	relay := NewRelay(store, pub, 0, 10)

	if n := relay.RunOnce(context.Background()); n != 0 {
		t.Fatalf("expected 0 published messages, got %d", n)
	}
	if store.All()[0].Delivered {
		t.Errorf("failed publish must leave the row pending for retry")
	}

	// 故障恢复后，下一轮应当把同一行发布出去
	pub.failIDs = nil
	if n := relay.RunOnce(context.Background()); n != 1 {
		t.Fatalf("expected retry to publish 1 message, got %d", n)
	}
	if !store.All()[0].Delivered {
		t.Errorf("expected message delivered after retry")
	}
}

func TestRelay_BatchLimitAndOrdering(t *testing.T) {
	store := NewMemoryStore()
	var ids []string
	for i := 0; i < 5; i++ {
		m, _ := NewMessage("inventory-events", "k", "inventory.reserved", map[string]int{"n": i})
		store.Enqueue(m)
		ids = append(ids, m.ID)
	}

	pub := &fakePublisher{}
	relay := NewRelay(store, pub, 0, 2)

	if n := relay.RunOnce(context.Background()); n != 2 {
		t.Fatalf("expected batch of 2, got %d", n)
	}
	if pub.published[0].ID != ids[0] || pub.published[1].ID != ids[1] {
		t.Errorf("expected oldest-first ordering")
	}
}
