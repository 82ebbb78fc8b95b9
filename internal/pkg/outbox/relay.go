// internal/pkg/outbox/relay.go
package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/trvannhanh/elaris-marketplace-sub000/internal/pkg/logger"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/pkg/metrics"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/pkg/mq"
)

// Publisher 把一条 Outbox 消息投递到消息传输层
type Publisher interface {
	Publish(ctx context.Context, msg *Message) error
}

// KafkaPublisher 按 topic 懒加载 kafka.Writer。
// message-id 和 event-type 通过消息头携带，供消费侧去重与路由。
type KafkaPublisher struct {
	brokers []string

	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

func NewKafkaPublisher(brokers []string) *KafkaPublisher {
	return &KafkaPublisher{brokers: brokers, writers: make(map[string]*kafka.Writer)}
}

func (p *KafkaPublisher) Publish(ctx context.Context, msg *Message) error {
	return mq.ProduceMessage(ctx, p.writerFor(msg.Topic), []byte(msg.Key), msg.Payload,
		kafka.Header{Key: mq.HeaderMessageID, Value: []byte(msg.ID)},
		kafka.Header{Key: mq.HeaderEventType, Value: []byte(msg.EventType)},
	)
}

func (p *KafkaPublisher) writerFor(topic string) *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()
	if w, ok := p.writers[topic]; ok {
		return w
	}
	w := mq.NewKafkaWriter(p.brokers, topic)
	p.writers[topic] = w
	return w
}

// Close 关闭全部底层 writer
func (p *KafkaPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, w := range p.writers {
		w.Close()
	}
}

// Relay 是 Outbox 的投递进程：固定间隔轮询未投递的行，
// 逐条发布并标记 delivered。发布失败的行保持 pending，
// 下一轮重新尝试，由此形成 at-least-once 投递。
type Relay struct {
	store    Store
	pub      Publisher
	interval time.Duration
	batch    int
}

func NewRelay(store Store, pub Publisher, interval time.Duration, batch int) *Relay {
	if batch <= 0 {
		batch = 100
	}
	return &Relay{store: store, pub: pub, interval: interval, batch: batch}
}

// Start 启动轮询循环，直到 ctx 被取消
func (r *Relay) Start(ctx context.Context) {
	logger.Ctx(ctx).Info().Dur("interval", r.interval).Msg("✅ Outbox relay started.")
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.RunOnce(ctx)
		case <-ctx.Done():
			logger.Ctx(ctx).Info().Msg("🛑 Outbox relay shutting down.")
			return
		}
	}
}

// RunOnce 执行一轮投递，返回成功发布的条数
func (r *Relay) RunOnce(ctx context.Context) int {
	msgs, err := r.store.FetchUndelivered(ctx, r.batch)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("outbox relay failed to fetch pending messages")
		return 0
	}

	published := 0
	for _, msg := range msgs {
		if err := r.pub.Publish(ctx, msg); err != nil {
			// 发布失败属于 TransportFailure：行保持 pending，下一轮重试
			metrics.OutboxPublishFailures.Inc()
			logger.Ctx(ctx).Warn().Err(err).
				Str("message_id", msg.ID).
				Str("topic", msg.Topic).
				Msg("outbox publish failed, will retry on next poll")
			continue
		}
		if err := r.store.MarkDelivered(ctx, msg.ID, time.Now().UTC()); err != nil {
			// 标记失败会导致重复投递，由消费侧的去重窗口兜底
			logger.Ctx(ctx).Warn().Err(err).
				Str("message_id", msg.ID).
				Msg("failed to mark outbox message delivered")
			continue
		}
		metrics.OutboxPublished.Inc()
		published++
	}
	return published
}
