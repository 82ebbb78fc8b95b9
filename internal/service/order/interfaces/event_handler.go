// internal/service/order/interfaces/event_handler.go
package interfaces

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"

	"github.com/trvannhanh/elaris-marketplace-sub000/internal/pkg/idempotency"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/pkg/logger"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/pkg/metrics"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/pkg/mq"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/service/order/application/saga"
)

const consumerGroup = "order-service-group"

// eventEnvelope 从各参与方的事件载荷里只取编排需要的关联字段，
// 其余字段对编排器是不透明的
type eventEnvelope struct {
	OrderID string `json:"orderId"`
	Reason  string `json:"reason"`
}

// EventConsumerAdapter 是驱动适配器：监听一个事件主题
// （inventory-events / payment-events / order-events），把每条消息
// 变成一个 saga.Event 交给编排器。每个主题一个实例。
type EventConsumerAdapter struct {
	reader       *kafka.Reader
	orchestrator *saga.Orchestrator
	dedup        idempotency.Deduplicator
	wg           sync.WaitGroup
	stopped      bool
}

func NewEventConsumerAdapter(reader *kafka.Reader, orchestrator *saga.Orchestrator, dedup idempotency.Deduplicator) *EventConsumerAdapter {
	return &EventConsumerAdapter{reader: reader, orchestrator: orchestrator, dedup: dedup}
}

// Start 开始监听事件主题。这是一个长期运行的方法。
func (a *EventConsumerAdapter) Start(ctx context.Context) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		logger.Ctx(ctx).Info().Str("topic", a.reader.Config().Topic).Msg("✅ Saga event consumer started.")
		for {
			if a.stopped {
				return
			}
			msg, err := a.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					logger.Ctx(ctx).Info().Msg("🛑 Saga event consumer shutting down.")
					return
				}
				logger.Ctx(ctx).Error().Err(err).Msg("could not read message, retrying")
				time.Sleep(1 * time.Second)
				continue
			}

			propagator := otel.GetTextMapPropagator()
			headerCarrier := mq.KafkaHeaderCarrier(msg.Headers)
			msgCtx := propagator.Extract(ctx, &headerCarrier)

			a.processMessage(msgCtx, msg)

			if err := a.reader.CommitMessages(ctx, msg); err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("failed to commit messages")
			}
		}
	}()
}

// Stop 优雅地停止消费者
func (a *EventConsumerAdapter) Stop(ctx context.Context) {
	a.stopped = true
	a.reader.Close()
	a.wg.Wait()
	logger.Ctx(ctx).Info().Str("topic", a.reader.Config().Topic).Msg("✅ Saga event consumer stopped.")
}

func (a *EventConsumerAdapter) processMessage(ctx context.Context, msg kafka.Message) {
	messageID := mq.HeaderValue(msg.Headers, mq.HeaderMessageID)
	eventType := mq.HeaderValue(msg.Headers, mq.HeaderEventType)

	seen, err := a.dedup.Seen(ctx, consumerGroup, messageID)
	if err != nil {
		// 去重层故障时放行，编排器对重复事件有守卫（状态表查不到就丢）
		logger.Ctx(ctx).Warn().Err(err).Msg("dedup check failed, processing anyway")
	}
	if seen {
		metrics.MessagesDeduplicated.Inc()
		logger.Ctx(ctx).Debug().Str("message_id", messageID).Msg("duplicate event skipped")
		return
	}

	var envelope eventEnvelope
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("event_type", eventType).Msg("failed to unmarshal event, message skipped")
		return
	}
	if envelope.OrderID == "" {
		logger.Ctx(ctx).Warn().Str("event_type", eventType).Msg("event without order id dropped")
		return
	}

	ev := saga.Event{Type: eventType, OrderID: envelope.OrderID, Reason: envelope.Reason}
	if err := a.orchestrator.HandleEvent(ctx, ev); err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("order_id", envelope.OrderID).
			Str("event_type", eventType).
			Msg("saga failed to handle event")
	}
}
