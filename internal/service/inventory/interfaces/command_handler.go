// internal/service/inventory/interfaces/command_handler.go
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
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/service/inventory/application"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/service/inventory/domain"
)

const consumerGroup = "inventory-service-group"

// CommandConsumerAdapter 是驱动适配器：监听 inventory-commands 主题，
// 按 event-type 路由到预占引擎的对应操作。
// 传输层是 at-least-once 的，入口先过去重窗口，窗口外由引擎操作自身幂等兜底。
type CommandConsumerAdapter struct {
	reader  *kafka.Reader
	service *application.InventoryApplicationService
	dedup   idempotency.Deduplicator
	wg      sync.WaitGroup
	stopped bool
}

func NewCommandConsumerAdapter(reader *kafka.Reader, service *application.InventoryApplicationService, dedup idempotency.Deduplicator) *CommandConsumerAdapter {
	return &CommandConsumerAdapter{reader: reader, service: service, dedup: dedup}
}

// Start 开始监听命令主题。这是一个长期运行的方法。
func (a *CommandConsumerAdapter) Start(ctx context.Context) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		logger.Ctx(ctx).Info().Str("topic", a.reader.Config().Topic).Msg("✅ Inventory command consumer started.")
		for {
			if a.stopped {
				return
			}
			// 使用 FetchMessage 而不是 ReadMessage，以便控制提交时机
			msg, err := a.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					logger.Ctx(ctx).Info().Msg("🛑 Inventory command consumer shutting down.")
					return
				}
				logger.Ctx(ctx).Error().Err(err).Msg("could not read message, retrying")
				time.Sleep(1 * time.Second) // 避免快速失败循环
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
func (a *CommandConsumerAdapter) Stop(ctx context.Context) {
	a.stopped = true
	a.reader.Close()
	a.wg.Wait()
	logger.Ctx(ctx).Info().Msg("✅ Inventory command consumer stopped.")
}

func (a *CommandConsumerAdapter) processMessage(ctx context.Context, msg kafka.Message) {
	messageID := mq.HeaderValue(msg.Headers, mq.HeaderMessageID)
	eventType := mq.HeaderValue(msg.Headers, mq.HeaderEventType)

	seen, err := a.dedup.Seen(ctx, consumerGroup, messageID)
	if err != nil {
		// 去重层故障时放行，引擎操作自身幂等
		logger.Ctx(ctx).Warn().Err(err).Msg("dedup check failed, processing anyway")
	}
	if seen {
		metrics.MessagesDeduplicated.Inc()
		logger.Ctx(ctx).Debug().Str("message_id", messageID).Msg("duplicate command skipped")
		return
	}

	switch eventType {
	case domain.CmdReserveInventory:
		var cmd domain.ReserveInventoryCommand
		if err := json.Unmarshal(msg.Value, &cmd); err != nil {
			logger.Ctx(ctx).Error().Err(err).Msg("failed to unmarshal reserve command, message skipped")
			return
		}
		// 拒绝类错误已经以 StockRejected 事件的形式回给了编排器，
		// 这里不再向上传播，避免消息被无意义地重投
		if err := a.service.Reserve(ctx, cmd.OrderID, cmd.Items); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("order_id", cmd.OrderID).Msg("reserve command rejected")
		}
	case domain.CmdConfirmInventory:
		var cmd domain.ConfirmInventoryCommand
		if err := json.Unmarshal(msg.Value, &cmd); err != nil {
			logger.Ctx(ctx).Error().Err(err).Msg("failed to unmarshal confirm command, message skipped")
			return
		}
		if err := a.service.Confirm(ctx, cmd.OrderID, cmd.Items); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("order_id", cmd.OrderID).Msg("confirm command failed")
		}
	case domain.CmdReleaseInventory:
		var cmd domain.ReleaseInventoryCommand
		if err := json.Unmarshal(msg.Value, &cmd); err != nil {
			logger.Ctx(ctx).Error().Err(err).Msg("failed to unmarshal release command, message skipped")
			return
		}
		if err := a.service.Release(ctx, cmd.OrderID, cmd.Items, false); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("order_id", cmd.OrderID).Msg("release command failed")
		}
	default:
		logger.Ctx(ctx).Warn().Str("event_type", eventType).Msg("unknown command type, message dropped")
	}
}
