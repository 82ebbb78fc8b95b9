// internal/service/payment/interfaces/command_handler.go
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
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/service/payment/application"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/service/payment/domain"
)

const consumerGroup = "payment-service-group"

// CommandConsumerAdapter 是驱动适配器：监听 payment-commands 主题，
// 按 event-type 路由到支付引擎的对应操作。
// 传输层是 at-least-once 的，入口先过去重窗口，窗口外由引擎操作自身幂等兜底。
type CommandConsumerAdapter struct {
	reader  *kafka.Reader
	service *application.PaymentApplicationService
	dedup   idempotency.Deduplicator
	wg      sync.WaitGroup
	stopped bool
}

func NewCommandConsumerAdapter(reader *kafka.Reader, service *application.PaymentApplicationService, dedup idempotency.Deduplicator) *CommandConsumerAdapter {
	return &CommandConsumerAdapter{reader: reader, service: service, dedup: dedup}
}

// Start 开始监听命令主题。这是一个长期运行的方法。
func (a *CommandConsumerAdapter) Start(ctx context.Context) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		logger.Ctx(ctx).Info().Str("topic", a.reader.Config().Topic).Msg("✅ Payment command consumer started.")
		for {
			if a.stopped {
				return
			}
			msg, err := a.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					logger.Ctx(ctx).Info().Msg("🛑 Payment command consumer shutting down.")
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
func (a *CommandConsumerAdapter) Stop(ctx context.Context) {
	a.stopped = true
	a.reader.Close()
	a.wg.Wait()
	logger.Ctx(ctx).Info().Msg("✅ Payment command consumer stopped.")
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
	case domain.CmdAuthorizePayment:
		var cmd domain.AuthorizePaymentCommand
		if err := json.Unmarshal(msg.Value, &cmd); err != nil {
			logger.Ctx(ctx).Error().Err(err).Msg("failed to unmarshal authorize command, message skipped")
			return
		}
		// 拒绝类结果已经以 PaymentFailed 事件的形式回给了编排器，
		// 这里不再向上传播，避免消息被无意义地重投
		if err := a.service.Authorize(ctx, cmd.OrderID, cmd.UserID, cmd.Amount); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("order_id", cmd.OrderID).Msg("authorize command failed")
		}
	case domain.CmdCapturePayment:
		var cmd domain.CapturePaymentCommand
		if err := json.Unmarshal(msg.Value, &cmd); err != nil {
			logger.Ctx(ctx).Error().Err(err).Msg("failed to unmarshal capture command, message skipped")
			return
		}
		if err := a.service.Capture(ctx, cmd.OrderID); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("order_id", cmd.OrderID).Msg("capture command failed")
		}
	case domain.CmdVoidPayment:
		var cmd domain.VoidPaymentCommand
		if err := json.Unmarshal(msg.Value, &cmd); err != nil {
			logger.Ctx(ctx).Error().Err(err).Msg("failed to unmarshal void command, message skipped")
			return
		}
		if err := a.service.Void(ctx, cmd.OrderID, cmd.Reason); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("order_id", cmd.OrderID).Msg("void command failed")
		}
	case domain.CmdRefundPayment:
		var cmd domain.RefundPaymentCommand
		if err := json.Unmarshal(msg.Value, &cmd); err != nil {
			logger.Ctx(ctx).Error().Err(err).Msg("failed to unmarshal refund command, message skipped")
			return
		}
		if err := a.service.Refund(ctx, cmd.PaymentID, cmd.Amount, cmd.Reason); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("payment_id", cmd.PaymentID).Msg("refund command failed")
		}
	default:
		logger.Ctx(ctx).Warn().Str("event_type", eventType).Msg("unknown command type, message dropped")
	}
}
