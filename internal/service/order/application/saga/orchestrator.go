// internal/service/order/application/saga/orchestrator.go
package saga

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/trvannhanh/elaris-marketplace-sub000/internal/pkg/logger"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/pkg/metrics"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/pkg/outbox"
	invdomain "github.com/trvannhanh/elaris-marketplace-sub000/internal/service/inventory/domain"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/service/order/domain"
	paydomain "github.com/trvannhanh/elaris-marketplace-sub000/internal/service/payment/domain"
)

// Event 是编排器收到的一条领域事件，按订单号关联到 Saga 实例
type Event struct {
	Type    string
	OrderID string
	Reason  string
}

// transition 是状态机的一行：处于 from 的实例收到 event 时执行 action
// 并流转到 to。action 只负责把下一条命令写进 Outbox，绝不直接改库存或支付。
type transition struct {
	from   domain.OrderStatus
	event  string
	to     domain.OrderStatus
	action func(ctx context.Context, tx domain.TxRepository, s *domain.OrderSaga, ev Event) error
}

// Orchestrator 驱动订单 Saga：收事件、查表、落状态、发命令，
// 全部在同一个本地事务内完成。
type Orchestrator struct {
	repo        domain.Repository
	tracer      trace.Tracer
	transitions []transition
}

func NewOrchestrator(repo domain.Repository, tracer trace.Tracer) *Orchestrator {
	o := &Orchestrator{repo: repo, tracer: tracer}
	o.transitions = []transition{
		// 下单完成，向库存发起预占。OrderCreated 重投递会再发一次
		// 预占命令，库存引擎对同一订单的重复预占是幂等的。
		{domain.OrderCreated, domain.EventOrderCreated, domain.OrderCreated, o.commandReserveInventory},
		// 预占成功，请求支付授权
		{domain.OrderCreated, invdomain.EventItemsReserved, domain.OrderStockReserved, o.commandAuthorizePayment},
		// 库存不足，订单直接取消，无需任何补偿（什么都还没发生）
		{domain.OrderCreated, invdomain.EventStockRejected, domain.OrderCanceled, nil},
		// 授权成功，把预占转为永久扣减
		{domain.OrderStockReserved, paydomain.EventPaymentSucceeded, domain.OrderPaymentSucceeded, o.commandConfirmInventory},
		// 授权失败，补偿：归还预占
		{domain.OrderStockReserved, paydomain.EventPaymentFailed, domain.OrderCanceled, o.commandReleaseInventory},
		// 扣减落账，发起实际扣款，订单完成
		{domain.OrderPaymentSucceeded, invdomain.EventInventoryUpdate, domain.OrderCompleted, o.commandCapturePayment},
		// 确认失败，补偿：撤销授权并归还预占
		{domain.OrderPaymentSucceeded, invdomain.EventInventoryFailed, domain.OrderCanceled, o.compensateVoidAndRelease},
	}
	return o
}

// HandleEvent 处理一条事件。终态实例与未知订单号的事件只记日志后丢弃，
// 绝不让一条坏事件弄垮消费者进程。
func (o *Orchestrator) HandleEvent(ctx context.Context, ev Event) error {
	ctx, span := o.tracer.Start(ctx, "saga.HandleEvent")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", ev.OrderID), attribute.String("event.type", ev.Type))

	return o.repo.InTx(ctx, func(tx domain.TxRepository) error {
		s, err := tx.SagaForUpdate(ctx, ev.OrderID)
		if err == domain.ErrOrderNotFound {
			// 跨主题不保证顺序，事件可能先于 OrderCreated 的处理到达
			logger.Ctx(ctx).Warn().
				Str("order_id", ev.OrderID).
				Str("event_type", ev.Type).
				Msg("event for unknown order dropped")
			return nil
		}
		if err != nil {
			return err
		}
		if s.IsTerminal() {
			logger.Ctx(ctx).Debug().
				Str("order_id", ev.OrderID).
				Str("event_type", ev.Type).
				Str("status", string(s.Status)).
				Msg("event for terminal saga dropped")
			return nil
		}

		t := o.lookup(s.Status, ev.Type)
		if t == nil {
			logger.Ctx(ctx).Warn().
				Str("order_id", ev.OrderID).
				Str("event_type", ev.Type).
				Str("status", string(s.Status)).
				Msg("no transition for event in current state, dropped")
			return nil
		}

		if t.action != nil {
			if err := t.action(ctx, tx, s, ev); err != nil {
				return err
			}
		}

		if t.to != s.Status {
			s.MarkStatus(t.to, ev.Reason)
			if err := tx.SaveSaga(ctx, s); err != nil {
				return err
			}
			switch t.to {
			case domain.OrderCompleted:
				metrics.OrdersCompleted.Inc()
			case domain.OrderCanceled:
				metrics.OrdersCanceled.Inc()
			}
			logger.Ctx(ctx).Info().
				Str("order_id", s.OrderID).
				Str("event_type", ev.Type).
				Str("status", string(s.Status)).
				Msg("✅ Saga transitioned.")
			return o.publishStatus(ctx, tx, s)
		}
		return nil
	})
}

func (o *Orchestrator) lookup(status domain.OrderStatus, eventType string) *transition {
	for i := range o.transitions {
		if o.transitions[i].from == status && o.transitions[i].event == eventType {
			return &o.transitions[i]
		}
	}
	return nil
}

// publishStatus 每次流转都向 order-status 发布一条事件，供推送网关转发
func (o *Orchestrator) publishStatus(ctx context.Context, tx domain.TxRepository, s *domain.OrderSaga) error {
	msg, err := outbox.NewMessage(domain.TopicOrderStatus, s.OrderID, domain.EventOrderStatusChanged,
		domain.OrderStatusChangedEvent{OrderID: s.OrderID, UserID: s.UserID, Status: string(s.Status), Reason: s.CancelReason})
	if err != nil {
		return err
	}
	return tx.EnqueueOutbox(ctx, msg)
}

func itemLines(items []domain.OrderLine) []invdomain.ItemLine {
	out := make([]invdomain.ItemLine, 0, len(items))
	for _, l := range items {
		out = append(out, invdomain.ItemLine{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	return out
}

func enqueue(ctx context.Context, tx domain.TxRepository, topic, key, eventType string, payload interface{}) error {
	msg, err := outbox.NewMessage(topic, key, eventType, payload)
	if err != nil {
		return err
	}
	return tx.EnqueueOutbox(ctx, msg)
}

func (o *Orchestrator) commandReserveInventory(ctx context.Context, tx domain.TxRepository, s *domain.OrderSaga, _ Event) error {
	return enqueue(ctx, tx, invdomain.TopicInventoryCommands, s.OrderID, invdomain.CmdReserveInventory,
		invdomain.ReserveInventoryCommand{OrderID: s.OrderID, Items: itemLines(s.Items)})
}

func (o *Orchestrator) commandAuthorizePayment(ctx context.Context, tx domain.TxRepository, s *domain.OrderSaga, _ Event) error {
	return enqueue(ctx, tx, paydomain.TopicPaymentCommands, s.OrderID, paydomain.CmdAuthorizePayment,
		paydomain.AuthorizePaymentCommand{OrderID: s.OrderID, UserID: s.UserID, Amount: s.TotalAmount})
}

func (o *Orchestrator) commandConfirmInventory(ctx context.Context, tx domain.TxRepository, s *domain.OrderSaga, _ Event) error {
	return enqueue(ctx, tx, invdomain.TopicInventoryCommands, s.OrderID, invdomain.CmdConfirmInventory,
		invdomain.ConfirmInventoryCommand{OrderID: s.OrderID, Items: itemLines(s.Items)})
}

func (o *Orchestrator) commandReleaseInventory(ctx context.Context, tx domain.TxRepository, s *domain.OrderSaga, ev Event) error {
	return enqueue(ctx, tx, invdomain.TopicInventoryCommands, s.OrderID, invdomain.CmdReleaseInventory,
		invdomain.ReleaseInventoryCommand{OrderID: s.OrderID, Items: itemLines(s.Items)})
}

func (o *Orchestrator) commandCapturePayment(ctx context.Context, tx domain.TxRepository, s *domain.OrderSaga, _ Event) error {
	return enqueue(ctx, tx, paydomain.TopicPaymentCommands, s.OrderID, paydomain.CmdCapturePayment,
		paydomain.CapturePaymentCommand{OrderID: s.OrderID})
}

// compensateVoidAndRelease 确认阶段失败的双重补偿：撤销支付授权、归还库存预占
func (o *Orchestrator) compensateVoidAndRelease(ctx context.Context, tx domain.TxRepository, s *domain.OrderSaga, ev Event) error {
	if err := enqueue(ctx, tx, paydomain.TopicPaymentCommands, s.OrderID, paydomain.CmdVoidPayment,
		paydomain.VoidPaymentCommand{OrderID: s.OrderID, Reason: ev.Reason}); err != nil {
		return err
	}
	return o.commandReleaseInventory(ctx, tx, s, ev)
}
