// internal/service/payment/application/service.go
package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/trvannhanh/elaris-marketplace-sub000/internal/pkg/logger"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/pkg/metrics"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/pkg/outbox"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/service/payment/domain"
)

const (
	gatewayMaxAttempts = 3
	gatewayBackoffBase = 200 * time.Millisecond
)

// PaymentApplicationService 实现支付单的授权/扣款/撤销/退款生命周期。
// 网关调用发生在事务之外，结果落库与结果事件共享同一个本地事务。
type PaymentApplicationService struct {
	repo    domain.Repository
	gateway domain.Gateway
	tracer  trace.Tracer
}

func NewPaymentApplicationService(repo domain.Repository, gateway domain.Gateway, tracer trace.Tracer) *PaymentApplicationService {
	return &PaymentApplicationService{repo: repo, gateway: gateway, tracer: tracer}
}

// Authorize 为一个订单授权支付。按订单号幂等：已授权的支付单直接
// 复用既有 transactionID 并重发 PaymentSucceeded，不会二次授权。
// 流程分两个事务：先落一条 Processing 记录，网关调用之后再落结果，
// 这样进程在网关调用期间崩溃时，卡住的 Processing 记录能被清理任务兜住。
func (s *PaymentApplicationService) Authorize(ctx context.Context, orderID, userID string, amount float64) error {
	ctx, span := s.tracer.Start(ctx, "payment.Authorize")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID), attribute.Float64("payment.amount", amount))

	if amount <= 0 {
		return domain.ErrInvalidAmount
	}

	var payment *domain.Payment
	redelivered := false
	err := s.repo.InTx(ctx, func(tx domain.TxRepository) error {
		existing, err := tx.PaymentForUpdate(ctx, orderID)
		if err == nil {
			// 命令重投递：按既有状态重发结果事件，不再触碰网关
			redelivered = true
			switch existing.Status {
			case domain.PaymentAuthorized, domain.PaymentCaptured, domain.PaymentCompleted:
				return tx.EnqueueOutbox(ctx, mustEvent(domain.TopicPaymentEvents, orderID, domain.EventPaymentSucceeded,
					domain.PaymentSucceededEvent{OrderID: orderID, PaymentID: existing.ID, TransactionID: existing.TransactionID}))
			case domain.PaymentFailed:
				return tx.EnqueueOutbox(ctx, mustEvent(domain.TopicPaymentEvents, orderID, domain.EventPaymentFailed,
					domain.PaymentFailedEvent{OrderID: orderID, Reason: existing.FailureReason}))
			default:
				// Processing 中：上一次授权还在途，等它出结果或被清理任务接管
				logger.Ctx(ctx).Debug().Str("order_id", orderID).
					Str("status", string(existing.Status)).
					Msg("authorize redelivered while payment in flight, dropped")
				return nil
			}
		}
		if err != domain.ErrPaymentNotFound {
			return err
		}

		payment = domain.NewPayment(uuid.NewString(), orderID, userID, amount)
		if err := payment.BeginProcessing(); err != nil {
			return err
		}
		if err := tx.CreatePayment(ctx, payment); err != nil {
			return err
		}
		return tx.AppendHistory(ctx, &domain.PaymentHistory{
			PaymentID:  payment.ID,
			OrderID:    orderID,
			FromStatus: domain.PaymentPending,
			ToStatus:   domain.PaymentProcessing,
			Actor:      "payment-engine",
			Note:       "authorization started",
		})
	})
	if err != nil || redelivered {
		return err
	}

	transactionID, gwErr := s.callGateway(ctx, "authorize", func(ctx context.Context) (string, error) {
		return s.gateway.Authorize(ctx, orderID, userID, amount)
	})

	return s.repo.InTx(ctx, func(tx domain.TxRepository) error {
		p, err := tx.PaymentForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if p.Status != domain.PaymentProcessing {
			// 清理任务抢先把它判了超时，网关结果作废
			logger.Ctx(ctx).Warn().Str("order_id", orderID).
				Str("status", string(p.Status)).
				Msg("payment left Processing before gateway result landed, result discarded")
			return nil
		}

		if gwErr != nil {
			if err := p.MarkFailed(gwErr.Error()); err != nil {
				return err
			}
			if err := tx.SavePayment(ctx, p); err != nil {
				return err
			}
			if err := tx.AppendHistory(ctx, &domain.PaymentHistory{
				PaymentID: p.ID, OrderID: orderID,
				FromStatus: domain.PaymentProcessing, ToStatus: domain.PaymentFailed,
				Actor: "payment-engine", Note: gwErr.Error(),
			}); err != nil {
				return err
			}
			metrics.PaymentsFailed.Inc()
			span.SetStatus(codes.Error, "authorization declined")
			logger.Ctx(ctx).Warn().Err(gwErr).Str("order_id", orderID).Msg("payment authorization failed")
			return tx.EnqueueOutbox(ctx, mustEvent(domain.TopicPaymentEvents, orderID, domain.EventPaymentFailed,
				domain.PaymentFailedEvent{OrderID: orderID, Reason: gwErr.Error()}))
		}

		if err := p.MarkAuthorized(transactionID); err != nil {
			return err
		}
		if err := tx.SavePayment(ctx, p); err != nil {
			return err
		}
		if err := tx.AppendHistory(ctx, &domain.PaymentHistory{
			PaymentID: p.ID, OrderID: orderID,
			FromStatus: domain.PaymentProcessing, ToStatus: domain.PaymentAuthorized,
			Actor: "payment-engine", Note: "transaction " + transactionID,
		}); err != nil {
			return err
		}
		metrics.PaymentsAuthorized.Inc()
		logger.Ctx(ctx).Info().
			Str("order_id", orderID).
			Str("transaction_id", transactionID).
			Msg("✅ Payment authorized.")
		return tx.EnqueueOutbox(ctx, mustEvent(domain.TopicPaymentEvents, orderID, domain.EventPaymentSucceeded,
			domain.PaymentSucceededEvent{OrderID: orderID, PaymentID: p.ID, TransactionID: transactionID}))
	})
}

// Capture 把授权转为实际扣款。只允许从 Authorized 发起；
// 已 Completed 的支付单幂等地重发 PaymentCaptured。
// 扣款失败时支付单保持 Authorized，编排器可以重试或撤销。
func (s *PaymentApplicationService) Capture(ctx context.Context, orderID string) error {
	ctx, span := s.tracer.Start(ctx, "payment.Capture")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	p, err := s.repo.FindByOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if p.Status == domain.PaymentCompleted || p.Status == domain.PaymentCaptured {
		return s.publishEvent(ctx, orderID, domain.EventPaymentCaptured,
			domain.PaymentCapturedEvent{OrderID: orderID, PaymentID: p.ID})
	}
	if p.Status != domain.PaymentAuthorized {
		if pubErr := s.publishEvent(ctx, orderID, domain.EventPaymentCaptureFailed,
			domain.PaymentCaptureFailedEvent{OrderID: orderID, Reason: "payment not authorized"}); pubErr != nil {
			return pubErr
		}
		return domain.ErrInvalidStatusTransition
	}

	_, gwErr := s.callGateway(ctx, "capture", func(ctx context.Context) (string, error) {
		return "", s.gateway.Capture(ctx, p.TransactionID)
	})
	if gwErr != nil {
		span.SetStatus(codes.Error, "capture failed")
		logger.Ctx(ctx).Warn().Err(gwErr).Str("order_id", orderID).Msg("payment capture failed, payment stays authorized")
		if pubErr := s.publishEvent(ctx, orderID, domain.EventPaymentCaptureFailed,
			domain.PaymentCaptureFailedEvent{OrderID: orderID, Reason: gwErr.Error()}); pubErr != nil {
			return pubErr
		}
		return gwErr
	}

	return s.repo.InTx(ctx, func(tx domain.TxRepository) error {
		p, err := tx.PaymentForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if p.Status != domain.PaymentAuthorized {
			return nil // 并发的重投递已经扣过款
		}
		if err := p.Capture(); err != nil {
			return err
		}
		if err := p.Complete(); err != nil {
			return err
		}
		if err := tx.SavePayment(ctx, p); err != nil {
			return err
		}
		if err := tx.AppendHistory(ctx, &domain.PaymentHistory{
			PaymentID: p.ID, OrderID: orderID,
			FromStatus: domain.PaymentAuthorized, ToStatus: domain.PaymentCompleted,
			Actor: "payment-engine", Note: "captured",
		}); err != nil {
			return err
		}
		logger.Ctx(ctx).Info().Str("order_id", orderID).Msg("✅ Payment captured.")
		return tx.EnqueueOutbox(ctx, mustEvent(domain.TopicPaymentEvents, orderID, domain.EventPaymentCaptured,
			domain.PaymentCapturedEvent{OrderID: orderID, PaymentID: p.ID}))
	})
}

// Void 撤销一笔授权，作为 Saga 的补偿动作。
// 对不存在的支付单、从未授权成功的支付单都是空操作而不是错误：
// 补偿必须在正向操作根本没完成的情况下也能安全执行。
func (s *PaymentApplicationService) Void(ctx context.Context, orderID, reason string) error {
	ctx, span := s.tracer.Start(ctx, "payment.Void")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	p, err := s.repo.FindByOrder(ctx, orderID)
	if err == domain.ErrPaymentNotFound {
		logger.Ctx(ctx).Debug().Str("order_id", orderID).Msg("void for nonexistent payment, acknowledged as no-op")
		return s.publishEvent(ctx, orderID, domain.EventPaymentVoided, domain.PaymentVoidedEvent{OrderID: orderID})
	}
	if err != nil {
		return err
	}

	switch p.Status {
	case domain.PaymentVoided, domain.PaymentFailed:
		// 已经是终态失败，无可撤销
		return s.publishEvent(ctx, orderID, domain.EventPaymentVoided, domain.PaymentVoidedEvent{OrderID: orderID})
	case domain.PaymentCaptured, domain.PaymentCompleted, domain.PaymentPartiallyRefunded, domain.PaymentRefunded:
		if pubErr := s.publishEvent(ctx, orderID, domain.EventPaymentVoidFailed,
			domain.PaymentVoidFailedEvent{OrderID: orderID, Reason: "payment already captured, refund instead"}); pubErr != nil {
			return pubErr
		}
		return domain.ErrInvalidStatusTransition
	}

	if p.Status == domain.PaymentAuthorized {
		if _, gwErr := s.callGateway(ctx, "void", func(ctx context.Context) (string, error) {
			return "", s.gateway.Void(ctx, p.TransactionID)
		}); gwErr != nil {
			span.SetStatus(codes.Error, "void failed")
			if pubErr := s.publishEvent(ctx, orderID, domain.EventPaymentVoidFailed,
				domain.PaymentVoidFailedEvent{OrderID: orderID, Reason: gwErr.Error()}); pubErr != nil {
				return pubErr
			}
			return gwErr
		}
	}

	return s.repo.InTx(ctx, func(tx domain.TxRepository) error {
		p, err := tx.PaymentForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		from := p.Status
		switch p.Status {
		case domain.PaymentAuthorized:
			if err := p.Void(reason); err != nil {
				return err
			}
		case domain.PaymentPending, domain.PaymentProcessing:
			// 授权还在途就收到补偿：按失败关单，网关侧没有可撤销的授权
			if err := p.MarkFailed(reason); err != nil {
				return err
			}
		default:
			return tx.EnqueueOutbox(ctx, mustEvent(domain.TopicPaymentEvents, orderID, domain.EventPaymentVoided,
				domain.PaymentVoidedEvent{OrderID: orderID}))
		}
		if err := tx.SavePayment(ctx, p); err != nil {
			return err
		}
		if err := tx.AppendHistory(ctx, &domain.PaymentHistory{
			PaymentID: p.ID, OrderID: orderID,
			FromStatus: from, ToStatus: p.Status,
			Actor: "payment-engine", Note: reason,
		}); err != nil {
			return err
		}
		logger.Ctx(ctx).Info().Str("order_id", orderID).Str("reason", reason).Msg("✅ Payment voided.")
		return tx.EnqueueOutbox(ctx, mustEvent(domain.TopicPaymentEvents, orderID, domain.EventPaymentVoided,
			domain.PaymentVoidedEvent{OrderID: orderID}))
	})
}

// Refund 对已完成的支付退款。部分退款后支付单进入 PartiallyRefunded，
// 仍可继续退款；累计退款超过支付金额时返回 ErrRefundExceedsCaptured。
func (s *PaymentApplicationService) Refund(ctx context.Context, paymentID string, amount float64, reason string) error {
	ctx, span := s.tracer.Start(ctx, "payment.Refund")
	defer span.End()
	span.SetAttributes(attribute.String("payment.id", paymentID), attribute.Float64("refund.amount", amount))

	return s.repo.InTx(ctx, func(tx domain.TxRepository) error {
		p, err := tx.PaymentByIDForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}
		from := p.Status
		if err := p.ApplyRefund(amount); err != nil {
			span.RecordError(err)
			return err
		}
		if gwErr := s.gateway.Refund(ctx, p.TransactionID, amount); gwErr != nil {
			// 网关拒绝时让整个事务回滚，退款记录不落库
			span.SetStatus(codes.Error, "refund failed")
			return gwErr
		}
		if err := tx.SavePayment(ctx, p); err != nil {
			return err
		}
		if err := tx.AppendHistory(ctx, &domain.PaymentHistory{
			PaymentID: p.ID, OrderID: p.OrderID,
			FromStatus: from, ToStatus: p.Status,
			Actor: "payment-engine", Note: reason,
		}); err != nil {
			return err
		}
		logger.Ctx(ctx).Info().
			Str("payment_id", paymentID).
			Float64("amount", amount).
			Str("status", string(p.Status)).
			Msg("✅ Payment refunded.")
		return tx.EnqueueOutbox(ctx, mustEvent(domain.TopicPaymentEvents, p.OrderID, domain.EventPaymentRefunded,
			domain.PaymentRefundedEvent{PaymentID: p.ID, OrderID: p.OrderID, Amount: amount, Status: string(p.Status)}))
	})
}

// PreAuthResult 同步预检查的响应
type PreAuthResult struct {
	Success   bool   `json:"success"`
	PaymentID string `json:"paymentId"`
	Status    string `json:"status"`
}

// PreAuthorize 是下单前的同步快路径：咨询性判断这笔支付大概率能否授权。
// 不落任何持久化状态，真正的授权永远走异步命令。
func (s *PaymentApplicationService) PreAuthorize(ctx context.Context, orderID, userID string, amount float64) (*PreAuthResult, error) {
	ctx, span := s.tracer.Start(ctx, "payment.PreAuthorize")
	defer span.End()

	if amount <= 0 {
		return &PreAuthResult{Success: false, Status: "INVALID_AMOUNT"}, nil
	}
	if existing, err := s.repo.FindByOrder(ctx, orderID); err == nil {
		return &PreAuthResult{
			Success:   existing.Status != domain.PaymentFailed && existing.Status != domain.PaymentVoided,
			PaymentID: existing.ID,
			Status:    string(existing.Status),
		}, nil
	} else if err != domain.ErrPaymentNotFound {
		return nil, err
	}

	// 向网关要一个真实授权并立即撤销：一次短暂的资金占用探测，
	// 我们这边不落任何记录
	txID, err := s.callGateway(ctx, "pre_authorize", func(ctx context.Context) (string, error) {
		return s.gateway.Authorize(ctx, orderID, userID, amount)
	})
	if err != nil {
		return &PreAuthResult{Success: false, Status: "DECLINED"}, nil
	}
	if voidErr := s.gateway.Void(ctx, txID); voidErr != nil {
		logger.Ctx(ctx).Warn().Err(voidErr).Str("order_id", orderID).Msg("failed to release pre-auth hold")
	}
	return &PreAuthResult{Success: true, Status: "ELIGIBLE"}, nil
}

// callGateway 对网关调用做有界退避重试，只重试瞬时错误
func (s *PaymentApplicationService) callGateway(ctx context.Context, op string, fn func(ctx context.Context) (string, error)) (string, error) {
	var result string
	var err error
	for attempt := 1; attempt <= gatewayMaxAttempts; attempt++ {
		result, err = fn(ctx)
		if err == nil || !domain.IsTransientGatewayError(err) {
			return result, err
		}
		logger.Ctx(ctx).Warn().Err(err).
			Str("operation", op).
			Int("attempt", attempt).
			Msg("transient gateway failure, retrying")
		select {
		case <-time.After(gatewayBackoffBase * time.Duration(attempt)):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return result, err
}

// publishEvent 在独立事务里写一条 Outbox 消息（用于拒绝类结果事件）
func (s *PaymentApplicationService) publishEvent(ctx context.Context, orderID, eventType string, payload interface{}) error {
	return s.repo.InTx(ctx, func(tx domain.TxRepository) error {
		return tx.EnqueueOutbox(ctx, mustEvent(domain.TopicPaymentEvents, orderID, eventType, payload))
	})
}

func mustEvent(topic, key, eventType string, payload interface{}) *outbox.Message {
	msg, err := outbox.NewMessage(topic, key, eventType, payload)
	if err != nil {
		// payload 都是本包定义的纯数据结构，序列化失败只能是编程错误
		panic(err)
	}
	return msg
}
