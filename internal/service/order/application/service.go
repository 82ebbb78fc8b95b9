// internal/service/order/application/service.go
package application

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/trvannhanh/elaris-marketplace-sub000/internal/pkg/logger"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/pkg/outbox"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/service/order/domain"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/service/order/domain/port"
)

// CreateOrderRequest 下单请求
type CreateOrderRequest struct {
	UserID string             `json:"userId"`
	Items  []domain.OrderLine `json:"items"`
}

// OrderApplicationService 实现下单入口与状态查询。
// 下单 = 同步预检查（快速失败）+ 原子地落订单快照与 OrderCreated 事件，
// 之后的一切都由 Saga 编排器异步推进。
type OrderApplicationService struct {
	repo          domain.Repository
	stockChecker  port.StockChecker
	preAuthorizer port.PaymentPreAuthorizer
	tracer        trace.Tracer
}

func NewOrderApplicationService(repo domain.Repository, stockChecker port.StockChecker, preAuthorizer port.PaymentPreAuthorizer, tracer trace.Tracer) *OrderApplicationService {
	return &OrderApplicationService{
		repo:          repo,
		stockChecker:  stockChecker,
		preAuthorizer: preAuthorizer,
		tracer:        tracer,
	}
}

// CreateOrder 创建订单并启动 Saga。
// 预检查失败在任何事件、任何 Saga 实例存在之前就中止，
// 调用方立刻拿到一个带原因的拒绝。预检查只是快速失败的优化，
// 真正的正确性闸门永远是预占引擎与支付引擎里的原子操作。
func (s *OrderApplicationService) CreateOrder(ctx context.Context, req CreateOrderRequest) (string, error) {
	ctx, span := s.tracer.Start(ctx, "order.CreateOrder")
	defer span.End()

	if req.UserID == "" || len(req.Items) == 0 {
		return "", domain.ErrInvalidOrder
	}
	orderID := uuid.NewString()
	span.SetAttributes(attribute.String("order.id", orderID), attribute.String("user.id", req.UserID))

	total := 0.0
	for _, line := range req.Items {
		if line.Quantity <= 0 {
			return "", domain.ErrInvalidOrder
		}
		total += line.Price * float64(line.Quantity)
	}

	for _, line := range req.Items {
		result, err := s.stockChecker.CheckStock(ctx, line.ProductID, line.Quantity)
		if err != nil {
			span.RecordError(err)
			return "", errors.Wrap(err, "stock precheck unavailable")
		}
		if !result.Available {
			span.SetStatus(codes.Error, "stock precheck rejected")
			logger.Ctx(ctx).Info().
				Str("order_id", orderID).
				Str("product_id", line.ProductID).
				Int("remaining", result.Remaining).
				Msg("order rejected by stock precheck")
			return "", errors.Wrapf(domain.ErrPrecheckRejected,
				"insufficient stock for %s: %d remaining", line.ProductID, result.Remaining)
		}
	}

	preAuth, err := s.preAuthorizer.PreAuthorize(ctx, orderID, req.UserID, total)
	if err != nil {
		span.RecordError(err)
		return "", errors.Wrap(err, "payment precheck unavailable")
	}
	if !preAuth.Success {
		span.SetStatus(codes.Error, "payment precheck rejected")
		logger.Ctx(ctx).Info().
			Str("order_id", orderID).
			Str("status", preAuth.Status).
			Msg("order rejected by payment precheck")
		return "", errors.Wrapf(domain.ErrPrecheckRejected, "payment pre-authorization declined: %s", preAuth.Status)
	}

	err = s.repo.InTx(ctx, func(tx domain.TxRepository) error {
		saga := domain.NewOrderSaga(orderID, req.UserID, total, req.Items)
		if err := tx.CreateSaga(ctx, saga); err != nil {
			return err
		}
		msg, err := outbox.NewMessage(domain.TopicOrderEvents, orderID, domain.EventOrderCreated,
			domain.OrderCreatedEvent{OrderID: orderID, UserID: req.UserID, TotalAmount: total, Items: req.Items})
		if err != nil {
			return err
		}
		return tx.EnqueueOutbox(ctx, msg)
	})
	if err != nil {
		span.RecordError(err)
		return "", err
	}

	logger.Ctx(ctx).Info().
		Str("order_id", orderID).
		Str("user_id", req.UserID).
		Float64("total", total).
		Msg("✅ Order created, saga started.")
	return orderID, nil
}

// GetOrder 查询一个订单的当前状态
func (s *OrderApplicationService) GetOrder(ctx context.Context, orderID string) (*domain.OrderSaga, error) {
	return s.repo.FindSaga(ctx, orderID)
}
