// internal/service/payment/application/janitor.go
package application

import (
	"context"
	"time"

	"github.com/trvannhanh/elaris-marketplace-sub000/internal/pkg/logger"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/pkg/metrics"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/pkg/outbox"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/pkg/zookeeper"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/service/payment/domain"
)

const janitorBatchSize = 50

// StuckPaymentJanitor 定期把长期停留在 Processing 的支付单判为失败。
// 进程在网关调用期间崩溃会留下这样的支付单：授权结果永远不会落库，
// Saga 也就永远等不到支付结果事件。判失败并发出 PaymentFailed
// 让编排器走正常的取消路径，库存预占随之被补偿归还。
// 多副本部署时通过 Elector 保证同一轮只有一个副本在清理。
type StuckPaymentJanitor struct {
	repo     domain.Repository
	elector  zookeeper.Elector
	interval time.Duration
	timeout  time.Duration
}

func NewStuckPaymentJanitor(repo domain.Repository, elector zookeeper.Elector, interval, timeout time.Duration) *StuckPaymentJanitor {
	if elector == nil {
		elector = zookeeper.AlwaysLeader{}
	}
	return &StuckPaymentJanitor{repo: repo, elector: elector, interval: interval, timeout: timeout}
}

// Start 启动清理循环，直到 ctx 被取消
func (j *StuckPaymentJanitor) Start(ctx context.Context) {
	logger.Ctx(ctx).Info().
		Dur("interval", j.interval).
		Dur("timeout", j.timeout).
		Msg("✅ Stuck payment janitor started.")
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			acquired, release, err := j.elector.TryAcquire()
			if err != nil {
				logger.Ctx(ctx).Warn().Err(err).Msg("janitor leader election failed, skipping pass")
				continue
			}
			if !acquired {
				continue
			}
			j.RunOnce(ctx)
			release()
		case <-ctx.Done():
			logger.Ctx(ctx).Info().Msg("🛑 Stuck payment janitor shutting down.")
			return
		}
	}
}

// RunOnce 执行一轮清理，返回判为失败的支付单条数。
// 每笔支付单独立事务：事务内再次校验状态，与并发落库的
// 正常授权结果互相安全（谁先提交谁生效）。
func (j *StuckPaymentJanitor) RunOnce(ctx context.Context) int {
	cutoff := time.Now().UTC().Add(-j.timeout)
	stuck, err := j.repo.FindStuckProcessing(ctx, cutoff, janitorBatchSize)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("janitor failed to list stuck payments")
		return 0
	}

	failed := 0
	for _, p := range stuck {
		err := j.repo.InTx(ctx, func(tx domain.TxRepository) error {
			locked, err := tx.PaymentForUpdate(ctx, p.OrderID)
			if err != nil {
				return err
			}
			if locked.Status != domain.PaymentProcessing {
				return nil // 授权结果赶在我们之前落库了
			}
			if err := locked.MarkFailed("authorization timed out"); err != nil {
				return err
			}
			if err := tx.SavePayment(ctx, locked); err != nil {
				return err
			}
			if err := tx.AppendHistory(ctx, &domain.PaymentHistory{
				PaymentID: locked.ID, OrderID: locked.OrderID,
				FromStatus: domain.PaymentProcessing, ToStatus: domain.PaymentFailed,
				Actor: "payment-janitor", Note: "authorization timed out",
			}); err != nil {
				return err
			}
			msg, err := outbox.NewMessage(domain.TopicPaymentEvents, locked.OrderID, domain.EventPaymentFailed,
				domain.PaymentFailedEvent{OrderID: locked.OrderID, Reason: "authorization timed out"})
			if err != nil {
				return err
			}
			return tx.EnqueueOutbox(ctx, msg)
		})
		if err != nil {
			logger.Ctx(ctx).Warn().Err(err).
				Str("order_id", p.OrderID).
				Msg("janitor failed to fail stuck payment, will retry next pass")
			continue
		}
		metrics.PaymentsFailed.Inc()
		failed++
		logger.Ctx(ctx).Info().
			Str("order_id", p.OrderID).
			Str("payment_id", p.ID).
			Msg("stuck payment failed by janitor")
	}
	return failed
}
