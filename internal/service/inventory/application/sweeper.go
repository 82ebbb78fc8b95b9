// internal/service/inventory/application/sweeper.go
package application

import (
	"context"
	"time"

	"github.com/trvannhanh/elaris-marketplace-sub000/internal/pkg/logger"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/pkg/metrics"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/pkg/zookeeper"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/service/inventory/domain"
)

const sweepBatchSize = 100

// ExpirySweeper 定期释放超时未决的预占。
// 这是针对 Saga 崩溃或支付结果永远不到达的安全网：
// 即使没有任何显式补偿消息，被预占的库存也会最终回到可用量。
// 多副本部署时通过 Elector 保证同一轮只有一个副本在清扫。
type ExpirySweeper struct {
	svc      *InventoryApplicationService
	repo     domain.Repository
	elector  zookeeper.Elector
	interval time.Duration
	timeout  time.Duration
}

func NewExpirySweeper(svc *InventoryApplicationService, repo domain.Repository, elector zookeeper.Elector, interval, timeout time.Duration) *ExpirySweeper {
	if elector == nil {
		elector = zookeeper.AlwaysLeader{}
	}
	return &ExpirySweeper{svc: svc, repo: repo, elector: elector, interval: interval, timeout: timeout}
}

// Start 启动清扫循环，直到 ctx 被取消
func (s *ExpirySweeper) Start(ctx context.Context) {
	logger.Ctx(ctx).Info().
		Dur("interval", s.interval).
		Dur("timeout", s.timeout).
		Msg("✅ Expiry sweeper started.")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			acquired, release, err := s.elector.TryAcquire()
			if err != nil {
				logger.Ctx(ctx).Warn().Err(err).Msg("sweeper leader election failed, skipping pass")
				continue
			}
			if !acquired {
				continue
			}
			s.SweepOnce(ctx)
			release()
		case <-ctx.Done():
			logger.Ctx(ctx).Info().Msg("🛑 Expiry sweeper shutting down.")
			return
		}
	}
}

// SweepOnce 执行一轮清扫，返回释放的预占条数。
// 每笔预占的释放是独立事务：单笔失败只记日志，下一轮重试，
// 与并发的显式 Release / Confirm 天然幂等（终态预占被跳过）。
func (s *ExpirySweeper) SweepOnce(ctx context.Context) int {
	cutoff := time.Now().UTC().Add(-s.timeout)
	stale, err := s.repo.FindExpiredActive(ctx, cutoff, sweepBatchSize)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("sweeper failed to list stale reservations")
		return 0
	}

	released := 0
	for _, r := range stale {
		line := []domain.ItemLine{{ProductID: r.ProductID, Quantity: r.Quantity}}
		if err := s.svc.Release(ctx, r.OrderID, line, true); err != nil {
			logger.Ctx(ctx).Warn().Err(err).
				Str("order_id", r.OrderID).
				Str("product_id", r.ProductID).
				Msg("sweeper failed to release reservation, will retry next pass")
			continue
		}
		metrics.ReservationsExpired.Inc()
		released++
		logger.Ctx(ctx).Info().
			Str("order_id", r.OrderID).
			Str("product_id", r.ProductID).
			Int("quantity", r.Quantity).
			Msg("stale reservation expired and released")
	}
	return released
}
