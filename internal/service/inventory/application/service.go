// internal/service/inventory/application/service.go
package application

import (
	"context"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/trvannhanh/elaris-marketplace-sub000/internal/pkg/logger"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/pkg/outbox"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/service/inventory/domain"
)

// StockCache 是 /check_stock 快路径使用的可用量缓存。
// 只是一个咨询性读取的加速层，正确性永远由事务内的再校验兜底。
type StockCache interface {
	GetAvailable(ctx context.Context, productID string) (int, bool, error)
	SetAvailable(ctx context.Context, productID string, available int) error
	Invalidate(ctx context.Context, productID string) error
}

// NoopCache 在测试与未配置 Redis 时使用
type NoopCache struct{}

func (NoopCache) GetAvailable(context.Context, string) (int, bool, error) { return 0, false, nil }
func (NoopCache) SetAvailable(context.Context, string, int) error         { return nil }
func (NoopCache) Invalidate(context.Context, string) error                { return nil }

// InventoryApplicationService 实现预占引擎的三个核心操作。
// 每个操作是一个原子事务：锁行、改计数、写台账、写审计、写 Outbox，
// 要么全部生效，要么全部回滚。
type InventoryApplicationService struct {
	repo   domain.Repository
	cache  StockCache
	tracer trace.Tracer
}

func NewInventoryApplicationService(repo domain.Repository, cache StockCache, tracer trace.Tracer) *InventoryApplicationService {
	if cache == nil {
		cache = NoopCache{}
	}
	return &InventoryApplicationService{repo: repo, cache: cache, tracer: tracer}
}

// Reserve 为一个订单的全部行预占库存，全有或全无。
// 行按 productID 排序后加锁，保证并发订单间不会互相死锁。
// 成功发出 ItemsReserved，失败发出 StockRejected（均经由 Outbox）。
func (s *InventoryApplicationService) Reserve(ctx context.Context, orderID string, items []domain.ItemLine) error {
	ctx, span := s.tracer.Start(ctx, "inventory.Reserve")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID), attribute.Int("order.lines", len(items)))

	sorted := sortedLines(items)

	err := s.repo.InTx(ctx, func(tx domain.TxRepository) error {
		for _, line := range sorted {
			// 重投递防御：该订单行已存在预占记录时视为已处理
			if existing, err := tx.ReservationForUpdate(ctx, orderID, line.ProductID); err == nil && existing != nil {
				logger.Ctx(ctx).Debug().
					Str("order_id", orderID).
					Str("product_id", line.ProductID).
					Msg("reservation already exists, skipping line")
				continue
			}

			item, err := tx.ItemForUpdate(ctx, line.ProductID)
			if err != nil {
				return err
			}
			qBefore, rBefore := item.Quantity, item.ReservedQuantity

			if err := item.Reserve(line.Quantity); err != nil {
				return err
			}
			if err := tx.SaveItem(ctx, item); err != nil {
				return err
			}
			if err := tx.CreateReservation(ctx, domain.NewStockReservation(orderID, line.ProductID, line.Quantity)); err != nil {
				return err
			}
			if err := tx.AppendHistory(ctx, &domain.InventoryHistory{
				ProductID:      line.ProductID,
				OrderID:        orderID,
				Type:           domain.ChangeReserved,
				QuantityBefore: qBefore,
				QuantityAfter:  item.Quantity,
				ReservedBefore: rBefore,
				ReservedAfter:  item.ReservedQuantity,
				Actor:          "reservation-engine",
			}); err != nil {
				return err
			}
		}

		msg, err := outbox.NewMessage(domain.TopicInventoryEvents, orderID, domain.EventItemsReserved,
			domain.ItemsReservedEvent{OrderID: orderID, Items: items})
		if err != nil {
			return err
		}
		return tx.EnqueueOutbox(ctx, msg)
	})

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reservation failed")
		logger.Ctx(ctx).Warn().Err(err).Str("order_id", orderID).Msg("stock reservation rejected")
		// 拒绝本身也是一个需要可靠通知的事实，走独立事务写 Outbox
		if pubErr := s.publishEvent(ctx, orderID, domain.EventStockRejected,
			domain.StockRejectedEvent{OrderID: orderID, Reason: err.Error()}); pubErr != nil {
			return pubErr
		}
		return err
	}

	s.invalidate(ctx, sorted)
	return nil
}

// Confirm 把一个订单的预占转为永久扣减。
// 已 Confirmed 的行是幂等空操作；已 Released/Expired 的行说明
// 预占早已被归还（例如清扫超时），确认失败并发出 InventoryFailed。
func (s *InventoryApplicationService) Confirm(ctx context.Context, orderID string, items []domain.ItemLine) error {
	ctx, span := s.tracer.Start(ctx, "inventory.Confirm")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	sorted := sortedLines(items)

	err := s.repo.InTx(ctx, func(tx domain.TxRepository) error {
		for _, line := range sorted {
			r, err := tx.ReservationForUpdate(ctx, orderID, line.ProductID)
			if err != nil {
				return err
			}
			switch r.Status {
			case domain.ReservationConfirmed:
				continue // 命令重投递，本行已确认
			case domain.ReservationReleased, domain.ReservationExpired:
				return domain.ErrReservationNotFound
			}

			item, err := tx.ItemForUpdate(ctx, line.ProductID)
			if err != nil {
				return err
			}
			qBefore, rBefore := item.Quantity, item.ReservedQuantity

			if err := item.ConfirmDeduction(r.Quantity); err != nil {
				return err
			}
			if err := tx.SaveItem(ctx, item); err != nil {
				return err
			}
			r.Confirm()
			if err := tx.SaveReservation(ctx, r); err != nil {
				return err
			}
			if err := tx.AppendHistory(ctx, &domain.InventoryHistory{
				ProductID:      line.ProductID,
				OrderID:        orderID,
				Type:           domain.ChangeConfirmed,
				QuantityBefore: qBefore,
				QuantityAfter:  item.Quantity,
				ReservedBefore: rBefore,
				ReservedAfter:  item.ReservedQuantity,
				Actor:          "reservation-engine",
			}); err != nil {
				return err
			}
		}

		msg, err := outbox.NewMessage(domain.TopicInventoryEvents, orderID, domain.EventInventoryUpdate,
			domain.InventoryUpdatedEvent{OrderID: orderID})
		if err != nil {
			return err
		}
		return tx.EnqueueOutbox(ctx, msg)
	})

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "confirmation failed")
		logger.Ctx(ctx).Warn().Err(err).Str("order_id", orderID).Msg("reservation confirmation failed")
		if pubErr := s.publishEvent(ctx, orderID, domain.EventInventoryFailed,
			domain.InventoryFailedEvent{OrderID: orderID, Reason: err.Error()}); pubErr != nil {
			return pubErr
		}
		return err
	}

	s.invalidate(ctx, sorted)
	return nil
}

// Release 归还一个订单的预占，既用于 Saga 的显式补偿，也用于清扫过期。
// 对不存在或已处于终态的预占是静默空操作，保证与并发的
// Confirm / 清扫互相安全。
func (s *InventoryApplicationService) Release(ctx context.Context, orderID string, items []domain.ItemLine, expired bool) error {
	ctx, span := s.tracer.Start(ctx, "inventory.Release")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID), attribute.Bool("expired", expired))

	sorted := sortedLines(items)

	err := s.repo.InTx(ctx, func(tx domain.TxRepository) error {
		for _, line := range sorted {
			r, err := tx.ReservationForUpdate(ctx, orderID, line.ProductID)
			if err == domain.ErrReservationNotFound {
				continue
			}
			if err != nil {
				return err
			}
			if r.IsTerminal() {
				logger.Ctx(ctx).Debug().
					Str("order_id", orderID).
					Str("product_id", line.ProductID).
					Str("status", string(r.Status)).
					Msg("release skipped, reservation already terminal")
				continue
			}

			item, err := tx.ItemForUpdate(ctx, line.ProductID)
			if err != nil {
				return err
			}
			qBefore, rBefore := item.Quantity, item.ReservedQuantity

			item.ReleaseReserved(r.Quantity)
			if err := tx.SaveItem(ctx, item); err != nil {
				return err
			}
			r.Release(expired)
			if err := tx.SaveReservation(ctx, r); err != nil {
				return err
			}

			changeType := domain.ChangeReleased
			actor := "reservation-engine"
			if expired {
				changeType = domain.ChangeExpired
				actor = "expiry-sweeper"
			}
			if err := tx.AppendHistory(ctx, &domain.InventoryHistory{
				ProductID:      line.ProductID,
				OrderID:        orderID,
				Type:           changeType,
				QuantityBefore: qBefore,
				QuantityAfter:  item.Quantity,
				ReservedBefore: rBefore,
				ReservedAfter:  item.ReservedQuantity,
				Actor:          actor,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return err
	}

	s.invalidate(ctx, sorted)
	return nil
}

// CheckStock 是同步快路径的咨询性读取，先查缓存，未命中回源。
// 绝不产生任何持久化写入。
func (s *InventoryApplicationService) CheckStock(ctx context.Context, productID string, quantity int) (bool, int, error) {
	ctx, span := s.tracer.Start(ctx, "inventory.CheckStock")
	defer span.End()

	if avail, ok, err := s.cache.GetAvailable(ctx, productID); err == nil && ok {
		return avail >= quantity, avail, nil
	}

	item, err := s.repo.FindItem(ctx, productID)
	if err != nil {
		return false, 0, err
	}
	if err := s.cache.SetAvailable(ctx, productID, item.AvailableQuantity); err != nil {
		// 缓存写入失败只影响下一次命中率，不影响本次结果
		logger.Ctx(ctx).Debug().Err(err).Str("product_id", productID).Msg("failed to populate stock cache")
	}
	return item.AvailableQuantity >= quantity, item.AvailableQuantity, nil
}

// SeedItem 管理入口：创建或重置一个库存商品
func (s *InventoryApplicationService) SeedItem(ctx context.Context, productID string, quantity, threshold int) error {
	err := s.repo.InTx(ctx, func(tx domain.TxRepository) error {
		item := domain.NewInventoryItem(productID, quantity, threshold)
		if err := tx.CreateItem(ctx, item); err != nil {
			return err
		}
		return tx.AppendHistory(ctx, &domain.InventoryHistory{
			ProductID:      productID,
			Type:           domain.ChangeSeeded,
			QuantityAfter:  quantity,
			ReservedBefore: 0,
			ReservedAfter:  0,
			Actor:          "admin",
		})
	})
	if err != nil {
		return err
	}
	return s.cache.Invalidate(ctx, productID)
}

// publishEvent 在独立事务里写一条 Outbox 消息（用于拒绝类结果事件）
func (s *InventoryApplicationService) publishEvent(ctx context.Context, orderID, eventType string, payload interface{}) error {
	return s.repo.InTx(ctx, func(tx domain.TxRepository) error {
		msg, err := outbox.NewMessage(domain.TopicInventoryEvents, orderID, eventType, payload)
		if err != nil {
			return err
		}
		return tx.EnqueueOutbox(ctx, msg)
	})
}

func (s *InventoryApplicationService) invalidate(ctx context.Context, items []domain.ItemLine) {
	for _, line := range items {
		if err := s.cache.Invalidate(ctx, line.ProductID); err != nil {
			logger.Ctx(ctx).Debug().Err(err).Str("product_id", line.ProductID).Msg("failed to invalidate stock cache")
		}
	}
}

func sortedLines(items []domain.ItemLine) []domain.ItemLine {
	out := make([]domain.ItemLine, len(items))
	copy(out, items)
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}
