// internal/service/inventory/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/trvannhanh/elaris-marketplace-sub000/internal/pkg/outbox"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/service/inventory/domain"
)

// GormRepository 是 domain.Repository 的 GORM/MySQL 实现。
// ForUpdate 读取使用 SELECT ... FOR UPDATE 行级锁，
// 同一商品上的并发预占在数据库层串行化。
type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// AutoMigrate 建表，部署脚本或本地启动时调用
func (r *GormRepository) AutoMigrate() error {
	return r.db.AutoMigrate(
		&InventoryItemModel{},
		&StockReservationModel{},
		&InventoryHistoryModel{},
		&outbox.OutboxModel{},
	)
}

func (r *GormRepository) InTx(ctx context.Context, fn func(tx domain.TxRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTxRepository{db: tx})
	})
}

func (r *GormRepository) FindItem(ctx context.Context, productID string) (*domain.InventoryItem, error) {
	var model InventoryItemModel
	err := r.db.WithContext(ctx).Where("product_id = ?", productID).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrProductNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find inventory item")
	}
	return toDomainItem(&model), nil
}

func (r *GormRepository) FindExpiredActive(ctx context.Context, before time.Time, limit int) ([]*domain.StockReservation, error) {
	var models []*StockReservationModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND reserved_at < ?", string(domain.ReservationActive), before).
		Order("reserved_at asc").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list stale reservations")
	}
	out := make([]*domain.StockReservation, 0, len(models))
	for _, m := range models {
		out = append(out, toDomainReservation(m))
	}
	return out, nil
}

// gormTxRepository 在单个数据库事务的生命周期内有效
type gormTxRepository struct {
	db *gorm.DB
}

func (t *gormTxRepository) ItemForUpdate(ctx context.Context, productID string) (*domain.InventoryItem, error) {
	var model InventoryItemModel
	err := t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("product_id = ?", productID).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrProductNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to lock inventory item")
	}
	return toDomainItem(&model), nil
}

func (t *gormTxRepository) SaveItem(ctx context.Context, item *domain.InventoryItem) error {
	err := t.db.WithContext(ctx).
		Model(&InventoryItemModel{}).
		Where("product_id = ?", item.ProductID).
		Updates(map[string]interface{}{
			"quantity":           item.Quantity,
			"reserved_quantity":  item.ReservedQuantity,
			"available_quantity": item.AvailableQuantity,
			"status":             string(item.Status),
			"updated_at":         item.UpdatedAt,
		}).Error
	return errors.Wrap(err, "failed to save inventory item")
}

func (t *gormTxRepository) CreateItem(ctx context.Context, item *domain.InventoryItem) error {
	// 种子入口允许覆盖已存在的商品
	err := t.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(toItemModel(item)).Error
	return errors.Wrap(err, "failed to create inventory item")
}

func (t *gormTxRepository) CreateReservation(ctx context.Context, r *domain.StockReservation) error {
	err := t.db.WithContext(ctx).Create(toReservationModel(r)).Error
	return errors.Wrap(err, "failed to create reservation")
}

func (t *gormTxRepository) ReservationForUpdate(ctx context.Context, orderID, productID string) (*domain.StockReservation, error) {
	var model StockReservationModel
	err := t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("order_id = ? AND product_id = ?", orderID, productID).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrReservationNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to lock reservation")
	}
	return toDomainReservation(&model), nil
}

func (t *gormTxRepository) SaveReservation(ctx context.Context, r *domain.StockReservation) error {
	err := t.db.WithContext(ctx).
		Model(&StockReservationModel{}).
		Where("order_id = ? AND product_id = ?", r.OrderID, r.ProductID).
		Updates(map[string]interface{}{
			"status":      string(r.Status),
			"released_at": r.ReleasedAt,
		}).Error
	return errors.Wrap(err, "failed to save reservation")
}

func (t *gormTxRepository) AppendHistory(ctx context.Context, h *domain.InventoryHistory) error {
	err := t.db.WithContext(ctx).Create(toHistoryModel(h)).Error
	return errors.Wrap(err, "failed to append inventory history")
}

func (t *gormTxRepository) EnqueueOutbox(_ context.Context, msg *outbox.Message) error {
	return outbox.Enqueue(t.db, msg)
}
