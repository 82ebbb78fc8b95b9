// internal/service/order/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/trvannhanh/elaris-marketplace-sub000/internal/pkg/outbox"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/service/order/domain"
)

// GormRepository 是 domain.Repository 的 GORM/MySQL 实现。
// SagaForUpdate 使用 SELECT ... FOR UPDATE 行级锁，
// 同一订单上的并发事件在数据库层串行化。
type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// AutoMigrate 建表，部署脚本或本地启动时调用
func (r *GormRepository) AutoMigrate() error {
	return r.db.AutoMigrate(
		&OrderSagaModel{},
		&outbox.OutboxModel{},
	)
}

func (r *GormRepository) InTx(ctx context.Context, fn func(tx domain.TxRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTxRepository{db: tx})
	})
}

func (r *GormRepository) FindSaga(ctx context.Context, orderID string) (*domain.OrderSaga, error) {
	var model OrderSagaModel
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find saga")
	}
	return toDomainSaga(&model)
}

// gormTxRepository 在单个数据库事务的生命周期内有效
type gormTxRepository struct {
	db *gorm.DB
}

func (t *gormTxRepository) SagaForUpdate(ctx context.Context, orderID string) (*domain.OrderSaga, error) {
	var model OrderSagaModel
	err := t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("order_id = ?", orderID).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to lock saga")
	}
	return toDomainSaga(&model)
}

func (t *gormTxRepository) CreateSaga(ctx context.Context, s *domain.OrderSaga) error {
	model, err := toSagaModel(s)
	if err != nil {
		return errors.Wrap(err, "failed to serialize saga items")
	}
	return errors.Wrap(t.db.WithContext(ctx).Create(model).Error, "failed to create saga")
}

func (t *gormTxRepository) SaveSaga(ctx context.Context, s *domain.OrderSaga) error {
	err := t.db.WithContext(ctx).
		Model(&OrderSagaModel{}).
		Where("order_id = ?", s.OrderID).
		Updates(map[string]interface{}{
			"status":        string(s.Status),
			"cancel_reason": s.CancelReason,
			"reserved_at":   s.ReservedAt,
			"paid_at":       s.PaidAt,
			"completed_at":  s.CompletedAt,
			"canceled_at":   s.CanceledAt,
			"updated_at":    s.UpdatedAt,
		}).Error
	return errors.Wrap(err, "failed to save saga")
}

func (t *gormTxRepository) EnqueueOutbox(_ context.Context, msg *outbox.Message) error {
	return outbox.Enqueue(t.db, msg)
}
