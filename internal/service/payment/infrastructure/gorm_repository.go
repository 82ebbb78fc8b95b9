// internal/service/payment/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/trvannhanh/elaris-marketplace-sub000/internal/pkg/outbox"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/service/payment/domain"
)

// GormRepository 是 domain.Repository 的 GORM/MySQL 实现。
// ForUpdate 读取使用 SELECT ... FOR UPDATE 行级锁，
// 同一订单上的并发支付命令在数据库层串行化。
type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// AutoMigrate 建表，部署脚本或本地启动时调用
func (r *GormRepository) AutoMigrate() error {
	return r.db.AutoMigrate(
		&PaymentModel{},
		&PaymentHistoryModel{},
		&outbox.OutboxModel{},
	)
}

func (r *GormRepository) InTx(ctx context.Context, fn func(tx domain.TxRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTxRepository{db: tx})
	})
}

func (r *GormRepository) FindByOrder(ctx context.Context, orderID string) (*domain.Payment, error) {
	var model PaymentModel
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrPaymentNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find payment")
	}
	return toDomainPayment(&model), nil
}

func (r *GormRepository) FindStuckProcessing(ctx context.Context, before time.Time, limit int) ([]*domain.Payment, error) {
	var models []*PaymentModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", string(domain.PaymentProcessing), before).
		Order("created_at asc").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list stuck payments")
	}
	out := make([]*domain.Payment, 0, len(models))
	for _, m := range models {
		out = append(out, toDomainPayment(m))
	}
	return out, nil
}

// gormTxRepository 在单个数据库事务的生命周期内有效
type gormTxRepository struct {
	db *gorm.DB
}

func (t *gormTxRepository) PaymentForUpdate(ctx context.Context, orderID string) (*domain.Payment, error) {
	var model PaymentModel
	err := t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("order_id = ?", orderID).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrPaymentNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to lock payment")
	}
	return toDomainPayment(&model), nil
}

func (t *gormTxRepository) PaymentByIDForUpdate(ctx context.Context, paymentID string) (*domain.Payment, error) {
	var model PaymentModel
	err := t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", paymentID).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrPaymentNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to lock payment")
	}
	return toDomainPayment(&model), nil
}

func (t *gormTxRepository) CreatePayment(ctx context.Context, p *domain.Payment) error {
	err := t.db.WithContext(ctx).Create(toPaymentModel(p)).Error
	return errors.Wrap(err, "failed to create payment")
}

func (t *gormTxRepository) SavePayment(ctx context.Context, p *domain.Payment) error {
	err := t.db.WithContext(ctx).
		Model(&PaymentModel{}).
		Where("id = ?", p.ID).
		Updates(map[string]interface{}{
			"status":          string(p.Status),
			"refunded_amount": p.RefundedAmount,
			"transaction_id":  p.TransactionID,
			"failure_reason":  p.FailureReason,
			"processed_at":    p.ProcessedAt,
			"captured_at":     p.CapturedAt,
			"refunded_at":     p.RefundedAt,
			"cancelled_at":    p.CancelledAt,
		}).Error
	return errors.Wrap(err, "failed to save payment")
}

func (t *gormTxRepository) AppendHistory(ctx context.Context, h *domain.PaymentHistory) error {
	err := t.db.WithContext(ctx).Create(toPaymentHistoryModel(h)).Error
	return errors.Wrap(err, "failed to append payment history")
}

func (t *gormTxRepository) EnqueueOutbox(_ context.Context, msg *outbox.Message) error {
	return outbox.Enqueue(t.db, msg)
}
