package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/connectpay/internal/payment/domain"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

func (r *repository) Insert(ctx context.Context, p *domain.Payment) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *repository) Get(ctx context.Context, id snowflake.ID) (*domain.Payment, error) {
	var payment domain.Payment
	err := r.db.WithContext(ctx).First(&payment, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &payment, nil
}

func (r *repository) GetByPaymentIntent(ctx context.Context, paymentIntentID string) (*domain.Payment, error) {
	var payment domain.Payment
	err := r.db.WithContext(ctx).First(&payment, "payment_intent_id = ?", paymentIntentID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &payment, nil
}

func (r *repository) List(ctx context.Context, orgID snowflake.ID) ([]domain.Payment, error) {
	var payments []domain.Payment
	err := r.db.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("created_at DESC").
		Find(&payments).Error
	return payments, err
}

func (r *repository) ListUntransferred(ctx context.Context, orgID snowflake.ID) ([]domain.Payment, error) {
	var payments []domain.Payment
	err := r.db.WithContext(ctx).
		Where("org_id = ? AND status = ? AND transferred_at IS NULL", orgID, domain.StatusSucceeded).
		Order("created_at ASC").
		Find(&payments).Error
	return payments, err
}

func (r *repository) MarkTransferred(ctx context.Context, ids []snowflake.ID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET transferred_at = ?, updated_at = ?
		 WHERE id IN ? AND transferred_at IS NULL`,
		at,
		at,
		ids,
	).Error
}

func (r *repository) UpdateStatus(ctx context.Context, paymentIntentID, status string) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET status = ?, updated_at = ?
		 WHERE payment_intent_id = ?`,
		status,
		time.Now().UTC(),
		paymentIntentID,
	).Error
}
