package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/connectpay/internal/payout/domain"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) Insert(ctx context.Context, p *domain.Payout) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *repository) List(ctx context.Context, orgID snowflake.ID) ([]domain.Payout, error) {
	var payouts []domain.Payout
	err := r.db.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("created_at DESC").
		Find(&payouts).Error
	return payouts, err
}
