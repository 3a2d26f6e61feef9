package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/connectpay/internal/organization/domain"
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

func (r *repository) Get(ctx context.Context, id snowflake.ID) (*domain.Organization, error) {
	var org domain.Organization
	err := r.db.WithContext(ctx).First(&org, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &org, nil
}

func (r *repository) GetByConnectAccount(ctx context.Context, accountID string) (*domain.Organization, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return nil, domain.ErrNotFound
	}
	var org domain.Organization
	err := r.db.WithContext(ctx).First(&org, "connect_account_id = ?", accountID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &org, nil
}

func (r *repository) SetConnectAccount(ctx context.Context, id snowflake.ID, accountID string) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE organizations
		 SET connect_account_id = ?, updated_at = ?
		 WHERE id = ?`,
		accountID,
		time.Now().UTC(),
		id,
	).Error
}

func (r *repository) UpdateConnectStatus(ctx context.Context, id snowflake.ID, status domain.ConnectStatus) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE organizations
		 SET charges_enabled = ?,
		     payouts_enabled = ?,
		     details_submitted = ?,
		     onboarding_complete = ?,
		     updated_at = ?
		 WHERE id = ?`,
		status.ChargesEnabled,
		status.PayoutsEnabled,
		status.DetailsSubmitted,
		status.ChargesEnabled && status.PayoutsEnabled,
		time.Now().UTC(),
		id,
	).Error
}
