package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/connectpay/internal/webhook/domain"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) Insert(ctx context.Context, event *domain.WebhookEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) MarkProcessed(ctx context.Context, id snowflake.ID, at time.Time, processingError string) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE webhook_events
		 SET processed_at = ?, processing_error = ?
		 WHERE id = ?`,
		at,
		processingError,
		id,
	).Error
}
