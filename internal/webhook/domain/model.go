package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

var (
	// ErrInvalidSignature rejects a webhook before any business logic runs.
	ErrInvalidSignature = errors.New("invalid_signature")

	ErrInvalidPayload = errors.New("invalid_payload")
)

// Processing outcomes. Every outcome except the signature rejection maps to
// a transport-level acknowledgment, so the event source never disables
// delivery over internal failures.
type Result string

const (
	ResultProcessed          Result = "processed"
	ResultProcessedWithError Result = "processed_with_error"
	ResultDuplicate          Result = "duplicate"
	ResultIgnored            Result = "ignored"
)

// WebhookEvent is the dedup record for processor events. ProviderEventID is
// unique; a second delivery of the same event id becomes a no-op.
type WebhookEvent struct {
	ID              snowflake.ID   `gorm:"primaryKey" json:"id"`
	ProviderEventID string         `gorm:"column:provider_event_id;not null;uniqueIndex:ux_webhook_events_provider_event" json:"provider_event_id"`
	EventType       string         `gorm:"column:event_type;type:text;not null" json:"event_type"`
	Payload         datatypes.JSON `gorm:"type:jsonb" json:"payload"`
	ReceivedAt      time.Time      `gorm:"column:received_at;not null" json:"received_at"`
	ProcessedAt     *time.Time     `gorm:"column:processed_at" json:"processed_at,omitempty"`
	ProcessingError string         `gorm:"column:processing_error;type:text" json:"processing_error,omitempty"`
}

// TableName sets the database table name.
func (WebhookEvent) TableName() string { return "webhook_events" }

type Repository interface {
	Insert(ctx context.Context, event *WebhookEvent) error
	MarkProcessed(ctx context.Context, id snowflake.ID, at time.Time, processingError string) error
}
