package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrOrgMismatch    = errors.New("invoice_org_mismatch")
	ErrAmountMismatch = errors.New("invoice_amount_mismatch")
	ErrAlreadyPaid    = errors.New("invoice_already_paid")
	ErrNotFound       = errors.New("payment_not_found")
)

const (
	StatusPending   = "pending"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Payment records a destination charge taken on behalf of an organization.
// Amounts are integer cents. TransferredAt marks funds already swept to the
// connected account by the reconciliation engine.
type Payment struct {
	ID               snowflake.ID  `gorm:"primaryKey" json:"id"`
	OrgID            snowflake.ID  `gorm:"not null;index" json:"org_id"`
	InvoiceID        *snowflake.ID `gorm:"column:invoice_id;index" json:"invoice_id,omitempty"`
	PaymentIntentID  string        `gorm:"column:payment_intent_id;uniqueIndex:ux_payments_payment_intent" json:"payment_intent_id"`
	Amount           int64         `gorm:"not null" json:"amount"`
	ApplicationFee   int64         `gorm:"column:application_fee;not null" json:"application_fee"`
	Currency         string        `gorm:"type:text;not null;default:'usd'" json:"currency"`
	Status           string        `gorm:"type:text;not null" json:"status"`
	ConnectAccountID string        `gorm:"type:text;column:connect_account_id" json:"connect_account_id"`
	TransferredAt    *time.Time    `gorm:"column:transferred_at;index" json:"transferred_at,omitempty"`
	CreatedAt        time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt        time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Payment) TableName() string { return "payments" }

type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Insert(ctx context.Context, p *Payment) error
	Get(ctx context.Context, id snowflake.ID) (*Payment, error)
	GetByPaymentIntent(ctx context.Context, paymentIntentID string) (*Payment, error)
	List(ctx context.Context, orgID snowflake.ID) ([]Payment, error)

	// ListUntransferred returns succeeded payments whose funds have not yet
	// been swept to the connected account, oldest first.
	ListUntransferred(ctx context.Context, orgID snowflake.ID) ([]Payment, error)
	MarkTransferred(ctx context.Context, ids []snowflake.ID, at time.Time) error
	UpdateStatus(ctx context.Context, paymentIntentID, status string) error
}
