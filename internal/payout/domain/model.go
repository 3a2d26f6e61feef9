package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/connectpay/internal/providers/stripe"
)

var (
	// ErrNotEligible is returned when the connected account has no
	// instant-available balance at all, typically because no debit card or
	// eligible bank account is on file.
	ErrNotEligible = errors.New("instant_payout_not_eligible")

	ErrInsufficientBalance = errors.New("insufficient_balance")

	// ErrPayoutInProgress is returned when another instant payout for the
	// same organization holds the per-organization lock.
	ErrPayoutInProgress = errors.New("payout_in_progress")
)

// Fee models. The markup model layers a platform fee on top of the
// processor's instant-payout fee and sends only the reduced amount to the
// processor.
const (
	FeeModelBase   = "base"
	FeeModelMarkup = "markup"
)

// Payout records an instant payout issued on a connected account. Amounts
// are integer cents. RequestedAmount is what the payee asked for;
// ProcessorAmount is what was actually sent to the processor, which differs
// under the markup model.
type Payout struct {
	ID                snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID             snowflake.ID `gorm:"not null;index" json:"org_id"`
	ProcessorPayoutID string       `gorm:"column:processor_payout_id;uniqueIndex:ux_payouts_processor_payout" json:"processor_payout_id"`
	RequestedAmount   int64        `gorm:"column:requested_amount;not null" json:"requested_amount"`
	ProcessorAmount   int64        `gorm:"column:processor_amount;not null" json:"processor_amount"`
	MarkupFee         int64        `gorm:"column:markup_fee;not null;default:0" json:"markup_fee"`
	ProcessorFee      int64        `gorm:"column:processor_fee;not null;default:0" json:"processor_fee"`
	NetAmount         int64        `gorm:"column:net_amount;not null" json:"net_amount"`
	FeeModel          string       `gorm:"column:fee_model;type:text;not null" json:"fee_model"`
	Currency          string       `gorm:"type:text;not null;default:'usd'" json:"currency"`
	Status            string       `gorm:"type:text;not null" json:"status"`
	Destination       string       `gorm:"type:text" json:"destination,omitempty"`
	ArrivalDate       *time.Time   `gorm:"column:arrival_date" json:"arrival_date,omitempty"`
	CreatedAt         time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt         time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Payout) TableName() string { return "payouts" }

type Repository interface {
	Insert(ctx context.Context, p *Payout) error
	List(ctx context.Context, orgID snowflake.ID) ([]Payout, error)
}

// Processor is the slice of the payments provider this module needs.
// *stripe.Client satisfies it.
type Processor interface {
	RetrieveBalance(ctx context.Context, accountID string) (stripe.Balance, error)
	CreatePayout(ctx context.Context, accountID string, params stripe.PayoutParams) (stripe.Payout, error)
	ListPayouts(ctx context.Context, accountID string, limit int) ([]stripe.Payout, error)
}
