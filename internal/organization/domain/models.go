// Package domain contains persistence models for payee organizations.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Product contexts select which instant-payout fee model applies.
const (
	ProductContextM10DJ  = "m10dj"
	ProductContextTipJar = "tipjar"
	ProductContextDJDash = "djdash"
)

// Organization is a payee onboarded onto the processor's connected-account
// mechanism. The connect flags mirror the processor and are only written by
// the lifecycle refresh; OnboardingComplete is always recomputed from the
// two enable flags, never treated as independent truth.
type Organization struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	Name           string       `gorm:"type:text;not null" json:"name"`
	Slug           string       `gorm:"type:text;not null;uniqueIndex:ux_organizations_slug" json:"slug"`
	ContactEmail   string       `gorm:"type:text;column:contact_email" json:"contact_email"`
	ProductContext string       `gorm:"type:text;not null;default:'m10dj'" json:"product_context"`
	Currency       string       `gorm:"type:text;not null;default:'usd'" json:"currency"`

	ConnectAccountID   string `gorm:"type:text;column:connect_account_id;index" json:"connect_account_id"`
	ChargesEnabled     bool   `gorm:"column:charges_enabled;not null;default:false" json:"charges_enabled"`
	PayoutsEnabled     bool   `gorm:"column:payouts_enabled;not null;default:false" json:"payouts_enabled"`
	DetailsSubmitted   bool   `gorm:"column:details_submitted;not null;default:false" json:"details_submitted"`
	OnboardingComplete bool   `gorm:"column:onboarding_complete;not null;default:false" json:"onboarding_complete"`

	PlatformFeePercentage      float64 `gorm:"column:platform_fee_percentage" json:"platform_fee_percentage"`
	PlatformFeeFixed           float64 `gorm:"column:platform_fee_fixed" json:"platform_fee_fixed"`
	InstantPayoutEnabled       bool    `gorm:"column:instant_payout_enabled;not null;default:false" json:"instant_payout_enabled"`
	InstantPayoutFeePercentage float64 `gorm:"column:instant_payout_fee_percentage" json:"instant_payout_fee_percentage"`
	MarkupFeePercentage        float64 `gorm:"column:markup_fee_percentage" json:"markup_fee_percentage"`
	MarkupFeeFixed             float64 `gorm:"column:markup_fee_fixed" json:"markup_fee_fixed"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Organization) TableName() string { return "organizations" }

// IsComplete derives payout readiness from the two enable flags.
func (o Organization) IsComplete() bool {
	return o.ChargesEnabled && o.PayoutsEnabled
}

// UsesMarkupModel reports whether the organization's product line carries
// the two-layer instant-payout fee model.
func (o Organization) UsesMarkupModel() bool {
	return o.ProductContext == ProductContextTipJar
}
