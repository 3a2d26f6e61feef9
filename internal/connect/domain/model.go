package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/connectpay/internal/providers/stripe"
)

// ErrPlatformOnboardingDisabled is returned when the platform account
// itself is not allowed to create connected accounts and requires manual
// intervention with the processor.
var ErrPlatformOnboardingDisabled = errors.New("platform_onboarding_disabled")

// Status is the lifecycle snapshot returned to callers. IsComplete is
// always derived from the two enable flags.
type Status struct {
	ChargesEnabled   bool `json:"charges_enabled"`
	PayoutsEnabled   bool `json:"payouts_enabled"`
	DetailsSubmitted bool `json:"details_submitted"`
	IsComplete       bool `json:"is_complete"`
}

// Processor is the slice of the payments provider this module needs.
// *stripe.Client satisfies it.
type Processor interface {
	CreateAccount(ctx context.Context, params stripe.CreateAccountParams) (stripe.Account, error)
	CreateAccountLink(ctx context.Context, accountID, returnURL, refreshURL string) (stripe.AccountLink, error)
	RetrieveAccount(ctx context.Context, accountID string) (stripe.Account, error)
}
