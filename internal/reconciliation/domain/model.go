package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/connectpay/internal/providers/stripe"
)

// ErrSweepInProgress is returned when another sweep for the same
// organization holds the per-organization lock.
var ErrSweepInProgress = errors.New("sweep_in_progress")

// Processor is the slice of the payments provider this module needs.
// *stripe.Client satisfies it.
type Processor interface {
	CreateTransfer(ctx context.Context, params stripe.TransferParams) (stripe.Transfer, error)
}
