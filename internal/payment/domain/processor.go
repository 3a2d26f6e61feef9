package domain

import (
	"context"

	"github.com/smallbiznis/connectpay/internal/providers/stripe"
)

// Processor is the slice of the payments provider this module needs.
// *stripe.Client satisfies it.
type Processor interface {
	CreatePaymentIntent(ctx context.Context, params stripe.PaymentIntentParams) (stripe.PaymentIntent, error)
}
