// Package fees derives platform and instant-payout fees.
//
// Amounts are dollars rounded to cents at every step; the processor API
// works in integer cents, converted at the boundary with ToCents/FromCents.
package fees

import (
	"errors"
	"math"
	"strings"
)

// ErrBelowMinimum is returned when an amount is too small to yield a
// positive payout after fees.
var ErrBelowMinimum = errors.New("below_minimum")

// Hard floors for the payment surface.
const (
	MinimumPaymentAmount = 0.50
	MinimumNetPayout     = 0.01
)

// minimumInstantFees lists the processor's minimum instant-payout fee per
// currency.
var minimumInstantFees = map[string]float64{
	"usd": 0.50,
	"cad": 0.60,
	"sgd": 0.50,
	"gbp": 0.40,
	"aud": 0.50,
	"eur": 0.40,
	"czk": 10.00,
	"dkk": 5.00,
	"huf": 200.00,
	"nok": 5.00,
	"pln": 2.00,
	"ron": 2.00,
	"sek": 5.00,
	"nzd": 0.50,
	"myr": 2.00,
	"aed": 2.00,
}

// CurrencyMinimumFee returns the processor's minimum instant-payout fee for
// a currency, defaulting to the USD minimum for unknown currencies.
func CurrencyMinimumFee(currency string) float64 {
	if fee, ok := minimumInstantFees[strings.ToLower(strings.TrimSpace(currency))]; ok {
		return fee
	}
	return minimumInstantFees["usd"]
}

// Breakdown is the fee split applied to a standard payment.
type Breakdown struct {
	FeeAmount     float64 `json:"fee_amount"`
	PayoutAmount  float64 `json:"payout_amount"`
	FeePercentage float64 `json:"fee_percentage"`
	FeeFixed      float64 `json:"fee_fixed"`
}

// PlatformFee computes the platform's cut of a payment:
// fee = round2(amount*pct/100 + fixed), payout = amount - fee.
func PlatformFee(amount, pct, fixed float64) (Breakdown, error) {
	fee := Round2(amount*pct/100 + fixed)
	payout := Round2(amount - fee)
	if payout < 0 {
		return Breakdown{}, ErrBelowMinimum
	}
	return Breakdown{
		FeeAmount:     fee,
		PayoutAmount:  payout,
		FeePercentage: pct,
		FeeFixed:      fixed,
	}, nil
}

// InstantBreakdown is the fee split for a single-layer instant payout.
type InstantBreakdown struct {
	FeeAmount     float64 `json:"fee_amount"`
	PayoutAmount  float64 `json:"payout_amount"`
	FeePercentage float64 `json:"fee_percentage"`
	MinimumFee    float64 `json:"minimum_fee"`
}

// InstantPayoutFee computes the processor's instant-payout fee:
// fee = max(amount*pct/100, per-currency minimum).
func InstantPayoutFee(amount, pct float64, currency string) InstantBreakdown {
	minimum := CurrencyMinimumFee(currency)
	fee := Round2(math.Max(amount*pct/100, minimum))
	return InstantBreakdown{
		FeeAmount:     fee,
		PayoutAmount:  Round2(amount - fee),
		FeePercentage: pct,
		MinimumFee:    minimum,
	}
}

// MarkupBreakdown is the fee split for the two-layer instant payout model.
// The platform markup is taken off the requested amount first; the processor
// fee is then computed on the reduced amount, because that is the only
// amount the processor ever sees.
type MarkupBreakdown struct {
	MarkupFee     float64 `json:"markup_fee"`
	ReducedAmount float64 `json:"reduced_amount"`
	ProcessorFee  float64 `json:"processor_fee"`
	PayoutAmount  float64 `json:"payout_amount"`
}

// MarkupInstantPayoutFee layers a platform markup on top of the processor's
// instant-payout fee.
func MarkupInstantPayoutFee(amount, markupPct, markupFixed, basePct float64, currency string) MarkupBreakdown {
	markupFee := Round2(amount*markupPct/100 + markupFixed)
	reduced := Round2(amount - markupFee)
	processor := InstantPayoutFee(reduced, basePct, currency)
	return MarkupBreakdown{
		MarkupFee:     markupFee,
		ReducedAmount: reduced,
		ProcessorFee:  processor.FeeAmount,
		PayoutAmount:  Round2(reduced - processor.FeeAmount),
	}
}

// MinimumViableInstantAmount is the smallest single-layer payout amount that
// still nets at least one cent.
func MinimumViableInstantAmount(basePct float64, currency string) float64 {
	estimate := Round2(CurrencyMinimumFee(currency) + MinimumNetPayout)
	return scanMinimum(estimate, func(amount float64) float64 {
		return InstantPayoutFee(amount, basePct, currency).PayoutAmount
	})
}

// MinimumViableMarkupAmount is the smallest two-layer payout amount that
// still nets at least one cent.
func MinimumViableMarkupAmount(basePct, markupPct, markupFixed float64, currency string) float64 {
	// Closed-form estimate assumes the processor minimum fee dominates at
	// this scale; the scan below corrects for cent rounding either way.
	denom := 1 - markupPct/100
	if denom <= 0 {
		return 0
	}
	estimate := Round2((MinimumNetPayout + markupFixed + CurrencyMinimumFee(currency)) / denom)
	return scanMinimum(estimate, func(amount float64) float64 {
		return MarkupInstantPayoutFee(amount, markupPct, markupFixed, basePct, currency).PayoutAmount
	})
}

// scanMinimum walks cent by cent around the estimate to find the exact
// smallest amount whose payout reaches the minimum net payout.
func scanMinimum(estimate float64, payout func(amount float64) float64) float64 {
	amount := Round2(estimate - 0.05)
	if amount < 0.01 {
		amount = 0.01
	}
	for {
		if payout(amount) >= MinimumNetPayout {
			return amount
		}
		amount = Round2(amount + 0.01)
	}
}

// Round2 rounds to cents.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ToCents converts a dollar amount to integer cents.
func ToCents(v float64) int64 {
	return int64(math.Round(v * 100))
}

// FromCents converts integer cents to a dollar amount.
func FromCents(v int64) float64 {
	return float64(v) / 100
}
