package fees_test

import (
	"testing"

	"github.com/smallbiznis/connectpay/internal/fees"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlatformFeeReferenceValues(t *testing.T) {
	b, err := fees.PlatformFee(10.00, 3.5, 0.30)
	require.NoError(t, err)
	assert.Equal(t, 0.65, b.FeeAmount)
	assert.Equal(t, 9.35, b.PayoutAmount)
}

func TestPlatformFeeRejectsNegativePayout(t *testing.T) {
	_, err := fees.PlatformFee(0.10, 3.5, 0.30)
	assert.ErrorIs(t, err, fees.ErrBelowMinimum)
}

func TestPlatformFeeProperties(t *testing.T) {
	amounts := []float64{0.50, 1.00, 9.99, 10.00, 25.37, 100.00, 999.99}
	percentages := []float64{0, 1.0, 2.9, 3.5, 10.0, 50.0}
	fixeds := []float64{0, 0.25, 0.30, 1.00}

	for _, amount := range amounts {
		for _, pct := range percentages {
			for _, fixed := range fixeds {
				b, err := fees.PlatformFee(amount, pct, fixed)
				if err != nil {
					continue
				}
				expected := fees.Round2(amount*pct/100 + fixed)
				assert.Equal(t, expected, b.FeeAmount, "amount=%v pct=%v fixed=%v", amount, pct, fixed)
				assert.GreaterOrEqual(t, b.PayoutAmount, 0.0)
				assert.Equal(t, fees.Round2(amount-b.FeeAmount), b.PayoutAmount)
			}
		}
	}
}

func TestInstantPayoutFeeUsesMinimum(t *testing.T) {
	// 1.5% of $10 is $0.15, under the USD minimum of $0.50.
	b := fees.InstantPayoutFee(10.00, 1.5, "usd")
	assert.Equal(t, 0.50, b.FeeAmount)
	assert.Equal(t, 9.50, b.PayoutAmount)

	// 1.5% of $100 is $1.50, above the minimum.
	b = fees.InstantPayoutFee(100.00, 1.5, "usd")
	assert.Equal(t, 1.50, b.FeeAmount)
	assert.Equal(t, 98.50, b.PayoutAmount)
}

func TestInstantPayoutFeePerCurrencyMinimums(t *testing.T) {
	assert.Equal(t, 0.60, fees.CurrencyMinimumFee("cad"))
	assert.Equal(t, 0.40, fees.CurrencyMinimumFee("GBP"))
	assert.Equal(t, 200.00, fees.CurrencyMinimumFee("huf"))
	// Unknown currencies fall back to the USD minimum.
	assert.Equal(t, 0.50, fees.CurrencyMinimumFee("xyz"))
}

func TestMarkupInstantPayoutFeeReferenceValues(t *testing.T) {
	b := fees.MarkupInstantPayoutFee(20.00, 1.0, 0.25, 1.5, "usd")
	assert.Equal(t, 0.45, b.MarkupFee)
	assert.Equal(t, 19.55, b.ReducedAmount)
	assert.Equal(t, 0.50, b.ProcessorFee)
	assert.Equal(t, 19.05, b.PayoutAmount)
}

func TestMinimumViableInstantAmount(t *testing.T) {
	minimum := fees.MinimumViableInstantAmount(1.5, "usd")
	// The smallest amount that still nets a cent after the $0.50 minimum fee.
	assert.Equal(t, 0.51, minimum)

	b := fees.InstantPayoutFee(minimum, 1.5, "usd")
	assert.GreaterOrEqual(t, b.PayoutAmount, fees.MinimumNetPayout)

	below := fees.InstantPayoutFee(fees.Round2(minimum-0.01), 1.5, "usd")
	assert.Less(t, below.PayoutAmount, fees.MinimumNetPayout)
}

func TestMinimumViableMarkupAmount(t *testing.T) {
	minimum := fees.MinimumViableMarkupAmount(1.5, 1.0, 0.25, "usd")

	b := fees.MarkupInstantPayoutFee(minimum, 1.0, 0.25, 1.5, "usd")
	assert.GreaterOrEqual(t, b.PayoutAmount, fees.MinimumNetPayout)

	below := fees.MarkupInstantPayoutFee(fees.Round2(minimum-0.01), 1.0, 0.25, 1.5, "usd")
	assert.Less(t, below.PayoutAmount, fees.MinimumNetPayout)
}

func TestCentsConversions(t *testing.T) {
	assert.Equal(t, int64(1005), fees.ToCents(10.05))
	assert.Equal(t, int64(65), fees.ToCents(0.65))
	assert.Equal(t, 10.05, fees.FromCents(1005))
}
