package gridbot

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// TestCalcGridParamsByInterval_S1 reproduces scenario S1: parameter
// sizing with exactly enough quote to cover the ideal unit amount.
func TestCalcGridParamsByInterval_S1(t *testing.T) {
	p, err := CalcGridParamsByInterval(
		dec("10"), dec("700"), dec("100"), dec("10"), 10, dec("-0.0002"), 2, 4,
	)
	require.NoError(t, err)

	assert.True(t, p.UnitAmount.Equal(dec("2")), "unit_amount = %s", p.UnitAmount)
	assert.True(t, p.UnusedBase.IsZero())
	assert.True(t, p.UnusedQuote.IsZero())
	assert.True(t, p.LowestPrice.Equal(dec("50")))
	assert.True(t, p.HighestPrice.Equal(dec("150")))

	assert.True(t, p.HighestEarnRatePerGrid.Sub(dec("0.2004")).Abs().LessThan(dec("0.00001")),
		"highest_earn_rate_per_grid = %s", p.HighestEarnRatePerGrid)
	assert.True(t, p.LowestEarnRatePerGrid.Sub(dec("0.07183")).Abs().LessThan(dec("0.0001")),
		"lowest_earn_rate_per_grid = %s", p.LowestEarnRatePerGrid)
}

func TestCalcGridParamsByInterval_InsufficientQuote(t *testing.T) {
	p, err := CalcGridParamsByInterval(
		dec("10"), dec("300"), dec("100"), dec("10"), 10, dec("-0.0002"), 2, 4,
	)
	require.NoError(t, err)

	assert.True(t, p.UnusedQuote.IsZero())
	assert.True(t, p.UnusedBase.GreaterThan(decimal.Zero))
	assert.True(t, p.UnitAmount.LessThan(dec("2")))
}

func TestCalcGridParamsBySupport_MatchesInterval(t *testing.T) {
	byInterval, err := CalcGridParamsByInterval(
		dec("10"), dec("700"), dec("100"), dec("10"), 10, dec("-0.0002"), 2, 4,
	)
	require.NoError(t, err)

	bySupport, err := CalcGridParamsBySupport(
		dec("10"), dec("700"), dec("100"), dec("50"), 10, dec("-0.0002"), 2, 4,
	)
	require.NoError(t, err)

	assert.True(t, byInterval.UnitAmount.Equal(bySupport.UnitAmount))
	assert.True(t, byInterval.LowestPrice.Equal(bySupport.LowestPrice))
}

func TestCalcGridParamsBySupport_RejectsSupportAboveInitPrice(t *testing.T) {
	_, err := CalcGridParamsBySupport(
		dec("10"), dec("700"), dec("100"), dec("150"), 10, dec("-0.0002"), 2, 4,
	)
	assert.Error(t, err)
}
