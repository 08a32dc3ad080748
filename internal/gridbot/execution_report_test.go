package gridbot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridbot/internal/ordermanager"
)

func TestNewExecutionReport_MatchedFills(t *testing.T) {
	p, err := CalcGridParamsByInterval(
		dec("10"), dec("700"), dec("100"), dec("10"), 10, dec("-0.0002"), 2, 4,
	)
	require.NoError(t, err)

	counter := &ordermanager.OrderCounter{TotalBuy: 3, TotalSell: 2}
	report := NewExecutionReport(p, counter, dec("24"))

	assert.Equal(t, 2, report.Matched)
	assert.Equal(t, 1, report.ExtraCount)
	assert.Equal(t, "buy", report.ExtraSide)
	assert.True(t, report.TradedValue.Equal(dec("400"))) // unit_amount(2) * init_price(100) * matched(2)
	assert.NotEmpty(t, report.String())
}

func TestNewExecutionReport_Balanced(t *testing.T) {
	p, err := CalcGridParamsByInterval(
		dec("10"), dec("700"), dec("100"), dec("10"), 10, dec("-0.0002"), 2, 4,
	)
	require.NoError(t, err)

	counter := &ordermanager.OrderCounter{TotalBuy: 2, TotalSell: 2}
	report := NewExecutionReport(p, counter, dec("24"))

	assert.Equal(t, 0, report.ExtraCount)
	assert.Equal(t, "equal", report.ExtraSide)
	assert.True(t, report.ExtraHoldAmount.IsZero())
}
