package gridbot

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"gridbot/internal/ordermanager"
)

const hoursPerYear = 24 * 365

// ExecutionReport is a pure function of (Parameter, OrderCounter,
// duration_hours): a point-in-time summary of realised and unrealised
// grid earnings, with no side effects (spec.md §4.5).
type ExecutionReport struct {
	Matched    int
	ExtraCount int
	ExtraSide  string

	TradedValue decimal.Decimal
	InitValue   decimal.Decimal

	LowestActualEarning  decimal.Decimal
	HighestActualEarning decimal.Decimal

	LowestEarnRate  decimal.Decimal
	HighestEarnRate decimal.Decimal

	LowestYearlyRate  decimal.Decimal
	HighestYearlyRate decimal.Decimal

	AvgHoldPrice    decimal.Decimal
	ExtraHoldAmount decimal.Decimal
	ExtraHoldCost   decimal.Decimal
}

// NewExecutionReport computes the report for the run-total fill counts
// held in counter, over durationHours of elapsed run time.
func NewExecutionReport(p *Parameter, counter *ordermanager.OrderCounter, durationHours decimal.Decimal) *ExecutionReport {
	buyCount := counter.TotalBuy
	sellCount := counter.TotalSell

	matched := buyCount
	if sellCount < matched {
		matched = sellCount
	}
	extraCount := buyCount - sellCount
	if extraCount < 0 {
		extraCount = -extraCount
	}

	matchedDec := decimal.NewFromInt(int64(matched))
	tradedValue := p.UnitAmount.Mul(p.InitPrice).Mul(matchedDec)

	lowestActualEarning := p.LowestEarnRatePerGrid.Mul(tradedValue)
	highestActualEarning := p.HighestEarnRatePerGrid.Mul(tradedValue)

	initValue := p.InitQuote.Add(p.InitBase.Mul(p.InitPrice))

	var lowestRate, highestRate decimal.Decimal
	if !initValue.IsZero() {
		lowestRate = lowestActualEarning.Div(initValue)
		highestRate = highestActualEarning.Div(initValue)
	}

	yearlyFactor := decimal.Zero
	if !durationHours.IsZero() {
		yearlyFactor = decimal.NewFromInt(hoursPerYear).Div(durationHours)
	}
	lowestYearlyRate := lowestRate.Mul(yearlyFactor)
	highestYearlyRate := highestRate.Mul(yearlyFactor)

	extraSide := "equal"
	sign := decimal.NewFromInt(-1)
	switch {
	case sellCount > buyCount:
		extraSide = "sell"
		sign = decimal.NewFromInt(1)
	case buyCount > sellCount:
		extraSide = "buy"
		sign = decimal.NewFromInt(-1)
	}

	extraCountDec := decimal.NewFromInt(int64(extraCount))
	avgHoldPrice := p.InitPrice.Add(sign.Mul(extraCountDec).Mul(p.PriceInterval).Div(decimal.NewFromInt(2)))
	extraHoldAmount := p.UnitAmount.Mul(extraCountDec)
	extraHoldCost := avgHoldPrice.Mul(extraHoldAmount)

	return &ExecutionReport{
		Matched:              matched,
		ExtraCount:           extraCount,
		ExtraSide:            extraSide,
		TradedValue:          tradedValue,
		InitValue:            initValue,
		LowestActualEarning:  lowestActualEarning,
		HighestActualEarning: highestActualEarning,
		LowestEarnRate:       lowestRate,
		HighestEarnRate:      highestRate,
		LowestYearlyRate:     lowestYearlyRate,
		HighestYearlyRate:    highestYearlyRate,
		AvgHoldPrice:         avgHoldPrice,
		ExtraHoldAmount:      extraHoldAmount,
		ExtraHoldCost:        extraHoldCost,
	}
}

// String renders the report as the text block emitted to the Notifier.
func (r *ExecutionReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "matched=%d extra=%d(%s)\n", r.Matched, r.ExtraCount, r.ExtraSide)
	fmt.Fprintf(&b, "traded_value=%s init_value=%s\n", r.TradedValue, r.InitValue)
	fmt.Fprintf(&b, "earning: lowest=%s highest=%s\n", r.LowestActualEarning, r.HighestActualEarning)
	fmt.Fprintf(&b, "rate: lowest=%s highest=%s\n", r.LowestEarnRate, r.HighestEarnRate)
	fmt.Fprintf(&b, "yearly_rate: lowest=%s highest=%s\n", r.LowestYearlyRate, r.HighestYearlyRate)
	fmt.Fprintf(&b, "extra_hold: avg_price=%s amount=%s cost=%s\n", r.AvgHoldPrice, r.ExtraHoldAmount, r.ExtraHoldCost)
	return b.String()
}
