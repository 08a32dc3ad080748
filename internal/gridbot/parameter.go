// Package gridbot implements the grid controller: Parameter sizing, the
// GridBot reconciliation loop (init_and_start / sync_and_adjust /
// cancel_and_stop), and the ExecutionReport.
package gridbot

import (
	"fmt"

	"github.com/shopspring/decimal"

	"gridbot/pkg/tradingutils"
)

// Parameter is the fully-sized grid: unit amount, price interval, and
// the derived range/earn-rate figures used by ExecutionReport. It is
// produced at the start of each run by one of the two constructors below.
type Parameter struct {
	InitBase  decimal.Decimal
	InitQuote decimal.Decimal
	InitPrice decimal.Decimal

	PriceInterval decimal.Decimal
	GridNum       int
	Fee           decimal.Decimal

	UnitAmount  decimal.Decimal
	UnusedBase  decimal.Decimal
	UnusedQuote decimal.Decimal

	LowestPrice  decimal.Decimal
	HighestPrice decimal.Decimal

	HighestEarnRatePerGrid decimal.Decimal
	LowestEarnRatePerGrid  decimal.Decimal

	PricePrecision  int32
	AmountPrecision int32
}

// CalcGridParamsBySupport derives price_interval from a support line
// and delegates to CalcGridParamsByInterval (spec.md §4.1).
func CalcGridParamsBySupport(initBase, initQuote, initPrice, support decimal.Decimal, gridNum int, fee decimal.Decimal, pricePrecision, amountPrecision int32) (*Parameter, error) {
	if support.GreaterThanOrEqual(initPrice) {
		return nil, fmt.Errorf("grid parameter: support %s must be below init_price %s", support, initPrice)
	}
	half := gridNum / 2
	if half <= 0 {
		return nil, fmt.Errorf("grid parameter: grid_num %d too small", gridNum)
	}
	priceInterval := initPrice.Sub(support).Div(decimal.NewFromInt(int64(half)))
	return CalcGridParamsByInterval(initBase, initQuote, initPrice, priceInterval, gridNum, fee, pricePrecision, amountPrecision)
}

// CalcGridParamsByInterval sizes unit_amount against init_base/init_quote
// for a fixed price_interval (spec.md §4.1).
func CalcGridParamsByInterval(initBase, initQuote, initPrice, priceInterval decimal.Decimal, gridNum int, fee decimal.Decimal, pricePrecision, amountPrecision int32) (*Parameter, error) {
	half := gridNum / 2
	if half <= 0 {
		return nil, fmt.Errorf("grid parameter: grid_num %d too small", gridNum)
	}
	if priceInterval.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("grid parameter: price_interval must be positive, got %s", priceInterval)
	}
	halfDec := decimal.NewFromInt(int64(half))

	idealUnitAmount := tradingutils.RoundQuantity(initBase.Div(halfDec), int(amountPrecision))
	totalBuyPrice := halfDec.Mul(
		initPrice.Sub(decimal.NewFromInt(int64(1 + half)).Mul(priceInterval).Div(decimal.NewFromInt(2))),
	)
	quoteNeeded := totalBuyPrice.Mul(idealUnitAmount)

	var unitAmount, unusedBase, unusedQuote decimal.Decimal
	if quoteNeeded.GreaterThan(initQuote) {
		unitAmount = tradingutils.RoundQuantity(initQuote.Div(totalBuyPrice), int(amountPrecision))
		unusedBase = tradingutils.RoundQuantity(initBase.Sub(unitAmount.Mul(halfDec)), int(amountPrecision))
		unusedQuote = decimal.Zero
	} else {
		unitAmount = idealUnitAmount
		unusedQuote = tradingutils.RoundPrice(initQuote.Sub(quoteNeeded), int(pricePrecision))
		unusedBase = decimal.Zero
	}

	lowestPrice := tradingutils.RoundPrice(initPrice.Sub(halfDec.Mul(priceInterval)), int(pricePrecision))
	highestPrice := tradingutils.RoundPrice(initPrice.Add(halfDec.Mul(priceInterval)), int(pricePrecision))

	twiceFee := fee.Mul(decimal.NewFromInt(2))
	highestEarnRatePerGrid := priceInterval.Div(lowestPrice).Sub(twiceFee)
	lowestEarnRatePerGrid := priceInterval.Div(highestPrice.Sub(priceInterval)).Sub(twiceFee)

	return &Parameter{
		InitBase:               initBase,
		InitQuote:              initQuote,
		InitPrice:              initPrice,
		PriceInterval:          tradingutils.RoundPrice(priceInterval, int(pricePrecision)),
		GridNum:                gridNum,
		Fee:                    fee,
		UnitAmount:             unitAmount,
		UnusedBase:             unusedBase,
		UnusedQuote:            unusedQuote,
		LowestPrice:            lowestPrice,
		HighestPrice:           highestPrice,
		HighestEarnRatePerGrid: highestEarnRatePerGrid,
		LowestEarnRatePerGrid:  lowestEarnRatePerGrid,
		PricePrecision:         pricePrecision,
		AmountPrecision:        amountPrecision,
	}, nil
}

// InRange reports whether price lies within [LowestPrice, HighestPrice]
// (spec.md §4.4 step 5).
func (p *Parameter) InRange(price decimal.Decimal) bool {
	return !price.LessThan(p.LowestPrice) && !price.GreaterThan(p.HighestPrice)
}
