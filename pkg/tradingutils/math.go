package tradingutils

import (
	"github.com/shopspring/decimal"
)

// RoundPrice rounds a price to the specified decimals
func RoundPrice(price decimal.Decimal, priceDecimals int) decimal.Decimal {
	return price.Round(int32(priceDecimals))
}

// RoundQuantity rounds a quantity to the specified decimals
func RoundQuantity(qty decimal.Decimal, qtyDecimals int) decimal.Decimal {
	return qty.Round(int32(qtyDecimals))
}

// FindNearestGridPrice aligns a price to the nearest grid level based on an anchor and interval
func FindNearestGridPrice(currentPrice, anchorPrice, interval decimal.Decimal) decimal.Decimal {
	if interval.IsZero() {
		return currentPrice
	}
	offset := currentPrice.Sub(anchorPrice)
	intervals := offset.Div(interval).Round(0)
	return anchorPrice.Add(intervals.Mul(interval))
}
