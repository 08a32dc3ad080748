// Package grid implements the Order and OrderStack primitives: the
// per-side ordered collection of grid positions with lifecycle state
// per order. This package knows nothing of the exchange.
package grid

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"gridbot/internal/core"
)

// OrderStatus is the order lifecycle state.
type OrderStatus string

const (
	ToCreate OrderStatus = "to_create"
	Created  OrderStatus = "created"
	OnTraded OrderStatus = "on_traded"
	Traded   OrderStatus = "traded"
	ToCancel OrderStatus = "to_cancel"
	Cancelled OrderStatus = "cancelled"
)

func (s OrderStatus) String() string { return string(s) }

// Order is a single limit order, owned by exactly one OrderStack.
type Order struct {
	LocalID         int64
	ClientOrderID   string
	ExchangeOrderID string

	Pair     string
	Side     core.Side
	OrderType string
	Price    decimal.Decimal
	Amount   decimal.Decimal
	PostOnly bool

	AveragePrice decimal.Decimal
	OrderedAt    time.Time
	ExecutedAt   time.Time

	Status OrderStatus
}

// Cost returns amount * price rounded to pricePrecision, per spec.md §3.
func (o *Order) Cost(pricePrecision int32) decimal.Decimal {
	return o.Amount.Mul(o.Price).Round(pricePrecision)
}

// OppositePrice returns price +/- interval, the sign chosen toward the
// grid center: +interval for a Buy order, -interval for a Sell order.
func (o *Order) OppositePrice(interval decimal.Decimal) decimal.Decimal {
	if o.Side == core.SideBuy {
		return o.Price.Add(interval)
	}
	return o.Price.Sub(interval)
}

// allowedTransitions enumerates the state machine from spec.md §3.
var allowedTransitions = map[OrderStatus]map[OrderStatus]bool{
	ToCreate: {Created: true, Cancelled: true},
	Created:  {ToCancel: true, OnTraded: true},
	ToCancel: {Cancelled: true},
	OnTraded: {Traded: true},
}

// transition enforces the allowed state machine, with force-cancel as
// the one universal escape hatch to Cancelled.
func (o *Order) transition(to OrderStatus, force bool) error {
	if force && to == Cancelled {
		o.Status = Cancelled
		return nil
	}
	if allowedTransitions[o.Status][to] {
		o.Status = to
		return nil
	}
	return fmt.Errorf("order %d: invalid transition %s -> %s", o.LocalID, o.Status, to)
}

// MarkCreated accepts the exchange's create_order acknowledgement.
func (o *Order) MarkCreated(exchangeOrderID string, orderedAt time.Time) error {
	if err := o.transition(Created, false); err != nil {
		return err
	}
	o.ExchangeOrderID = exchangeOrderID
	o.OrderedAt = orderedAt
	return nil
}

// MarkCreateRejected handles InvalidPriceError / ExceedOrderLimitError
// at creation time: the offending order never reaches the exchange, so
// it is force-cancelled locally per spec.md §4.6.
func (o *Order) MarkCreateRejected() {
	_ = o.transition(Cancelled, true)
}

// MarkCancelRequested records a local decision to cancel this order.
func (o *Order) MarkCancelRequested() error {
	return o.transition(ToCancel, false)
}

// MarkOnTraded records a fully-filled report from the exchange.
func (o *Order) MarkOnTraded(averagePrice decimal.Decimal, executedAt time.Time) error {
	if err := o.transition(OnTraded, false); err != nil {
		return err
	}
	o.AveragePrice = averagePrice
	o.ExecutedAt = executedAt
	return nil
}

// MarkTraded commits the OnTraded -> Traded transition at the end of a
// sync, per the two-phase fill commit in spec.md §4.3.
func (o *Order) MarkTraded() error {
	return o.transition(Traded, false)
}

// MarkCancelOK commits a successful exchange cancel for a ToCancel order.
func (o *Order) MarkCancelOK() error {
	return o.transition(Cancelled, false)
}

// MarkForceCancelled transitions to Cancelled from any state, used for
// orders that disappear from the exchange outside our control.
func (o *Order) MarkForceCancelled() {
	o.Status = Cancelled
}

// IsActive reports whether the order is Created (the Glossary's
// definition of "active order").
func (o *Order) IsActive() bool { return o.Status == Created }

// IsExpected reports whether the order counts toward expected_size
// (ToCreate or Created), per spec.md §3 OrderStack invariants.
func (o *Order) IsExpected() bool { return o.Status == ToCreate || o.Status == Created }
