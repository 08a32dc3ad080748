// Package core defines the interfaces the grid engine depends on and
// never implements directly: the Exchange Adapter, the Notifier, the
// State Store, and the logger. Domain types (Order, OrderStack,
// OrderManager, GridBot, Parameter) live in their own packages and
// depend only on these interfaces, never on a concrete adapter.
package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Side identifies which side of the grid an order belongs to.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Ticker is a market snapshot as returned by GetLatestPrices.
type Ticker struct {
	Last     decimal.Decimal
	BestBid  decimal.Decimal
	BestAsk  decimal.Decimal
	Spread   decimal.Decimal
	MidPrice decimal.Decimal
}

// Assets is the free balance of the pair's two legs.
type Assets struct {
	BaseAmount  decimal.Decimal
	QuoteAmount decimal.Decimal
}

// OrderRequest is what the core hands to the adapter to place an order.
// Price and Amount arrive already rounded to the configured precision;
// the adapter is responsible for any exchange-side tick/lot snapping.
type OrderRequest struct {
	ClientOrderID string
	Pair          string
	Side          Side
	Price         decimal.Decimal
	Amount        decimal.Decimal
	PostOnly      bool
}

// OrderAck is the adapter's response to a successful create_order call.
type OrderAck struct {
	ExchangeOrderID string
	OrderedAt       time.Time
}

// CancelResult reports the outcome of a single id in a cancel batch.
type CancelResult struct {
	ExchangeOrderID string
	Cancelled       bool
}

// OrderStatusRecord is one entry of a get_orders_data batch response.
type OrderStatusRecord struct {
	ExchangeOrderID string
	FullyFilled     bool
	Cancelled       bool
	AveragePrice    decimal.Decimal
	ExecutedAt      time.Time
}

// Adapter is the capability set the grid engine requires of an
// exchange, per the Exchange Adapter external interface. It never
// performs price discovery or matching itself; it is a thin transport.
type Adapter interface {
	Name() string
	Pair() string
	Fee() decimal.Decimal
	MaxOrderCount() int
	PriceDecimals() int
	AmountDecimals() int

	GetLatestPrices(ctx context.Context) (Ticker, error)
	GetAssets(ctx context.Context) (Assets, error)

	CreateOrder(ctx context.Context, req OrderRequest) (OrderAck, error)
	CancelOrders(ctx context.Context, exchangeOrderIDs []string) ([]CancelResult, error)
	GetOrdersData(ctx context.Context, exchangeOrderIDs []string) ([]OrderStatusRecord, error)

	// IsKnownException classifies an error returned by any of the
	// calls above as recoverable (logged, sync proceeds) versus
	// unknown (surfaced as an error notification).
	IsKnownException(err error) bool
}

// Notifier is a fire-and-forget sink for info/error/trade messages.
// Implementations must never let a delivery failure propagate back
// into the sync loop.
type Notifier interface {
	Info(ctx context.Context, msg string, fields map[string]interface{})
	Error(ctx context.Context, msg string, fields map[string]interface{})
	Trade(ctx context.Context, side Side, msg string, fields map[string]interface{})
}

// RunnerRecord is the document persisted once per GridBot run.
type RunnerRecord struct {
	BotID      string
	Pair       string
	InitPrice  decimal.Decimal
	InitBase   decimal.Decimal
	InitQuote  decimal.Decimal
	GridNum    int
	StartedAt  time.Time
	Status     string
}

// OrderRecord is the per-order write-through document.
type OrderRecord struct {
	LocalID         int64
	ExchangeOrderID string
	Side            Side
	Price           decimal.Decimal
	Amount          decimal.Decimal
	Status          string
}

// StateStore is a one-way, write-through persistence sink. Read-back
// is intentionally not part of this contract; the core never
// recovers state from it.
type StateStore interface {
	CreateAndUseRunner(ctx context.Context, runner RunnerRecord) (runnerID string, err error)
	UpdateRunner(ctx context.Context, runnerID string, fields map[string]interface{}) error
	CreateOrder(ctx context.Context, runnerID string, order OrderRecord) error
	UpdateOrder(ctx context.Context, runnerID string, localID int64, fields map[string]interface{}) error
	DeleteOrder(ctx context.Context, runnerID string, localID int64) error
}

// ILogger is the structured logging interface every component depends
// on, never on a concrete zap/otel type.
type ILogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) ILogger
	WithFields(fields map[string]interface{}) ILogger
}
