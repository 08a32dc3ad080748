package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"gridbot/internal/core"
)

// mockOrder is the in-memory record behind a MockAdapter order id.
type mockOrder struct {
	id        string
	side      core.Side
	price     decimal.Decimal
	amount    decimal.Decimal
	cancelled bool
	filled    bool
}

// MockAdapter is a deterministic, in-memory core.Adapter for tests and
// local runs without exchange credentials. Orders never fill on their
// own; call FillOrder to simulate exchange-side matches.
type MockAdapter struct {
	mu     sync.Mutex
	orders map[string]*mockOrder

	pair           string
	fee            decimal.Decimal
	maxOrderCount  int
	priceDecimals  int
	amountDecimals int
	ticker         core.Ticker
	assets         core.Assets
}

// NewMockAdapter builds a mock seeded with an initial ticker and asset
// balance.
func NewMockAdapter(pair string, fee decimal.Decimal, maxOrderCount, priceDecimals, amountDecimals int, ticker core.Ticker, assets core.Assets) *MockAdapter {
	return &MockAdapter{
		orders:         make(map[string]*mockOrder),
		pair:           pair,
		fee:            fee,
		maxOrderCount:  maxOrderCount,
		priceDecimals:  priceDecimals,
		amountDecimals: amountDecimals,
		ticker:         ticker,
		assets:         assets,
	}
}

func (m *MockAdapter) Name() string                { return "mock" }
func (m *MockAdapter) Pair() string                { return m.pair }
func (m *MockAdapter) Fee() decimal.Decimal        { return m.fee }
func (m *MockAdapter) MaxOrderCount() int          { return m.maxOrderCount }
func (m *MockAdapter) PriceDecimals() int          { return m.priceDecimals }
func (m *MockAdapter) AmountDecimals() int         { return m.amountDecimals }
func (m *MockAdapter) IsKnownException(error) bool { return true }

// SetTicker updates the price the next GetLatestPrices call returns,
// the hook tests use to drive sync_and_adjust scenarios.
func (m *MockAdapter) SetTicker(t core.Ticker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ticker = t
}

func (m *MockAdapter) GetLatestPrices(ctx context.Context) (core.Ticker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ticker, nil
}

func (m *MockAdapter) GetAssets(ctx context.Context) (core.Assets, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.assets, nil
}

func (m *MockAdapter) CreateOrder(ctx context.Context, req core.OrderRequest) (core.OrderAck, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	open := 0
	for _, o := range m.orders {
		if !o.cancelled && !o.filled {
			open++
		}
	}
	if open >= m.maxOrderCount {
		return core.OrderAck{}, fmt.Errorf("exceed order limit")
	}

	id := uuid.NewString()
	m.orders[id] = &mockOrder{id: id, side: req.Side, price: req.Price, amount: req.Amount}
	return core.OrderAck{ExchangeOrderID: id, OrderedAt: time.Now()}, nil
}

func (m *MockAdapter) CancelOrders(ctx context.Context, exchangeOrderIDs []string) ([]core.CancelResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	results := make([]core.CancelResult, 0, len(exchangeOrderIDs))
	for _, id := range exchangeOrderIDs {
		o, ok := m.orders[id]
		if !ok {
			results = append(results, core.CancelResult{ExchangeOrderID: id, Cancelled: false})
			continue
		}
		o.cancelled = true
		results = append(results, core.CancelResult{ExchangeOrderID: id, Cancelled: true})
	}
	return results, nil
}

func (m *MockAdapter) GetOrdersData(ctx context.Context, exchangeOrderIDs []string) ([]core.OrderStatusRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	records := make([]core.OrderStatusRecord, 0, len(exchangeOrderIDs))
	for _, id := range exchangeOrderIDs {
		o, ok := m.orders[id]
		if !ok {
			continue
		}
		records = append(records, core.OrderStatusRecord{
			ExchangeOrderID: id,
			FullyFilled:     o.filled,
			Cancelled:       o.cancelled,
			AveragePrice:    o.price,
			ExecutedAt:      time.Now(),
		})
	}
	return records, nil
}

// FillOrder marks an order fully filled, visible on the next
// GetOrdersData call.
func (m *MockAdapter) FillOrder(exchangeOrderID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[exchangeOrderID]; ok {
		o.filled = true
	}
}
