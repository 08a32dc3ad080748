package ordermanager

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridbot/internal/core"
	"gridbot/internal/grid"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{})                     {}
func (nopLogger) Info(string, ...interface{})                      {}
func (nopLogger) Warn(string, ...interface{})                      {}
func (nopLogger) Error(string, ...interface{})                     {}
func (nopLogger) Fatal(string, ...interface{})                     {}
func (l nopLogger) WithField(string, interface{}) core.ILogger     { return l }
func (l nopLogger) WithFields(map[string]interface{}) core.ILogger { return l }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestManager(t *testing.T, orderLimit int) *OrderManager {
	t.Helper()
	var seq int64
	nextID := func() int64 { seq++; return seq }

	cfg := grid.StackConfig{
		Pair:            "BTCUSDT",
		PriceInterval:   dec("10"),
		UnitAmount:      dec("2"),
		OrderLimit:      orderLimit,
		PricePrecision:  2,
		AmountPrecision: 4,
	}
	m := New(cfg, cfg, nextID, nopLogger{})
	m.InitStacks(dec("100"))
	return m
}

func markAllCreated(orders []*grid.Order) {
	for _, o := range orders {
		_ = o.MarkCreated("ex-"+o.Price.String()+string(o.Side), o.OrderedAt)
	}
}

func TestOrderManager_RefillAtOppositePosition_SellPriority(t *testing.T) {
	m := newTestManager(t, 4)
	markAllCreated(m.buyStack.All())
	markAllCreated(m.sellStack.All())

	buyBest := m.buyStack.BestOrder(true) // price 90
	require.NoError(t, buyBest.MarkOnTraded(dec("90"), buyBest.ExecutedAt))

	m.RefillOrdersAtOppositePosition()

	found := false
	for _, o := range m.sellStack.All() {
		if o.Price.Equal(dec("100")) {
			found = true
		}
	}
	assert.True(t, found, "expected sell side paired at 100")
}

func TestOrderManager_BalanceStacks(t *testing.T) {
	m := newTestManager(t, 8)
	// Drain the buy stack down to 1 order, well below balanceThreshold=2,
	// while the sell stack keeps its full complement of 4.
	all := m.buyStack.All()
	for _, o := range all[1:] {
		m.buyStack.Remove(o.LocalID)
	}
	require.Equal(t, 1, m.buyStack.ExpectedSize())
	require.Equal(t, 4, m.sellStack.ExpectedSize())

	m.BalanceStacks(2, 8)

	assert.Greater(t, m.buyStack.ExpectedSize(), 1)
}

func TestOrderManager_MarkOrderOnTradedAndOrdersTraded(t *testing.T) {
	m := newTestManager(t, 4)
	markAllCreated(m.buyStack.All())

	target := m.buyStack.BestOrder(true)
	require.NoError(t, m.MarkOrderOnTraded(target.LocalID, dec("90"), target.ExecutedAt))

	traded := m.OrdersTraded()
	require.Len(t, traded, 1)
	assert.Equal(t, grid.Traded, traded[0].Status)
	assert.Nil(t, m.GetOrderByID(target.LocalID))
}

func TestOrderManager_OrderForceCancelled(t *testing.T) {
	m := newTestManager(t, 4)
	target := m.buyStack.All()[0]

	m.OrderForceCancelled(target.LocalID)

	assert.Nil(t, m.GetOrderByID(target.LocalID))
}

func TestOrderManager_DerivedViews(t *testing.T) {
	m := newTestManager(t, 4)
	assert.Len(t, m.OrdersToCreate(), 4)
	assert.Empty(t, m.ActiveOrders())

	markAllCreated(m.buyStack.All())
	markAllCreated(m.sellStack.All())
	assert.Len(t, m.ActiveOrders(), 4)
	assert.Len(t, m.ActiveOrderIDs(), 4)
}

func TestOrderManager_Validate(t *testing.T) {
	m := newTestManager(t, 4)
	assert.NoError(t, m.Validate())
}
