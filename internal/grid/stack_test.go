package grid

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridbot/internal/core"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{})                        {}
func (nopLogger) Info(string, ...interface{})                         {}
func (nopLogger) Warn(string, ...interface{})                         {}
func (nopLogger) Error(string, ...interface{})                        {}
func (nopLogger) Fatal(string, ...interface{})                        {}
func (l nopLogger) WithField(string, interface{}) core.ILogger        { return l }
func (l nopLogger) WithFields(map[string]interface{}) core.ILogger    { return l }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestManager(t *testing.T, orderLimit int) (*OrderStack, *OrderStack) {
	t.Helper()
	var seq int64
	nextID := func() int64 { seq++; return seq }

	buyCfg := StackConfig{
		Pair: "BTCUSDT", Side: core.SideBuy,
		PriceInterval: dec("10"), UnitAmount: dec("2"),
		OrderLimit: orderLimit, PricePrecision: 2, AmountPrecision: 4,
	}
	sellCfg := buyCfg
	sellCfg.Side = core.SideSell

	buy := NewOrderStack(buyCfg, nextID, nopLogger{})
	sell := NewOrderStack(sellCfg, nextID, nopLogger{})
	return buy, sell
}

// TestOrderStack_PrepareInit reproduces scenario S2 from the grid
// sizing spec: init_price=100, price_interval=10, order_limit=4.
func TestOrderStack_PrepareInit(t *testing.T) {
	buy, sell := newTestManager(t, 4)

	initPrice := dec("100")
	buy.PrepareInit(initPrice)
	sell.PrepareInit(initPrice)

	buyPrices := pricesOf(buy.All())
	sellPrices := pricesOf(sell.All())

	assert.Equal(t, []string{"90", "80"}, buyPrices)
	assert.Equal(t, []string{"110", "120"}, sellPrices)

	for _, o := range buy.All() {
		assert.Equal(t, ToCreate, o.Status)
		assert.Equal(t, core.SideBuy, o.Side)
	}
}

func pricesOf(orders []*Order) []string {
	out := make([]string, len(orders))
	for i, o := range orders {
		out[i] = o.Price.String()
	}
	return out
}

func TestOrderStack_BestWorstOrder(t *testing.T) {
	buy, sell := newTestManager(t, 4)
	buy.PrepareInit(dec("100"))
	sell.PrepareInit(dec("100"))

	assert.True(t, buy.BestOrder(false).Price.Equal(dec("90")))
	assert.True(t, buy.WorstOrder(false).Price.Equal(dec("80")))
	assert.True(t, sell.BestOrder(false).Price.Equal(dec("110")))
	assert.True(t, sell.WorstOrder(false).Price.Equal(dec("120")))
}

func TestOrderStack_RefillOrders_Outer(t *testing.T) {
	buy, _ := newTestManager(t, 4)
	buy.PrepareInit(dec("100"))
	for _, o := range buy.All() {
		require.NoError(t, o.MarkCreated("ex", o.OrderedAt))
	}

	added := buy.RefillOrders(1, DirectionOuter)
	require.Len(t, added, 1)
	assert.True(t, added[0].Price.Equal(dec("70")))
}

func TestOrderStack_RefillOrders_SkipsDuplicates(t *testing.T) {
	buy, _ := newTestManager(t, 4)
	buy.PrepareInit(dec("100"))
	for _, o := range buy.All() {
		require.NoError(t, o.MarkCreated("ex", o.OrderedAt))
	}
	// Add a 70 and leave it ToCreate: it is not active, so the next outer
	// refill still anchors on 80 and its first step collides with 70.
	require.Len(t, buy.RefillOrders(1, DirectionOuter), 1)

	added := buy.RefillOrders(2, DirectionOuter)
	require.Len(t, added, 1)
	assert.True(t, added[0].Price.Equal(dec("60")))
}

func TestOrderStack_RefillStackByPairing(t *testing.T) {
	buy, sell := newTestManager(t, 4)
	buy.PrepareInit(dec("100"))
	sell.PrepareInit(dec("100"))

	filledBuy := buy.BestOrder(false) // price 90
	require.NoError(t, filledBuy.MarkCreated("ex", filledBuy.OrderedAt))
	require.NoError(t, filledBuy.MarkOnTraded(dec("90"), filledBuy.ExecutedAt))

	added := sell.RefillStackByPairing([]*Order{filledBuy})
	assert.Equal(t, 1, added)

	found := false
	for _, o := range sell.All() {
		if o.Price.Equal(dec("100")) {
			found = true
		}
	}
	assert.True(t, found, "expected a new sell order paired at 100")
}

func TestOrderStack_ShrinkOuter(t *testing.T) {
	buy, _ := newTestManager(t, 4)
	buy.PrepareInit(dec("100"))
	for _, o := range buy.All() {
		require.NoError(t, o.MarkCreated("ex", o.OrderedAt))
	}

	buy.ShrinkOuter(1)
	worst := buy.WorstOrder(false)
	assert.Equal(t, ToCancel, worst.Status)
}

func TestOrderStack_ExpectedSizeAndActiveOrders(t *testing.T) {
	buy, _ := newTestManager(t, 4)
	buy.PrepareInit(dec("100"))
	assert.Equal(t, 2, buy.ExpectedSize())
	assert.Empty(t, buy.ActiveOrders())

	for _, o := range buy.All() {
		require.NoError(t, o.MarkCreated("ex", o.OrderedAt))
	}
	assert.Len(t, buy.ActiveOrders(), 2)
}

func TestOrderStack_Validate_SidePurity(t *testing.T) {
	buy, _ := newTestManager(t, 4)
	buy.PrepareInit(dec("100"))
	require.NoError(t, buy.Validate())

	buy.orders[0].Side = core.SideSell
	assert.Error(t, buy.Validate())
}
