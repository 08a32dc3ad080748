package gridbot

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridbot/internal/core"
	"gridbot/internal/exchange"
	"gridbot/internal/grid"
)

type nopLogger struct{}

func (l *nopLogger) Debug(string, ...interface{}) {}
func (l *nopLogger) Info(string, ...interface{})  {}
func (l *nopLogger) Warn(string, ...interface{})  {}
func (l *nopLogger) Error(string, ...interface{}) {}
func (l *nopLogger) Fatal(string, ...interface{}) {}
func (l *nopLogger) WithField(string, interface{}) core.ILogger {
	return l
}
func (l *nopLogger) WithFields(map[string]interface{}) core.ILogger { return l }

type recordingNotifier struct {
	infos  []string
	errors []string
	trades []string
}

func (n *recordingNotifier) Info(_ context.Context, msg string, _ map[string]interface{}) {
	n.infos = append(n.infos, msg)
}
func (n *recordingNotifier) Error(_ context.Context, msg string, _ map[string]interface{}) {
	n.errors = append(n.errors, msg)
}
func (n *recordingNotifier) Trade(_ context.Context, side core.Side, msg string, _ map[string]interface{}) {
	n.trades = append(n.trades, string(side)+":"+msg)
}

// newS1Param reproduces scenario S1 from spec.md §8.
func newS1Param(t *testing.T) *Parameter {
	t.Helper()
	p, err := CalcGridParamsByInterval(dec("10"), dec("700"), dec("100"), dec("10"), 10, dec("-0.0002"), 2, 4)
	require.NoError(t, err)
	return p
}

func newTestBot(t *testing.T, adapter core.Adapter) (*GridBot, *recordingNotifier) {
	t.Helper()
	notifier := &recordingNotifier{}
	bot := New(adapter, nil, notifier, &nopLogger{}, 2, time.Hour)
	return bot, notifier
}

func newS2Adapter() *exchange.MockAdapter {
	return exchange.NewMockAdapter("ETHUSDT", dec("-0.0002"), 4, 2, 4,
		core.Ticker{Last: dec("100")}, core.Assets{})
}

func orderPriceStrings(orders []*grid.Order) []string {
	out := make([]string, 0, len(orders))
	for _, o := range orders {
		out = append(out, o.Price.String())
	}
	return out
}

func findOrderAtPrice(t *testing.T, bot *GridBot, side core.Side, price string) *grid.Order {
	t.Helper()
	stack := bot.Manager().BuyStack()
	if side == core.SideSell {
		stack = bot.Manager().SellStack()
	}
	for _, o := range stack.ActiveOrders() {
		if o.Price.Equal(dec(price)) {
			return o
		}
	}
	t.Fatalf("no active %s order at price %s", side, price)
	return nil
}

// S2. Initial layout.
func TestGridBot_InitAndStart_S2(t *testing.T) {
	adapter := newS2Adapter()
	bot, _ := newTestBot(t, adapter)
	param := newS1Param(t)

	require.NoError(t, bot.InitAndStart(context.Background(), param, nil))

	assert.Equal(t, []string{"90", "80"}, orderPriceStrings(bot.Manager().BuyStack().ActiveOrders()))
	assert.Equal(t, []string{"110", "120"}, orderPriceStrings(bot.Manager().SellStack().ActiveOrders()))
	assert.Equal(t, StatusRunning, bot.Status())
}

// S3. Single-fill refill (sell side).
func TestGridBot_SyncAndAdjust_S3_SingleFillSellSide(t *testing.T) {
	adapter := newS2Adapter()
	bot, _ := newTestBot(t, adapter)
	param := newS1Param(t)
	require.NoError(t, bot.InitAndStart(context.Background(), param, nil))

	sellAt110 := findOrderAtPrice(t, bot, core.SideSell, "110")
	adapter.SetTicker(core.Ticker{Last: dec("101")})
	adapter.FillOrder(sellAt110.ExchangeOrderID)

	require.NoError(t, bot.SyncAndAdjust(context.Background()))

	assert.ElementsMatch(t, []string{"100", "90"}, orderPriceStrings(bot.Manager().BuyStack().ActiveOrders()))
	assert.ElementsMatch(t, []string{"120", "130"}, orderPriceStrings(bot.Manager().SellStack().ActiveOrders()))
	assert.Equal(t, 1, bot.counter.TotalSell)
	assert.Equal(t, 0, bot.counter.TotalBuy)
}

// S4. Double-fill same side: triggers a single same-side traded-count warning.
func TestGridBot_SyncAndAdjust_S4_DoubleFillSameSide(t *testing.T) {
	adapter := newS2Adapter()
	bot, notifier := newTestBot(t, adapter)
	param := newS1Param(t)
	require.NoError(t, bot.InitAndStart(context.Background(), param, nil))

	sellAt110 := findOrderAtPrice(t, bot, core.SideSell, "110")
	sellAt120 := findOrderAtPrice(t, bot, core.SideSell, "120")
	adapter.SetTicker(core.Ticker{Last: dec("105")})
	adapter.FillOrder(sellAt110.ExchangeOrderID)
	adapter.FillOrder(sellAt120.ExchangeOrderID)

	require.NoError(t, bot.SyncAndAdjust(context.Background()))

	assert.Equal(t, 2, bot.counter.TotalSell)
	assert.Equal(t, 0, bot.counter.TotalBuy)

	found := false
	for _, msg := range notifier.errors {
		if strings.Contains(msg, "more than 1 order") {
			found = true
		}
	}
	assert.True(t, found, "expected a same-side double-fill notification, got errors: %v", notifier.errors)
}

// S5. Price exceeds range: fill recorded, no grid mutation this sync.
func TestGridBot_SyncAndAdjust_S5_PriceOutOfRange(t *testing.T) {
	adapter := newS2Adapter()
	bot, _ := newTestBot(t, adapter)
	param := newS1Param(t)
	require.NoError(t, bot.InitAndStart(context.Background(), param, nil))

	sellAt110 := findOrderAtPrice(t, bot, core.SideSell, "110")
	adapter.SetTicker(core.Ticker{Last: dec("200")})
	adapter.FillOrder(sellAt110.ExchangeOrderID)

	require.NoError(t, bot.SyncAndAdjust(context.Background()))

	assert.Equal(t, 1, bot.counter.TotalSell)
	assert.Len(t, bot.Manager().BuyStack().ActiveOrders(), 2)
}

// mismatchAdapter wraps MockAdapter and, for TestGridBot_CommitCancelOrders_S6_Mismatch,
// reports a cancel batch result referencing an id never requested.
type mismatchAdapter struct {
	*exchange.MockAdapter
	requestedA string
}

func (a *mismatchAdapter) CancelOrders(ctx context.Context, ids []string) ([]core.CancelResult, error) {
	return []core.CancelResult{
		{ExchangeOrderID: a.requestedA, Cancelled: true},
		{ExchangeOrderID: "unrelated-id-C", Cancelled: true},
	}, nil
}

// S6. Exchange cancel returns a mismatch.
func TestGridBot_CommitCancelOrders_S6_Mismatch(t *testing.T) {
	base := newS2Adapter()
	bot, notifier := newTestBot(t, base)
	param := newS1Param(t)
	require.NoError(t, bot.InitAndStart(context.Background(), param, nil))

	active := bot.Manager().ActiveOrders()
	require.Len(t, active, 4)
	a, b := active[0], active[1]
	require.NoError(t, a.MarkCancelRequested())
	require.NoError(t, b.MarkCancelRequested())

	bot.adapter = &mismatchAdapter{MockAdapter: base, requestedA: a.ExchangeOrderID}
	bot.commitCancelOrders(context.Background())

	assert.Equal(t, grid.Cancelled, a.Status)
	assert.Equal(t, grid.ToCancel, b.Status)
	assert.NotEmpty(t, notifier.errors)
}

func TestGridBot_CancelAndStop_Idempotent(t *testing.T) {
	adapter := newS2Adapter()
	bot, _ := newTestBot(t, adapter)
	param := newS1Param(t)
	require.NoError(t, bot.InitAndStart(context.Background(), param, nil))

	require.NoError(t, bot.CancelAndStop(context.Background()))
	assert.Equal(t, StatusStopped, bot.Status())
	assert.Empty(t, bot.Manager().ActiveOrders())

	require.NoError(t, bot.CancelAndStop(context.Background()))
}
