package gridbot

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"gridbot/internal/core"
	"gridbot/internal/grid"
	"gridbot/internal/ordermanager"
	"gridbot/pkg/apperrors"
	"gridbot/pkg/pbu"
	"gridbot/pkg/tradingutils"
)

// Status is the GridBot lifecycle state.
type Status string

const (
	StatusCreated Status = "created"
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
)

// GridBot owns one OrderManager and one Exchange Adapter and runs the
// periodic sync-and-adjust reconciliation loop (spec.md §4.4). It is
// not re-entrant: sync_and_adjust must not run concurrently with
// itself or with init_and_start/cancel_and_stop on the same bot.
type GridBot struct {
	id      string
	adapter core.Adapter
	store   core.StateStore
	notifier core.Notifier
	logger  core.ILogger

	manager *ordermanager.OrderManager
	counter *ordermanager.OrderCounter
	param   *Parameter

	status      Status
	startedAt   time.Time
	stoppedAt   time.Time
	latestPrice decimal.Decimal
	runnerID    string

	balanceThreshold int
	reportInterval   time.Duration
	lastReportAt     time.Time

	checkIrregularPrice bool

	idSeq int64
}

// SetCheckIrregularPrice enables the advisory check described in
// spec.md §9: when the latest ticker price lands far from the nearest
// grid level, notify but do not block the sync cycle.
func (g *GridBot) SetCheckIrregularPrice(enabled bool) {
	g.checkIrregularPrice = enabled
}

// New builds a GridBot in status Created, ready for InitAndStart.
func New(adapter core.Adapter, store core.StateStore, notifier core.Notifier, logger core.ILogger, balanceThreshold int, reportInterval time.Duration) *GridBot {
	return &GridBot{
		id:               uuid.NewString(),
		adapter:          adapter,
		store:            store,
		notifier:         notifier,
		logger:           logger.WithField("bot_id", "pending"),
		counter:          &ordermanager.OrderCounter{},
		status:           StatusCreated,
		balanceThreshold: balanceThreshold,
		reportInterval:   reportInterval,
	}
}

func (g *GridBot) ID() string         { return g.id }
func (g *GridBot) Status() Status     { return g.status }
func (g *GridBot) Parameter() *Parameter { return g.param }
func (g *GridBot) Manager() *ordermanager.OrderManager { return g.manager }

func (g *GridBot) nextLocalID() int64 {
	return atomic.AddInt64(&g.idSeq, 1)
}

// InitAndStart builds the grid from param, persists the run, and
// commits the initial layout's create_order calls (spec.md §4.4).
func (g *GridBot) InitAndStart(ctx context.Context, param *Parameter, additionalInfo map[string]interface{}) error {
	g.id = uuid.NewString()
	g.logger = g.logger.WithField("bot_id", g.id)
	g.param = param
	orderLimit := g.adapter.MaxOrderCount()

	buyCfg := grid.StackConfig{
		Pair:            g.adapter.Pair(),
		PriceInterval:   param.PriceInterval,
		UnitAmount:      param.UnitAmount,
		OrderLimit:      orderLimit,
		PricePrecision:  param.PricePrecision,
		AmountPrecision: param.AmountPrecision,
	}
	sellCfg := buyCfg

	g.manager = ordermanager.New(buyCfg, sellCfg, g.nextLocalID, g.logger)
	g.manager.InitStacks(param.InitPrice)

	g.counter = &ordermanager.OrderCounter{}
	g.startedAt = time.Now()
	g.latestPrice = param.InitPrice
	g.status = StatusRunning
	g.lastReportAt = g.startedAt

	if g.store != nil {
		runnerID, err := g.store.CreateAndUseRunner(ctx, core.RunnerRecord{
			BotID:     g.id,
			Pair:      g.adapter.Pair(),
			InitPrice: param.InitPrice,
			InitBase:  param.InitBase,
			InitQuote: param.InitQuote,
			GridNum:   param.GridNum,
			StartedAt: g.startedAt,
			Status:    string(StatusRunning),
		})
		if err != nil {
			return fmt.Errorf("init_and_start: persist runner: %w", err)
		}
		g.runnerID = runnerID
	}

	g.commitCreateOrders(ctx)

	g.notifier.Info(ctx, "grid started", map[string]interface{}{
		"bot_id": g.id, "pair": g.adapter.Pair(), "init_price": param.InitPrice.String(),
		"lowest_price": param.LowestPrice.String(), "highest_price": param.HighestPrice.String(),
	})
	return nil
}

// CancelAndStop batch-cancels every active order at the exchange, then
// force-cancels everything locally regardless of that call's outcome,
// and emits a final execution report (spec.md §4.4).
func (g *GridBot) CancelAndStop(ctx context.Context) error {
	if g.status != StatusRunning {
		g.logger.Warn("cancel_and_stop: bot is not running, no-op", "status", g.status)
		return nil
	}

	ids := g.manager.ActiveOrderIDs()
	if len(ids) > 0 {
		if _, err := g.adapter.CancelOrders(ctx, ids); err != nil {
			g.logger.Error("cancel_and_stop: exchange cancel failed, forcing local state anyway", "error", err.Error())
		}
	}

	g.manager.CancelAll()
	g.status = StatusStopped
	g.stoppedAt = time.Now()

	if g.store != nil && g.runnerID != "" {
		if err := g.store.UpdateRunner(ctx, g.runnerID, map[string]interface{}{"status": string(StatusStopped)}); err != nil {
			g.logger.Error("cancel_and_stop: persist runner stop failed", "error", err.Error())
		}
	}

	report := NewExecutionReport(g.param, g.counter, g.durationHours())
	g.notifier.Info(ctx, "grid stopped: "+report.String(), map[string]interface{}{"bot_id": g.id})
	return nil
}

func (g *GridBot) durationHours() decimal.Decimal {
	end := g.stoppedAt
	if end.IsZero() {
		end = time.Now()
	}
	hours := end.Sub(g.startedAt).Hours()
	return decimal.NewFromFloat(hours)
}

// SyncAndAdjust runs one reconciliation cycle (spec.md §4.4 steps 1-7).
func (g *GridBot) SyncAndAdjust(ctx context.Context) error {
	if g.status != StatusRunning {
		return fmt.Errorf("sync_and_adjust: bot is not running")
	}
	g.counter.ResetSync()

	// Step 1: fetch statuses.
	ids := g.manager.ActiveOrderIDs()
	if len(ids) == 0 {
		return nil
	}
	records, err := g.adapter.GetOrdersData(ctx, ids)
	if err != nil {
		if g.adapter.IsKnownException(err) {
			g.logger.Warn("sync_and_adjust: known exception fetching order statuses", "error", err.Error())
			return nil
		}
		g.notifier.Error(ctx, "sync_and_adjust: unknown exception fetching order statuses", map[string]interface{}{"error": err.Error()})
		return nil
	}

	// Step 2: classify.
	for _, rec := range records {
		order, _ := g.manager.GetOrderAndStackByExchangeOrderID(rec.ExchangeOrderID)
		if order == nil {
			g.notifier.Error(ctx, "sync_and_adjust: status record for unknown order", map[string]interface{}{"exchange_order_id": rec.ExchangeOrderID})
			continue
		}
		switch {
		case rec.Cancelled:
			g.manager.OrderForceCancelled(order.LocalID)
			g.notifier.Error(ctx, "sync_and_adjust: order cancelled outside our control", map[string]interface{}{"local_id": order.LocalID, "exchange_order_id": rec.ExchangeOrderID})
			if g.store != nil {
				_ = g.store.DeleteOrder(ctx, g.runnerID, order.LocalID)
			}
		case rec.FullyFilled:
			if err := g.manager.MarkOrderOnTraded(order.LocalID, rec.AveragePrice, rec.ExecutedAt); err != nil {
				g.notifier.Error(ctx, "sync_and_adjust: mark_order_on_traded failed", map[string]interface{}{"local_id": order.LocalID, "error": err.Error()})
				continue
			}
			g.counter.Increment(order.Side)
			g.notifier.Trade(ctx, order.Side, "order filled", map[string]interface{}{
				"local_id": order.LocalID, "price": rec.AveragePrice.String(),
			})
			if g.store != nil {
				_ = g.store.UpdateOrder(ctx, g.runnerID, order.LocalID, map[string]interface{}{
					"status": string(order.Status), "average_price": order.AveragePrice.String(),
				})
			}
		}
	}

	if g.counter.SyncBuy > 1 || g.counter.SyncSell > 1 {
		g.notifier.Error(ctx, "sync_and_adjust: more than 1 order traded on the same side in one sync", map[string]interface{}{
			"buy_traded": g.counter.SyncBuy, "sell_traded": g.counter.SyncSell,
		})
	}

	// Step 3: periodic execution report.
	if g.reportInterval > 0 && time.Since(g.lastReportAt) >= g.reportInterval {
		report := NewExecutionReport(g.param, g.counter, g.durationHours())
		g.notifier.Info(ctx, report.String(), map[string]interface{}{"bot_id": g.id})
		g.lastReportAt = time.Now()
	}

	// Step 4: short-circuit if nothing filled this cycle.
	if g.counter.SyncBuy == 0 && g.counter.SyncSell == 0 {
		return nil
	}

	// Step 5: fetch price, range-check.
	ticker, err := g.adapter.GetLatestPrices(ctx)
	if err != nil {
		if g.adapter.IsKnownException(err) {
			g.logger.Warn("sync_and_adjust: known exception fetching ticker", "error", err.Error())
			return nil
		}
		g.notifier.Error(ctx, "sync_and_adjust: unknown exception fetching ticker", map[string]interface{}{"error": err.Error()})
		return nil
	}
	g.latestPrice = ticker.Last
	if g.checkIrregularPrice {
		nearest := tradingutils.FindNearestGridPrice(ticker.Last, g.param.InitPrice, g.param.PriceInterval)
		if deviation := ticker.Last.Sub(nearest).Abs(); deviation.GreaterThan(g.param.PriceInterval.Div(decimal.NewFromInt(2))) {
			g.notifier.Info(ctx, "sync_and_adjust: ticker price is irregular relative to the grid", map[string]interface{}{
				"price": ticker.Last.String(), "nearest_grid_price": nearest.String(), "deviation": deviation.String(),
			})
		}
	}
	if !g.param.InRange(ticker.Last) {
		g.logger.Warn("sync_and_adjust: price outside grid range, skipping mutation", "price", ticker.Last.String(),
			"lowest", g.param.LowestPrice.String(), "highest", g.param.HighestPrice.String())
		g.persist(ctx)
		return nil
	}

	// Step 6: adjust grid, in the mandated order.
	g.manager.RefillOrdersAtOppositePosition()
	g.manager.BalanceStacks(g.balanceThreshold, g.adapter.MaxOrderCount())
	traded := g.manager.OrdersTraded()
	if g.store != nil {
		for _, o := range traded {
			_ = g.store.DeleteOrder(ctx, g.runnerID, o.LocalID)
		}
	}
	g.commitCancelOrders(ctx)
	g.commitCreateOrders(ctx)

	// Step 7: persist.
	g.persist(ctx)
	return nil
}

func (g *GridBot) persist(ctx context.Context) {
	if g.store == nil || g.runnerID == "" {
		return
	}
	if err := g.store.UpdateRunner(ctx, g.runnerID, map[string]interface{}{
		"latest_price":  g.latestPrice.String(),
		"total_buy":     g.counter.TotalBuy,
		"total_sell":    g.counter.TotalSell,
	}); err != nil {
		g.logger.Error("sync_and_adjust: persist runner failed", "error", err.Error())
	}
}

// commitCancelOrders batch-cancels every ToCancel order, per the
// ordering guarantee that cancels precede creates (spec.md §5, §8.9).
func (g *GridBot) commitCancelOrders(ctx context.Context) {
	toCancel := g.manager.OrdersToCancel()
	if len(toCancel) == 0 {
		return
	}
	ids := make([]string, 0, len(toCancel))
	byID := make(map[string]*grid.Order, len(toCancel))
	for _, o := range toCancel {
		ids = append(ids, o.ExchangeOrderID)
		byID[o.ExchangeOrderID] = o
	}

	results, err := g.adapter.CancelOrders(ctx, ids)
	if err != nil {
		g.notifier.Error(ctx, "commit_cancel_orders: exchange cancel batch failed", map[string]interface{}{"error": err.Error()})
		return
	}

	seen := make(map[string]bool, len(results))
	for _, r := range results {
		seen[r.ExchangeOrderID] = true
		o, ok := byID[r.ExchangeOrderID]
		if !ok {
			g.notifier.Error(ctx, "commit_cancel_orders: cancel result for irrelevant order id", map[string]interface{}{"exchange_order_id": r.ExchangeOrderID})
			continue
		}
		if !r.Cancelled {
			g.notifier.Error(ctx, "commit_cancel_orders: exchange did not confirm cancellation", map[string]interface{}{"local_id": o.LocalID})
			continue
		}
		if err := o.MarkCancelOK(); err != nil {
			g.notifier.Error(ctx, "commit_cancel_orders: mark_cancel_ok failed", map[string]interface{}{"local_id": o.LocalID, "error": err.Error()})
			continue
		}
		_, stack := g.manager.GetOrderAndStackByID(o.LocalID)
		if stack != nil {
			stack.Remove(o.LocalID)
		}
		if g.store != nil {
			_ = g.store.DeleteOrder(ctx, g.runnerID, o.LocalID)
		}
	}
	for id, o := range byID {
		if !seen[id] {
			g.logger.Warn("commit_cancel_orders: exchange did not return a result for a requested id, will retry next sync", "local_id", o.LocalID)
		}
	}
}

// commitCreateOrders submits every ToCreate order to the exchange.
func (g *GridBot) commitCreateOrders(ctx context.Context) {
	toCreate := g.manager.OrdersToCreate()
	for _, o := range toCreate {
		side := "BUY"
		if o.Side == core.SideSell {
			side = "SELL"
		}
		clientOrderID := pbu.AddBrokerPrefix(g.adapter.Name(), pbu.GenerateCompactOrderID(o.Price, side, int(g.param.PricePrecision)))
		ack, err := g.adapter.CreateOrder(ctx, core.OrderRequest{
			ClientOrderID: clientOrderID,
			Pair:          o.Pair,
			Side:          o.Side,
			Price:         o.Price,
			Amount:        o.Amount,
			PostOnly:      true,
		})
		if err != nil {
			g.handleCreateFailure(ctx, o, err)
			continue
		}
		if err := o.MarkCreated(ack.ExchangeOrderID, ack.OrderedAt); err != nil {
			g.notifier.Error(ctx, "commit_create_orders: mark_created failed", map[string]interface{}{"local_id": o.LocalID, "error": err.Error()})
			continue
		}
		if _, stack := g.manager.GetOrderAndStackByID(o.LocalID); stack != nil {
			stack.IndexExchangeOrderID(o)
		}
		if g.store != nil {
			_ = g.store.CreateOrder(ctx, g.runnerID, core.OrderRecord{
				LocalID: o.LocalID, ExchangeOrderID: o.ExchangeOrderID, Side: o.Side,
				Price: o.Price, Amount: o.Amount, Status: string(o.Status),
			})
		}
	}
}

// handleCreateFailure only force-cancels the order locally when the
// exchange permanently rejected it (InvalidPriceError, ExceedOrderLimitError
// per spec.md §4.6/§7's failure table); anything else (network errors,
// rate limiting, transient exchange failures) is logged and the order is
// left ToCreate to retry on the next sync.
func (g *GridBot) handleCreateFailure(ctx context.Context, o *grid.Order, err error) {
	var invalidPrice *apperrors.InvalidPriceError
	var exceedLimit *apperrors.ExceedOrderLimitError
	if !errors.As(err, &invalidPrice) && !errors.As(err, &exceedLimit) {
		g.notifier.Error(ctx, "commit_create_orders: order create failed, will retry next sync", map[string]interface{}{
			"local_id": o.LocalID, "price": o.Price.String(), "side": o.Side, "error": err.Error(),
		})
		return
	}

	o.MarkCreateRejected()
	g.notifier.Error(ctx, "commit_create_orders: order rejected, force-cancelled locally", map[string]interface{}{
		"local_id": o.LocalID, "price": o.Price.String(), "side": o.Side, "error": err.Error(),
	})
	_, stack := g.manager.GetOrderAndStackByID(o.LocalID)
	if stack != nil {
		stack.Remove(o.LocalID)
	}
	if g.store != nil {
		_ = g.store.DeleteOrder(ctx, g.runnerID, o.LocalID)
	}
}
