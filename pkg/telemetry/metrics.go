package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names
const (
	MetricOrdersPlacedTotal    = "gridbot_orders_placed_total"
	MetricOrdersFilledTotal    = "gridbot_orders_filled_total"
	MetricOrdersCancelledTotal = "gridbot_orders_cancelled_total"
	MetricOrdersActive         = "gridbot_orders_active"
	MetricSyncDuration         = "gridbot_sync_duration_seconds"
	MetricPriceOutOfRange      = "gridbot_price_out_of_range_total"
	MetricBalanceEvents        = "gridbot_balance_events_total"
	MetricCommitErrors         = "gridbot_commit_errors_total"
)

// MetricsHolder holds initialized instruments
type MetricsHolder struct {
	OrdersPlacedTotal    metric.Int64Counter
	OrdersFilledTotal    metric.Int64Counter
	OrdersCancelledTotal metric.Int64Counter
	OrdersActive         metric.Int64ObservableGauge
	SyncDuration         metric.Float64Histogram
	PriceOutOfRangeTotal metric.Int64Counter
	BalanceEventsTotal   metric.Int64Counter
	CommitErrorsTotal    metric.Int64Counter

	// State for the observable gauge, keyed by side (buy/sell)
	mu              sync.RWMutex
	activeOrdersMap map[string]int64
}

var (
	globalMetrics *MetricsHolder
	initOnce      sync.Once
)

// GetGlobalMetrics returns the singleton metrics holder
func GetGlobalMetrics() *MetricsHolder {
	initOnce.Do(func() {
		globalMetrics = &MetricsHolder{
			activeOrdersMap: make(map[string]int64),
		}
		// Initialization of instruments happens in InitMetrics
	})
	return globalMetrics
}

// InitMetrics initializes instruments using the meter
func (m *MetricsHolder) InitMetrics(meter metric.Meter) error {
	var err error

	m.OrdersPlacedTotal, err = meter.Int64Counter(MetricOrdersPlacedTotal, metric.WithDescription("Total orders submitted to the exchange"))
	if err != nil {
		return err
	}

	m.OrdersFilledTotal, err = meter.Int64Counter(MetricOrdersFilledTotal, metric.WithDescription("Total orders observed fully filled"))
	if err != nil {
		return err
	}

	m.OrdersCancelledTotal, err = meter.Int64Counter(MetricOrdersCancelledTotal, metric.WithDescription("Total orders cancelled, locally or force-cancelled"))
	if err != nil {
		return err
	}

	m.SyncDuration, err = meter.Float64Histogram(MetricSyncDuration, metric.WithDescription("Duration of one sync_and_adjust cycle"), metric.WithUnit("s"))
	if err != nil {
		return err
	}

	m.PriceOutOfRangeTotal, err = meter.Int64Counter(MetricPriceOutOfRange, metric.WithDescription("Times the ticker price fell outside [lowest_price, highest_price]"))
	if err != nil {
		return err
	}

	m.BalanceEventsTotal, err = meter.Int64Counter(MetricBalanceEvents, metric.WithDescription("Times balance_stacks expanded/shrunk a side"))
	if err != nil {
		return err
	}

	m.CommitErrorsTotal, err = meter.Int64Counter(MetricCommitErrors, metric.WithDescription("Commit errors during cancel/create, by kind"))
	if err != nil {
		return err
	}

	m.OrdersActive, err = meter.Int64ObservableGauge(MetricOrdersActive, metric.WithDescription("Number of currently active (Created) orders"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for side, val := range m.activeOrdersMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("side", side)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	return nil
}

// SetActiveOrders records the current active order count for a side.
func (m *MetricsHolder) SetActiveOrders(side string, count int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activeOrdersMap[side] = count
}

// GetActiveOrders returns a snapshot of the active order gauge state.
func (m *MetricsHolder) GetActiveOrders() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make(map[string]int64)
	for k, v := range m.activeOrdersMap {
		res[k] = v
	}
	return res
}
