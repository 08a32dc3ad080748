package ordermanager

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"gridbot/internal/core"
	"gridbot/internal/grid"
)

// OrderManager owns the Buy and Sell OrderStacks of one running grid
// and every cross-stack operation: pairing new orders off fills,
// rebalancing capacity between the two sides, and resolving orders by
// id. It performs no I/O; every method is synchronous and in-memory.
type OrderManager struct {
	buyStack  *grid.OrderStack
	sellStack *grid.OrderStack
	logger    core.ILogger
}

// New builds an OrderManager over a fresh pair of empty stacks sharing
// one id sequence, so local ids never collide between sides.
func New(buyCfg, sellCfg grid.StackConfig, nextID grid.IDGenerator, logger core.ILogger) *OrderManager {
	buyCfg.Side = core.SideBuy
	sellCfg.Side = core.SideSell
	return &OrderManager{
		buyStack:  grid.NewOrderStack(buyCfg, nextID, logger),
		sellStack: grid.NewOrderStack(sellCfg, nextID, logger),
		logger:    logger,
	}
}

// InitStacks populates both stacks around initPrice.
func (m *OrderManager) InitStacks(initPrice decimal.Decimal) {
	m.buyStack.PrepareInit(initPrice)
	m.sellStack.PrepareInit(initPrice)
}

func (m *OrderManager) BuyStack() *grid.OrderStack  { return m.buyStack }
func (m *OrderManager) SellStack() *grid.OrderStack { return m.sellStack }

func (m *OrderManager) stacks() [2]*grid.OrderStack {
	return [2]*grid.OrderStack{m.buyStack, m.sellStack}
}

// RefillOrdersAtOppositePosition pairs every OnTraded buy order with a
// new sell at price+interval. Sell side has priority: if that pairing
// adds anything, the symmetric buy-side pairing from OnTraded sells is
// skipped this cycle, so a sync that somehow sees fills on both sides
// does not double-refill (spec.md §4.3, testable property §8.8).
func (m *OrderManager) RefillOrdersAtOppositePosition() {
	onTradedBuys := m.buyStack.OrdersByStatus(grid.OnTraded)
	if added := m.sellStack.RefillStackByPairing(onTradedBuys); added > 0 {
		return
	}
	onTradedSells := m.sellStack.OrdersByStatus(grid.OnTraded)
	m.buyStack.RefillStackByPairing(onTradedSells)
}

// BalanceStacks expands a side whose expected_size has dropped to or
// below balanceThreshold, shrinking the opposite side's outer end by
// the same amount, per spec.md §4.3.
func (m *OrderManager) BalanceStacks(balanceThreshold, orderLimit int) {
	m.balanceOneDirection(m.buyStack, m.sellStack, balanceThreshold, orderLimit)
	m.balanceOneDirection(m.sellStack, m.buyStack, balanceThreshold, orderLimit)
}

func (m *OrderManager) balanceOneDirection(low, high *grid.OrderStack, balanceThreshold, orderLimit int) {
	lowSize := low.ExpectedSize()
	if lowSize > balanceThreshold {
		return
	}
	highSize := high.ExpectedSize()
	sizeDiff := highSize - lowSize
	delta := abs(sizeDiff) / 2
	if delta <= 0 {
		return
	}
	low.RefillOrders(delta, grid.DirectionOuter)
	high.ShrinkOuter(delta)

	if lowSize+delta+highSize > orderLimit {
		m.logger.Warn("balance_stacks: combined expected size exceeds order_limit",
			"low_side", low.Side(), "high_side", high.Side(),
			"low_size", lowSize+delta, "high_size", highSize, "order_limit", orderLimit)
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// MarkOrderOnTraded resolves localID across both stacks and commits the
// fill, the first half of the two-phase fill commit (spec.md §4.3).
func (m *OrderManager) MarkOrderOnTraded(localID int64, averagePrice decimal.Decimal, executedAt time.Time) error {
	o := m.GetOrderByID(localID)
	if o == nil {
		return fmt.Errorf("mark_order_on_traded: unknown order id %d", localID)
	}
	return o.MarkOnTraded(averagePrice, executedAt)
}

// OrdersTraded commits every OnTraded order on both stacks to Traded
// and removes it, the second half of the two-phase fill commit.
func (m *OrderManager) OrdersTraded() []*grid.Order {
	var traded []*grid.Order
	for _, s := range m.stacks() {
		traded = append(traded, s.OrdersTraded()...)
	}
	return traded
}

// OrderForceCancelled force-cancels and drops localID from whichever
// stack owns it, used when an order disappears from the exchange
// outside the engine's control.
func (m *OrderManager) OrderForceCancelled(localID int64) {
	o, s := m.GetOrderAndStackByID(localID)
	if o == nil {
		return
	}
	o.MarkForceCancelled()
	s.Remove(localID)
}

// GetOrderByID resolves a local order id across both stacks.
func (m *OrderManager) GetOrderByID(localID int64) *grid.Order {
	o, _ := m.GetOrderAndStackByID(localID)
	return o
}

// GetOrderAndStackByID resolves a local order id and the stack that
// owns it in O(1) via the stack's id index.
func (m *OrderManager) GetOrderAndStackByID(localID int64) (*grid.Order, *grid.OrderStack) {
	for _, s := range m.stacks() {
		if o := s.GetByLocalID(localID); o != nil {
			return o, s
		}
	}
	return nil, nil
}

// GetOrderAndStackByExchangeOrderID resolves an exchange order id (as
// returned by GetOrdersData) and the stack that owns it in O(1) via the
// stack's id index.
func (m *OrderManager) GetOrderAndStackByExchangeOrderID(exchangeOrderID string) (*grid.Order, *grid.OrderStack) {
	for _, s := range m.stacks() {
		if o := s.GetByExchangeOrderID(exchangeOrderID); o != nil {
			return o, s
		}
	}
	return nil, nil
}

// OrdersToCreate is the combined ToCreate view across both stacks.
func (m *OrderManager) OrdersToCreate() []*grid.Order {
	var out []*grid.Order
	for _, s := range m.stacks() {
		out = append(out, s.OrdersByStatus(grid.ToCreate)...)
	}
	return out
}

// OrdersToCancel is the combined ToCancel view across both stacks.
func (m *OrderManager) OrdersToCancel() []*grid.Order {
	var out []*grid.Order
	for _, s := range m.stacks() {
		out = append(out, s.OrdersByStatus(grid.ToCancel)...)
	}
	return out
}

// ActiveOrders is the combined Created view across both stacks.
func (m *OrderManager) ActiveOrders() []*grid.Order {
	var out []*grid.Order
	for _, s := range m.stacks() {
		out = append(out, s.ActiveOrders()...)
	}
	return out
}

// ActiveOrderIDs returns the exchange order ids of every active order,
// the input to the batch status fetch at the start of a sync.
func (m *OrderManager) ActiveOrderIDs() []string {
	active := m.ActiveOrders()
	ids := make([]string, 0, len(active))
	for _, o := range active {
		ids = append(ids, o.ExchangeOrderID)
	}
	return ids
}

// CancelAll force-cancels and empties both stacks, used by
// cancel_and_stop.
func (m *OrderManager) CancelAll() []*grid.Order {
	var out []*grid.Order
	for _, s := range m.stacks() {
		out = append(out, s.CancelAll()...)
	}
	return out
}

// Validate checks both stacks' invariants (spec.md §8, 1 and 3).
func (m *OrderManager) Validate() error {
	if err := m.buyStack.Validate(); err != nil {
		return err
	}
	return m.sellStack.Validate()
}
