package grid

import (
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"gridbot/internal/core"
)

// Direction selects which end of the stack an operation extends from.
type Direction string

const (
	DirectionInner Direction = "inner"
	DirectionOuter Direction = "outer"
)

// StackConfig carries the injected grid configuration, replacing the
// original's process-wide precision globals (spec.md §9 Design Notes).
type StackConfig struct {
	Pair            string
	Side            core.Side
	PriceInterval   decimal.Decimal
	UnitAmount      decimal.Decimal
	OrderLimit      int
	PricePrecision  int32
	AmountPrecision int32
}

// IDGenerator hands out process-local order handles, shared across both
// stacks of an OrderManager so ids never collide.
type IDGenerator func() int64

// OrderStack is the ordered collection of Orders for one side of the
// grid. It knows nothing about the exchange; every mutation is local.
// byLocalID is filled on every insert, byExchangeOrderID once
// IndexExchangeOrderID is called, and both are cleared on removal,
// so id resolution is O(1) instead of scanning orders
// (spec.md §9 Design Notes).
type OrderStack struct {
	cfg       StackConfig
	initPrice decimal.Decimal
	nextID    IDGenerator
	orders    []*Order
	logger    core.ILogger

	byLocalID         map[int64]*Order
	byExchangeOrderID map[string]*Order
}

// NewOrderStack builds an empty stack for one side.
func NewOrderStack(cfg StackConfig, nextID IDGenerator, logger core.ILogger) *OrderStack {
	return &OrderStack{
		cfg:               cfg,
		nextID:            nextID,
		logger:            logger,
		byLocalID:         make(map[int64]*Order),
		byExchangeOrderID: make(map[string]*Order),
	}
}

// addOrder appends o to the stack and indexes it by local id.
func (s *OrderStack) addOrder(o *Order) {
	s.orders = append(s.orders, o)
	s.byLocalID[o.LocalID] = o
}

// dropIndex removes o from both id indexes, leaving s.orders untouched
// (callers are responsible for the slice removal).
func (s *OrderStack) dropIndex(o *Order) {
	delete(s.byLocalID, o.LocalID)
	if o.ExchangeOrderID != "" {
		delete(s.byExchangeOrderID, o.ExchangeOrderID)
	}
}

// GetByLocalID resolves a local order id in O(1).
func (s *OrderStack) GetByLocalID(localID int64) *Order {
	return s.byLocalID[localID]
}

// GetByExchangeOrderID resolves an exchange order id in O(1). Orders
// are only indexed here once IndexExchangeOrderID is called.
func (s *OrderStack) GetByExchangeOrderID(exchangeOrderID string) *Order {
	return s.byExchangeOrderID[exchangeOrderID]
}

// IndexExchangeOrderID registers o under its ExchangeOrderID, called
// once create_order_ok assigns it (spec.md §4.6).
func (s *OrderStack) IndexExchangeOrderID(o *Order) {
	if o.ExchangeOrderID != "" {
		s.byExchangeOrderID[o.ExchangeOrderID] = o
	}
}

func (s *OrderStack) Side() core.Side { return s.cfg.Side }

// directionSign returns the signed number of grid steps that moving in
// `direction` represents on this stack's side: Buy prices decrease
// outward, Sell prices increase outward.
func (s *OrderStack) directionSign(direction Direction) int64 {
	outward := int64(1)
	if s.cfg.Side == core.SideBuy {
		outward = -1
	}
	if direction == DirectionOuter {
		return outward
	}
	return -outward
}

// PrepareInit populates the stack with order_limit/2 orders on the
// grid, stepping outward from init_price (never at init_price itself).
func (s *OrderStack) PrepareInit(initPrice decimal.Decimal) {
	s.initPrice = initPrice
	activeLimit := s.cfg.OrderLimit / 2
	sign := s.directionSign(DirectionOuter)
	for i := int64(1); i <= int64(activeLimit); i++ {
		price := initPrice.Add(s.cfg.PriceInterval.Mul(decimal.NewFromInt(sign * i))).Round(s.cfg.PricePrecision)
		s.addOrder(&Order{
			LocalID:   s.nextID(),
			Pair:      s.cfg.Pair,
			Side:      s.cfg.Side,
			OrderType: "limit",
			Price:     price,
			Amount:    s.cfg.UnitAmount.Round(s.cfg.AmountPrecision),
			Status:    ToCreate,
		})
	}
	s.sortOrders()
}

// GetPriceGrid snaps origin to the nearest grid price in the given
// direction (ceiling for a positive direction sign, floor for
// negative), then returns `count` prices stepping by price_interval
// from offset `start`.
func (s *OrderStack) GetPriceGrid(origin decimal.Decimal, direction Direction, start, count int) []decimal.Decimal {
	interval := s.cfg.PriceInterval
	diff, _ := origin.Sub(s.initPrice).Div(interval).Float64()

	sign := s.directionSign(direction)
	var k int64
	if sign >= 0 {
		k = int64(math.Ceil(diff))
	} else {
		k = int64(math.Floor(diff))
	}
	snapped := s.initPrice.Add(interval.Mul(decimal.NewFromInt(k)))

	prices := make([]decimal.Decimal, 0, count)
	for i := 0; i < count; i++ {
		offset := int64(start + i)
		price := snapped.Add(interval.Mul(decimal.NewFromInt(sign * offset))).Round(s.cfg.PricePrecision)
		prices = append(prices, price)
	}
	return prices
}

// bestActiveOrAll returns the closest-to-center order among active
// (Created) orders, or the global best if none are active.
func (s *OrderStack) bestActiveOrAll() *Order {
	if o := s.BestOrder(true); o != nil {
		return o
	}
	return s.BestOrder(false)
}

func (s *OrderStack) worstActiveOrAll() *Order {
	if o := s.WorstOrder(true); o != nil {
		return o
	}
	return s.WorstOrder(false)
}

func (s *OrderStack) hasActivePrice(price decimal.Decimal) bool {
	for _, o := range s.orders {
		if o.IsExpected() && o.Price.Equal(price) {
			return true
		}
	}
	return false
}

// RefillOrders appends up to `count` new ToCreate orders, extending
// from the best active order (inner) or the worst active order
// (outer); falls back to the best/worst of all orders if none are
// active. Duplicate grid prices are skipped with a warning.
func (s *OrderStack) RefillOrders(count int, direction Direction) []*Order {
	if count <= 0 {
		return nil
	}

	var anchor *Order
	if direction == DirectionOuter {
		anchor = s.worstActiveOrAll()
	} else {
		anchor = s.bestActiveOrAll()
	}
	if anchor == nil {
		return nil
	}

	sign := s.directionSign(direction)
	added := make([]*Order, 0, count)
	for i := int64(1); i <= int64(count); i++ {
		price := anchor.Price.Add(s.cfg.PriceInterval.Mul(decimal.NewFromInt(sign * i))).Round(s.cfg.PricePrecision)
		if s.hasActivePrice(price) {
			s.logger.Warn("refill_orders: skipping duplicate grid price", "side", s.cfg.Side, "price", price.String())
			continue
		}
		o := &Order{
			LocalID:   s.nextID(),
			Pair:      s.cfg.Pair,
			Side:      s.cfg.Side,
			OrderType: "limit",
			Price:     price,
			Amount:    s.cfg.UnitAmount.Round(s.cfg.AmountPrecision),
			Status:    ToCreate,
		}
		s.addOrder(o)
		added = append(added, o)
	}
	s.sortOrders()
	return added
}

// RefillStackByPairing adds, on this stack (the opposite side of
// tradedOrders), one order at the opposite price of every order in
// tradedOrders. tradedOrders must be OnTraded or Traded. Returns the
// count actually added (duplicates are skipped).
func (s *OrderStack) RefillStackByPairing(tradedOrders []*Order) int {
	added := 0
	for _, t := range tradedOrders {
		if t.Status != OnTraded && t.Status != Traded {
			continue
		}
		price := t.OppositePrice(s.cfg.PriceInterval).Round(s.cfg.PricePrecision)
		if s.hasActivePrice(price) {
			s.logger.Warn("refill_stack_by_pairing: skipping duplicate grid price", "side", s.cfg.Side, "price", price.String())
			continue
		}
		o := &Order{
			LocalID:   s.nextID(),
			Pair:      s.cfg.Pair,
			Side:      s.cfg.Side,
			OrderType: "limit",
			Price:     price,
			Amount:    s.cfg.UnitAmount.Round(s.cfg.AmountPrecision),
			Status:    ToCreate,
		}
		s.addOrder(o)
		added++
	}
	if added > 0 {
		s.sortOrders()
	}
	return added
}

// ShrinkOuter marks the outermost `count` active orders for cancellation.
func (s *OrderStack) ShrinkOuter(count int) {
	if count <= 0 {
		return
	}
	active := s.ordersWhere(func(o *Order) bool { return o.IsActive() })
	// active is sorted best-first; the outer end is the tail.
	for i := len(active) - 1; i >= 0 && count > 0; i-- {
		if err := active[i].MarkCancelRequested(); err == nil {
			count--
		}
	}
}

// OrdersByStatus returns every order currently in the given status.
func (s *OrderStack) OrdersByStatus(status OrderStatus) []*Order {
	return s.ordersWhere(func(o *Order) bool { return o.Status == status })
}

func (s *OrderStack) ordersWhere(pred func(*Order) bool) []*Order {
	out := make([]*Order, 0, len(s.orders))
	for _, o := range s.orders {
		if pred(o) {
			out = append(out, o)
		}
	}
	return out
}

// OrdersTraded commits every OnTraded order to Traded and removes it
// from the stack, per the two-phase fill commit in spec.md §4.3.
func (s *OrderStack) OrdersTraded() []*Order {
	var traded []*Order
	remaining := s.orders[:0]
	for _, o := range s.orders {
		if o.Status == OnTraded {
			_ = o.MarkTraded()
			traded = append(traded, o)
			s.dropIndex(o)
			continue
		}
		remaining = append(remaining, o)
	}
	s.orders = remaining
	return traded
}

// Remove drops an order (by local id) from the stack, used once it
// reaches a terminal status (Traded or Cancelled).
func (s *OrderStack) Remove(localID int64) {
	for i, o := range s.orders {
		if o.LocalID == localID {
			s.orders = append(s.orders[:i], s.orders[i+1:]...)
			s.dropIndex(o)
			return
		}
	}
}

// CancelAll force-cancels and empties the stack (cancel_all).
func (s *OrderStack) CancelAll() []*Order {
	cancelled := s.orders
	for _, o := range cancelled {
		o.MarkForceCancelled()
	}
	s.orders = nil
	s.byLocalID = make(map[int64]*Order)
	s.byExchangeOrderID = make(map[string]*Order)
	return cancelled
}

// ExpectedSize is |{o : status in {ToCreate, Created}}|.
func (s *OrderStack) ExpectedSize() int {
	n := 0
	for _, o := range s.orders {
		if o.IsExpected() {
			n++
		}
	}
	return n
}

// ActiveOrders returns every order with status Created.
func (s *OrderStack) ActiveOrders() []*Order {
	return s.ordersWhere(func(o *Order) bool { return o.IsActive() })
}

// All returns every order currently owned by the stack.
func (s *OrderStack) All() []*Order {
	out := make([]*Order, len(s.orders))
	copy(out, s.orders)
	return out
}

// BestOrder returns the order closest to init_price. If activeOnly is
// true, only Created orders are considered.
func (s *OrderStack) BestOrder(activeOnly bool) *Order {
	return s.edgeOrder(activeOnly, true)
}

// WorstOrder returns the order farthest from init_price.
func (s *OrderStack) WorstOrder(activeOnly bool) *Order {
	return s.edgeOrder(activeOnly, false)
}

func (s *OrderStack) edgeOrder(activeOnly, best bool) *Order {
	var candidates []*Order
	if activeOnly {
		candidates = s.ActiveOrders()
	} else {
		candidates = s.orders
	}
	if len(candidates) == 0 {
		return nil
	}
	// candidates are already in stack sort order (best-first).
	if best {
		return candidates[0]
	}
	return candidates[len(candidates)-1]
}

// sortOrders re-establishes the stack's sort order: Buy descending,
// Sell ascending, so index 0 is always closest to init_price.
func (s *OrderStack) sortOrders() {
	desc := s.cfg.Side == core.SideBuy
	sort.SliceStable(s.orders, func(i, j int) bool {
		if desc {
			return s.orders[i].Price.GreaterThan(s.orders[j].Price)
		}
		return s.orders[i].Price.LessThan(s.orders[j].Price)
	})
}

// Validate checks two stack invariants from spec.md §8: side purity (1)
// and price uniqueness among expected orders (3); returns the first
// violation found, or nil.
func (s *OrderStack) Validate() error {
	for _, o := range s.orders {
		if o.Side != s.cfg.Side {
			return fmt.Errorf("side purity violated: order %d has side %s in %s stack", o.LocalID, o.Side, s.cfg.Side)
		}
	}
	seen := make(map[string]bool)
	for _, o := range s.orders {
		if !o.IsExpected() {
			continue
		}
		key := o.Price.String()
		if seen[key] {
			return fmt.Errorf("price uniqueness violated: duplicate active price %s in %s stack", key, s.cfg.Side)
		}
		seen[key] = true
	}
	return nil
}
