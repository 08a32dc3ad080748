package grid

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridbot/internal/core"
)

func newTestOrder(side core.Side, price string) *Order {
	return &Order{
		LocalID: 1,
		Side:    side,
		Price:   decimal.RequireFromString(price),
		Amount:  decimal.NewFromInt(2),
		Status:  ToCreate,
	}
}

func TestOrder_LifecycleHappyPath(t *testing.T) {
	o := newTestOrder(core.SideBuy, "90")

	require.NoError(t, o.MarkCreated("EX-1", time.Now()))
	assert.Equal(t, Created, o.Status)

	require.NoError(t, o.MarkOnTraded(decimal.NewFromInt(90), time.Now()))
	assert.Equal(t, OnTraded, o.Status)

	require.NoError(t, o.MarkTraded())
	assert.Equal(t, Traded, o.Status)
}

func TestOrder_CancelPath(t *testing.T) {
	o := newTestOrder(core.SideSell, "110")
	require.NoError(t, o.MarkCreated("EX-2", time.Now()))

	require.NoError(t, o.MarkCancelRequested())
	assert.Equal(t, ToCancel, o.Status)

	require.NoError(t, o.MarkCancelOK())
	assert.Equal(t, Cancelled, o.Status)
}

func TestOrder_InvalidTransitionRejected(t *testing.T) {
	o := newTestOrder(core.SideBuy, "90")
	// Cannot go straight from ToCreate to OnTraded.
	err := o.MarkOnTraded(decimal.Zero, time.Now())
	assert.Error(t, err)
	assert.Equal(t, ToCreate, o.Status)
}

func TestOrder_ForceCancelFromAnyState(t *testing.T) {
	o := newTestOrder(core.SideBuy, "90")
	o.MarkForceCancelled()
	assert.Equal(t, Cancelled, o.Status)

	o2 := newTestOrder(core.SideSell, "110")
	require.NoError(t, o2.MarkCreated("EX-3", time.Now()))
	require.NoError(t, o2.MarkOnTraded(decimal.NewFromInt(110), time.Now()))
	o2.MarkForceCancelled()
	assert.Equal(t, Cancelled, o2.Status)
}

func TestOrder_OppositePrice(t *testing.T) {
	interval := decimal.NewFromInt(10)

	buy := newTestOrder(core.SideBuy, "90")
	assert.True(t, buy.OppositePrice(interval).Equal(decimal.NewFromInt(100)))

	sell := newTestOrder(core.SideSell, "110")
	assert.True(t, sell.OppositePrice(interval).Equal(decimal.NewFromInt(100)))
}

func TestOrder_Cost(t *testing.T) {
	o := &Order{Price: decimal.NewFromFloat(100.125), Amount: decimal.NewFromInt(2)}
	assert.True(t, o.Cost(2).Equal(decimal.NewFromFloat(200.25)))
}
