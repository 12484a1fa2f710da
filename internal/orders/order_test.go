package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rishav/exchange-engine/internal/types"
)

func newTestOrder(qty, filled types.Quantity) *Order {
	return New(types.NewUserID("u1"), 1, types.NewSymbol("AAPL"), types.SideBuy, types.TypeLimit, 15000, qty, 1, 1, filled)
}

func TestFillTransitions(t *testing.T) {
	o := newTestOrder(100, 0)
	assert.Equal(t, types.StatusNew, o.Status)
	assert.True(t, o.IsActive())

	assert.Equal(t, types.Quantity(30), o.Fill(30))
	assert.Equal(t, types.StatusPartiallyFilled, o.Status)
	assert.Equal(t, types.Quantity(70), o.OpenQuantity)
	assert.Equal(t, types.Quantity(30), o.FilledQuantity())

	assert.Equal(t, types.Quantity(70), o.Fill(70))
	assert.Equal(t, types.StatusFilled, o.Status)
	assert.Zero(t, o.OpenQuantity)
	assert.False(t, o.IsActive())
}

func TestFillToZeroInOneStep(t *testing.T) {
	o := newTestOrder(50, 0)
	assert.Equal(t, types.Quantity(50), o.Fill(50))
	assert.Equal(t, types.StatusFilled, o.Status)
}

func TestFillClampsToOpenQuantity(t *testing.T) {
	o := newTestOrder(50, 0)
	assert.Equal(t, types.Quantity(50), o.Fill(80), "fill takes at most the open quantity")
	assert.Equal(t, types.StatusFilled, o.Status)
}

func TestFillNonPositiveIsNoOp(t *testing.T) {
	o := newTestOrder(50, 0)
	assert.Zero(t, o.Fill(0))
	assert.Zero(t, o.Fill(-10))
	assert.Equal(t, types.StatusNew, o.Status)
	assert.Equal(t, types.Quantity(50), o.OpenQuantity)
}

func TestCancelIsTerminal(t *testing.T) {
	o := newTestOrder(100, 0)
	o.Fill(40)
	o.Cancel()
	assert.Equal(t, types.StatusCancelled, o.Status)
	assert.False(t, o.IsActive())
	assert.Equal(t, types.Quantity(60), o.OpenQuantity, "cancel does not change fill state")
}

func TestPreFilledResidualConstruction(t *testing.T) {
	o := newTestOrder(100, 40)
	assert.Equal(t, types.StatusPartiallyFilled, o.Status)
	assert.Equal(t, types.Quantity(60), o.OpenQuantity)
	assert.Equal(t, types.Quantity(40), o.FilledQuantity())
}
