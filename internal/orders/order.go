// Package orders defines the resting-order record maintained by an
// order book: identity, side, type, price, quantity, and the small state
// machine that governs how an order moves from New through fills to
// Filled or Cancelled.
package orders

import (
	"fmt"

	"github.com/rishav/exchange-engine/internal/types"
)

// Order is one resting (or about-to-rest) order. It is mutated only
// through Fill and Cancel; every other field is fixed at construction.
//
// Unlike the Event that carries a new order onto a shard's queue, Order
// is heap-allocated and pointer-identified once inside a book — multiple
// indexes (the priority index and the order-id lookup index) refer to
// the same Order instance, and both must observe any mutation.
type Order struct {
	UserID         types.UserID
	ClientOrderID  types.OrderID
	Symbol         types.Symbol
	Side           types.Side
	Type           types.OrderType
	Price          types.Price
	Quantity       types.Quantity
	OpenQuantity   types.Quantity
	Timestamp      types.Timestamp
	SequenceNumber types.SequenceNumber
	Status         types.OrderStatus
}

// New constructs an Order in state New with the full quantity open.
// A positive filled constructs an order with that much already executed,
// in state PartiallyFilled; orderbook.Book always passes 0, since the
// residual of an aggressive order is cancelled rather than rested.
func New(userID types.UserID, clientOrderID types.OrderID, symbol types.Symbol, side types.Side, typ types.OrderType, price types.Price, quantity types.Quantity, ts types.Timestamp, seq types.SequenceNumber, filled types.Quantity) *Order {
	o := &Order{
		UserID:         userID,
		ClientOrderID:  clientOrderID,
		Symbol:         symbol,
		Side:           side,
		Type:           typ,
		Price:          price,
		Quantity:       quantity,
		OpenQuantity:   quantity - filled,
		Timestamp:      ts,
		SequenceNumber: seq,
		Status:         types.StatusNew,
	}
	if filled > 0 {
		o.Status = types.StatusPartiallyFilled
	}
	return o
}

// FilledQuantity is the quantity already executed.
func (o *Order) FilledQuantity() types.Quantity {
	return o.Quantity - o.OpenQuantity
}

// IsActive reports whether the order is resident in a book (New or
// PartiallyFilled).
func (o *Order) IsActive() bool {
	return o.Status == types.StatusNew || o.Status == types.StatusPartiallyFilled
}

// Fill reduces the order's open quantity by qty, transitioning to
// Filled if it reaches zero. qty <= 0 is a no-op returning 0. Returns
// the quantity actually filled (never more than OpenQuantity).
func (o *Order) Fill(qty types.Quantity) types.Quantity {
	if qty <= 0 {
		return 0
	}
	take := qty
	if take > o.OpenQuantity {
		take = o.OpenQuantity
	}
	o.OpenQuantity -= take
	if o.OpenQuantity == 0 {
		o.Status = types.StatusFilled
	} else {
		o.Status = types.StatusPartiallyFilled
	}
	return take
}

// Cancel marks the order Cancelled. Terminal: a Cancelled or Filled
// order is never re-inserted into a book.
func (o *Order) Cancel() {
	o.Status = types.StatusCancelled
}

func (o *Order) String() string {
	return fmt.Sprintf("Order{id=%d symbol=%s %s %s qty=%d open=%d price=%s status=%s}",
		o.ClientOrderID, o.Symbol, o.Side, o.Type, o.Quantity, o.OpenQuantity, o.Price, o.Status)
}
