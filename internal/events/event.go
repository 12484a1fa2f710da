// Package events defines the Event tagged union that crosses a shard's
// lock-free queue: NewOrder, Cancel, TopOfBook, and Quit, carried as a
// single flat struct rather than an interface so a value can be copied
// by assignment with no heap indirection. See Kind for the discriminant
// and Symbol for the common projection every non-Quit arm supports.
package events

import "github.com/rishav/exchange-engine/internal/types"

// Kind discriminates which arm of Event is populated.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindNewOrder
	KindCancel
	KindTopOfBook
	KindQuit
)

func (k Kind) String() string {
	switch k {
	case KindNewOrder:
		return "NewOrder"
	case KindCancel:
		return "Cancel"
	case KindTopOfBook:
		return "TopOfBook"
	case KindQuit:
		return "Quit"
	default:
		return "Invalid"
	}
}

// Event is a trivially-copyable tagged union. Every field is a scalar or
// fixed-size array; there is no pointer, slice, string, or map anywhere
// in this type, which is what makes it safe to carry by value across a
// shard's SPSC ring buffer.
type Event struct {
	Kind Kind

	// Common to NewOrder, Cancel, TopOfBook (unused, zero, for Quit).
	UserID        types.UserID
	ClientOrderID types.OrderID
	Sym           types.Symbol

	// NewOrder only.
	Quantity  types.Quantity
	Side      types.Side
	Type      types.OrderType
	Price     types.Price
	Timestamp types.Timestamp

	// Cancel only.
	OrigOrderID types.OrderID
}

// Symbol is the common projection over every arm: it returns the
// InvalidSymbol sentinel for Quit (which carries none) rather than
// requiring every caller to switch on Kind first.
func (e Event) Symbol() types.Symbol {
	if e.Kind == KindQuit {
		return types.InvalidSymbol
	}
	return e.Sym
}

// NewOrder builds a NewOrder event. ts is the monotonic reading taken
// when the event entered the process; it becomes the order's time
// priority within its book.
func NewOrder(userID types.UserID, clientOrderID types.OrderID, symbol types.Symbol, quantity types.Quantity, side types.Side, typ types.OrderType, price types.Price, ts types.Timestamp) Event {
	return Event{
		Kind:          KindNewOrder,
		UserID:        userID,
		ClientOrderID: clientOrderID,
		Sym:           symbol,
		Quantity:      quantity,
		Side:          side,
		Type:          typ,
		Price:         price,
		Timestamp:     ts,
	}
}

// Cancel builds a Cancel event.
func Cancel(userID types.UserID, clientOrderID types.OrderID, symbol types.Symbol, origOrderID types.OrderID) Event {
	return Event{
		Kind:          KindCancel,
		UserID:        userID,
		ClientOrderID: clientOrderID,
		Sym:           symbol,
		OrigOrderID:   origOrderID,
	}
}

// TopOfBook builds a TopOfBook query event.
func TopOfBook(userID types.UserID, clientOrderID types.OrderID, symbol types.Symbol) Event {
	return Event{
		Kind:          KindTopOfBook,
		UserID:        userID,
		ClientOrderID: clientOrderID,
		Sym:           symbol,
	}
}

// Quit builds the sole Quit event, which carries no payload.
func Quit() Event {
	return Event{Kind: KindQuit}
}
