// Package reports defines the three report types the matching core
// emits — execution, cancellation, and top-of-book — and their textual
// rendering, pinned to the wire-compatible format an external reader of
// this engine's output expects.
package reports

import (
	"fmt"

	"github.com/rishav/exchange-engine/internal/types"
)

// ExecutionReport is emitted once per side of a trade: one keyed by the
// resting order, one keyed by the aggressor, each naming the other as
// OtherOrderID.
type ExecutionReport struct {
	Symbol         types.Symbol
	OrderID        types.OrderID
	OtherOrderID   types.OrderID
	FilledQuantity types.Quantity
	Price          types.Price
}

func (r ExecutionReport) String() string {
	return fmt.Sprintf("ExecutionReport{symbol=%s, orderId=%d, otherOrderId=%d, filledQuantity=%d, price=%s}",
		r.Symbol, r.OrderID, r.OtherOrderID, r.FilledQuantity, r.Price)
}

// OrderCanceledReport is emitted for both resting cancels and residual
// fill-and-kill cancels of an aggressive order.
type OrderCanceledReport struct {
	Symbol            types.Symbol
	OrderID           types.OrderID
	RemainingQuantity types.Quantity
	Reason            types.CancelReason
}

func (r OrderCanceledReport) String() string {
	return fmt.Sprintf("OrderCanceledReport{symbol=%s, orderId=%d, remaining=%d, reason=%s}",
		r.Symbol, r.OrderID, r.RemainingQuantity, r.Reason)
}

// SingleOrderReport describes the best order on one side of the book,
// or the invalid sentinel if that side is empty.
type SingleOrderReport struct {
	OrderID  types.OrderID
	Price    types.Price
	OpenQty  types.Quantity
	valid    bool
}

// InvalidSingleOrderReport is the sentinel for an empty side.
var InvalidSingleOrderReport = SingleOrderReport{}

// NewSingleOrderReport builds a valid report for a resting order.
func NewSingleOrderReport(orderID types.OrderID, price types.Price, openQty types.Quantity) SingleOrderReport {
	return SingleOrderReport{OrderID: orderID, Price: price, OpenQty: openQty, valid: true}
}

// IsValid reports whether this describes an actual resting order.
func (r SingleOrderReport) IsValid() bool {
	return r.valid
}

func (r SingleOrderReport) String() string {
	if !r.valid {
		return "SingleOrderReport{orderId=invalid, price=invalid, openQty=invalid}"
	}
	return fmt.Sprintf("SingleOrderReport{orderId=%d, price=%s, openQty=%d}", r.OrderID, r.Price, r.OpenQty)
}

// TopOfBookReport is a pure-read snapshot of the best order on each side.
type TopOfBookReport struct {
	Symbol types.Symbol
	Bid    SingleOrderReport
	Ask    SingleOrderReport
}

func (r TopOfBookReport) String() string {
	return fmt.Sprintf("TopOfBookReport{symbol=%s, bid=%s, ask=%s}", r.Symbol, r.Bid, r.Ask)
}

// Kind discriminates which arm of Report is populated.
type Kind uint8

const (
	KindExecution Kind = iota
	KindCanceled
	KindTopOfBook
)

// Report is the tagged union carried through the ReportSink's queue.
// Exactly one of the three fields is meaningful, selected by Kind.
type Report struct {
	Kind      Kind
	Execution ExecutionReport
	Canceled  OrderCanceledReport
	TopOfBook TopOfBookReport
}

func (r Report) String() string {
	switch r.Kind {
	case KindExecution:
		return r.Execution.String()
	case KindCanceled:
		return r.Canceled.String()
	case KindTopOfBook:
		return r.TopOfBook.String()
	default:
		return "Report{invalid}"
	}
}
