// Package orderbook implements the per-symbol dual-indexed order book:
// a price-time-sequence priority index per side (a red-black tree of
// PriceLevel, each a FIFO queue) plus an order-id lookup index per side
// for O(1) cancellation. This is where matching, cancellation, and
// top-of-book actually happen — each shard owns a disjoint set of Books
// and calls into them from its single worker goroutine only, so no
// locking is needed inside Book itself.
package orderbook

import (
	"github.com/rishav/exchange-engine/internal/orders"
	"github.com/rishav/exchange-engine/internal/reports"
	"github.com/rishav/exchange-engine/internal/types"
)

// Book is one symbol's order book.
type Book struct {
	symbol types.Symbol

	bids *rbTree // buy orders, sorted by price descending
	asks *rbTree // sell orders, sorted by price ascending

	bidIndex map[types.OrderID]*orderNode
	askIndex map[types.OrderID]*orderNode

	nextSeq types.SequenceNumber
}

// New creates an empty book for symbol.
func New(symbol types.Symbol) *Book {
	return &Book{
		symbol:   symbol,
		bids:     newRBTree(true),
		asks:     newRBTree(false),
		bidIndex: make(map[types.OrderID]*orderNode),
		askIndex: make(map[types.OrderID]*orderNode),
	}
}

func (b *Book) Symbol() types.Symbol {
	return b.symbol
}

func (b *Book) sideIndex(side types.Side) (tree *rbTree, index map[types.OrderID]*orderNode) {
	if side == types.SideBuy {
		return b.bids, b.bidIndex
	}
	return b.asks, b.askIndex
}

func (b *Book) oppositeSideIndex(side types.Side) (tree *rbTree, index map[types.OrderID]*orderNode) {
	return b.sideIndex(side.Opposite())
}

func (b *Book) nextSequence() types.SequenceNumber {
	b.nextSeq++
	return b.nextSeq
}

// insert places a resting order into the given side's book, creating its
// price level if needed, and records its node in the lookup index.
func (b *Book) insert(tree *rbTree, index map[types.OrderID]*orderNode, order *orders.Order) {
	level := tree.Get(order.Price)
	if level == nil {
		level = newPriceLevel(order.Price)
		tree.Insert(level)
	}
	node := level.Append(order)
	index[order.ClientOrderID] = node
}

// removeNode detaches node from its price level and index, deleting the
// level from the tree if it becomes empty.
func (b *Book) removeNode(tree *rbTree, index map[types.OrderID]*orderNode, node *orderNode) {
	level := node.level
	price := level.Price
	level.Remove(node)
	delete(index, node.Order.ClientOrderID)
	if level.IsEmpty() {
		tree.Delete(price)
	}
}

// tradePrice is the single function routing the trade-price-attribution
// policy: the resting order's price, giving the aggressor price
// improvement. A future change to this policy (e.g. mid-price) is a
// one-function edit.
func tradePrice(resting *orders.Order, _ *orders.Order) types.Price {
	return resting.Price
}

// crosses reports whether an incoming order at (typ, price) crosses a
// resting order at bestPrice on the opposite side, for the given side.
func crosses(side types.Side, typ types.OrderType, price types.Price, bestPrice types.Price) bool {
	if typ == types.TypeMarket {
		return true
	}
	if side == types.SideBuy {
		return price >= bestPrice
	}
	return price <= bestPrice
}

// SubmitNewOrder matches or rests an incoming order. Returns false if
// side is invalid; otherwise true, having emitted zero or more reports
// into out.
func (b *Book) SubmitNewOrder(userID types.UserID, clientOrderID types.OrderID, side types.Side, typ types.OrderType, price types.Price, quantity types.Quantity, ts types.Timestamp, out *[]reports.Report) bool {
	if side != types.SideBuy && side != types.SideSell {
		return false
	}
	if quantity <= 0 {
		// Edge case policy: zero/negative quantity events produce no
		// reports and do not crash.
		return true
	}

	sameTree, sameIndex := b.sideIndex(side)
	oppTree, oppIndex := b.oppositeSideIndex(side)

	best := oppTree.Best()
	if best != nil && crosses(side, typ, price, best.Price) {
		order := orders.New(userID, clientOrderID, b.symbol, side, typ, price, quantity, ts, 0, 0)
		b.matchAggressive(order, oppTree, oppIndex, out)
		return true
	}

	switch typ {
	case types.TypeLimit:
		order := orders.New(userID, clientOrderID, b.symbol, side, typ, price, quantity, ts, b.nextSequence(), 0)
		b.insert(sameTree, sameIndex, order)
	case types.TypeMarket:
		*out = append(*out, reports.Report{
			Kind: reports.KindCanceled,
			Canceled: reports.OrderCanceledReport{
				Symbol:            b.symbol,
				OrderID:           clientOrderID,
				RemainingQuantity: quantity,
				Reason:            types.ReasonFillAndKill,
			},
		})
	default:
		return false
	}
	return true
}

// matchAggressive runs the aggressive-matching algorithm against the
// opposite side, then disposes of any residual quantity. Any residual is
// fill-and-kill; the aggressive order never rests, even a Limit order
// that only stopped because the book ran dry.
func (b *Book) matchAggressive(aggr *orders.Order, oppTree *rbTree, oppIndex map[types.OrderID]*orderNode, out *[]reports.Report) {
	var filled types.Quantity

	for filled < aggr.Quantity {
		level := oppTree.Best()
		if level == nil {
			break
		}
		if !crosses(aggr.Side, aggr.Type, aggr.Price, level.Price) {
			break
		}

		node := level.Head()
		for node != nil && filled < aggr.Quantity {
			resting := node.Order
			next := node.Next()

			take := aggr.Quantity - filled
			if rem := resting.OpenQuantity; rem < take {
				take = rem
			}

			restingFilled := resting.Fill(take)
			aggr.Fill(restingFilled)
			filled += restingFilled

			price := tradePrice(resting, aggr)
			*out = append(*out,
				reports.Report{
					Kind: reports.KindExecution,
					Execution: reports.ExecutionReport{
						Symbol:         b.symbol,
						OrderID:        resting.ClientOrderID,
						OtherOrderID:   aggr.ClientOrderID,
						FilledQuantity: restingFilled,
						Price:          price,
					},
				},
				reports.Report{
					Kind: reports.KindExecution,
					Execution: reports.ExecutionReport{
						Symbol:         b.symbol,
						OrderID:        aggr.ClientOrderID,
						OtherOrderID:   resting.ClientOrderID,
						FilledQuantity: restingFilled,
						Price:          price,
					},
				},
			)

			// Reduce before any removal: Remove subtracts the (already
			// reduced) open quantity, so the level total stays exact.
			level.ReduceQuantity(restingFilled)
			if resting.Status == types.StatusFilled {
				b.removeNode(oppTree, oppIndex, node)
			}

			node = next
		}
	}

	if filled >= aggr.Quantity {
		return
	}

	// Any residual of an aggressive order is fill-and-kill, whether the
	// opposite side ran dry or simply stopped crossing. An exhausted
	// book yields a cancellation, not a resting residual, even for a
	// Limit order.
	remaining := aggr.Quantity - filled
	*out = append(*out, reports.Report{
		Kind: reports.KindCanceled,
		Canceled: reports.OrderCanceledReport{
			Symbol:            b.symbol,
			OrderID:           aggr.ClientOrderID,
			RemainingQuantity: remaining,
			Reason:            types.ReasonFillAndKill,
		},
	})
}

// SubmitCancelOrder looks the order up on either side and removes it.
// Returns false (emitting nothing) if the id isn't resting anywhere.
func (b *Book) SubmitCancelOrder(origOrderID types.OrderID, out *[]reports.Report) bool {
	if node, ok := b.bidIndex[origOrderID]; ok {
		remaining := node.Order.OpenQuantity
		node.Order.Cancel()
		b.removeNode(b.bids, b.bidIndex, node)
		*out = append(*out, reports.Report{
			Kind: reports.KindCanceled,
			Canceled: reports.OrderCanceledReport{
				Symbol:            b.symbol,
				OrderID:           origOrderID,
				RemainingQuantity: remaining,
				Reason:            types.ReasonUserCanceled,
			},
		})
		return true
	}
	if node, ok := b.askIndex[origOrderID]; ok {
		remaining := node.Order.OpenQuantity
		node.Order.Cancel()
		b.removeNode(b.asks, b.askIndex, node)
		*out = append(*out, reports.Report{
			Kind: reports.KindCanceled,
			Canceled: reports.OrderCanceledReport{
				Symbol:            b.symbol,
				OrderID:           origOrderID,
				RemainingQuantity: remaining,
				Reason:            types.ReasonUserCanceled,
			},
		})
		return true
	}
	return false
}

// SubmitTopOfBook is a pure read: it never mutates the book.
func (b *Book) SubmitTopOfBook() reports.TopOfBookReport {
	report := reports.TopOfBookReport{Symbol: b.symbol}

	if bid := b.bids.Best(); bid != nil {
		best := bid.Head().Order
		report.Bid = reports.NewSingleOrderReport(best.ClientOrderID, best.Price, best.OpenQuantity)
	} else {
		report.Bid = reports.InvalidSingleOrderReport
	}

	if ask := b.asks.Best(); ask != nil {
		best := ask.Head().Order
		report.Ask = reports.NewSingleOrderReport(best.ClientOrderID, best.Price, best.OpenQuantity)
	} else {
		report.Ask = reports.InvalidSingleOrderReport
	}

	return report
}

// BestBidPrice and BestAskPrice support diagnostics/tests without
// exposing the tree internals.
func (b *Book) BestBidPrice() (types.Price, bool) {
	if lvl := b.bids.Best(); lvl != nil {
		return lvl.Price, true
	}
	return types.InvalidPrice, false
}

func (b *Book) BestAskPrice() (types.Price, bool) {
	if lvl := b.asks.Best(); lvl != nil {
		return lvl.Price, true
	}
	return types.InvalidPrice, false
}

// BidLevels and AskLevels report the number of distinct resting price
// levels on each side, for diagnostics and invariant tests.
func (b *Book) BidLevels() int { return b.bids.Size() }
func (b *Book) AskLevels() int { return b.asks.Size() }

// TotalOrders returns the number of resting orders across both sides.
func (b *Book) TotalOrders() int {
	return len(b.bidIndex) + len(b.askIndex)
}

// Order looks up a resting order by id, for tests and diagnostics.
func (b *Book) Order(id types.OrderID) (*orders.Order, bool) {
	if node, ok := b.bidIndex[id]; ok {
		return node.Order, true
	}
	if node, ok := b.askIndex[id]; ok {
		return node.Order, true
	}
	return nil, false
}
