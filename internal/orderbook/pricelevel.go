package orderbook

import (
	"github.com/rishav/exchange-engine/internal/orders"
	"github.com/rishav/exchange-engine/internal/types"
)

// orderNode is a node in the doubly-linked FIFO queue of orders resting
// at one price level. A doubly-linked list gives O(1) removal from
// anywhere in the queue, which matters because cancellation must be
// O(1) once the order-id lookup index has found the node.
type orderNode struct {
	Order *orders.Order
	prev  *orderNode
	next  *orderNode
	level *PriceLevel // back-pointer for O(1) removal
}

func (n *orderNode) Next() *orderNode {
	return n.next
}

// PriceLevel holds every order resting at one price, in arrival order.
type PriceLevel struct {
	Price    types.Price
	head     *orderNode
	tail     *orderNode
	count    int
	TotalQty types.Quantity
}

func newPriceLevel(price types.Price) *PriceLevel {
	return &PriceLevel{Price: price}
}

func (pl *PriceLevel) Count() int {
	return pl.count
}

func (pl *PriceLevel) IsEmpty() bool {
	return pl.count == 0
}

func (pl *PriceLevel) Head() *orderNode {
	return pl.head
}

// Append adds an order to the tail of the queue (lowest time priority
// at this price). Returns the node for O(1) later removal.
func (pl *PriceLevel) Append(order *orders.Order) *orderNode {
	node := &orderNode{Order: order, level: pl}

	if pl.tail == nil {
		pl.head = node
		pl.tail = node
	} else {
		node.prev = pl.tail
		pl.tail.next = node
		pl.tail = node
	}

	pl.count++
	pl.TotalQty += order.OpenQuantity
	return node
}

// Remove detaches node from the queue in O(1).
func (pl *PriceLevel) Remove(node *orderNode) {
	if node == nil {
		return
	}

	pl.TotalQty -= node.Order.OpenQuantity
	pl.count--

	if node.prev != nil {
		node.prev.next = node.next
	} else {
		pl.head = node.next
	}

	if node.next != nil {
		node.next.prev = node.prev
	} else {
		pl.tail = node.prev
	}

	node.prev = nil
	node.next = nil
	node.level = nil
}

// ReduceQuantity adjusts TotalQty when an order at this level is
// partially filled without being removed.
func (pl *PriceLevel) ReduceQuantity(delta types.Quantity) {
	pl.TotalQty -= delta
}
