// Package riskgate implements a lightweight pre-dispatch sanity gate:
// an order-size bound and a price-band check against the last traded
// price, run by the Exchange before an event ever reaches a shard.
// There are deliberately no position or volume limits: those require
// running per-account state across orders, and the engine keeps none.
// The two checks here need nothing beyond the last trade price, which
// is derived from in-flight reports rather than anything persisted.
package riskgate

import (
	"sync"

	"github.com/rishav/exchange-engine/internal/events"
	"github.com/rishav/exchange-engine/internal/reports"
	"github.com/rishav/exchange-engine/internal/types"
)

// Config configures the gate.
type Config struct {
	// MaxOrderSize bounds the quantity of any single incoming order.
	MaxOrderSize types.Quantity

	// PriceBandPercent bounds how far a limit order's price may sit from
	// the symbol's last traded price (0.10 = 10%). Zero disables the
	// check. Ignored until a trade has set a reference price.
	PriceBandPercent float64
}

// DefaultConfig returns reasonable defaults.
func DefaultConfig() Config {
	return Config{
		MaxOrderSize:     100000,
		PriceBandPercent: 0.10,
	}
}

// Gate performs the two checks that don't require persistent
// cross-order state. Safe for concurrent use: the Exchange calls Check
// from the ingress callback, which may run concurrently, while
// UpdateFromReport is called from the report sink's tap.
type Gate struct {
	config Config

	mu              sync.RWMutex
	referencePrices map[types.Symbol]types.Price
}

// New constructs a Gate.
func New(config Config) *Gate {
	return &Gate{
		config:          config,
		referencePrices: make(map[types.Symbol]types.Price),
	}
}

// Check reports whether e passes the gate, and if not, why. Only
// NewOrder events are checked; every other kind always passes — a
// Cancel, TopOfBook, or Quit cannot itself be a fat-fingered order.
func (g *Gate) Check(e events.Event) (bool, string) {
	if e.Kind != events.KindNewOrder {
		return true, ""
	}

	if e.Quantity <= 0 {
		// Not this gate's concern: the book treats a non-positive
		// quantity as a silent no-op, so there is nothing worth
		// rejecting here.
		return true, ""
	}

	if g.config.MaxOrderSize > 0 && e.Quantity > g.config.MaxOrderSize {
		return false, "order size exceeds maximum"
	}

	if e.Type == types.TypeLimit && g.config.PriceBandPercent > 0 {
		if ok, reason := g.checkPriceBand(e.Sym, e.Price); !ok {
			return false, reason
		}
	}

	return true, ""
}

func (g *Gate) checkPriceBand(symbol types.Symbol, price types.Price) (bool, string) {
	g.mu.RLock()
	ref, known := g.referencePrices[symbol]
	g.mu.RUnlock()

	if !known || ref <= 0 {
		// No trade has happened yet for this symbol; nothing to band
		// against, so let the order through.
		return true, ""
	}

	band := float64(ref) * g.config.PriceBandPercent
	low := types.Price(float64(ref) - band)
	high := types.Price(float64(ref) + band)
	if price < low || price > high {
		return false, "price outside band around last trade"
	}
	return true, ""
}

// UpdateFromReport is registered alongside (or composed with) the report
// sink's tap so the gate's price band tracks the market without any
// caller having to thread trade prices through separately.
func (g *Gate) UpdateFromReport(r reports.Report) {
	if r.Kind != reports.KindExecution {
		return
	}
	g.mu.Lock()
	g.referencePrices[r.Execution.Symbol] = r.Execution.Price
	g.mu.Unlock()
}
