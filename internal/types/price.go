package types

import (
	"math"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Price is a strong wrapper over a signed tick count. Two values are
// comparable by the wrapped integer; there is no notion of "price" that
// isn't an integer number of ticks for some instrument.
type Price int64

const (
	// InvalidPrice compares less than every valid price.
	InvalidPrice Price = math.MinInt64

	// MarketPrice compares greater than every valid price. It is only
	// ever carried on an inbound market order and never rests in a book.
	MarketPrice Price = math.MaxInt64
)

// PriceSpec parameterises the decimal<->tick conversion for one
// instrument: ticks = round(price * Scale / TickScaled). Both fields
// must be positive.
type PriceSpec struct {
	Scale      int64
	TickScaled int64
}

// DefaultTickSize is the shipping default used to render ticks back to a
// decimal string when no richer formatting context is available.
const DefaultTickSize = "0.01"

// renderTick is the tick size Price.String renders with. It defaults to
// DefaultTickSize and is set once at startup if the operator overrides
// the tick size; it is not safe to change while the engine is running.
var renderTick = decimal.RequireFromString(DefaultTickSize)

// SetRenderTickSize overrides the tick size used by Price.String. Call
// before any goroutine starts rendering reports.
func SetRenderTickSize(tick decimal.Decimal) {
	renderTick = tick
}

// SpecForTick derives the PriceSpec whose grid is a multiple of tick:
// tick = TickScaled / Scale. Fails on a non-positive tick or one too
// fine to represent with int64 scaling.
func SpecForTick(tick decimal.Decimal) (PriceSpec, error) {
	if tick.Sign() <= 0 {
		return PriceSpec{}, errors.New("tick size must be positive")
	}

	exp := int64(tick.Exponent())
	coef := tick.Coefficient()
	if !coef.IsInt64() {
		return PriceSpec{}, errors.Errorf("tick size %s is too fine", tick)
	}

	spec := PriceSpec{Scale: 1, TickScaled: coef.Int64()}
	for ; exp > 0; exp-- {
		spec.TickScaled *= 10
	}
	for ; exp < 0; exp++ {
		if spec.Scale > math.MaxInt64/10 {
			return PriceSpec{}, errors.Errorf("tick size %s is too fine", tick)
		}
		spec.Scale *= 10
	}
	return spec, nil
}

// ErrNotOnTickGrid is returned when a decimal price does not fall on the
// instrument's tick grid.
var ErrNotOnTickGrid = errors.New("price is not a multiple of the instrument tick size")

// ToPrice converts a decimal price to ticks under this PriceSpec. It
// fails if the scaled value is not an integral multiple of TickScaled.
func (spec PriceSpec) ToPrice(price decimal.Decimal) (Price, error) {
	if spec.Scale <= 0 || spec.TickScaled <= 0 {
		return InvalidPrice, errors.New("invalid PriceSpec: scale and tick_scaled must be positive")
	}

	scaled := price.Mul(decimal.NewFromInt(spec.Scale))
	tickScaled := decimal.NewFromInt(spec.TickScaled)

	quotient := scaled.Div(tickScaled)
	ticks := quotient.Round(0)

	// Reject anything that wasn't already an integer multiple, rather
	// than silently rounding a mis-keyed price onto the grid.
	if !quotient.Equal(ticks) {
		return InvalidPrice, ErrNotOnTickGrid
	}

	return Price(ticks.IntPart()), nil
}

// ToDecimal renders ticks back to a decimal price under this PriceSpec.
func (spec PriceSpec) ToDecimal(p Price) decimal.Decimal {
	ticks := decimal.NewFromInt(int64(p))
	tickScaled := decimal.NewFromInt(spec.TickScaled)
	scale := decimal.NewFromInt(spec.Scale)
	return ticks.Mul(tickScaled).Div(scale)
}

// String renders p as ticks times the configured tick size (0.01 in the
// shipping configuration), which is how every report line displays a
// price.
func (p Price) String() string {
	return decimal.NewFromInt(int64(p)).Mul(renderTick).StringFixed(2)
}
