package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSymbolRoundTripAndPadding(t *testing.T) {
	s := NewSymbol("AAPL")
	assert.Equal(t, "AAPL", s.String())
	assert.False(t, s.IsInvalid())

	full := NewSymbol("ABCDEFGH")
	assert.Equal(t, "ABCDEFGH", full.String())

	truncated := NewSymbol("ABCDEFGHIJ")
	assert.Equal(t, "ABCDEFGH", truncated.String())
}

func TestSymbolZeroValueIsInvalid(t *testing.T) {
	var s Symbol
	assert.True(t, s.IsInvalid())
	assert.Equal(t, "", s.String())
	assert.Equal(t, InvalidSymbol, s)
}

func TestSymbolEqualityAndOrdering(t *testing.T) {
	assert.Equal(t, NewSymbol("AAPL"), NewSymbol("AAPL"))
	assert.NotEqual(t, NewSymbol("AAPL"), NewSymbol("GOOGL"))
	assert.True(t, NewSymbol("AAPL").Less(NewSymbol("GOOGL")))
	assert.False(t, NewSymbol("GOOGL").Less(NewSymbol("AAPL")))
}

func TestSymbolUsableAsMapKey(t *testing.T) {
	m := map[Symbol]int{
		NewSymbol("AAPL"):  1,
		NewSymbol("GOOGL"): 2,
	}
	assert.Equal(t, 1, m[NewSymbol("AAPL")])
	assert.Equal(t, 2, m[NewSymbol("GOOGL")])
}

func TestUserIDRoundTrip(t *testing.T) {
	u := NewUserID("trader-1")
	assert.Equal(t, "trader-1", u.String())
	assert.False(t, u.IsInvalid())

	var zero UserID
	assert.True(t, zero.IsInvalid())
}
