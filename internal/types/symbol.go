// Package types defines the fixed-capacity, trivially-copyable value
// types shared by every component that touches the hot path: orders,
// events, and reports. None of these types carry a pointer, slice, or
// string field, so a value of any of them can be copied across a
// lock-free queue by plain assignment.
package types

import "bytes"

// SymbolCapacity is the maximum byte length of a Symbol.
const SymbolCapacity = 8

// UserIDCapacity is the maximum byte length of a UserID.
const UserIDCapacity = 32

// Symbol is a fixed-capacity, zero-padded instrument identifier.
// The zero value is InvalidSymbol.
type Symbol [SymbolCapacity]byte

// UserID is a fixed-capacity, zero-padded account identifier.
// The zero value is InvalidUserID.
type UserID [UserIDCapacity]byte

// InvalidSymbol is the all-zero sentinel.
var InvalidSymbol Symbol

// InvalidUserID is the all-zero sentinel.
var InvalidUserID UserID

// NewSymbol builds a Symbol from a string, truncating at SymbolCapacity
// bytes. Callers that need to detect truncation should check len(s).
func NewSymbol(s string) Symbol {
	var sym Symbol
	copy(sym[:], s)
	return sym
}

// NewUserID builds a UserID from a string, truncating at UserIDCapacity
// bytes.
func NewUserID(s string) UserID {
	var id UserID
	copy(id[:], s)
	return id
}

// String returns the trimmed (non-padding) string view.
func (s Symbol) String() string {
	return string(bytes.TrimRight(s[:], "\x00"))
}

// String returns the trimmed (non-padding) string view.
func (u UserID) String() string {
	return string(bytes.TrimRight(u[:], "\x00"))
}

// IsInvalid reports whether s is the all-zero sentinel.
func (s Symbol) IsInvalid() bool {
	return s == InvalidSymbol
}

// IsInvalid reports whether u is the all-zero sentinel.
func (u UserID) IsInvalid() bool {
	return u == InvalidUserID
}

// Less gives the total order used wherever symbols need to be sorted
// (diagnostics, depth dumps); matching itself only ever uses Symbol as a
// map key.
func (s Symbol) Less(o Symbol) bool {
	return bytes.Compare(s[:], o[:]) < 0
}
