// Package ingress is the wire boundary: a UDP datagram listener with a
// subscribe/handle surface, and the CSV event grammar decoder turning
// one datagram line into one typed event.
package ingress

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/rishav/exchange-engine/internal/events"
	"github.com/rishav/exchange-engine/internal/types"
)

// ErrInvalidTag is returned when the first field isn't a recognized
// event tag.
var ErrInvalidTag = errors.New("ingress: invalid event tag")

// tokenize splits line on unquoted commas. A quoted field "…" may
// contain commas and escaped characters via a leading backslash; the
// surrounding quotes are stripped from the returned token.
func tokenize(line string) ([]string, error) {
	var tokens []string
	var cur strings.Builder
	inQuotes := false
	escaped := false

	for _, r := range line {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\' && inQuotes:
			escaped = true
		case r == '"':
			inQuotes = !inQuotes
		case r == ',' && !inQuotes:
			tokens = append(tokens, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	if inQuotes {
		return nil, errors.New("ingress: unterminated quoted field")
	}
	tokens = append(tokens, cur.String())

	for i, t := range tokens {
		tokens[i] = strings.TrimSpace(t)
	}
	return tokens, nil
}

// parseSide accepts BUY|SELL|1|2, case-insensitive.
func parseSide(s string) (types.Side, error) {
	switch strings.ToUpper(s) {
	case "BUY", "1":
		return types.SideBuy, nil
	case "SELL", "2":
		return types.SideSell, nil
	default:
		return types.SideInvalid, errors.Errorf("ingress: invalid side %q", s)
	}
}

// parseType accepts MARKET|LIMIT|1|2, case-insensitive.
func parseType(s string) (types.OrderType, error) {
	switch strings.ToUpper(s) {
	case "MARKET", "1":
		return types.TypeMarket, nil
	case "LIMIT", "2":
		return types.TypeLimit, nil
	default:
		return types.TypeInvalid, errors.Errorf("ingress: invalid order type %q", s)
	}
}

func parseUint64(s, field string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "ingress: invalid %s %q", field, s)
	}
	return v, nil
}

func parseInt64(s, field string) (int64, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "ingress: invalid %s %q", field, s)
	}
	return v, nil
}

// Decode parses one CSV line into an Event, given the tick-grid spec
// for price conversion. Quit carries no payload and needs no spec.
func Decode(line string, spec types.PriceSpec) (events.Event, error) {
	tokens, err := tokenize(line)
	if err != nil {
		return events.Event{}, err
	}
	if len(tokens) == 0 || tokens[0] == "" {
		return events.Event{}, ErrInvalidTag
	}

	tag := strings.ToUpper(tokens[0])
	switch tag {
	case "D":
		return decodeNewOrder(tokens, spec)
	case "F":
		return decodeCancel(tokens)
	case "V":
		return decodeTopOfBook(tokens)
	case "Q", "QUIT":
		return events.Quit(), nil
	default:
		return events.Event{}, errors.Wrapf(ErrInvalidTag, "tag %q", tokens[0])
	}
}

// processStart anchors NewOrder timestamps to process start.
var processStart = time.Now()

// decodeNewOrder: D, user_id, client_order_id, symbol, quantity, side, type[, price]
func decodeNewOrder(tokens []string, spec types.PriceSpec) (events.Event, error) {
	if len(tokens) < 7 {
		return events.Event{}, errors.New("ingress: NewOrder requires at least 7 fields")
	}

	userID := types.NewUserID(tokens[1])

	clientOrderIDRaw, err := parseUint64(tokens[2], "client_order_id")
	if err != nil {
		return events.Event{}, err
	}
	clientOrderID := types.OrderID(clientOrderIDRaw)

	symbol := types.NewSymbol(tokens[3])

	quantityRaw, err := parseInt64(tokens[4], "quantity")
	if err != nil {
		return events.Event{}, err
	}
	quantity := types.Quantity(quantityRaw)

	side, err := parseSide(tokens[5])
	if err != nil {
		return events.Event{}, err
	}

	typ, err := parseType(tokens[6])
	if err != nil {
		return events.Event{}, err
	}

	price := types.InvalidPrice
	if typ == types.TypeLimit {
		if len(tokens) < 8 || tokens[7] == "" {
			return events.Event{}, errors.New("ingress: NewOrder with type=Limit requires a price field")
		}
		dec, err := decimal.NewFromString(tokens[7])
		if err != nil {
			return events.Event{}, errors.Wrapf(err, "ingress: invalid price %q", tokens[7])
		}
		price, err = spec.ToPrice(dec)
		if err != nil {
			return events.Event{}, err
		}
	}

	// time.Since reads the monotonic clock, so timestamps never go
	// backwards when the wall clock is adjusted.
	ts := types.Timestamp(time.Since(processStart))
	return events.NewOrder(userID, clientOrderID, symbol, quantity, side, typ, price, ts), nil
}

// decodeCancel: F, user_id, client_order_id, symbol, orig_order_id
func decodeCancel(tokens []string) (events.Event, error) {
	if len(tokens) < 5 {
		return events.Event{}, errors.New("ingress: Cancel requires 5 fields")
	}
	userID := types.NewUserID(tokens[1])

	clientOrderIDRaw, err := parseUint64(tokens[2], "client_order_id")
	if err != nil {
		return events.Event{}, err
	}
	symbol := types.NewSymbol(tokens[3])

	origOrderIDRaw, err := parseUint64(tokens[4], "orig_order_id")
	if err != nil {
		return events.Event{}, err
	}

	return events.Cancel(userID, types.OrderID(clientOrderIDRaw), symbol, types.OrderID(origOrderIDRaw)), nil
}

// decodeTopOfBook: V, user_id, client_order_id, symbol
func decodeTopOfBook(tokens []string) (events.Event, error) {
	if len(tokens) < 4 {
		return events.Event{}, errors.New("ingress: TopOfBook requires 4 fields")
	}
	userID := types.NewUserID(tokens[1])

	clientOrderIDRaw, err := parseUint64(tokens[2], "client_order_id")
	if err != nil {
		return events.Event{}, err
	}
	symbol := types.NewSymbol(tokens[3])

	return events.TopOfBook(userID, types.OrderID(clientOrderIDRaw), symbol), nil
}
