// Package tests drives the whole engine end-to-end over its real wire:
// CSV datagrams in over loopback UDP, report lines out through the
// report sink, pinning both the matching semantics and the textual
// formats an external reader of the output depends on.
package tests

import (
	"bytes"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rishav/exchange-engine/internal/dispatcher"
	"github.com/rishav/exchange-engine/internal/exchange"
	"github.com/rishav/exchange-engine/internal/ingress"
	"github.com/rishav/exchange-engine/internal/reportsink"
	"github.com/rishav/exchange-engine/internal/riskgate"
	"github.com/rishav/exchange-engine/internal/types"
)

var centsSpec = types.PriceSpec{Scale: 100, TickScaled: 1}

// engineHarness is a full engine on an ephemeral UDP port, reports
// captured in memory.
type engineHarness struct {
	t    *testing.T
	out  *bytes.Buffer
	conn net.Conn
	done chan struct{}
	exch *exchange.Exchange
	lst  *ingress.Listener
}

type udpIngress struct {
	l *ingress.Listener
}

func (u udpIngress) Subscribe(handle func(line string)) exchange.Handle {
	return u.l.Subscribe(handle)
}

func startEngine(t *testing.T, symbols ...string) *engineHarness {
	t.Helper()
	log := zap.NewNop()

	syms := make([]types.Symbol, len(symbols))
	for i, s := range symbols {
		syms[i] = types.NewSymbol(s)
	}

	out := &bytes.Buffer{}
	sink := reportsink.New(out, 4096, log)
	manager := dispatcher.NewManager(syms, 2, 1024, sink, log)
	gate := riskgate.New(riskgate.DefaultConfig())

	lst, err := ingress.Listen(0, log)
	require.NoError(t, err)

	exch := exchange.New(udpIngress{l: lst}, manager, sink, gate, centsSpec, nil, log)

	sink.Start()
	manager.Start()
	done := make(chan struct{})
	go func() {
		exch.Start()
		close(done)
	}()

	conn, err := net.Dial("udp", net.JoinHostPort("127.0.0.1", strconv.Itoa(lst.Port())))
	require.NoError(t, err)

	return &engineHarness{t: t, out: out, conn: conn, done: done, exch: exch, lst: lst}
}

// send fires one datagram and leaves the engine a moment to process it,
// so per-symbol arrival order is the wire order.
func (h *engineHarness) send(line string) {
	h.t.Helper()
	_, err := h.conn.Write([]byte(line))
	require.NoError(h.t, err)
	time.Sleep(10 * time.Millisecond)
}

// shutdown sends the quit datagram, waits for the engine to stop, and
// returns the captured report lines.
func (h *engineHarness) shutdown() []string {
	h.t.Helper()
	h.send("Q")
	select {
	case <-h.done:
	case <-time.After(5 * time.Second):
		h.t.Fatal("engine did not shut down on quit")
	}
	h.lst.Close()
	h.conn.Close()

	text := strings.TrimSpace(h.out.String())
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

func TestRestQueryCancelOverTheWire(t *testing.T) {
	h := startEngine(t, "AAPL")

	h.send("D, u1, 1001, AAPL, 100, BUY, LIMIT, 150.00")
	h.send("V, u1, 1001, AAPL")
	h.send("F, u1, 1001, AAPL, 1001")
	h.send("V, u1, 1001, AAPL")

	lines := h.shutdown()
	require.Equal(t, []string{
		"TopOfBookReport{symbol=AAPL, bid=SingleOrderReport{orderId=1001, price=150.00, openQty=100}, ask=SingleOrderReport{orderId=invalid, price=invalid, openQty=invalid}}",
		"OrderCanceledReport{symbol=AAPL, orderId=1001, remaining=100, reason=User_Canceled}",
		"TopOfBookReport{symbol=AAPL, bid=SingleOrderReport{orderId=invalid, price=invalid, openQty=invalid}, ask=SingleOrderReport{orderId=invalid, price=invalid, openQty=invalid}}",
	}, lines)
}

func TestMarketIntoEmptyBookOverTheWire(t *testing.T) {
	h := startEngine(t, "AAPL")

	h.send("D, u1, 1003, AAPL, 100, BUY, MARKET")

	lines := h.shutdown()
	require.Equal(t, []string{
		"OrderCanceledReport{symbol=AAPL, orderId=1003, remaining=100, reason=Fill_And_Kill}",
	}, lines)
}

func TestAggressiveCrossOverTheWire(t *testing.T) {
	h := startEngine(t, "AAPL")

	h.send("D, u2, 2001, AAPL, 100, SELL, LIMIT, 150.00")
	h.send("D, u1, 2002, AAPL, 50, BUY, LIMIT, 151.00")
	h.send("V, u1, 2002, AAPL")

	lines := h.shutdown()
	require.Equal(t, []string{
		"ExecutionReport{symbol=AAPL, orderId=2001, otherOrderId=2002, filledQuantity=50, price=150.00}",
		"ExecutionReport{symbol=AAPL, orderId=2002, otherOrderId=2001, filledQuantity=50, price=150.00}",
		"TopOfBookReport{symbol=AAPL, bid=SingleOrderReport{orderId=invalid, price=invalid, openQty=invalid}, ask=SingleOrderReport{orderId=2001, price=150.00, openQty=50}}",
	}, lines)
}

func TestPriceTimePriorityOverTheWire(t *testing.T) {
	h := startEngine(t, "AAPL")

	h.send("D, u2, 6001, AAPL, 50, SELL, LIMIT, 150.00")
	h.send("D, u2, 6002, AAPL, 30, SELL, LIMIT, 150.00")
	h.send("D, u2, 6003, AAPL, 40, SELL, LIMIT, 149.50")
	h.send("D, u2, 6004, AAPL, 20, SELL, LIMIT, 149.00")
	h.send("D, u1, 6005, AAPL, 100, BUY, LIMIT, 151.00")

	lines := h.shutdown()
	require.Equal(t, []string{
		"ExecutionReport{symbol=AAPL, orderId=6004, otherOrderId=6005, filledQuantity=20, price=149.00}",
		"ExecutionReport{symbol=AAPL, orderId=6005, otherOrderId=6004, filledQuantity=20, price=149.00}",
		"ExecutionReport{symbol=AAPL, orderId=6003, otherOrderId=6005, filledQuantity=40, price=149.50}",
		"ExecutionReport{symbol=AAPL, orderId=6005, otherOrderId=6003, filledQuantity=40, price=149.50}",
		"ExecutionReport{symbol=AAPL, orderId=6001, otherOrderId=6005, filledQuantity=40, price=150.00}",
		"ExecutionReport{symbol=AAPL, orderId=6005, otherOrderId=6001, filledQuantity=40, price=150.00}",
	}, lines)
}

func TestExhaustedBookResidualFillAndKillOverTheWire(t *testing.T) {
	h := startEngine(t, "AAPL")

	h.send("D, u2, 7001, AAPL, 10, SELL, LIMIT, 150.00")
	h.send("D, u2, 7002, AAPL, 10, SELL, LIMIT, 150.01")
	h.send("D, u2, 7003, AAPL, 10, SELL, LIMIT, 150.02")
	h.send("D, u2, 7004, AAPL, 10, SELL, LIMIT, 150.03")
	h.send("D, u2, 7005, AAPL, 10, SELL, LIMIT, 150.04")
	h.send("D, u1, 8005, AAPL, 100, BUY, LIMIT, 155.00")

	lines := h.shutdown()
	require.Len(t, lines, 11, "ten executions plus one residual cancel")

	var aggressorFilled int
	for _, line := range lines[:10] {
		assert.True(t, strings.HasPrefix(line, "ExecutionReport{"), "line %q", line)
		if strings.Contains(line, "orderId=8005,") {
			aggressorFilled += 10
		}
	}
	assert.Equal(t, 50, aggressorFilled)
	assert.Equal(t,
		"OrderCanceledReport{symbol=AAPL, orderId=8005, remaining=50, reason=Fill_And_Kill}",
		lines[10])
}

func TestMalformedLinesAreAbsorbed(t *testing.T) {
	h := startEngine(t, "AAPL")

	h.send("this is not an event")
	h.send("D, u1, nope, AAPL, 100, BUY, LIMIT, 150.00")
	h.send("D, u1, 1, AAPL, 100, BUY, LIMIT, 150.005")
	h.send("V, u1, 2, AAPL")

	lines := h.shutdown()
	require.Equal(t, []string{
		"TopOfBookReport{symbol=AAPL, bid=SingleOrderReport{orderId=invalid, price=invalid, openQty=invalid}, ask=SingleOrderReport{orderId=invalid, price=invalid, openQty=invalid}}",
	}, lines, "bad lines leave no trace; the next good event processes normally")
}

func TestMultiSymbolIsolation(t *testing.T) {
	h := startEngine(t, "AAPL", "GOOGL", "MSFT")

	h.send("D, u1, 1, AAPL, 100, BUY, LIMIT, 150.00")
	h.send("D, u1, 2, GOOGL, 100, SELL, LIMIT, 90.00")
	h.send("D, u2, 3, GOOGL, 40, BUY, LIMIT, 90.00")
	h.send("V, u1, 4, AAPL")
	h.send("V, u1, 5, MSFT")

	lines := h.shutdown()

	var googlExecs, aaplTops, msftTops int
	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "ExecutionReport{symbol=GOOGL"):
			googlExecs++
		case strings.HasPrefix(line, "TopOfBookReport{symbol=AAPL"):
			aaplTops++
			assert.Contains(t, line, "bid=SingleOrderReport{orderId=1, price=150.00, openQty=100}")
		case strings.HasPrefix(line, "TopOfBookReport{symbol=MSFT"):
			msftTops++
			assert.Contains(t, line, "bid=SingleOrderReport{orderId=invalid")
		}
	}
	assert.Equal(t, 2, googlExecs, "the GOOGL cross never touches the AAPL book")
	assert.Equal(t, 1, aaplTops)
	assert.Equal(t, 1, msftTops)
}

func TestNoReportsAfterQuit(t *testing.T) {
	h := startEngine(t, "AAPL")

	h.send("D, u1, 1, AAPL, 100, BUY, LIMIT, 150.00")
	h.send("V, u1, 2, AAPL")

	lines := h.shutdown()
	baseline := len(lines)

	// The socket is closed and workers joined; nothing can add output.
	time.Sleep(50 * time.Millisecond)
	text := strings.TrimSpace(h.out.String())
	if text == "" {
		assert.Zero(t, baseline)
	} else {
		assert.Len(t, strings.Split(text, "\n"), baseline)
	}
}

func TestUnknownSymbolDatagramIsDropped(t *testing.T) {
	h := startEngine(t, "AAPL")

	h.send("D, u1, 1, ZZZZ, 100, BUY, LIMIT, 150.00")
	h.send("V, u1, 2, AAPL")

	lines := h.shutdown()
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0], "TopOfBookReport{symbol=AAPL"))
}
