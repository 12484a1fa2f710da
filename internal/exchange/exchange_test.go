package exchange

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rishav/exchange-engine/internal/events"
	"github.com/rishav/exchange-engine/internal/riskgate"
	"github.com/rishav/exchange-engine/internal/types"
)

var centsSpec = types.PriceSpec{Scale: 100, TickScaled: 1}

type fakeHandle struct {
	closed bool
}

func (h *fakeHandle) Close() { h.closed = true }

// fakeIngress hands the registered callback back to the test so lines
// can be injected as if datagrams had arrived.
type fakeIngress struct {
	mu      sync.Mutex
	handler func(string)
	handle  *fakeHandle
}

func (f *fakeIngress) Subscribe(handle func(line string)) Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = handle
	f.handle = &fakeHandle{}
	return f.handle
}

func (f *fakeIngress) inject(line string) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	h(line)
}

type fakeDispatcher struct {
	mu        sync.Mutex
	submitted []events.Event
	stopped   bool
	accept    bool
}

func (d *fakeDispatcher) Submit(e events.Event) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.accept {
		return false
	}
	d.submitted = append(d.submitted, e)
	return true
}

func (d *fakeDispatcher) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
}

func (d *fakeDispatcher) events() []events.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]events.Event, len(d.submitted))
	copy(out, d.submitted)
	return out
}

type fakeSink struct {
	mu      sync.Mutex
	stopped bool
}

func (s *fakeSink) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
}

func startExchange(t *testing.T, ing *fakeIngress, disp *fakeDispatcher, sink *fakeSink, gate *riskgate.Gate) (*Exchange, chan struct{}) {
	t.Helper()
	e := New(ing, disp, sink, gate, centsSpec, nil, zap.NewNop())
	done := make(chan struct{})
	go func() {
		e.Start()
		close(done)
	}()
	require.Eventually(t, func() bool {
		ing.mu.Lock()
		defer ing.mu.Unlock()
		return ing.handler != nil
	}, time.Second, time.Millisecond)
	return e, done
}

func waitStopped(t *testing.T, done chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("exchange did not stop")
	}
}

func TestExchangeDecodesAndDispatches(t *testing.T) {
	ing := &fakeIngress{}
	disp := &fakeDispatcher{accept: true}
	sink := &fakeSink{}
	e, done := startExchange(t, ing, disp, sink, nil)

	ing.inject("D, u1, 1001, AAPL, 100, BUY, LIMIT, 150.00")
	ing.inject("V, u1, 1002, AAPL")
	ing.inject("F, u1, 1003, AAPL, 1001")

	evs := disp.events()
	require.Len(t, evs, 3)
	assert.Equal(t, events.KindNewOrder, evs[0].Kind)
	assert.Equal(t, types.Price(15000), evs[0].Price)
	assert.Equal(t, events.KindTopOfBook, evs[1].Kind)
	assert.Equal(t, events.KindCancel, evs[2].Kind)
	assert.Equal(t, types.OrderID(1001), evs[2].OrigOrderID)

	e.Stop()
	waitStopped(t, done)
	assert.True(t, ing.handle.closed, "subscription dropped on exit")
	assert.True(t, disp.stopped, "dispatcher stopped on exit")
	assert.True(t, sink.stopped, "sink stopped last on exit")
}

func TestExchangeAbsorbsDecodeFailures(t *testing.T) {
	ing := &fakeIngress{}
	disp := &fakeDispatcher{accept: true}
	e, done := startExchange(t, ing, disp, &fakeSink{}, nil)

	ing.inject("X, garbage")
	ing.inject("D, u1, 1, AAPL, 100, BUY, LIMIT, 150.005") // off grid
	ing.inject("D, u1, 2, AAPL, 100, BUY, LIMIT, 150.00")  // fine

	evs := disp.events()
	require.Len(t, evs, 1)
	assert.Equal(t, types.OrderID(2), evs[0].ClientOrderID)

	e.Stop()
	waitStopped(t, done)
}

func TestExchangeQuitLineTriggersShutdown(t *testing.T) {
	ing := &fakeIngress{}
	disp := &fakeDispatcher{accept: true}
	sink := &fakeSink{}
	_, done := startExchange(t, ing, disp, sink, nil)

	ing.inject("QUIT")
	waitStopped(t, done)

	assert.Empty(t, disp.events(), "quit is never dispatched as an event")
	assert.True(t, disp.stopped)
	assert.True(t, sink.stopped)
}

func TestExchangeGateRejectsBeforeDispatch(t *testing.T) {
	ing := &fakeIngress{}
	disp := &fakeDispatcher{accept: true}
	gate := riskgate.New(riskgate.Config{MaxOrderSize: 10})
	e, done := startExchange(t, ing, disp, &fakeSink{}, gate)

	ing.inject("D, u1, 1, AAPL, 100, BUY, LIMIT, 150.00") // over the size cap
	ing.inject("D, u1, 2, AAPL, 5, BUY, LIMIT, 150.00")

	evs := disp.events()
	require.Len(t, evs, 1)
	assert.Equal(t, types.OrderID(2), evs[0].ClientOrderID)

	e.Stop()
	waitStopped(t, done)
}

func TestExchangeSurvivesDispatchRefusal(t *testing.T) {
	ing := &fakeIngress{}
	disp := &fakeDispatcher{accept: false}
	e, done := startExchange(t, ing, disp, &fakeSink{}, nil)

	ing.inject("D, u1, 1, AAPL, 100, BUY, LIMIT, 150.00")
	assert.Empty(t, disp.events())

	e.Stop()
	waitStopped(t, done)
}

func TestIsQuitLine(t *testing.T) {
	for _, line := range []string{"Q", "q", "QUIT", "quit", " Q ", "Q, anything, else"} {
		assert.True(t, isQuitLine(line), "line %q", line)
	}
	for _, line := range []string{"D, u1, ...", "QUITX", "", "V, u1, 1, AAPL"} {
		assert.False(t, isQuitLine(line), "line %q", line)
	}
}

func TestExchangeStopIsIdempotent(t *testing.T) {
	ing := &fakeIngress{}
	e, done := startExchange(t, ing, &fakeDispatcher{accept: true}, &fakeSink{}, nil)
	e.Stop()
	e.Stop()
	waitStopped(t, done)
}
