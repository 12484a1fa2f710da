// Package exchange is the control plane: it binds the ingress
// collaborator to event decoding and dispatch, and coordinates graceful
// shutdown when a Quit event arrives or an external stop is requested.
package exchange

import (
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/rishav/exchange-engine/internal/events"
	"github.com/rishav/exchange-engine/internal/ingress"
	"github.com/rishav/exchange-engine/internal/metrics"
	"github.com/rishav/exchange-engine/internal/riskgate"
	"github.com/rishav/exchange-engine/internal/types"
)

// Handle undoes a subscription when closed.
type Handle interface {
	Close()
}

// Ingress is the collaborator surface the control plane consumes: a
// subscribe call whose callback may be invoked concurrently from the
// collaborator's internal goroutines.
type Ingress interface {
	Subscribe(handle func(line string)) Handle
}

// Dispatcher is the narrow surface of the shard manager the control
// plane needs.
type Dispatcher interface {
	Submit(e events.Event) bool
	Stop()
}

// ReportPipeline is the narrow surface of the report sink the control
// plane needs: the ability to shut it down last, after the dispatcher
// has joined its workers.
type ReportPipeline interface {
	Stop()
}

// Exchange wires ingress -> decode -> gate -> dispatch and owns the
// shutdown sequence: drop the subscription handle, stop the dispatcher
// (joining every shard worker), then stop the report sink (draining
// queued reports).
type Exchange struct {
	ingress Ingress
	disp    Dispatcher
	sink    ReportPipeline
	gate    *riskgate.Gate // nil disables the pre-dispatch gate
	spec    types.PriceSpec
	metrics *metrics.Metrics // nil disables counters
	log     *zap.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New constructs an Exchange. gate and m may be nil.
func New(ing Ingress, disp Dispatcher, sink ReportPipeline, gate *riskgate.Gate, spec types.PriceSpec, m *metrics.Metrics, log *zap.Logger) *Exchange {
	return &Exchange{
		ingress: ing,
		disp:    disp,
		sink:    sink,
		gate:    gate,
		spec:    spec,
		metrics: m,
		log:     log,
		stopCh:  make(chan struct{}),
	}
}

// Start subscribes to the ingress collaborator and blocks the calling
// goroutine until a Quit event arrives or Stop is called. On exit it
// drops the subscription, stops the dispatcher, and stops the sink, in
// that order.
func (e *Exchange) Start() {
	sub := e.ingress.Subscribe(e.handleLine)
	<-e.stopCh
	sub.Close()
	e.disp.Stop()
	e.sink.Stop()
}

// Stop requests shutdown. Safe to call from any goroutine, any number
// of times; equivalent to receiving a Quit event.
func (e *Exchange) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
}

// isQuitLine peeks at the first CSV field without running the full
// decoder, so shutdown doesn't depend on the rest of the line parsing.
func isQuitLine(line string) bool {
	head := line
	if i := strings.IndexByte(line, ','); i >= 0 {
		head = line[:i]
	}
	head = strings.ToUpper(strings.TrimSpace(head))
	return head == "Q" || head == "QUIT"
}

// handleLine is the ingress callback: decode, gate, dispatch. Decode
// and dispatch failures are absorbed here — logged, counted, and
// dropped — and never propagate back into the listener.
func (e *Exchange) handleLine(line string) {
	if isQuitLine(line) {
		e.Stop()
		return
	}

	ev, err := ingress.Decode(line, e.spec)
	if err != nil {
		e.log.Warn("exchange: dropping undecodable event", zap.String("line", line), zap.Error(err))
		if e.metrics != nil {
			e.metrics.DecodeErrors.Inc()
		}
		return
	}
	if ev.Kind == events.KindQuit {
		e.Stop()
		return
	}

	if e.gate != nil {
		if ok, reason := e.gate.Check(ev); !ok {
			e.log.Warn("exchange: rejecting order at pre-dispatch gate",
				zap.String("symbol", ev.Symbol().String()), zap.String("reason", reason))
			return
		}
	}

	if !e.disp.Submit(ev) {
		e.log.Warn("exchange: dropping event, shard queue full or dispatcher stopped",
			zap.String("symbol", ev.Symbol().String()), zap.String("kind", ev.Kind.String()))
		if e.metrics != nil {
			e.metrics.EventsDropped.Inc()
		}
		return
	}
	if e.metrics != nil {
		e.metrics.EventsSubmitted.Inc()
	}
}
