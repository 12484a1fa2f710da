package reportsink

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/rishav/exchange-engine/internal/reports"
)

// subscriberBuffer is the per-subscriber channel depth; a slow viewer
// drops messages rather than stalling the feed.
const subscriberBuffer = 64

// Feed fans ExecutionReport and TopOfBookReport values out to websocket
// viewers: one broadcast-to-all-subscribers channel, no per-symbol
// filtering, since subscribers are assumed to want the whole tape.
type Feed struct {
	mu   sync.RWMutex
	subs map[chan reports.Report]struct{}

	upgrader websocket.Upgrader
	log      *zap.Logger
}

// NewFeed constructs an empty Feed.
func NewFeed(log *zap.Logger) *Feed {
	return &Feed{
		subs: make(map[chan reports.Report]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log: log,
	}
}

// Publish is the tap callback registered with a Sink via SetTap. Never
// blocks: a full subscriber channel means that subscriber misses this
// report.
func (f *Feed) Publish(r reports.Report) {
	if r.Kind != reports.KindExecution && r.Kind != reports.KindTopOfBook {
		return
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	for ch := range f.subs {
		select {
		case ch <- r:
		default:
		}
	}
}

func (f *Feed) subscribe() chan reports.Report {
	ch := make(chan reports.Report, subscriberBuffer)
	f.mu.Lock()
	f.subs[ch] = struct{}{}
	f.mu.Unlock()
	return ch
}

func (f *Feed) unsubscribe(ch chan reports.Report) {
	f.mu.Lock()
	delete(f.subs, ch)
	f.mu.Unlock()
	close(ch)
}

// ServeHTTP upgrades the connection and streams reports as text frames
// until the client disconnects or the feed's write fails.
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if f.log != nil {
			f.log.Warn("reportsink: websocket upgrade failed", zap.Error(err))
		}
		return
	}
	defer conn.Close()

	ch := f.subscribe()
	defer f.unsubscribe(ch)

	for report := range ch {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(report.String())); err != nil {
			return
		}
	}
}
