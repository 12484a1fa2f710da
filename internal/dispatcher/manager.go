package dispatcher

import (
	"hash/fnv"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/rishav/exchange-engine/internal/events"
	"github.com/rishav/exchange-engine/internal/orderbook"
	"github.com/rishav/exchange-engine/internal/types"
)

// DefaultQueueCapacity is each shard's ring buffer size (must be a power
// of two).
const DefaultQueueCapacity = 1024

// Manager owns N shards and routes every submitted event to the shard
// that owns its symbol's book, by a stable hash of the symbol. There is
// no rebalancing and no cross-shard ordering guarantee.
type Manager struct {
	shards        []*shard
	stopRequested atomic.Bool
	log           *zap.Logger
}

// partitionSymbols builds one book per symbol and partitions them across
// shardCount shards, up front, by the
// same hash Manager uses to route events — so routing and book
// ownership always agree.
func partitionSymbols(symbols []types.Symbol, shardCount int) []map[types.Symbol]*orderbook.Book {
	maps := make([]map[types.Symbol]*orderbook.Book, shardCount)
	for i := range maps {
		maps[i] = make(map[types.Symbol]*orderbook.Book)
	}
	for _, sym := range symbols {
		idx := shardIndex(sym, shardCount)
		maps[idx][sym] = orderbook.New(sym)
	}
	return maps
}

func shardIndex(symbol types.Symbol, shardCount int) int {
	h := fnv.New32a()
	_, _ = h.Write(symbol[:])
	return int(h.Sum32()) % shardCount
}

// NewManager constructs a Manager with shardCount shards (clamped to
// at least 2), pre-populated with a book for every symbol in symbols.
// queueCapacity is each shard's ring buffer size.
func NewManager(symbols []types.Symbol, shardCount int, queueCapacity uint64, sink Sink, log *zap.Logger) *Manager {
	if shardCount < 2 {
		shardCount = 2
	}
	if queueCapacity == 0 {
		queueCapacity = DefaultQueueCapacity
	}

	bookMaps := partitionSymbols(symbols, shardCount)
	shards := make([]*shard, shardCount)
	for i := range shards {
		shards[i] = newShard(i, queueCapacity, bookMaps[i], sink, log)
	}

	return &Manager{shards: shards, log: log}
}

// Start launches every shard's worker goroutine.
func (m *Manager) Start() {
	for _, s := range m.shards {
		s.start()
	}
}

// Submit routes event to its shard. Quit is never enqueued: it
// broadcasts stop to every shard directly. Returns false if the manager
// has already been stopped, or if the target shard's queue is full.
func (m *Manager) Submit(event events.Event) bool {
	if m.stopRequested.Load() {
		return false
	}
	if event.Kind == events.KindQuit {
		m.Stop()
		return true
	}
	idx := shardIndex(event.Symbol(), len(m.shards))
	return m.shards[idx].submit(event)
}

// Stop transitions stop_requested false->true exactly once, wakes every
// shard worker, and joins them all before returning.
func (m *Manager) Stop() {
	if !m.stopRequested.CompareAndSwap(false, true) {
		return
	}
	for _, s := range m.shards {
		s.stop()
	}
}

// QueueDepth reports the approximate number of events queued on shard i,
// for metrics; it is not exact under concurrent access.
func (m *Manager) QueueDepth(i int) int64 {
	return m.shards[i].depth.Load()
}

// ShardCount returns the number of shards.
func (m *Manager) ShardCount() int {
	return len(m.shards)
}
