package dispatcher

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/rishav/exchange-engine/internal/events"
	"github.com/rishav/exchange-engine/internal/orderbook"
	"github.com/rishav/exchange-engine/internal/reports"
	"github.com/rishav/exchange-engine/internal/types"
)

// maxBatchSize bounds the opportunistic batching a shard worker performs
// after processing the event it woke up for: it keeps draining until the
// batch, counting that first event, reaches this many, then goes back to
// sleep on the semaphore.
const maxBatchSize = 32

// spinIterations is how many times the worker yields before falling
// back to a short sleep while waiting for a semaphore-acquired event to
// actually be visible in the ring buffer.
const spinIterations = 32

// backoffSleep is the fallback sleep once spinning has been tried.
const backoffSleep = time.Microsecond

// Sink is the narrow surface a shard needs from the report pipeline.
// orderbook.Book batches are handed to it one report at a time.
type Sink interface {
	Submit(r reports.Report) bool
}

// shard owns a disjoint slice of the symbol space: its own ring buffer,
// counting semaphore, book map (populated once at construction, never
// mutated concurrently), and exactly one worker goroutine.
type shard struct {
	index int

	queue *ringBuffer
	sem   *semaphore.Weighted

	stopRequested atomic.Bool

	books map[types.Symbol]*orderbook.Book
	sink  Sink
	log   *zap.Logger

	depth atomic.Int64 // approximate queue depth, for metrics only

	wg sync.WaitGroup
}

func newShard(index int, capacity uint64, books map[types.Symbol]*orderbook.Book, sink Sink, log *zap.Logger) *shard {
	return &shard{
		index: index,
		queue: newRingBuffer(capacity),
		sem:   newCountingSemaphore(capacity + 1), // +1 leaves room for the stop wakeup release
		books: books,
		sink:  sink,
		log:   log,
	}
}

// newCountingSemaphore builds a Weighted with zero permits initially
// available: semaphore.NewWeighted hands out its full weight to the
// first acquirers, so every permit is claimed up front and only a
// producer's Release makes one available to the consumer.
func newCountingSemaphore(size uint64) *semaphore.Weighted {
	sem := semaphore.NewWeighted(int64(size))
	if err := sem.Acquire(context.Background(), int64(size)); err != nil {
		panic("dispatcher: draining a fresh semaphore cannot fail: " + err.Error())
	}
	return sem
}

// submit pushes e onto the shard's queue and releases a permit on
// success. Never blocks: returns false on a full queue.
func (s *shard) submit(e events.Event) bool {
	if s.stopRequested.Load() {
		return false
	}
	if !s.queue.push(e) {
		return false
	}
	s.depth.Add(1)
	s.sem.Release(1)
	return true
}

// start launches the worker goroutine.
func (s *shard) start() {
	s.wg.Add(1)
	go s.run()
}

// stop requests the worker to exit and waits for it to finish. Safe to
// call once; the caller (Manager) coordinates the CAS-once transition.
func (s *shard) stop() {
	s.stopRequested.Store(true)
	s.sem.Release(1) // wake a blocked Acquire so it observes the flag
	s.wg.Wait()
}

func (s *shard) run() {
	defer s.wg.Done()
	ctx := context.Background()

	for {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			return
		}
		if s.stopRequested.Load() {
			// Surplus permit: return it so any concurrent observer of the
			// semaphore sees the correct count, then exit.
			s.sem.Release(1)
			return
		}

		e, ok := s.popWithBackoff()
		if !ok {
			// Stop was requested concurrently with our acquire, and the
			// permit we grabbed was the wakeup release, not a real
			// event: nothing to process.
			return
		}
		s.depth.Add(-1)
		s.process(e)

		// Opportunistic batching: keep draining while the stop flag is
		// clear and there are more permits immediately available.
		for batch := 1; batch < maxBatchSize && !s.stopRequested.Load(); batch++ {
			if !s.sem.TryAcquire(1) {
				break
			}
			e, ok := s.popWithBackoff()
			if !ok {
				// Lost the race against the producer's publish: give the
				// permit back, this isn't a real event.
				s.sem.Release(1)
				break
			}
			s.depth.Add(-1)
			s.process(e)
		}
	}
}

// popWithBackoff retries pop() across the semaphore/queue publish race:
// a permit can be observed as acquired before the producer's slot write
// is visible. Spins briefly, then falls back to a short sleep.
func (s *shard) popWithBackoff() (events.Event, bool) {
	for i := 0; i < spinIterations; i++ {
		if e, ok := s.queue.pop(); ok {
			return e, true
		}
		if s.stopRequested.Load() {
			return events.Event{}, false
		}
		runtime.Gosched()
	}
	for {
		if e, ok := s.queue.pop(); ok {
			return e, true
		}
		if s.stopRequested.Load() {
			return events.Event{}, false
		}
		time.Sleep(backoffSleep)
	}
}

func (s *shard) process(e events.Event) {
	book, ok := s.books[e.Symbol()]
	if !ok {
		s.log.Warn("dispatcher: unknown symbol at shard, dropping event",
			zap.Int("shard", s.index), zap.String("symbol", e.Symbol().String()), zap.String("kind", e.Kind.String()))
		return
	}

	var batch []reports.Report

	switch e.Kind {
	case events.KindNewOrder:
		if !book.SubmitNewOrder(e.UserID, e.ClientOrderID, e.Side, e.Type, e.Price, e.Quantity, e.Timestamp, &batch) {
			s.log.Warn("dispatcher: rejected new order with invalid side",
				zap.Int("shard", s.index), zap.String("symbol", e.Symbol().String()))
		}
	case events.KindCancel:
		book.SubmitCancelOrder(e.OrigOrderID, &batch)
	case events.KindTopOfBook:
		batch = append(batch, reports.Report{Kind: reports.KindTopOfBook, TopOfBook: book.SubmitTopOfBook()})
	default:
		s.log.Warn("dispatcher: unexpected event kind at shard", zap.Int("shard", s.index), zap.Uint8("kind", uint8(e.Kind)))
		return
	}

	for _, r := range batch {
		s.sink.Submit(r)
	}
}
