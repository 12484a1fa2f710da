// Package reportsink implements the async, single-consumer report
// pipeline: a bounded lock-free queue of reports.Report, a counting
// semaphore, and one reporter goroutine that batch-drains rendered
// report lines to an io.Writer. Producers never block; overflow drops
// are counted, not fatal.
package reportsink

import (
	"bufio"
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/rishav/exchange-engine/internal/reports"
)

// MaxItemsPerBatch bounds how many reports the reporter goroutine drains
// before yielding back to the semaphore.
const MaxItemsPerBatch = 64

// DefaultCapacity is the sink's bounded queue size (power of two).
const DefaultCapacity = 4096

// Sink is the async report pipeline. It implements dispatcher.Sink.
type Sink struct {
	queue *slotRing
	sem   *semaphore.Weighted

	stopRequested atomic.Bool
	wg            sync.WaitGroup

	w   *bufio.Writer
	mu  sync.Mutex // serializes writes, since tap() can run concurrently with flush in future extensions
	log *zap.Logger

	dropped atomic.Int64

	tap func(reports.Report) // optional fan-out, e.g. the websocket feed
}

// New constructs a Sink that writes one rendered report per line to w.
func New(w io.Writer, capacity uint64, log *zap.Logger) *Sink {
	if capacity == 0 {
		capacity = DefaultCapacity
	}
	return &Sink{
		queue: newSlotRing(capacity),
		sem:   newCountingSemaphore(capacity + 1), // +1 leaves room for the stop wakeup release
		w:     bufio.NewWriter(w),
		log:   log,
	}
}

// newCountingSemaphore builds a Weighted with zero permits initially
// available: semaphore.NewWeighted hands out its full weight to the
// first acquirers, so every permit is claimed up front and only a
// producer's Release makes one available to the reporter goroutine.
func newCountingSemaphore(size uint64) *semaphore.Weighted {
	sem := semaphore.NewWeighted(int64(size))
	if err := sem.Acquire(context.Background(), int64(size)); err != nil {
		panic("reportsink: draining a fresh semaphore cannot fail: " + err.Error())
	}
	return sem
}

// SetTap registers a best-effort fan-out callback invoked for every
// report the reporter goroutine drains, after it is written. The tap
// itself must never block; reportsink/feed.go's Feed.Publish is built
// to that contract.
func (s *Sink) SetTap(tap func(reports.Report)) {
	s.tap = tap
}

// Submit enqueues r. Never blocks: returns false if the queue is full
// (counting a drop) or the sink has been stopped (not counted).
func (s *Sink) Submit(r reports.Report) bool {
	if s.stopRequested.Load() {
		return false
	}
	if !s.queue.push(r) {
		s.dropped.Add(1)
		return false
	}
	s.sem.Release(1)
	return true
}

// Dropped returns the cumulative count of reports dropped on overflow.
func (s *Sink) Dropped() int64 {
	return s.dropped.Load()
}

// Start launches the reporter goroutine.
func (s *Sink) Start() {
	s.wg.Add(1)
	go s.run()
}

// Stop requests the reporter goroutine to drain and exit, then waits.
func (s *Sink) Stop() {
	if !s.stopRequested.CompareAndSwap(false, true) {
		return
	}
	s.sem.Release(1)
	s.wg.Wait()
}

func (s *Sink) run() {
	defer s.wg.Done()
	ctx := context.Background()

	for {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			s.finalFlush()
			return
		}
		if s.stopRequested.Load() {
			// The permit was (or may have been) the stop wakeup; drain
			// whatever is already published and exit.
			s.finalFlush()
			return
		}

		r, ok := s.popWithBackoff()
		if !ok {
			s.finalFlush()
			return
		}
		s.write(r)

		drained := 1
		for drained < MaxItemsPerBatch && s.sem.TryAcquire(1) {
			r, ok := s.queue.pop()
			if !ok {
				// Lost the publish race: the permit's item isn't visible
				// yet. Give the permit back and let the next wakeup
				// handle it.
				s.sem.Release(1)
				break
			}
			s.write(r)
			drained++
		}
		s.flushWriter()
	}
}

// popWithBackoff retries pop across the publish race: a producer
// releases its permit only after the slot write, but with multiple
// producers an earlier claimed slot may still be unpublished when our
// permit's item lands behind it. Spins briefly, then sleeps.
func (s *Sink) popWithBackoff() (reports.Report, bool) {
	for i := 0; i < 32; i++ {
		if r, ok := s.queue.pop(); ok {
			return r, true
		}
		if s.stopRequested.Load() {
			return reports.Report{}, false
		}
	}
	for {
		if r, ok := s.queue.pop(); ok {
			return r, true
		}
		if s.stopRequested.Load() {
			return reports.Report{}, false
		}
		time.Sleep(time.Microsecond)
	}
}

// finalFlush drains anything left in the queue synchronously, on stop.
func (s *Sink) finalFlush() {
	for {
		r, ok := s.queue.pop()
		if !ok {
			break
		}
		s.write(r)
	}
	s.flushWriter()
}

func (s *Sink) write(r reports.Report) {
	s.mu.Lock()
	_, err := s.w.WriteString(r.String() + "\n")
	s.mu.Unlock()
	if err != nil && s.log != nil {
		s.log.Warn("reportsink: write failed", zap.Error(err))
	}
	if s.tap != nil {
		s.tap(r)
	}
}

func (s *Sink) flushWriter() {
	s.mu.Lock()
	err := s.w.Flush()
	s.mu.Unlock()
	if err != nil && s.log != nil {
		s.log.Warn("reportsink: flush failed", zap.Error(err))
	}
}
