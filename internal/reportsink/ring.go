package reportsink

import (
	"sync/atomic"

	"github.com/rishav/exchange-engine/internal/reports"
)

// slotRing is a multi-producer/single-consumer lock-free ring buffer of
// reports.Report: every shard worker goroutine can call Submit
// concurrently, but only the reporter goroutine drains it. Producers
// claim a write sequence by CAS, then publish the slot; reports.Report
// is a value type so no allocation crosses the queue.
type slotRing struct {
	mask  uint64
	slots []reportSlot

	writeCursor uint64 // highest claimed write sequence, CAS'd by producers
	readCursor  uint64 // consumer-owned
}

type reportSlot struct {
	seq    uint64
	report reports.Report
}

func newSlotRing(capacity uint64) *slotRing {
	if capacity == 0 || capacity&(capacity-1) != 0 {
		panic("reportsink: ring capacity must be a power of two")
	}
	return &slotRing{
		mask:  capacity - 1,
		slots: make([]reportSlot, capacity),
	}
}

func (rb *slotRing) capacity() uint64 {
	return rb.mask + 1
}

// push claims the next write sequence via CAS, then publishes. Returns
// false if the buffer is full relative to the consumer's read cursor.
func (rb *slotRing) push(r reports.Report) bool {
	for {
		write := atomic.LoadUint64(&rb.writeCursor)
		read := atomic.LoadUint64(&rb.readCursor)
		if write-read >= rb.capacity() {
			return false
		}
		if atomic.CompareAndSwapUint64(&rb.writeCursor, write, write+1) {
			slot := &rb.slots[write&rb.mask]
			slot.report = r
			atomic.StoreUint64(&slot.seq, write+1)
			return true
		}
	}
}

// pop dequeues the next report, if published. Single-consumer only.
func (rb *slotRing) pop() (reports.Report, bool) {
	read := rb.readCursor
	slot := &rb.slots[read&rb.mask]
	if atomic.LoadUint64(&slot.seq) != read+1 {
		return reports.Report{}, false
	}
	r := slot.report
	rb.readCursor = read + 1
	return r, true
}

// empty reports whether the consumer has drained every claimed slot.
func (rb *slotRing) empty() bool {
	return rb.readCursor >= atomic.LoadUint64(&rb.writeCursor)
}
