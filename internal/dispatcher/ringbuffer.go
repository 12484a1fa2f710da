// Package dispatcher implements the sharded event dispatcher: N shards,
// each a single-producer/single-consumer lock-free event queue paired
// with a counting semaphore and one worker goroutine, routing by symbol
// hash so that any given symbol is processed on exactly one goroutine.
package dispatcher

import (
	"sync/atomic"

	"github.com/rishav/exchange-engine/internal/events"
)

// ringSlot holds one queued event plus the sequence number that marks
// it published. The slot is ready to consume when seq equals the
// reader's expected sequence (index+1, never 0, so the zero value of an
// unpublished slot never matches).
type ringSlot struct {
	seq   uint64
	event events.Event
}

// ringBuffer is a fixed-capacity SPSC lock-free queue of events.Event.
// Capacity must be a power of two so the index mask is a single AND.
type ringBuffer struct {
	mask  uint64
	slots []ringSlot

	writeSeq uint64 // producer-owned
	readSeq  uint64 // consumer-owned, read by the producer for back-pressure
}

func newRingBuffer(capacity uint64) *ringBuffer {
	if capacity == 0 || capacity&(capacity-1) != 0 {
		panic("dispatcher: ring buffer capacity must be a power of two")
	}
	return &ringBuffer{
		mask:  capacity - 1,
		slots: make([]ringSlot, capacity),
	}
}

func (rb *ringBuffer) capacity() uint64 {
	return rb.mask + 1
}

// push enqueues e. Returns false if the buffer is full; the caller's
// responsibility is to drop, never to block.
func (rb *ringBuffer) push(e events.Event) bool {
	write := rb.writeSeq
	read := atomic.LoadUint64(&rb.readSeq)
	if write-read >= rb.capacity() {
		return false
	}

	slot := &rb.slots[write&rb.mask]
	slot.event = e
	atomic.StoreUint64(&slot.seq, write+1)
	rb.writeSeq = write + 1
	return true
}

// pop dequeues the next event. Returns false if nothing has been
// published yet at the expected sequence — this can happen even right
// after a semaphore acquire, since the semaphore release and the slot
// publish are not a single atomic step (see dispatcher/shard.go).
func (rb *ringBuffer) pop() (events.Event, bool) {
	read := rb.readSeq
	slot := &rb.slots[read&rb.mask]
	if atomic.LoadUint64(&slot.seq) != read+1 {
		return events.Event{}, false
	}
	e := slot.event
	rb.readSeq = read + 1
	return e, true
}
