// Package ringbuf provides a lock-free, single-producer single-consumer (SPSC)
// ring buffer for model.LogEntry. The engine goroutine pushes strategy log
// lines, the gateway drains them; atomic head/tail with cache-line padding
// keeps the hot path contention-free.
package ringbuf

import (
	"sync/atomic"

	"cryptobot/internal/model"
)

// cacheLine is the typical x86-64 cache line size used for padding.
const cacheLine = 64

// Ring is a lock-free SPSC ring buffer for log entries.
// Size must be a power of two for fast bitwise modulo.
type Ring struct {
	buf  []model.LogEntry
	mask uint64

	// Separate cache lines to prevent false sharing between producer and consumer.
	_pad0 [cacheLine]byte
	head  atomic.Uint64 // written by producer
	_pad1 [cacheLine]byte
	tail  atomic.Uint64 // written by consumer
	_pad2 [cacheLine]byte

	overflow atomic.Uint64
}

// New creates a ring buffer. capacity is rounded up to the next power of two.
// Minimum capacity is 2.
func New(capacity int) *Ring {
	cap := nextPow2(capacity)
	if cap < 2 {
		cap = 2
	}
	return &Ring{
		buf:  make([]model.LogEntry, cap),
		mask: uint64(cap - 1),
	}
}

// Push appends an entry. Returns false if the buffer is full (the entry is
// NOT written in that case). Non-blocking.
func (r *Ring) Push(e model.LogEntry) bool {
	head := r.head.Load()
	tail := r.tail.Load()

	if head-tail >= uint64(len(r.buf)) {
		r.overflow.Add(1)
		return false
	}

	r.buf[head&r.mask] = e
	r.head.Store(head + 1)
	return true
}

// Pop retrieves the next entry. Returns false if the buffer is empty.
// Non-blocking.
func (r *Ring) Pop() (model.LogEntry, bool) {
	tail := r.tail.Load()
	head := r.head.Load()

	if tail >= head {
		return model.LogEntry{}, false
	}

	e := r.buf[tail&r.mask]
	r.tail.Store(tail + 1)
	return e, true
}

// Drain pops every buffered entry in order.
func (r *Ring) Drain() []model.LogEntry {
	n := r.Len()
	if n == 0 {
		return nil
	}
	out := make([]model.LogEntry, 0, n)
	for {
		e, ok := r.Pop()
		if !ok {
			return out
		}
		out = append(out, e)
	}
}

// Len returns the current number of buffered entries.
func (r *Ring) Len() int {
	return int(r.head.Load() - r.tail.Load())
}

// Cap returns the buffer capacity.
func (r *Ring) Cap() int {
	return len(r.buf)
}

// Overflow returns the total number of dropped pushes due to a full buffer.
func (r *Ring) Overflow() uint64 {
	return r.overflow.Load()
}

// nextPow2 returns the smallest power of 2 >= n.
func nextPow2(n int) int {
	if n <= 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}
