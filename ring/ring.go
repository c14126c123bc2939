/*
Package ring provides a lock-free single-producer single-consumer FIFO.

Buffer is the only sanctioned channel from a control goroutine into the
audio thread. Exactly one goroutine may call Push and exactly one goroutine
may call Pop/PopAll. Using it from more goroutines on either side is not
supported and is not detected.

Memory model

The producer writes a slot and then stores the write cursor; the consumer
loads the write cursor before reading slots and stores the read cursor after
it is done with them. Cursors are sync/atomic values, which are sequentially
consistent in Go and therefore give at least the release/acquire pairing this
relies on. No other synchronization exists.

One slot is always left empty so that full and empty states can be told
apart without a counter: the buffer is full when
(write+1)&mask == read.
*/
package ring

import "sync/atomic"

// DefaultCapacity is used when a non-positive capacity is requested.
const DefaultCapacity = 256

// cacheLine pads cursors so producer and consumer do not share a line.
type cacheLine [64]byte

// Buffer is a fixed-capacity SPSC ring of values of type T.
type Buffer[T any] struct {
	slots []T
	mask  uint32

	_     cacheLine
	write atomic.Uint32
	_     cacheLine
	read  atomic.Uint32
	_     cacheLine
}

// New returns a buffer with the requested capacity rounded up to the next
// power of two. Effective capacity is one less than that.
func New[T any](capacity int) *Buffer[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	size := nextPowerOfTwo(capacity)
	return &Buffer[T]{
		slots: make([]T, size),
		mask:  uint32(size - 1),
	}
}

// Push appends v. It returns false if the buffer is full; the value is lost
// and the caller should treat it as dropped, not as an error.
// Producer side only.
func (b *Buffer[T]) Push(v T) bool {
	w := b.write.Load()
	next := (w + 1) & b.mask
	if next == b.read.Load() {
		return false
	}
	b.slots[w] = v
	b.write.Store(next)
	return true
}

// Pop removes the oldest value. Consumer side only.
func (b *Buffer[T]) Pop() (T, bool) {
	var zero T
	r := b.read.Load()
	if r == b.write.Load() {
		return zero, false
	}
	v := b.slots[r]
	b.slots[r] = zero
	b.read.Store((r + 1) & b.mask)
	return v, true
}

// PopAll drains up to len(dst) values into dst in FIFO order and returns
// how many were copied. The read cursor is published once for the whole
// batch. Consumer side only; it does not allocate.
func (b *Buffer[T]) PopAll(dst []T) int {
	if len(dst) == 0 {
		return 0
	}
	r := b.read.Load()
	w := b.write.Load()
	n := 0
	for r != w && n < len(dst) {
		dst[n] = b.slots[r]
		r = (r + 1) & b.mask
		n++
	}
	if n > 0 {
		b.read.Store(r)
	}
	return n
}

// Len returns the number of queued values. The result is a snapshot and
// may be stale by the time it is used.
func (b *Buffer[T]) Len() int {
	return int((b.write.Load() - b.read.Load()) & b.mask)
}

// Empty reports whether the buffer is empty at the time of the call.
func (b *Buffer[T]) Empty() bool {
	return b.write.Load() == b.read.Load()
}

// Cap returns the effective capacity.
func (b *Buffer[T]) Cap() int {
	return len(b.slots) - 1
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
