package terminal

import "sync/atomic"

// RingBuffer is a fixed-capacity single-producer/single-consumer byte queue.
//
// Exactly one goroutine may write and exactly one goroutine may read; this
// is a precondition, not something the buffer enforces. Within that
// contract no mutex is needed: the producer owns head, the consumer owns
// tail, and each side only loads the counter owned by the other.
//
// One slot is always kept empty so that head == tail unambiguously means
// "empty", which is why Capacity reports one less than the allocated size.
type RingBuffer struct {
	data []byte
	mask uint64

	head atomic.Uint64 // written by producer only
	_    [7]uint64     // keep head and tail on separate cache lines
	tail atomic.Uint64 // written by consumer only
}

// NewRingBuffer allocates a ring buffer able to hold at least capacity-1
// bytes. The allocation is rounded up to the next power of two so index
// arithmetic reduces to a bitmask.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity < 2 {
		capacity = 2
	}
	size := nextPowerOfTwo(uint64(capacity))
	return &RingBuffer{
		data: make([]byte, size),
		mask: size - 1,
	}
}

func nextPowerOfTwo(v uint64) uint64 {
	if v == 0 {
		return 1
	}
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v |= v >> 32
	return v + 1
}

// Capacity returns the number of usable slots.
func (r *RingBuffer) Capacity() int {
	return len(r.data) - 1
}

// Write copies as many bytes of p as currently fit and returns the count.
// It never blocks; a full buffer yields 0. Producer side only.
func (r *RingBuffer) Write(p []byte) int {
	if len(p) == 0 {
		return 0
	}

	head := r.head.Load()
	tail := r.tail.Load()

	available := uint64(len(r.data)) - 1 - (head - tail)
	n := uint64(len(p))
	if n > available {
		n = available
	}
	if n == 0 {
		return 0
	}

	start := head & r.mask
	first := uint64(len(r.data)) - start
	if first > n {
		first = n
	}
	copy(r.data[start:start+first], p[:first])
	if first < n {
		copy(r.data, p[first:n])
	}

	r.head.Store(head + n)
	return int(n)
}

// Read copies up to len(p) bytes into p and advances the tail. It never
// blocks; an empty buffer yields 0. Consumer side only.
func (r *RingBuffer) Read(p []byte) int {
	n := r.Peek(p)
	if n > 0 {
		r.tail.Store(r.tail.Load() + uint64(n))
	}
	return n
}

// Peek copies up to len(p) bytes into p without consuming them.
// Consumer side only.
func (r *RingBuffer) Peek(p []byte) int {
	if len(p) == 0 {
		return 0
	}

	head := r.head.Load()
	tail := r.tail.Load()

	used := head - tail
	n := uint64(len(p))
	if n > used {
		n = used
	}
	if n == 0 {
		return 0
	}

	start := tail & r.mask
	first := uint64(len(r.data)) - start
	if first > n {
		first = n
	}
	copy(p[:first], r.data[start:start+first])
	if first < n {
		copy(p[first:n], r.data)
	}

	return int(n)
}

// Skip discards up to n bytes without copying and returns the number
// discarded. Consumer side only.
func (r *RingBuffer) Skip(n int) int {
	if n <= 0 {
		return 0
	}

	head := r.head.Load()
	tail := r.tail.Load()

	used := head - tail
	skip := uint64(n)
	if skip > used {
		skip = used
	}
	if skip == 0 {
		return 0
	}

	r.tail.Store(tail + skip)
	return int(skip)
}

// Size returns the number of bytes currently buffered.
func (r *RingBuffer) Size() int {
	return int(r.head.Load() - r.tail.Load())
}

// Available returns the number of bytes that can be written without
// overwriting unread data.
func (r *RingBuffer) Available() int {
	return r.Capacity() - r.Size()
}

// Clear drops all buffered bytes. Only safe when neither side is active.
func (r *RingBuffer) Clear() {
	r.tail.Store(r.head.Load())
}
