package gpuringbuf

import "sync"

// RingBuffer is a fixed-capacity collection of the most recent values.
type RingBuffer[T any] struct {
	mtx sync.Mutex
	buf []T // allocated once, at construction
	cur int // next write position; reads walk backwards from here
	len int // number of live values
}

// NewRingBuffer returns an empty ring buffer with the given capacity.
func NewRingBuffer[T any](cap int) *RingBuffer[T] {
	return &RingBuffer[T]{
		buf: make([]T, cap),
	}
}

// Add the value, overwriting the oldest value if the buffer is full. The
// overwritten value, if any, is returned with true.
func (rb *RingBuffer[T]) Add(val T) (dropped T, ok bool) {
	rb.mtx.Lock()
	defer rb.mtx.Unlock()

	if len(rb.buf) <= 0 {
		var zero T
		return zero, false
	}

	if rb.len == len(rb.buf) {
		dropped, ok = rb.buf[rb.cur], true
	} else {
		rb.len++
	}

	rb.buf[rb.cur] = val

	rb.cur++
	if rb.cur == len(rb.buf) {
		rb.cur = 0
	}

	return dropped, ok
}

// Walk calls fn for every live value, newest first. If fn returns an error,
// the walk stops and that error is returned. Walk holds the lock, which
// blocks concurrent Adds.
func (rb *RingBuffer[T]) Walk(fn func(T) error) error {
	rb.mtx.Lock()
	defer rb.mtx.Unlock()

	for i := 0; i < rb.len; i++ {
		pos := rb.cur - 1 - i
		if pos < 0 {
			pos += len(rb.buf)
		}
		if err := fn(rb.buf[pos]); err != nil {
			return err
		}
	}

	return nil
}

// Resize changes the capacity of the ring buffer to n. If n is smaller than
// the current live count, the oldest values are dropped and returned.
func (rb *RingBuffer[T]) Resize(n int) (dropped []T) {
	if n <= 0 {
		return nil
	}

	rb.mtx.Lock()
	defer rb.mtx.Unlock()

	keep := rb.len
	if keep > n {
		keep = n
	}

	// Walk the live values oldest first, dropping the surplus and copying
	// the rest into the new buffer in order.
	buf := make([]T, n)
	for i := 0; i < rb.len; i++ {
		pos := rb.cur - rb.len + i
		if pos < 0 {
			pos += len(rb.buf)
		}
		if i < rb.len-keep {
			dropped = append(dropped, rb.buf[pos])
			continue
		}
		buf[i-(rb.len-keep)] = rb.buf[pos]
	}

	rb.buf = buf
	rb.cur = keep % n
	rb.len = keep

	return dropped
}

// Stats returns the newest and oldest live values, and the live count.
func (rb *RingBuffer[T]) Stats() (newest, oldest T, count int) {
	rb.mtx.Lock()
	defer rb.mtx.Unlock()

	if rb.len == 0 {
		var zero T
		return zero, zero, 0
	}

	newestPos := rb.cur - 1
	if newestPos < 0 {
		newestPos += len(rb.buf)
	}

	oldestPos := newestPos - rb.len + 1
	if oldestPos < 0 {
		oldestPos += len(rb.buf)
	}

	return rb.buf[newestPos], rb.buf[oldestPos], rb.len
}
