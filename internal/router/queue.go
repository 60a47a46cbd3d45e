package router

import "sync"

// Queue is a goroutine-safe FIFO ring. It doubles when full; once it reaches
// its limit the oldest entry is evicted to make room. A limit of 0 means the
// queue grows without bound.
type Queue[T any] struct {
	mu       sync.Mutex
	nonEmpty *sync.Cond
	ring     []T
	start    int
	size     int
	limit    int
	closed   bool

	pushed  int64
	popped  int64
	evicted int64
	grown   int
}

// QueueStats is a point-in-time view of a Queue.
type QueueStats struct {
	Len     int
	Cap     int
	Pushed  int64
	Popped  int64
	Evicted int64 // Overwritten at the limit
	Grown   int
}

// NewQueue creates a queue holding initial entries before its first growth.
// limit is raised to initial when smaller; 0 leaves the queue unbounded.
func NewQueue[T any](initial, limit int) *Queue[T] {
	if initial < 1 {
		initial = 1
	}
	if limit > 0 && limit < initial {
		limit = initial
	}
	q := &Queue[T]{
		ring:  make([]T, initial),
		limit: limit,
	}
	q.nonEmpty = sync.NewCond(&q.mu)
	return q
}

// Push appends v. Reports false once the queue is closed.
func (q *Queue[T]) Push(v T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	if q.size == len(q.ring) {
		if q.limit == 0 || len(q.ring) < q.limit {
			q.resize()
		} else {
			q.take()
			q.popped--
			q.evicted++
		}
	}

	q.ring[(q.start+q.size)%len(q.ring)] = v
	q.size++
	q.pushed++
	q.nonEmpty.Signal()
	return true
}

// Pop blocks until an entry is available. It reports false when the queue
// is closed and empty.
func (q *Queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.size == 0 && !q.closed {
		q.nonEmpty.Wait()
	}
	if q.size == 0 {
		var zero T
		return zero, false
	}
	return q.take(), true
}

// TryPop returns the oldest entry without blocking.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.size == 0 {
		var zero T
		return zero, false
	}
	return q.take(), true
}

// PopN removes up to n entries in FIFO order. n <= 0 takes everything.
func (q *Queue[T]) PopN(n int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n <= 0 || n > q.size {
		n = q.size
	}
	if n == 0 {
		return nil
	}
	out := make([]T, n)
	for i := range out {
		out[i] = q.take()
	}
	return out
}

// Close wakes blocked readers. Remaining entries can still be popped.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.nonEmpty.Broadcast()
}

// Len returns the number of queued entries.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

func (q *Queue[T]) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueStats{
		Len:     q.size,
		Cap:     len(q.ring),
		Pushed:  q.pushed,
		Popped:  q.popped,
		Evicted: q.evicted,
		Grown:   q.grown,
	}
}

// take removes the head entry. Caller holds mu and has checked size > 0.
func (q *Queue[T]) take() T {
	var zero T
	v := q.ring[q.start]
	q.ring[q.start] = zero
	q.start = (q.start + 1) % len(q.ring)
	q.size--
	q.popped++
	return v
}

// resize doubles the ring, capped at limit, and unwraps it. Caller holds mu.
func (q *Queue[T]) resize() {
	n := len(q.ring) * 2
	if q.limit > 0 && n > q.limit {
		n = q.limit
	}
	next := make([]T, n)
	for i := 0; i < q.size; i++ {
		next[i] = q.ring[(q.start+i)%len(q.ring)]
	}
	q.ring = next
	q.start = 0
	q.grown++
}
