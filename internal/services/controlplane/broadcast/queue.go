package broadcast

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

var (
	// ErrSubscriberOverload closes a PolicyDisconnect subscription whose
	// queue overflowed.
	ErrSubscriberOverload = errors.New("subscriber queue overflow")
	// ErrClosed is returned after a subscription was closed or the hub stopped.
	ErrClosed = errors.New("subscription closed")
)

// Policy decides what happens when a subscriber queue is full.
type Policy int

const (
	// PolicyDisconnect closes the subscription with ErrSubscriberOverload.
	PolicyDisconnect Policy = iota
	// PolicyDropOldest discards the oldest queued message.
	PolicyDropOldest
)

func (p Policy) String() string {
	switch p {
	case PolicyDisconnect:
		return "disconnect"
	case PolicyDropOldest:
		return "drop_oldest"
	default:
		return "unknown"
	}
}

// SubscriberStats is a point-in-time view of one subscriber.
type SubscriberStats struct {
	ID      uint64
	Policy  Policy
	Queued  int
	Sent    uint64
	Dropped uint64
}

// queue is a bounded FIFO with one consumer.
type queue[T any] struct {
	id     uint64
	policy Policy
	size   int

	mu     sync.Mutex
	items  []T
	err    error
	ready  chan struct{}
	closed chan struct{}

	sent    atomic.Uint64
	dropped atomic.Uint64
}

func newQueue[T any](id uint64, size int, policy Policy) *queue[T] {
	if size < 1 {
		size = 1
	}
	return &queue[T]{
		id:     id,
		policy: policy,
		size:   size,
		items:  make([]T, 0, size),
		ready:  make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

// push enqueues item without blocking. It reports false when the queue was
// closed by this call or earlier.
func (q *queue[T]) push(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return false
	}
	if len(q.items) == q.size {
		if q.policy == PolicyDisconnect {
			q.closeLocked(ErrSubscriberOverload)
			return false
		}
		clear(q.items[:1])
		q.items = append(q.items[:0], q.items[1:]...)
		q.dropped.Add(1)
	}
	q.items = append(q.items, item)
	select {
	case q.ready <- struct{}{}:
	default:
	}
	return true
}

// pop blocks until an item is available, the queue closes or ctx ends.
func (q *queue[T]) pop(ctx context.Context) (T, error) {
	var zero T
	for {
		q.mu.Lock()
		if q.err != nil {
			err := q.err
			q.mu.Unlock()
			return zero, err
		}
		if len(q.items) > 0 {
			item := q.items[0]
			clear(q.items[:1])
			q.items = append(q.items[:0], q.items[1:]...)
			q.mu.Unlock()
			q.sent.Add(1)
			return item, nil
		}
		q.mu.Unlock()

		select {
		case <-q.ready:
		case <-q.closed:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

func (q *queue[T]) close(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closeLocked(err)
}

func (q *queue[T]) closeLocked(err error) {
	if q.err != nil {
		return
	}
	q.err = err
	q.items = nil
	close(q.closed)
}

func (q *queue[T]) stats() SubscriberStats {
	q.mu.Lock()
	queued := len(q.items)
	q.mu.Unlock()
	return SubscriberStats{
		ID:      q.id,
		Policy:  q.policy,
		Queued:  queued,
		Sent:    q.sent.Load(),
		Dropped: q.dropped.Load(),
	}
}
