package broadcast

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
)

// FeedHub relays a lossy, best-effort stream such as live gesture
// classifications. Subscribers get no snapshot and slow ones lose the
// oldest items.
type FeedHub[T any] struct {
	queueSize int

	mu      sync.Mutex
	subs    map[uint64]*queue[T]
	nextID  uint64
	stopped bool

	published atomic.Uint64
}

// NewFeedHub returns a hub whose subscribers buffer up to queueSize items.
func NewFeedHub[T any](queueSize int) *FeedHub[T] {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &FeedHub[T]{queueSize: queueSize, subs: make(map[uint64]*queue[T])}
}

// Publish offers item to every subscriber without blocking.
func (h *FeedHub[T]) Publish(item T) {
	h.published.Add(1)
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, q := range h.subs {
		q.push(item)
	}
}

// Subscribe registers a new feed consumer.
func (h *FeedHub[T]) Subscribe() (*FeedSubscription[T], error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return nil, ErrClosed
	}
	h.nextID++
	q := newQueue[T](h.nextID, h.queueSize, PolicyDropOldest)
	h.subs[q.id] = q
	return &FeedSubscription[T]{q: q, hub: h}, nil
}

// Close stops the hub and closes every subscription.
func (h *FeedHub[T]) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopped = true
	for id, q := range h.subs {
		q.close(ErrClosed)
		delete(h.subs, id)
	}
}

// Stats reports every live subscriber, ordered by id.
func (h *FeedHub[T]) Stats() []SubscriberStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	stats := make([]SubscriberStats, 0, len(h.subs))
	for _, q := range h.subs {
		stats = append(stats, q.stats())
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].ID < stats[j].ID })
	return stats
}

// Published returns the number of Publish calls.
func (h *FeedHub[T]) Published() uint64 {
	return h.published.Load()
}

// FeedSubscription is one consumer of a FeedHub.
type FeedSubscription[T any] struct {
	q   *queue[T]
	hub *FeedHub[T]
}

// Next blocks for the next item.
func (s *FeedSubscription[T]) Next(ctx context.Context) (T, error) {
	return s.q.pop(ctx)
}

// Close unsubscribes.
func (s *FeedSubscription[T]) Close() {
	s.q.close(ErrClosed)
	s.hub.mu.Lock()
	delete(s.hub.subs, s.q.id)
	s.hub.mu.Unlock()
}
