// Package broadcast fans committed State out to live subscribers. Every
// subscriber first receives a full snapshot and then only the patches
// committed after it, through its own bounded queue.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/louisbranch/mira/internal/services/controlplane/domain/state"
)

const defaultQueueSize = 64

// MessageType tags a subscriber message.
type MessageType string

const (
	MessageSnapshot MessageType = "snapshot"
	MessagePatch    MessageType = "patch"
)

// Message is one item of a state stream. Snapshot messages carry State;
// patch messages carry the embedded patch fields ts, path and value.
type Message struct {
	Type  MessageType     `json:"type"`
	Seq   uint64          `json:"seq"`
	State json.RawMessage `json:"state,omitempty"`
	*state.Patch
}

// Options tunes subscriber queues.
type Options struct {
	QueueSize int
}

type pending struct {
	seq   uint64
	patch state.Patch
}

// Broadcaster keeps a committed replica of State and fans patches out.
type Broadcaster struct {
	queueSize int

	// inbox is the only state shared with the publisher.
	inboxMu sync.Mutex
	inbox   []pending
	notify  chan struct{}

	mu      sync.Mutex
	replica *state.State
	seq     uint64
	subs    map[uint64]*Subscription
	nextID  uint64
	stopped bool

	published atomic.Uint64
	done      chan struct{}
}

// New seeds a broadcaster with a copy of initial committed at seq.
func New(initial *state.State, seq uint64, opts Options) *Broadcaster {
	if initial == nil {
		initial = state.New()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	return &Broadcaster{
		queueSize: opts.QueueSize,
		notify:    make(chan struct{}, 1),
		replica:   initial.Clone(),
		seq:       seq,
		subs:      make(map[uint64]*Subscription),
		done:      make(chan struct{}),
	}
}

// Publish hands a committed patch to the fan-out goroutine. It never waits
// on subscribers.
func (b *Broadcaster) Publish(seq uint64, p state.Patch) {
	b.inboxMu.Lock()
	b.inbox = append(b.inbox, pending{seq: seq, patch: p})
	b.inboxMu.Unlock()
	b.published.Add(1)
	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// Run delivers published patches until ctx ends, then closes every
// subscription.
func (b *Broadcaster) Run(ctx context.Context) {
	defer close(b.done)
	for {
		select {
		case <-ctx.Done():
			b.stop()
			return
		case <-b.notify:
			b.flush()
		}
	}
}

// Done is closed when Run has returned.
func (b *Broadcaster) Done() <-chan struct{} {
	return b.done
}

func (b *Broadcaster) flush() {
	b.inboxMu.Lock()
	batch := b.inbox
	b.inbox = nil
	b.inboxMu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, item := range batch {
		if item.seq <= b.seq {
			continue
		}
		if err := b.replica.Apply(item.patch); err != nil {
			log.Printf("broadcast: apply patch %d: %v", item.seq, err)
			continue
		}
		b.seq = item.seq
		patch := item.patch
		msg := Message{Type: MessagePatch, Seq: item.seq, Patch: &patch}
		for id, sub := range b.subs {
			if !sub.q.push(msg) {
				delete(b.subs, id)
				log.Printf("broadcast: subscriber %d disconnected at seq %d: %v", id, item.seq, sub.Err())
			}
		}
	}
}

func (b *Broadcaster) stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopped = true
	for id, sub := range b.subs {
		sub.q.close(ErrClosed)
		delete(b.subs, id)
	}
}

// Subscribe registers a subscriber whose first message is the current
// snapshot. Only PolicyDisconnect keeps the patch stream gap free;
// PolicyDropOldest suits displays that resubscribe on their own.
func (b *Broadcaster) Subscribe(policy Policy) (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return nil, ErrClosed
	}
	data, err := json.Marshal(b.replica)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	b.nextID++
	sub := &Subscription{q: newQueue[Message](b.nextID, b.queueSize, policy), b: b}
	sub.q.push(Message{Type: MessageSnapshot, Seq: b.seq, State: data})
	b.subs[sub.q.id] = sub
	return sub, nil
}

// State returns the committed replica and its seq.
func (b *Broadcaster) State() (json.RawMessage, uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, err := json.Marshal(b.replica)
	if err != nil {
		return nil, 0, fmt.Errorf("encode state: %w", err)
	}
	return data, b.seq, nil
}

// Stats reports every live subscriber, ordered by id.
func (b *Broadcaster) Stats() []SubscriberStats {
	b.mu.Lock()
	subs := make([]*Subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	stats := make([]SubscriberStats, 0, len(subs))
	for _, sub := range subs {
		stats = append(stats, sub.q.stats())
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].ID < stats[j].ID })
	return stats
}

// Published returns the number of Publish calls.
func (b *Broadcaster) Published() uint64 {
	return b.published.Load()
}

func (b *Broadcaster) remove(id uint64) {
	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
}

// Subscription is one consumer of a state stream.
type Subscription struct {
	q *queue[Message]
	b *Broadcaster
}

// ID identifies the subscription in Stats.
func (s *Subscription) ID() uint64 {
	return s.q.id
}

// Next blocks for the next message. After an overflow it returns
// ErrSubscriberOverload; after Close or shutdown it returns ErrClosed.
func (s *Subscription) Next(ctx context.Context) (Message, error) {
	return s.q.pop(ctx)
}

// Err reports why the subscription closed, or nil while it is live.
func (s *Subscription) Err() error {
	s.q.mu.Lock()
	defer s.q.mu.Unlock()
	return s.q.err
}

// Close unsubscribes and discards queued messages.
func (s *Subscription) Close() {
	s.q.close(ErrClosed)
	s.b.remove(s.q.id)
}
