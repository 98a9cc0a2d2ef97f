// Package worker runs the gesture engine over a classifier frame stream and
// forwards its output: commands to the arbiter over gRPC and the live
// classification feed to the control plane's ingest socket.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/louisbranch/mira/internal/services/controlplane/domain/command"
	"github.com/louisbranch/mira/internal/services/controlplane/domain/event"
	"github.com/louisbranch/mira/internal/services/gesture"
)

const defaultOutboxSize = 64

// CommandSubmitter delivers one command.
type CommandSubmitter interface {
	Submit(ctx context.Context, cmd command.Command) (event.Event, error)
}

// FeedSink receives live feed items. Publish must not block.
type FeedSink interface {
	Publish(item gesture.FeedItem)
}

// Config wires a Worker.
type Config struct {
	Engine     gesture.Config
	Submitter  CommandSubmitter
	Feed       FeedSink
	OutboxSize int
}

// Stats counts what a run produced.
type Stats struct {
	Frames    int
	Submitted int
	Failed    int
	Dropped   int
	Rejected  int
}

// Worker owns one engine. Run may be called once.
type Worker struct {
	engine    *gesture.Engine
	submitter CommandSubmitter
	feed      FeedSink
	outbox    chan command.Command

	mu    sync.Mutex
	stats Stats
}

// New validates cfg and builds a worker.
func New(cfg Config) (*Worker, error) {
	if cfg.Submitter == nil {
		return nil, errors.New("command submitter is required")
	}
	if err := cfg.Engine.Validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}
	if cfg.OutboxSize <= 0 {
		cfg.OutboxSize = defaultOutboxSize
	}
	return &Worker{
		engine:    gesture.NewEngine(cfg.Engine),
		submitter: cfg.Submitter,
		feed:      cfg.Feed,
		outbox:    make(chan command.Command, cfg.OutboxSize),
	}, nil
}

// Run processes frames from r until EOF or ctx ends. Commands still in the
// outbox at EOF are delivered before Run returns.
func (w *Worker) Run(ctx context.Context, r io.Reader) (Stats, error) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.deliver(ctx)
	}()

	err := w.consume(ctx, NewFrameReader(r))
	close(w.outbox)
	wg.Wait()

	return w.snapshot(), err
}

func (w *Worker) snapshot() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Worker) consume(ctx context.Context, frames *FrameReader) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		frame, err := frames.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		out, err := w.engine.Process(frame)
		if err != nil {
			return fmt.Errorf("process frame %s: %w", frame.Timestamp, err)
		}
		if w.feed != nil {
			w.feed.Publish(out.Feed)
		}
		for _, cmd := range out.Commands {
			select {
			case w.outbox <- cmd:
			default:
				w.count(func(s *Stats) { s.Dropped++ })
				log.Printf("gesture worker: outbox full, dropped %s", cmd.Action)
			}
		}
		w.count(func(s *Stats) { s.Frames++ })
	}
}

func (w *Worker) deliver(ctx context.Context) {
	for cmd := range w.outbox {
		if ctx.Err() != nil {
			w.count(func(s *Stats) { s.Failed++ })
			continue
		}
		evt, err := w.submitter.Submit(ctx, cmd)
		if err != nil {
			w.count(func(s *Stats) { s.Failed++ })
			log.Printf("gesture worker: %v", err)
			continue
		}
		w.count(func(s *Stats) {
			s.Submitted++
			if evt.Type == event.TypeRejected {
				s.Rejected++
			}
		})
	}
}

func (w *Worker) count(fn func(*Stats)) {
	w.mu.Lock()
	fn(&w.stats)
	w.mu.Unlock()
}
