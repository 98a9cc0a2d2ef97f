// Package arbiter is the single writer of State. One goroutine reduces
// commands in arrival order, appends the resulting event, then commits and
// publishes the patch.
package arbiter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/louisbranch/mira/internal/platform/errors"
	"github.com/louisbranch/mira/internal/platform/id"
	"github.com/louisbranch/mira/internal/services/controlplane/domain/command"
	"github.com/louisbranch/mira/internal/services/controlplane/domain/event"
	"github.com/louisbranch/mira/internal/services/controlplane/domain/state"
	"github.com/louisbranch/mira/internal/services/controlplane/replay"
	"github.com/louisbranch/mira/internal/services/controlplane/storage"
)

const (
	defaultSubmitTimeout    = 2 * time.Second
	defaultQueueSize        = 256
	defaultSnapshotEvery    = 100
	defaultSnapshotInterval = 60 * time.Second
	defaultSnapshotKeep     = 5

	// ReasonArbiterBusy is the rejection reason of the synthetic event
	// returned when a submission could not be enqueued in time.
	ReasonArbiterBusy = "arbiter_busy"
)

var (
	// ErrEventStoreRequired indicates a missing event store.
	ErrEventStoreRequired = errors.New("event store is required")
	// ErrArbiterBusy is returned when the submission queue stayed full for
	// the whole submit timeout. The command was not processed.
	ErrArbiterBusy = apperrors.New(apperrors.CodeArbiterBusy, "arbiter is busy")
	// ErrArbiterStopped is returned once Run has exited.
	ErrArbiterStopped = apperrors.New(apperrors.CodeArbiterStopped, "arbiter is stopped")
	// ErrAlreadyRunning is returned by a second call to Run.
	ErrAlreadyRunning = errors.New("arbiter is already running")
)

var tracer = otel.Tracer("github.com/louisbranch/mira/internal/services/controlplane/arbiter")

// Publisher receives committed patches in commit order. Publish must not
// block on subscribers.
type Publisher interface {
	Publish(seq uint64, p state.Patch)
}

// Config wires the arbiter's collaborators and tuning.
type Config struct {
	Events    storage.EventStore
	Snapshots storage.SnapshotStore
	Publisher Publisher
	Registry  *command.Registry
	Reducers  map[command.Action]Reducer

	// SubmitTimeout bounds how long Submit waits for queue space.
	SubmitTimeout time.Duration
	QueueSize     int
	// SnapshotEvery takes a snapshot after this many events.
	SnapshotEvery int
	// SnapshotInterval takes a snapshot on this cadence when new events exist.
	SnapshotInterval time.Duration
	// SnapshotKeep is the number of snapshots retained after each write.
	SnapshotKeep int

	Now   func() time.Time
	NewID func() (string, error)
}

type request struct {
	ctx   context.Context
	cmd   command.Command
	reply chan reply
}

type reply struct {
	evt event.Event
	err error
}

// Arbiter serializes command processing. Construct with New, optionally
// Recover, then Run.
type Arbiter struct {
	cfg      Config
	requests chan request
	done     chan struct{}
	started  chan struct{}

	// Owned by the Run goroutine once it starts.
	state           *state.State
	lastSeq         uint64
	lastSnapshotSeq uint64
	sinceSnapshot   int
	snapshots       chan snapshotJob
}

// New builds an arbiter starting from genesis State.
func New(cfg Config) (*Arbiter, error) {
	if cfg.Events == nil {
		return nil, ErrEventStoreRequired
	}
	if cfg.Registry == nil {
		cfg.Registry = command.DefaultRegistry()
	}
	if cfg.Reducers == nil {
		cfg.Reducers = DefaultReducers()
	}
	for _, action := range cfg.Registry.Actions() {
		if _, ok := cfg.Reducers[action]; !ok {
			return nil, fmt.Errorf("no reducer for action %s", action)
		}
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = defaultSubmitTimeout
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	} else if cfg.QueueSize == 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.SnapshotEvery <= 0 {
		cfg.SnapshotEvery = defaultSnapshotEvery
	}
	if cfg.SnapshotInterval <= 0 {
		cfg.SnapshotInterval = defaultSnapshotInterval
	}
	if cfg.SnapshotKeep <= 0 {
		cfg.SnapshotKeep = defaultSnapshotKeep
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = id.NewID
	}
	return &Arbiter{
		cfg:      cfg,
		requests: make(chan request, cfg.QueueSize),
		done:     make(chan struct{}),
		started:  make(chan struct{}),
		state:    state.New(),
	}, nil
}

// Recover rebuilds State from the latest snapshot and the log. It must be
// called before Run. The returned State is a copy the caller may keep.
func (a *Arbiter) Recover(ctx context.Context) (replay.Result, error) {
	select {
	case <-a.started:
		return replay.Result{}, ErrAlreadyRunning
	default:
	}
	var snapshots replay.SnapshotReader
	if a.cfg.Snapshots != nil {
		snapshots = a.cfg.Snapshots
	}
	result, err := replay.Recover(ctx, a.cfg.Events, snapshots)
	if err != nil {
		return replay.Result{}, fmt.Errorf("recover state: %w", err)
	}
	a.state = result.State
	a.lastSeq = result.LastSeq
	a.lastSnapshotSeq = result.SnapshotSeq
	a.sinceSnapshot = int(result.LastSeq - result.SnapshotSeq)
	result.State = result.State.Clone()
	return result, nil
}

// Run processes submissions until ctx is cancelled. Requests already queued
// when ctx ends still run to completion.
func (a *Arbiter) Run(ctx context.Context) error {
	select {
	case <-a.started:
		return ErrAlreadyRunning
	default:
		close(a.started)
	}
	defer close(a.done)

	var writerDone chan struct{}
	if a.cfg.Snapshots != nil {
		a.snapshots = make(chan snapshotJob, 1)
		writerDone = make(chan struct{})
		go func() {
			defer close(writerDone)
			a.writeSnapshots(a.snapshots)
		}()
	}
	defer func() {
		if a.snapshots != nil {
			close(a.snapshots)
			<-writerDone
		}
	}()

	ticker := time.NewTicker(a.cfg.SnapshotInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			a.drain()
			return nil
		case req := <-a.requests:
			a.serve(req)
		case <-ticker.C:
			if a.lastSeq > a.lastSnapshotSeq {
				a.requestSnapshot()
			}
		}
	}
}

func (a *Arbiter) drain() {
	for {
		select {
		case req := <-a.requests:
			a.serve(req)
		default:
			return
		}
	}
}

// Done is closed when Run has returned.
func (a *Arbiter) Done() <-chan struct{} {
	return a.done
}

// Pending reports how many submissions are waiting in the queue.
func (a *Arbiter) Pending() int {
	return len(a.requests)
}

// Submit hands cmd to the arbiter and waits for its event. When the queue
// stays full for SubmitTimeout it returns a non-persisted rejected event
// with reason arbiter_busy together with ErrArbiterBusy.
func (a *Arbiter) Submit(ctx context.Context, cmd command.Command) (event.Event, error) {
	ctx, span := tracer.Start(ctx, "arbiter.Submit", trace.WithAttributes(
		attribute.String("mira.command.action", string(cmd.Action)),
		attribute.String("mira.command.source", string(cmd.Source)),
	))
	defer span.End()

	cmd, err := command.Normalize(cmd, a.cfg.Now().UTC())
	if err != nil {
		span.SetStatus(otelcodes.Error, err.Error())
		return event.Event{}, err
	}
	req := request{ctx: context.WithoutCancel(ctx), cmd: cmd, reply: make(chan reply, 1)}

	timer := time.NewTimer(a.cfg.SubmitTimeout)
	defer timer.Stop()
	select {
	case a.requests <- req:
	case <-a.done:
		return event.Event{}, ErrArbiterStopped
	case <-ctx.Done():
		return event.Event{}, ctx.Err()
	case <-timer.C:
		span.SetStatus(otelcodes.Error, ErrArbiterBusy.Error())
		return a.busyEvent(cmd), ErrArbiterBusy
	}

	select {
	case r := <-req.reply:
		if r.err != nil {
			span.SetStatus(otelcodes.Error, r.err.Error())
		} else {
			span.SetAttributes(
				attribute.String("mira.event.type", string(r.evt.Type)),
				attribute.Int64("mira.event.seq", int64(r.evt.Seq)),
			)
		}
		return r.evt, r.err
	case <-ctx.Done():
		// The command still runs to completion.
		return event.Event{}, ctx.Err()
	case <-a.done:
		select {
		case r := <-req.reply:
			return r.evt, r.err
		default:
			return event.Event{}, ErrArbiterStopped
		}
	}
}

func (a *Arbiter) busyEvent(cmd command.Command) event.Event {
	evtID, err := a.cfg.NewID()
	if err != nil {
		evtID = cmd.ID
	}
	evt, err := event.NewRejected(evtID, cmd.ID, a.cfg.Now(), event.Rejection{
		Reason: ReasonArbiterBusy,
		Action: string(cmd.Action),
	})
	if err != nil {
		return event.Event{}
	}
	return evt
}

func (a *Arbiter) serve(req request) {
	evt, err := a.process(req.ctx, req.cmd)
	req.reply <- reply{evt: evt, err: err}
}

// process runs one command: dedupe, decide, persist, commit, publish.
func (a *Arbiter) process(ctx context.Context, cmd command.Command) (event.Event, error) {
	existing, err := a.cfg.Events.EventByCommandID(ctx, cmd.ID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return event.Event{}, apperrors.Wrap(apperrors.CodePersistenceFailure, "look up command", err)
	}

	decision := a.decide(cmd)
	var next *state.State
	if decision.Patch != nil {
		next = a.state.Clone()
		if err := next.Apply(*decision.Patch); err != nil {
			decision = command.Reject(command.ReasonInvalidPayload, err.Error())
			next = nil
		}
	}

	evt, err := a.buildEvent(cmd, decision)
	if err != nil {
		return event.Event{}, err
	}
	stored, err := a.cfg.Events.AppendEvent(ctx, evt)
	if errors.Is(err, storage.ErrDuplicateCommand) {
		return stored, nil
	}
	if err != nil {
		return event.Event{}, apperrors.Wrap(apperrors.CodePersistenceFailure, "append event", err)
	}

	if next != nil {
		a.state = next
	}
	a.lastSeq = stored.Seq
	if decision.Patch != nil && a.cfg.Publisher != nil {
		a.cfg.Publisher.Publish(stored.Seq, *decision.Patch)
	}
	a.sinceSnapshot++
	if a.sinceSnapshot >= a.cfg.SnapshotEvery {
		a.requestSnapshot()
	}
	return stored, nil
}

func (a *Arbiter) decide(cmd command.Command) command.Decision {
	if err := a.cfg.Registry.Validate(cmd); err != nil {
		r := command.RejectionFor(err)
		return command.Reject(r.Code, r.Message)
	}
	reduce, ok := a.cfg.Reducers[cmd.Action]
	if !ok {
		return command.Reject(command.ReasonUnknownAction, string(cmd.Action))
	}
	return reduce(a.state, cmd)
}

func (a *Arbiter) buildEvent(cmd command.Command, decision command.Decision) (event.Event, error) {
	evtID, err := a.cfg.NewID()
	if err != nil {
		return event.Event{}, fmt.Errorf("generate event id: %w", err)
	}
	ts := a.cfg.Now()
	switch {
	case decision.Rejection != nil:
		return event.NewRejected(evtID, cmd.ID, ts, event.Rejection{
			Reason:  decision.Rejection.Code,
			Action:  string(cmd.Action),
			Message: decision.Rejection.Message,
		})
	case decision.Patch != nil:
		return event.NewStatePatch(evtID, cmd.ID, ts, *decision.Patch)
	default:
		return event.NewAccepted(evtID, cmd.ID, ts, string(cmd.Action))
	}
}

type snapshotJob struct {
	seq   uint64
	ts    time.Time
	state json.RawMessage
}

// requestSnapshot hands a serialized copy of State to the writer. When the
// writer is still busy the request is skipped and retried on the next
// trigger.
func (a *Arbiter) requestSnapshot() {
	if a.snapshots == nil {
		return
	}
	data, err := json.Marshal(a.state)
	if err != nil {
		log.Printf("arbiter: encode snapshot at seq %d: %v", a.lastSeq, err)
		return
	}
	select {
	case a.snapshots <- snapshotJob{seq: a.lastSeq, ts: a.cfg.Now(), state: data}:
		a.lastSnapshotSeq = a.lastSeq
		a.sinceSnapshot = 0
	default:
	}
}

func (a *Arbiter) writeSnapshots(jobs <-chan snapshotJob) {
	ctx := context.Background()
	for job := range jobs {
		if _, err := a.cfg.Snapshots.PutSnapshot(ctx, storage.Snapshot{
			Timestamp: job.ts,
			EventSeq:  job.seq,
			StateJSON: job.state,
		}); err != nil {
			log.Printf("arbiter: write snapshot at seq %d: %v", job.seq, err)
			continue
		}
		if _, err := a.cfg.Snapshots.PruneSnapshots(ctx, a.cfg.SnapshotKeep); err != nil {
			log.Printf("arbiter: prune snapshots: %v", err)
		}
	}
}
