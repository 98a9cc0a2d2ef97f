package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/louisbranch/mira/internal/platform/timeouts"
	"github.com/louisbranch/mira/internal/services/controlplane/domain/command"
	"github.com/louisbranch/mira/internal/services/controlplane/domain/event"
)

// CommandClient sends one command to the control plane.
type CommandClient interface {
	Submit(ctx context.Context, cmd command.Command, opts ...grpc.CallOption) (event.Event, error)
}

// RetryPolicy bounds resubmission of a command.
type RetryPolicy struct {
	MaxTries        uint
	MaxElapsed      time.Duration
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// AttemptTimeout bounds a single round trip.
	AttemptTimeout time.Duration
}

// DefaultRetryPolicy allows five tries within three seconds.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxTries:        5,
		MaxElapsed:      3 * time.Second,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     time.Second,
		AttemptTimeout:  timeouts.CommandSubmit,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	d := DefaultRetryPolicy()
	if p.MaxTries == 0 {
		p.MaxTries = d.MaxTries
	}
	if p.MaxElapsed <= 0 {
		p.MaxElapsed = d.MaxElapsed
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = d.InitialInterval
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = d.MaxInterval
	}
	if p.AttemptTimeout <= 0 {
		p.AttemptTimeout = d.AttemptTimeout
	}
	return p
}

// Submitter delivers commands with bounded exponential backoff. The
// command id never changes between attempts, so the control plane
// records a retried command once.
type Submitter struct {
	client CommandClient
	policy RetryPolicy
}

// NewSubmitter wraps client with policy.
func NewSubmitter(client CommandClient, policy RetryPolicy) *Submitter {
	return &Submitter{client: client, policy: policy.withDefaults()}
}

// Submit sends cmd until it is answered, a non-retryable error occurs or
// the policy is exhausted.
func (s *Submitter) Submit(ctx context.Context, cmd command.Command) (event.Event, error) {
	if s == nil || s.client == nil {
		return event.Event{}, errors.New("command client is not configured")
	}
	if cmd.ID == "" {
		return event.Event{}, errors.New("command id is required for retries")
	}

	attempt := func() (event.Event, error) {
		callCtx, cancel := context.WithTimeout(ctx, s.policy.AttemptTimeout)
		defer cancel()
		evt, err := s.client.Submit(callCtx, cmd)
		if err != nil && !Retryable(err) {
			return event.Event{}, backoff.Permanent(err)
		}
		return evt, err
	}
	notify := func(err error, next time.Duration) {
		log.Printf("gesture worker: submit %s %s: %v (retry in %s)", cmd.Action, cmd.ID, err, next)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.policy.InitialInterval
	b.MaxInterval = s.policy.MaxInterval

	evt, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(s.policy.MaxTries),
		backoff.WithMaxElapsedTime(s.policy.MaxElapsed),
		backoff.WithNotify(notify),
	)
	if err != nil {
		return event.Event{}, fmt.Errorf("submit %s: %w", cmd.Action, err)
	}
	return evt, nil
}

// Retryable reports whether a failed submission may be sent again.
func Retryable(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded:
		return true
	default:
		return false
	}
}
