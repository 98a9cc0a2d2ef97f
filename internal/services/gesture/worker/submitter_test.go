package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/louisbranch/mira/internal/services/controlplane/domain/command"
	"github.com/louisbranch/mira/internal/services/controlplane/domain/event"
)

type scriptedClient struct {
	mu    sync.Mutex
	errs  []error
	calls []command.Command
}

func (c *scriptedClient) Submit(_ context.Context, cmd command.Command, _ ...grpc.CallOption) (event.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, cmd)
	if len(c.errs) > 0 {
		err := c.errs[0]
		c.errs = c.errs[1:]
		if err != nil {
			return event.Event{}, err
		}
	}
	evt, err := event.NewAccepted("evt-"+cmd.ID, cmd.ID, cmd.Timestamp, string(cmd.Action))
	if err != nil {
		return event.Event{}, err
	}
	evt.Seq = uint64(len(c.calls))
	return evt, nil
}

func (c *scriptedClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func fastPolicy() RetryPolicy {
	return RetryPolicy{
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		AttemptTimeout:  time.Second,
	}
}

func testCommand(t *testing.T) command.Command {
	t.Helper()
	cmd, err := command.New(command.SourceGesture, command.ActionGesturePinch, map[string]any{"gesture": "pinch"})
	if err != nil {
		t.Fatalf("new command: %v", err)
	}
	return cmd
}

func TestSubmitterRetriesTransientErrorsWithStableID(t *testing.T) {
	client := &scriptedClient{errs: []error{
		status.Error(codes.Unavailable, "arbiter is busy"),
		status.Error(codes.DeadlineExceeded, "slow"),
		status.Error(codes.ResourceExhausted, "queue full"),
	}}
	cmd := testCommand(t)
	evt, err := NewSubmitter(client, fastPolicy()).Submit(context.Background(), cmd)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if evt.CommandID != cmd.ID {
		t.Fatalf("event command id = %q, want %q", evt.CommandID, cmd.ID)
	}
	if client.callCount() != 4 {
		t.Fatalf("calls = %d, want 4", client.callCount())
	}
	for i, call := range client.calls {
		if call.ID != cmd.ID {
			t.Fatalf("attempt %d used id %q, want %q", i, call.ID, cmd.ID)
		}
	}
}

func TestSubmitterStopsOnPermanentError(t *testing.T) {
	client := &scriptedClient{errs: []error{status.Error(codes.InvalidArgument, "bad payload")}}
	_, err := NewSubmitter(client, fastPolicy()).Submit(context.Background(), testCommand(t))
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("err = %v", err)
	}
	if client.callCount() != 1 {
		t.Fatalf("calls = %d, want 1", client.callCount())
	}
}

func TestSubmitterGivesUpAfterMaxTries(t *testing.T) {
	unavailable := status.Error(codes.Unavailable, "down")
	client := &scriptedClient{errs: []error{unavailable, unavailable, unavailable, unavailable, unavailable, unavailable, unavailable}}
	_, err := NewSubmitter(client, fastPolicy()).Submit(context.Background(), testCommand(t))
	if err == nil {
		t.Fatal("expected error")
	}
	if client.callCount() != 5 {
		t.Fatalf("calls = %d, want 5", client.callCount())
	}
}

func TestSubmitterRequiresCommandID(t *testing.T) {
	client := &scriptedClient{}
	_, err := NewSubmitter(client, fastPolicy()).Submit(context.Background(), command.Command{Action: command.ActionToggleMic})
	if err == nil || client.callCount() != 0 {
		t.Fatalf("err = %v calls = %d", err, client.callCount())
	}
}

func TestRetryable(t *testing.T) {
	for code, want := range map[codes.Code]bool{
		codes.Unavailable:       true,
		codes.ResourceExhausted: true,
		codes.DeadlineExceeded:  true,
		codes.InvalidArgument:   false,
		codes.Internal:          false,
		codes.Canceled:          false,
	} {
		if got := Retryable(status.Error(code, "x")); got != want {
			t.Fatalf("Retryable(%s) = %v, want %v", code, got, want)
		}
	}
	if Retryable(errors.New("plain")) {
		t.Fatal("plain errors are not retryable")
	}
}
