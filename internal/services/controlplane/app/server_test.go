package server

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	platformgrpc "github.com/louisbranch/mira/internal/platform/grpc"
	"github.com/louisbranch/mira/internal/services/controlplane/api/grpc/commands"
	"github.com/louisbranch/mira/internal/services/controlplane/domain/command"
	"github.com/louisbranch/mira/internal/services/controlplane/domain/event"
	"github.com/louisbranch/mira/internal/services/controlplane/domain/state"
)

func TestNewServerRequiresAddresses(t *testing.T) {
	if _, err := NewServer(context.Background(), Config{GRPCAddr: "127.0.0.1:0"}); err == nil {
		t.Fatal("expected error for missing http address")
	}
	if _, err := NewServer(context.Background(), Config{HTTPAddr: "127.0.0.1:0"}); err == nil {
		t.Fatal("expected error for missing grpc address")
	}
}

func startServer(t *testing.T, dbPath string) (*Server, func()) {
	t.Helper()
	srv, err := NewServer(context.Background(), Config{
		HTTPAddr:      "127.0.0.1:0",
		GRPCAddr:      "127.0.0.1:0",
		DBPath:        dbPath,
		SnapshotEvery: 2,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx) }()

	var once bool
	stop := func() {
		if once {
			return
		}
		once = true
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("listen and serve: %v", err)
			}
		case <-time.After(10 * time.Second):
			t.Error("server did not stop")
		}
		srv.Close()
	}
	t.Cleanup(stop)
	return srv, stop
}

func TestServerRecoversStateAfterRestart(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "data", "control_plane.db")
	srv, stop := startServer(t, dbPath)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := platformgrpc.DialWithHealth(ctx, srv.GRPCAddr(), 0, t.Logf)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	client := commands.NewClient(conn)

	for _, tc := range []struct {
		action  command.Action
		payload map[string]any
	}{
		{command.ActionToggleMic, nil},
		{command.ActionAddTodo, map[string]any{"text": "Water plants"}},
		{command.ActionSetMode, map[string]any{"mode": state.ModeGesture}},
	} {
		cmd, err := command.New(command.SourceVoice, tc.action, tc.payload)
		if err != nil {
			t.Fatalf("new command: %v", err)
		}
		evt, err := client.Submit(ctx, cmd)
		if err != nil {
			t.Fatalf("submit %s: %v", tc.action, err)
		}
		if evt.Type != event.TypeStatePatch {
			t.Fatalf("submit %s: event = %+v", tc.action, evt)
		}
	}
	waitFor(t, func() bool { _, seq, _ := srv.states.State(); return seq == 3 })
	before, _, err := srv.states.State()
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	stop()

	again, _ := startServer(t, dbPath)
	after, afterSeq, err := again.states.State()
	if err != nil {
		t.Fatalf("recovered state: %v", err)
	}
	if afterSeq != 3 {
		t.Fatalf("recovered seq = %d, want 3", afterSeq)
	}
	want, err := state.FromJSON(before)
	if err != nil {
		t.Fatalf("decode before: %v", err)
	}
	got, err := state.FromJSON(after)
	if err != nil {
		t.Fatalf("decode after: %v", err)
	}
	if !got.Equal(want) {
		t.Fatalf("recovered state = %s, want %s", after, before)
	}
	if !got.Bool("/mic_enabled") || got.String("/mode") != state.ModeGesture || got.Len("/todos") != 1 {
		t.Fatalf("recovered state = %s", after)
	}
}
