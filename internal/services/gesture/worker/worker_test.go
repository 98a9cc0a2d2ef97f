package worker

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/louisbranch/mira/internal/services/controlplane/domain/command"
	"github.com/louisbranch/mira/internal/services/controlplane/domain/event"
	"github.com/louisbranch/mira/internal/services/gesture"
)

type recordingSink struct {
	mu    sync.Mutex
	items []gesture.FeedItem
}

func (s *recordingSink) Publish(item gesture.FeedItem) {
	s.mu.Lock()
	s.items = append(s.items, item)
	s.mu.Unlock()
}

func frameLines(t *testing.T, start time.Time, count int, step time.Duration, hands []gesture.HandSample) string {
	t.Helper()
	var b strings.Builder
	enc := json.NewEncoder(&b)
	for i := 0; i < count; i++ {
		if err := enc.Encode(gesture.Frame{Timestamp: start.Add(time.Duration(i) * step), Hands: hands}); err != nil {
			t.Fatalf("encode frame: %v", err)
		}
	}
	return b.String()
}

func TestWorkerSubmitsDebouncedGestures(t *testing.T) {
	client := &scriptedClient{}
	sink := &recordingSink{}
	w, err := New(Config{
		Submitter: NewSubmitter(client, fastPolicy()),
		Feed:      sink,
	})
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}

	start := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	pinch := []gesture.HandSample{{ID: "right", Pose: gesture.PosePinch, Centroid: gesture.Point{X: 0.5, Y: 0.5}}}
	input := frameLines(t, start, 51, 20*time.Millisecond, pinch) + frameLines(t, start.Add(time.Second+20*time.Millisecond), 1, 0, nil)

	stats, err := w.Run(context.Background(), strings.NewReader(input))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Frames != 52 || stats.Submitted != 2 || stats.Failed != 0 || stats.Dropped != 0 {
		t.Fatalf("stats = %+v", stats)
	}
	for _, call := range client.calls {
		if call.Action != command.ActionGesturePinch || call.Source != command.SourceGesture {
			t.Fatalf("submitted %+v", call)
		}
	}
	if !client.calls[0].Timestamp.Equal(start.Add(220 * time.Millisecond)) {
		t.Fatalf("first command ts = %v", client.calls[0].Timestamp)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.items) != 52 {
		t.Fatalf("feed items = %d, want 52", len(sink.items))
	}
	if sink.items[0].Gesture != "pinch" || sink.items[51].Gesture != gesture.GestureIdle {
		t.Fatalf("feed first=%+v last=%+v", sink.items[0], sink.items[51])
	}
}

func TestWorkerDropsWhenOutboxIsFull(t *testing.T) {
	blocked := make(chan struct{})
	w, err := New(Config{
		Submitter:  blockingSubmitter{release: blocked},
		OutboxSize: 1,
	})
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}
	start := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	steady := int64(400)
	var b strings.Builder
	for i := 0; i < 8; i++ {
		// Alternating arm transitions produce a set_gn_armed command each time.
		hands := []gesture.HandSample{
			{ID: "left", Pose: gesture.PoseOpen, Centroid: gesture.Point{X: 0.2}, SteadyMs: &steady},
			{ID: "right", Pose: gesture.PoseFist, Centroid: gesture.Point{X: 0.7}},
		}
		b.WriteString(frameLines(t, start.Add(time.Duration(i)*time.Second), 1, 0, hands))
		b.WriteString(frameLines(t, start.Add(time.Duration(i)*time.Second+500*time.Millisecond), 2, 200*time.Millisecond, nil))
	}

	done := make(chan Stats, 1)
	go func() {
		stats, _ := w.Run(context.Background(), strings.NewReader(b.String()))
		done <- stats
	}()
	deadline := time.Now().Add(2 * time.Second)
	for w.snapshot().Frames < 24 {
		if time.Now().After(deadline) {
			t.Fatal("frames not consumed")
		}
		time.Sleep(time.Millisecond)
	}
	close(blocked)

	select {
	case stats := <-done:
		if stats.Dropped == 0 {
			t.Fatalf("stats = %+v, want drops", stats)
		}
		if stats.Submitted+stats.Dropped != 16 {
			t.Fatalf("stats = %+v, want 16 commands in total", stats)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not finish")
	}
}

type blockingSubmitter struct {
	release chan struct{}
}

func (b blockingSubmitter) Submit(context.Context, command.Command) (event.Event, error) {
	<-b.release
	return event.Event{}, nil
}

func TestNewRequiresSubmitter(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error")
	}
}
