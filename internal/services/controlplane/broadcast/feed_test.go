package broadcast

import (
	"context"
	"errors"
	"testing"
	"time"
)

type feedItem struct {
	Gesture string
	Armed   bool
}

func TestFeedHubDropsOldestForSlowSubscribers(t *testing.T) {
	hub := NewFeedHub[feedItem](2)
	fast, err := hub.Subscribe()
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	slow, err := hub.Subscribe()
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for _, name := range []string{"open", "pinch", "fist", "swipe_left"} {
		hub.Publish(feedItem{Gesture: name})
		item, err := fast.Next(ctx)
		if err != nil {
			t.Fatalf("fast next: %v", err)
		}
		if item.Gesture != name {
			t.Fatalf("fast got %q, want %q", item.Gesture, name)
		}
	}

	for _, want := range []string{"fist", "swipe_left"} {
		item, err := slow.Next(ctx)
		if err != nil {
			t.Fatalf("slow next: %v", err)
		}
		if item.Gesture != want {
			t.Fatalf("slow got %q, want %q", item.Gesture, want)
		}
	}
	stats := hub.Stats()
	if len(stats) != 2 || stats[1].Dropped != 2 || stats[0].Dropped != 0 {
		t.Fatalf("stats = %+v", stats)
	}
	if hub.Published() != 4 {
		t.Fatalf("published = %d", hub.Published())
	}
}

func TestFeedHubCloseEndsSubscriptions(t *testing.T) {
	hub := NewFeedHub[feedItem](0)
	sub, err := hub.Subscribe()
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	hub.Close()
	if _, err := sub.Next(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("next after close = %v", err)
	}
	if _, err := hub.Subscribe(); !errors.Is(err, ErrClosed) {
		t.Fatalf("subscribe after close = %v", err)
	}
	hub.Publish(feedItem{Gesture: "open"})
}

func TestFeedSubscriptionCloseUnregisters(t *testing.T) {
	hub := NewFeedHub[feedItem](4)
	sub, err := hub.Subscribe()
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	sub.Close()
	if len(hub.Stats()) != 0 {
		t.Fatal("closed subscription still registered")
	}
}
