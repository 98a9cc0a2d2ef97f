package worker

import (
	"context"
	"log"
	"net/url"
	"sync/atomic"
	"time"

	"golang.org/x/net/websocket"

	"github.com/louisbranch/mira/internal/platform/timeouts"
	"github.com/louisbranch/mira/internal/services/gesture"
)

const (
	defaultFeedBuffer    = 32
	defaultRedialBackoff = time.Second
)

// FeedPublisher streams feed items to the control plane's ingest socket.
// Delivery is best effort: items are dropped when the buffer is full or
// the socket is down.
type FeedPublisher struct {
	url    string
	origin string
	items  chan gesture.FeedItem
	redial time.Duration

	sent    atomic.Uint64
	dropped atomic.Uint64
}

// NewFeedPublisher targets a ws:// URL.
func NewFeedPublisher(wsURL string, buffer int) *FeedPublisher {
	if buffer <= 0 {
		buffer = defaultFeedBuffer
	}
	origin := "http://localhost/"
	if u, err := url.Parse(wsURL); err == nil && u.Host != "" {
		origin = "http://" + u.Host + "/"
	}
	return &FeedPublisher{
		url:    wsURL,
		origin: origin,
		items:  make(chan gesture.FeedItem, buffer),
		redial: defaultRedialBackoff,
	}
}

// Publish queues item without blocking.
func (p *FeedPublisher) Publish(item gesture.FeedItem) {
	select {
	case p.items <- item:
	default:
		p.dropped.Add(1)
	}
}

// Sent returns the number of items written to the socket.
func (p *FeedPublisher) Sent() uint64 { return p.sent.Load() }

// Dropped returns the number of items discarded.
func (p *FeedPublisher) Dropped() uint64 { return p.dropped.Load() }

// Run writes queued items until ctx ends.
func (p *FeedPublisher) Run(ctx context.Context) {
	var conn *websocket.Conn
	var retryAt time.Time
	defer func() {
		if conn != nil {
			_ = conn.Close()
		}
	}()

	for {
		var item gesture.FeedItem
		select {
		case <-ctx.Done():
			return
		case item = <-p.items:
		}

		if conn == nil {
			if time.Now().Before(retryAt) {
				p.dropped.Add(1)
				continue
			}
			var err error
			conn, err = websocket.Dial(p.url, "", p.origin)
			if err != nil {
				log.Printf("gesture worker: feed dial %s: %v", p.url, err)
				retryAt = time.Now().Add(p.redial)
				p.dropped.Add(1)
				continue
			}
		}

		_ = conn.SetWriteDeadline(time.Now().Add(timeouts.SocketWrite))
		if err := websocket.JSON.Send(conn, item); err != nil {
			log.Printf("gesture worker: feed write: %v", err)
			_ = conn.Close()
			conn = nil
			p.dropped.Add(1)
			continue
		}
		p.sent.Add(1)
	}
}
