package server

import (
	"context"
	"errors"
	"io"
	"log"
	"time"

	"golang.org/x/net/websocket"

	"github.com/louisbranch/mira/internal/platform/timeouts"
	"github.com/louisbranch/mira/internal/services/controlplane/broadcast"
	"github.com/louisbranch/mira/internal/services/gesture"
)

const maxDecodeErrorsPerConn = 3

// serveStateStream sends the snapshot and every later patch until the
// client goes away or falls too far behind.
func serveStateStream(conn *websocket.Conn, states *broadcast.Broadcaster) {
	defer func() {
		_ = conn.Close()
	}()
	sub, err := states.Subscribe(broadcast.PolicyDisconnect)
	if err != nil {
		log.Printf("controlplane: state subscribe: %v", err)
		return
	}
	defer sub.Close()

	ctx, cancel := context.WithCancel(conn.Request().Context())
	defer cancel()
	go closeOnClientExit(conn, cancel)

	for {
		msg, err := sub.Next(ctx)
		if err != nil {
			if errors.Is(err, broadcast.ErrSubscriberOverload) {
				log.Printf("controlplane: state subscriber %d dropped: %v", sub.ID(), err)
			}
			return
		}
		_ = conn.SetWriteDeadline(time.Now().Add(timeouts.SocketWrite))
		if err := websocket.JSON.Send(conn, msg); err != nil {
			return
		}
	}
}

// serveFeedStream relays live gesture classifications to a display.
func serveFeedStream(conn *websocket.Conn, feed *broadcast.FeedHub[gesture.FeedItem]) {
	defer func() {
		_ = conn.Close()
	}()
	sub, err := feed.Subscribe()
	if err != nil {
		return
	}
	defer sub.Close()

	ctx, cancel := context.WithCancel(conn.Request().Context())
	defer cancel()
	go closeOnClientExit(conn, cancel)

	for {
		item, err := sub.Next(ctx)
		if err != nil {
			return
		}
		_ = conn.SetWriteDeadline(time.Now().Add(timeouts.SocketWrite))
		if err := websocket.JSON.Send(conn, item); err != nil {
			return
		}
	}
}

// serveFeedIngest accepts feed items from the gesture worker.
func serveFeedIngest(conn *websocket.Conn, feed *broadcast.FeedHub[gesture.FeedItem]) {
	defer func() {
		_ = conn.Close()
	}()
	decodeErrors := 0
	for {
		var item gesture.FeedItem
		if err := websocket.JSON.Receive(conn, &item); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			decodeErrors++
			if decodeErrors >= maxDecodeErrorsPerConn {
				log.Printf("controlplane: closing feed ingest after %d bad frames: %v", decodeErrors, err)
				return
			}
			continue
		}
		decodeErrors = 0
		feed.Publish(item)
	}
}

// closeOnClientExit reads and discards client frames so a closed socket
// ends the stream.
func closeOnClientExit(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	var discard []byte
	for {
		if err := websocket.Message.Receive(conn, &discard); err != nil {
			return
		}
	}
}
