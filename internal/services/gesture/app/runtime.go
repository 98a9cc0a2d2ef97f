// Package app wires the gesture worker process: frame input, the
// control-plane gRPC client and the live feed socket.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	platformgrpc "github.com/louisbranch/mira/internal/platform/grpc"
	"github.com/louisbranch/mira/internal/platform/timeouts"
	"github.com/louisbranch/mira/internal/services/controlplane/api/grpc/commands"
	"github.com/louisbranch/mira/internal/services/gesture"
	"github.com/louisbranch/mira/internal/services/gesture/worker"
)

// RuntimeConfig controls gesture worker startup and its control-plane
// dependencies.
type RuntimeConfig struct {
	ControlPlaneAddr string
	// FeedURL is the control plane's feed ingest socket. Empty disables
	// the live feed.
	FeedURL string
	// InputPath is a file of newline-delimited frames; "" or "-" reads stdin.
	InputPath string

	GRPCDialTimeout time.Duration
	Engine          gesture.Config
	Retry           worker.RetryPolicy
	OutboxSize      int
	FeedBuffer      int
}

// Run dials the control plane and drives the engine over the input until
// it ends or ctx is cancelled.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	addr := strings.TrimSpace(cfg.ControlPlaneAddr)
	if addr == "" {
		return errors.New("control plane address is required")
	}
	if cfg.GRPCDialTimeout <= 0 {
		cfg.GRPCDialTimeout = timeouts.GRPCDial
	}

	input, closeInput, err := openInput(cfg.InputPath, os.Stdin)
	if err != nil {
		return err
	}
	defer closeInput()

	conn, err := platformgrpc.DialWithHealth(ctx, addr, cfg.GRPCDialTimeout, log.Printf)
	if err != nil {
		return fmt.Errorf("dial control plane %s: %w", addr, err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			log.Printf("close control plane conn: %v", err)
		}
	}()

	workerCfg := worker.Config{
		Engine:     cfg.Engine,
		Submitter:  worker.NewSubmitter(commands.NewClient(conn), cfg.Retry),
		OutboxSize: cfg.OutboxSize,
	}

	var feed *worker.FeedPublisher
	feedDone := make(chan struct{})
	feedCtx, stopFeed := context.WithCancel(ctx)
	defer stopFeed()
	if url := strings.TrimSpace(cfg.FeedURL); url != "" {
		feed = worker.NewFeedPublisher(url, cfg.FeedBuffer)
		workerCfg.Feed = feed
		go func() {
			defer close(feedDone)
			feed.Run(feedCtx)
		}()
	} else {
		close(feedDone)
	}

	w, err := worker.New(workerCfg)
	if err != nil {
		return err
	}
	log.Printf("gesture worker reading frames from %s, submitting to %s", inputName(cfg.InputPath), addr)
	stats, runErr := w.Run(ctx, input)

	stopFeed()
	<-feedDone
	log.Printf("gesture worker done: %d frames, %d submitted, %d rejected, %d failed, %d dropped",
		stats.Frames, stats.Submitted, stats.Rejected, stats.Failed, stats.Dropped)
	if feed != nil {
		log.Printf("gesture feed: %d sent, %d dropped", feed.Sent(), feed.Dropped())
	}
	return runErr
}

func openInput(path string, stdin io.Reader) (io.Reader, func(), error) {
	path = strings.TrimSpace(path)
	if path == "" || path == "-" {
		return stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open frames: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

func inputName(path string) string {
	path = strings.TrimSpace(path)
	if path == "" || path == "-" {
		return "stdin"
	}
	return path
}
