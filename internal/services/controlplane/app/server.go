// Package server wires the control plane: the SQLite event log, recovery,
// the arbiter, the state broadcaster and the HTTP, websocket and gRPC
// transports.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	platformgrpc "github.com/louisbranch/mira/internal/platform/grpc"
	"github.com/louisbranch/mira/internal/platform/timeouts"
	"github.com/louisbranch/mira/internal/services/controlplane/api/grpc/commands"
	"github.com/louisbranch/mira/internal/services/controlplane/arbiter"
	"github.com/louisbranch/mira/internal/services/controlplane/broadcast"
	"github.com/louisbranch/mira/internal/services/controlplane/domain/state"
	"github.com/louisbranch/mira/internal/services/controlplane/storage/sqlite"
	"github.com/louisbranch/mira/internal/services/gesture"
)

// Config defines the inputs for the control-plane process.
type Config struct {
	HTTPAddr string
	GRPCAddr string
	DBPath   string

	SubmitTimeout    time.Duration
	QueueSize        int
	SnapshotEvery    int
	SnapshotInterval time.Duration
	SnapshotKeep     int

	SubscriberQueueSize int
	FeedQueueSize       int

	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// Server hosts the control plane.
type Server struct {
	shutdownTimeout time.Duration

	store   *sqlite.Store
	arbiter *arbiter.Arbiter
	states  *broadcast.Broadcaster
	feed    *broadcast.FeedHub[gesture.FeedItem]

	httpListener net.Listener
	httpServer   *http.Server
	grpcListener net.Listener
	grpcServer   *grpc.Server
	health       *health.Server

	closeOnce sync.Once
}

// relay forwards committed patches to the broadcaster, which only exists
// once recovery has produced the State to seed it with.
type relay struct {
	states *broadcast.Broadcaster
}

func (r *relay) Publish(seq uint64, p state.Patch) {
	r.states.Publish(seq, p)
}

// NewServer opens storage, recovers State and binds both listeners.
func NewServer(ctx context.Context, config Config) (*Server, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	httpAddr := strings.TrimSpace(config.HTTPAddr)
	if httpAddr == "" {
		return nil, errors.New("http address is required")
	}
	grpcAddr := strings.TrimSpace(config.GRPCAddr)
	if grpcAddr == "" {
		return nil, errors.New("grpc address is required")
	}
	if config.ReadHeaderTimeout <= 0 {
		config.ReadHeaderTimeout = timeouts.ReadHeader
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = timeouts.Shutdown
	}

	store, err := openStore(config.DBPath)
	if err != nil {
		return nil, err
	}
	s := &Server{shutdownTimeout: config.ShutdownTimeout, store: store}

	pub := &relay{}
	s.arbiter, err = arbiter.New(arbiter.Config{
		Events:           store,
		Snapshots:        store,
		Publisher:        pub,
		SubmitTimeout:    config.SubmitTimeout,
		QueueSize:        config.QueueSize,
		SnapshotEvery:    config.SnapshotEvery,
		SnapshotInterval: config.SnapshotInterval,
		SnapshotKeep:     config.SnapshotKeep,
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("init arbiter: %w", err)
	}
	recovered, err := s.arbiter.Recover(ctx)
	if err != nil {
		s.Close()
		return nil, err
	}
	log.Printf("recovered state at seq %d (snapshot %d, %d patches replayed)", recovered.LastSeq, recovered.SnapshotSeq, recovered.Applied)

	s.states = broadcast.New(recovered.State, recovered.LastSeq, broadcast.Options{QueueSize: config.SubscriberQueueSize})
	pub.states = s.states
	s.feed = broadcast.NewFeedHub[gesture.FeedItem](config.FeedQueueSize)

	s.httpListener, err = net.Listen("tcp", httpAddr)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("listen on %s: %w", httpAddr, err)
	}
	s.grpcListener, err = net.Listen("tcp", grpcAddr)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("listen on %s: %w", grpcAddr, err)
	}

	s.httpServer = &http.Server{
		Handler: NewHandler(Deps{
			Arbiter: s.arbiter,
			States:  s.states,
			Feed:    s.feed,
			Events:  store,
		}),
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}

	s.grpcServer = grpc.NewServer(platformgrpc.DefaultServerOptions()...)
	s.health = health.NewServer()
	commands.Register(s.grpcServer, commands.NewService(s.arbiter))
	grpc_health_v1.RegisterHealthServer(s.grpcServer, s.health)
	s.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(commands.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	return s, nil
}

// Run creates and serves a control plane until the context ends.
func Run(ctx context.Context, config Config) error {
	server, err := NewServer(ctx, config)
	if err != nil {
		return fmt.Errorf("init control plane: %w", err)
	}
	defer server.Close()

	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve control plane: %w", err)
	}
	return nil
}

// HTTPAddr returns the bound HTTP address.
func (s *Server) HTTPAddr() string {
	if s == nil || s.httpListener == nil {
		return ""
	}
	return s.httpListener.Addr().String()
}

// GRPCAddr returns the bound gRPC address.
func (s *Server) GRPCAddr() string {
	if s == nil || s.grpcListener == nil {
		return ""
	}
	return s.grpcListener.Addr().String()
}

// ListenAndServe runs the arbiter, the broadcaster and both transports
// until ctx ends, then stops them in reverse order.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("control plane server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	coreCtx, stopCore := context.WithCancel(context.Background())
	defer stopCore()
	go s.states.Run(coreCtx)
	go func() {
		if err := s.arbiter.Run(coreCtx); err != nil {
			log.Printf("arbiter stopped: %v", err)
		}
	}()

	serveErr := make(chan error, 2)
	log.Printf("control plane listening on http %s, grpc %s", s.HTTPAddr(), s.GRPCAddr())
	go func() {
		serveErr <- s.httpServer.Serve(s.httpListener)
	}()
	go func() {
		serveErr <- s.grpcServer.Serve(s.grpcListener)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, grpc.ErrServerStopped) {
			runErr = fmt.Errorf("serve: %w", err)
		}
	}

	s.health.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("shutdown http server: %w", err)
	}
	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		s.grpcServer.Stop()
	}

	// Producers are gone; let queued commands finish before closing storage.
	stopCore()
	<-s.arbiter.Done()
	<-s.states.Done()
	s.feed.Close()
	return runErr
}

// Close releases listeners and storage.
func (s *Server) Close() {
	if s == nil {
		return
	}
	s.closeOnce.Do(func() {
		if s.grpcServer != nil {
			s.grpcServer.Stop()
		}
		if s.httpListener != nil {
			_ = s.httpListener.Close()
		}
		if s.grpcListener != nil {
			_ = s.grpcListener.Close()
		}
		if s.store != nil {
			if err := s.store.Close(); err != nil {
				log.Printf("close control plane store: %v", err)
			}
		}
	})
}

func openStore(path string) (*sqlite.Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = filepath.Join("data", "control_plane.db")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := sqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open control plane sqlite store: %w", err)
	}
	return store, nil
}
