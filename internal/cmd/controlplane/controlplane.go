// Package controlplane parses control-plane flags and launches the service.
package controlplane

import (
	"context"
	"flag"
	"time"

	entrypoint "github.com/louisbranch/mira/internal/platform/cmd"
	"github.com/louisbranch/mira/internal/platform/discovery"
	server "github.com/louisbranch/mira/internal/services/controlplane/app"
)

// Config holds control-plane command configuration.
type Config struct {
	HTTPAddr string `env:"CONTROLPLANE_HTTP_ADDR"`
	GRPCAddr string `env:"CONTROLPLANE_GRPC_ADDR"`
	DBPath   string `env:"CONTROLPLANE_DB_PATH" envDefault:"data/control_plane.db"`

	SubmitTimeout    time.Duration `env:"CONTROLPLANE_SUBMIT_TIMEOUT" envDefault:"2s"`
	QueueSize        int           `env:"CONTROLPLANE_QUEUE_SIZE" envDefault:"256"`
	SnapshotEvery    int           `env:"CONTROLPLANE_SNAPSHOT_EVERY" envDefault:"100"`
	SnapshotInterval time.Duration `env:"CONTROLPLANE_SNAPSHOT_INTERVAL" envDefault:"60s"`
	SnapshotKeep     int           `env:"CONTROLPLANE_SNAPSHOT_KEEP" envDefault:"5"`

	SubscriberQueueSize int `env:"CONTROLPLANE_SUBSCRIBER_QUEUE" envDefault:"64"`
	FeedQueueSize       int `env:"CONTROLPLANE_FEED_QUEUE" envDefault:"16"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = discovery.ListenHTTPAddr(discovery.ServiceControlPlane)
	}
	if cfg.GRPCAddr == "" {
		cfg.GRPCAddr = discovery.ListenGRPCAddr(discovery.ServiceControlPlane)
	}
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP and websocket listen address")
	fs.StringVar(&cfg.GRPCAddr, "grpc-addr", cfg.GRPCAddr, "gRPC listen address for producers")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "SQLite event log path")
	fs.DurationVar(&cfg.SubmitTimeout, "submit-timeout", cfg.SubmitTimeout, "How long a submission may wait for a queue slot")
	fs.IntVar(&cfg.QueueSize, "queue-size", cfg.QueueSize, "Arbiter submission queue capacity")
	fs.IntVar(&cfg.SnapshotEvery, "snapshot-every", cfg.SnapshotEvery, "Events between snapshots")
	fs.DurationVar(&cfg.SnapshotInterval, "snapshot-interval", cfg.SnapshotInterval, "Maximum time between snapshots while events arrive")
	fs.IntVar(&cfg.SnapshotKeep, "snapshot-keep", cfg.SnapshotKeep, "Snapshots retained after pruning")
	fs.IntVar(&cfg.SubscriberQueueSize, "subscriber-queue", cfg.SubscriberQueueSize, "Per-subscriber state queue capacity")
	fs.IntVar(&cfg.FeedQueueSize, "feed-queue", cfg.FeedQueueSize, "Per-display gesture feed queue capacity")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the control plane.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceControlPlane, func(context.Context) error {
		return server.Run(ctx, server.Config{
			HTTPAddr:            cfg.HTTPAddr,
			GRPCAddr:            cfg.GRPCAddr,
			DBPath:              cfg.DBPath,
			SubmitTimeout:       cfg.SubmitTimeout,
			QueueSize:           cfg.QueueSize,
			SnapshotEvery:       cfg.SnapshotEvery,
			SnapshotInterval:    cfg.SnapshotInterval,
			SnapshotKeep:        cfg.SnapshotKeep,
			SubscriberQueueSize: cfg.SubscriberQueueSize,
			FeedQueueSize:       cfg.FeedQueueSize,
		})
	})
}
