// Package gestureworker parses gesture worker flags and launches the worker.
package gestureworker

import (
	"context"
	"flag"
	"time"

	entrypoint "github.com/louisbranch/mira/internal/platform/cmd"
	"github.com/louisbranch/mira/internal/platform/discovery"
	"github.com/louisbranch/mira/internal/services/gesture"
	workerapp "github.com/louisbranch/mira/internal/services/gesture/app"
	"github.com/louisbranch/mira/internal/services/gesture/worker"
)

// Config holds gesture worker command configuration.
type Config struct {
	ControlPlaneAddr string        `env:"GESTURE_CONTROLPLANE_ADDR"`
	FeedURL          string        `env:"GESTURE_FEED_URL"`
	NoFeed           bool          `env:"GESTURE_NO_FEED"`
	Input            string        `env:"GESTURE_INPUT" envDefault:"-"`
	DialTimeout      time.Duration `env:"GESTURE_DIAL_TIMEOUT" envDefault:"2s"`
	OutboxSize       int           `env:"GESTURE_OUTBOX_SIZE" envDefault:"64"`

	SteadyThreshold  time.Duration `env:"GESTURE_STEADY_THRESHOLD" envDefault:"250ms"`
	Hysteresis       time.Duration `env:"GESTURE_HYSTERESIS" envDefault:"120ms"`
	Cooldown         time.Duration `env:"GESTURE_COOLDOWN" envDefault:"500ms"`
	TriggerStability time.Duration `env:"GESTURE_TRIGGER_STABILITY" envDefault:"100ms"`
	SwipeThreshold   float64       `env:"GESTURE_SWIPE_THRESHOLD" envDefault:"0.18"`
	MinConfidence    float64       `env:"GESTURE_MIN_CONFIDENCE" envDefault:"0.6"`

	RetryMaxTries   uint          `env:"GESTURE_RETRY_MAX_TRIES" envDefault:"5"`
	RetryMaxElapsed time.Duration `env:"GESTURE_RETRY_MAX_ELAPSED" envDefault:"3s"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	cfg.ControlPlaneAddr = discovery.OrDefaultGRPCAddr(cfg.ControlPlaneAddr, discovery.ServiceControlPlane)
	cfg.FeedURL = discovery.OrDefaultWebSocketURL(cfg.FeedURL, discovery.ServiceControlPlane, "/ws/vision/ingest")
	fs.StringVar(&cfg.ControlPlaneAddr, "controlplane-addr", cfg.ControlPlaneAddr, "The control plane gRPC address")
	fs.StringVar(&cfg.FeedURL, "feed-url", cfg.FeedURL, "The control plane feed ingest websocket URL")
	fs.BoolVar(&cfg.NoFeed, "no-feed", cfg.NoFeed, "Do not publish the live classification feed")
	fs.StringVar(&cfg.Input, "input", cfg.Input, "Newline-delimited JSON frames file (- for stdin)")
	fs.DurationVar(&cfg.DialTimeout, "dial-timeout", cfg.DialTimeout, "Control plane dial and health timeout")
	fs.IntVar(&cfg.OutboxSize, "outbox-size", cfg.OutboxSize, "Commands buffered while the control plane is slow")
	fs.DurationVar(&cfg.SteadyThreshold, "steady-threshold", cfg.SteadyThreshold, "How long an open palm must hold to arm")
	fs.DurationVar(&cfg.Hysteresis, "hysteresis", cfg.Hysteresis, "Grace period before disarming")
	fs.DurationVar(&cfg.Cooldown, "cooldown", cfg.Cooldown, "Minimum time between emitted gestures")
	fs.DurationVar(&cfg.TriggerStability, "trigger-stability", cfg.TriggerStability, "How long a candidate must hold before it fires")
	fs.Float64Var(&cfg.SwipeThreshold, "swipe-threshold", cfg.SwipeThreshold, "Horizontal travel that counts as a swipe")
	fs.Float64Var(&cfg.MinConfidence, "min-confidence", cfg.MinConfidence, "Lowest candidate confidence that can fire")
	fs.UintVar(&cfg.RetryMaxTries, "retry-max-tries", cfg.RetryMaxTries, "Submission attempts per command")
	fs.DurationVar(&cfg.RetryMaxElapsed, "retry-max-elapsed", cfg.RetryMaxElapsed, "Total retry budget per command")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	if cfg.NoFeed {
		cfg.FeedURL = ""
	}
	return cfg, nil
}

// EngineConfig maps the thresholds onto the gesture engine.
func (c Config) EngineConfig() gesture.Config {
	engine := gesture.DefaultConfig()
	engine.SteadyThreshold = c.SteadyThreshold
	engine.Hysteresis = c.Hysteresis
	engine.Cooldown = c.Cooldown
	engine.TriggerStability = c.TriggerStability
	engine.SwipeThreshold = c.SwipeThreshold
	engine.MinConfidence = c.MinConfidence
	return engine
}

// Run starts the gesture worker.
func Run(ctx context.Context, cfg Config) error {
	retry := worker.DefaultRetryPolicy()
	retry.MaxTries = cfg.RetryMaxTries
	retry.MaxElapsed = cfg.RetryMaxElapsed
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceGestureWorker, func(context.Context) error {
		return workerapp.Run(ctx, workerapp.RuntimeConfig{
			ControlPlaneAddr: cfg.ControlPlaneAddr,
			FeedURL:          cfg.FeedURL,
			InputPath:        cfg.Input,
			GRPCDialTimeout:  cfg.DialTimeout,
			Engine:           cfg.EngineConfig(),
			Retry:            retry,
			OutboxSize:       cfg.OutboxSize,
		})
	})
}
