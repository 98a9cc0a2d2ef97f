// Package maintenance inspects and repairs the control-plane event log
// offline: it prints recovered State, checks snapshot recovery against a
// genesis replay, replays to a past seq, and writes or prunes snapshots.
package maintenance

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	entrypoint "github.com/louisbranch/mira/internal/platform/cmd"
	"github.com/louisbranch/mira/internal/services/controlplane/domain/state"
	"github.com/louisbranch/mira/internal/services/controlplane/replay"
	"github.com/louisbranch/mira/internal/services/controlplane/storage"
	"github.com/louisbranch/mira/internal/services/controlplane/storage/sqlite"
)

// Config holds maintenance command configuration.
type Config struct {
	DBPath     string        `env:"CONTROLPLANE_DB_PATH"`
	Timeout    time.Duration `env:"MAINTENANCE_TIMEOUT" envDefault:"1m"`
	Verify     bool
	UntilSeq   uint64
	Snapshot   bool
	Prune      int
	JSONOutput bool
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = filepath.Join("data", "control_plane.db")
	}
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "path to the control plane sqlite database (default: MIRA_CONTROLPLANE_DB_PATH or data/control_plane.db)")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "overall timeout")
	fs.BoolVar(&cfg.Verify, "verify", false, "compare snapshot recovery against a full replay from genesis")
	fs.Uint64Var(&cfg.UntilSeq, "until-seq", 0, "replay from genesis up to this seq and print that State (0 = latest)")
	fs.BoolVar(&cfg.Snapshot, "snapshot", false, "write a snapshot of the recovered State")
	fs.IntVar(&cfg.Prune, "prune", 0, "keep only the newest N snapshots (0 = no pruning)")
	fs.BoolVar(&cfg.JSONOutput, "json", false, "output a JSON report")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if strings.TrimSpace(c.DBPath) == "" {
		return errors.New("-db-path is required")
	}
	if c.Prune < 0 {
		return errors.New("-prune must be >= 0")
	}
	if c.UntilSeq > 0 && (c.Verify || c.Snapshot) {
		return errors.New("-until-seq cannot be combined with -verify or -snapshot")
	}
	return nil
}

// Report is what a maintenance run found and did.
type Report struct {
	LastSeq     uint64          `json:"last_seq"`
	SnapshotSeq uint64          `json:"snapshot_seq"`
	Applied     int             `json:"applied"`
	Skipped     int             `json:"skipped"`
	Verified    bool            `json:"verified,omitempty"`
	Snapshot    uint64          `json:"snapshot_written_at,omitempty"`
	Pruned      int             `json:"pruned,omitempty"`
	State       json.RawMessage `json:"state"`
}

// Run executes the maintenance command.
func Run(ctx context.Context, cfg Config, out io.Writer, errOut io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}
	if err := cfg.validate(); err != nil {
		return err
	}

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(errOut, "close store: %v\n", err)
		}
	}()

	report, err := inspect(ctx, cfg, store)
	if err != nil {
		return err
	}

	if cfg.Snapshot {
		snap, err := store.PutSnapshot(ctx, storage.Snapshot{
			Timestamp: time.Now().UTC(),
			EventSeq:  report.LastSeq,
			StateJSON: report.State,
		})
		if err != nil {
			return fmt.Errorf("write snapshot: %w", err)
		}
		report.Snapshot = snap.EventSeq
	}
	if cfg.Prune > 0 {
		pruned, err := store.PruneSnapshots(ctx, cfg.Prune)
		if err != nil {
			return fmt.Errorf("prune snapshots: %w", err)
		}
		report.Pruned = pruned
	}
	return writeReport(out, report, cfg.JSONOutput)
}

func inspect(ctx context.Context, cfg Config, store storage.Store) (Report, error) {
	var (
		result replay.Result
		err    error
	)
	switch {
	case cfg.UntilSeq > 0:
		result, err = replay.Replay(ctx, store, state.New(), replay.Options{UntilSeq: cfg.UntilSeq})
		if err == nil && result.LastSeq < cfg.UntilSeq {
			err = fmt.Errorf("log ends at seq %d, before %d", result.LastSeq, cfg.UntilSeq)
		}
	case cfg.Verify:
		result, err = replay.Verify(ctx, store, store)
	default:
		result, err = replay.Recover(ctx, store, store)
	}
	if err != nil {
		return Report{}, err
	}
	data, err := json.Marshal(result.State)
	if err != nil {
		return Report{}, fmt.Errorf("encode state: %w", err)
	}
	return Report{
		LastSeq:     result.LastSeq,
		SnapshotSeq: result.SnapshotSeq,
		Applied:     result.Applied,
		Skipped:     result.Skipped,
		Verified:    cfg.Verify,
		State:       data,
	}, nil
}

func writeReport(out io.Writer, report Report, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	fmt.Fprintf(out, "last seq: %d\n", report.LastSeq)
	fmt.Fprintf(out, "snapshot seq: %d\n", report.SnapshotSeq)
	fmt.Fprintf(out, "replayed: %d patches, %d other events\n", report.Applied, report.Skipped)
	if report.Verified {
		fmt.Fprintln(out, "verify: snapshot recovery matches genesis replay")
	}
	if report.Snapshot > 0 {
		fmt.Fprintf(out, "snapshot written at seq %d\n", report.Snapshot)
	}
	if report.Pruned > 0 {
		fmt.Fprintf(out, "pruned %d snapshots\n", report.Pruned)
	}
	fmt.Fprintf(out, "state: %s\n", report.State)
	return nil
}
