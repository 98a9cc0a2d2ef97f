package controlplane

import (
	"flag"
	"testing"
	"time"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("controlplane", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.HTTPAddr != ":8090" || cfg.GRPCAddr != ":8092" {
		t.Fatalf("addrs = %q %q", cfg.HTTPAddr, cfg.GRPCAddr)
	}
	if cfg.DBPath != "data/control_plane.db" {
		t.Fatalf("db path = %q", cfg.DBPath)
	}
	if cfg.SubmitTimeout != 2*time.Second || cfg.QueueSize != 256 || cfg.SnapshotEvery != 100 {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestParseConfigEnvThenFlags(t *testing.T) {
	t.Setenv("MIRA_CONTROLPLANE_HTTP_ADDR", "127.0.0.1:9000")
	t.Setenv("MIRA_CONTROLPLANE_SNAPSHOT_INTERVAL", "5s")
	fs := flag.NewFlagSet("controlplane", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-grpc-addr", "127.0.0.1:9001", "-snapshot-keep", "2"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.HTTPAddr != "127.0.0.1:9000" || cfg.GRPCAddr != "127.0.0.1:9001" {
		t.Fatalf("addrs = %q %q", cfg.HTTPAddr, cfg.GRPCAddr)
	}
	if cfg.SnapshotInterval != 5*time.Second || cfg.SnapshotKeep != 2 {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestParseConfigRejectsBadEnv(t *testing.T) {
	t.Setenv("MIRA_CONTROLPLANE_QUEUE_SIZE", "lots")
	fs := flag.NewFlagSet("controlplane", flag.ContinueOnError)
	if _, err := ParseConfig(fs, nil); err == nil {
		t.Fatal("expected env parse error")
	}
}
