// Package main starts the gesture worker process lifecycle.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	gestureworkercmd "github.com/louisbranch/mira/internal/cmd/gestureworker"
	entrypoint "github.com/louisbranch/mira/internal/platform/cmd"
)

func main() {
	cfg, err := gestureworkercmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix(entrypoint.LogPrefix(entrypoint.ServiceGestureWorker))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := gestureworkercmd.Run(ctx, cfg); err != nil {
		log.Fatalf("gesture worker: %v", err)
	}
}
