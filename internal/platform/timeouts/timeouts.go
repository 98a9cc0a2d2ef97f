// Package timeouts defines shared timeout constants used across services.
package timeouts

import "time"

// GRPCDial caps the wait time when dialing the control plane.
const GRPCDial = 2 * time.Second

// CommandSubmit caps a single producer submission round trip.
const CommandSubmit = 2 * time.Second

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long servers wait for in-flight work during
// graceful shutdown.
const Shutdown = 5 * time.Second

// SocketWrite bounds a single websocket frame write to a display client.
const SocketWrite = 2 * time.Second
