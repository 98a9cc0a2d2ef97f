// Package discovery centralizes the port conventions mira processes use to
// find each other on a single host.
package discovery

import (
	"strconv"
	"strings"
)

// ServiceControlPlane is the arbiter/broadcaster process.
const ServiceControlPlane = "controlplane"

// LocalHost is the host producers dial when no address is configured.
const LocalHost = "127.0.0.1"

var grpcPorts = map[string]int{
	ServiceControlPlane: 8092,
}

var httpPorts = map[string]int{
	ServiceControlPlane: 8090,
}

// ListenGRPCAddr returns the ":port" a service binds its gRPC listener to.
func ListenGRPCAddr(service string) string {
	return listenAddr(strings.TrimSpace(service), grpcPorts)
}

// ListenHTTPAddr returns the ":port" a service binds its HTTP listener to.
func ListenHTTPAddr(service string) string {
	return listenAddr(strings.TrimSpace(service), httpPorts)
}

// OrDefaultGRPCAddr returns value when set, otherwise the local dial address.
func OrDefaultGRPCAddr(value, service string) string {
	value = strings.TrimSpace(value)
	if value != "" {
		return value
	}
	return dialAddr(strings.TrimSpace(service), grpcPorts)
}

// OrDefaultWebSocketURL returns value when set, otherwise ws://<local>:<http port><path>.
func OrDefaultWebSocketURL(value, service, path string) string {
	value = strings.TrimSpace(value)
	if value != "" {
		return value
	}
	addr := dialAddr(strings.TrimSpace(service), httpPorts)
	if addr == "" {
		return ""
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return "ws://" + addr + path
}

func listenAddr(service string, ports map[string]int) string {
	port, ok := ports[service]
	if !ok || port <= 0 {
		return ""
	}
	return ":" + strconv.Itoa(port)
}

func dialAddr(service string, ports map[string]int) string {
	port, ok := ports[service]
	if !ok || port <= 0 {
		return ""
	}
	return LocalHost + ":" + strconv.Itoa(port)
}
