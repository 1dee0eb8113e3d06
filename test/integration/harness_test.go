// Package integration contains end-to-end tests that exercise the relay
// server over real WebSocket connections against an httptest listener.
package integration

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/chatify/relay/internal/server"
)

// startRelay boots a hub and its HTTP surface on an httptest server. The
// optional mutate hook adjusts the configuration before anything starts.
// Teardown shuts the hub down before closing the listener.
func startRelay(t *testing.T, mutate func(*server.Config)) (*httptest.Server, *server.Hub) {
	t.Helper()

	cfg := server.DefaultConfig()
	cfg.AllowedOrigins = []string{"*"}
	if mutate != nil {
		mutate(&cfg)
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := prometheus.NewRegistry()
	hub := server.NewHub(cfg, log, server.NewMetrics(registry))

	srv := server.NewServer(cfg, hub, registry, log)
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)

	go hub.Run()
	t.Cleanup(func() { _ = hub.Shutdown(2 * time.Second) })

	return ts, hub
}
