// Package server HTTP lifecycle: construction and graceful shutdown of the
// listener that fronts the hub.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// NewHTTPServer creates the HTTP server with production timeout settings.
// The timeouts only govern the plain HTTP endpoints; upgraded WebSocket
// connections are hijacked and manage their own deadlines.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// ShutdownHTTPServer drains the HTTP server, waiting for in-flight requests
// up to the timeout.
func ShutdownHTTPServer(server *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}
