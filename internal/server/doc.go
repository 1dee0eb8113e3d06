// Package server implements the connection registry and broadcast engine of
// the relay service: it tracks live WebSocket connections, maintains room
// membership, fans chat events out to the right audience, and reclaims
// connections that go silent.
//
// The implementation is organized into specialized files for the hub, room
// table, clients, configuration, routing and HTTP handlers to keep the
// codebase maintainable and testable as the project grows.
package server
