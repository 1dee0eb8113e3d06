// Package server sentinel errors returned by registry operations. All of them
// are recovered locally; none terminates the process.
package server

import "errors"

var (
	// ErrUnknownConnection is returned when an operation references a
	// connection id that has already been removed, e.g. a join racing with a
	// close.
	ErrUnknownConnection = errors.New("unknown connection")

	// ErrNotInRoom is returned when a chat is relayed by a connection that
	// has not joined a room.
	ErrNotInRoom = errors.New("not in a room")

	// ErrHubClosed is returned when a connection is accepted after shutdown
	// has begun.
	ErrHubClosed = errors.New("hub is shut down")
)
