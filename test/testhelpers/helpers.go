// Package testhelpers provides common utilities for exercising the relay
// server over real WebSocket connections in integration tests.
package testhelpers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultOrigin is the origin header integration clients present unless a
// test overrides it.
const DefaultOrigin = "http://localhost:8080"

// WebSocketURL converts an httptest server base URL into the ws:// endpoint.
func WebSocketURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http") + "/ws"
}

// Dial opens a WebSocket connection with the given origin header.
func Dial(url, origin string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}

	headers := http.Header{}
	headers.Set("Origin", origin)

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// MustDial opens a WebSocket connection and registers its teardown with the
// test. It fails the test if the handshake does not succeed.
func MustDial(t *testing.T, url string) *websocket.Conn {
	t.Helper()

	conn, err := Dial(url, DefaultOrigin)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// JoinRoom sends a join_room event.
func JoinRoom(conn *websocket.Conn, roomID, username string) error {
	return conn.WriteJSON(map[string]string{
		"type":     "join_room",
		"roomId":   roomID,
		"username": username,
	})
}

// LeaveRoom sends a leave_room event.
func LeaveRoom(conn *websocket.Conn) error {
	return conn.WriteJSON(map[string]string{"type": "leave_room"})
}

// SendChat sends a chat event.
func SendChat(conn *websocket.Conn, content string) error {
	return conn.WriteJSON(map[string]string{"type": "chat", "content": content})
}

// SendPrivate sends a private_message event addressed to a connection id.
func SendPrivate(conn *websocket.Conn, target, content string) error {
	return conn.WriteJSON(map[string]string{
		"type":    "private_message",
		"target":  target,
		"content": content,
	})
}

// EventReader reads server events from a connection, transparently splitting
// frames that carry several newline-separated events.
type EventReader struct {
	conn    *websocket.Conn
	pending [][]byte
}

// NewEventReader wraps a connection for event-at-a-time reading.
func NewEventReader(conn *websocket.Conn) *EventReader {
	return &EventReader{conn: conn}
}

// Next returns the next server event, waiting up to timeout for one to
// arrive.
func (r *EventReader) Next(timeout time.Duration) (map[string]any, error) {
	if len(r.pending) == 0 {
		if err := r.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return nil, err
		}
		_, frame, err := r.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		r.pending = bytes.Split(frame, []byte{'\n'})
	}

	raw := r.pending[0]
	r.pending = r.pending[1:]

	var ev map[string]any
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, fmt.Errorf("decoding server event %q: %w", raw, err)
	}
	return ev, nil
}

// WaitFor reads events until one of the wanted type arrives, failing the
// test if the deadline passes first. Events of other types are discarded.
func (r *EventReader) WaitFor(t *testing.T, eventType string, timeout time.Duration) map[string]any {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			t.Fatalf("Timed out waiting for %q event", eventType)
		}
		ev, err := r.Next(remaining)
		if err != nil {
			t.Fatalf("Reading while waiting for %q event: %v", eventType, err)
		}
		if ev["type"] == eventType {
			return ev
		}
	}
}

// ExpectSilence asserts that no event arrives within the given window.
func (r *EventReader) ExpectSilence(t *testing.T, window time.Duration) {
	t.Helper()

	if ev, err := r.Next(window); err == nil {
		t.Fatalf("Expected no event, got %v", ev)
	}
}

// ConnectionID extracts the assigned id from a connection acknowledgement
// event.
func ConnectionID(t *testing.T, ack map[string]any) string {
	t.Helper()

	content, ok := ack["content"].(map[string]any)
	if !ok {
		t.Fatalf("Connection event has no content object: %v", ack)
	}
	id, ok := content["id"].(string)
	if !ok || id == "" {
		t.Fatalf("Connection event carries no id: %v", ack)
	}
	return id
}

// Roster extracts the onlineUsers list from an event as strings.
func Roster(t *testing.T, ev map[string]any) []string {
	t.Helper()

	raw, ok := ev["onlineUsers"].([]any)
	if !ok {
		t.Fatalf("Event has no onlineUsers list: %v", ev)
	}
	users := make([]string, 0, len(raw))
	for _, entry := range raw {
		users = append(users, entry.(string))
	}
	return users
}
