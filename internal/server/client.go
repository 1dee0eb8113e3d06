// Package server client handling: each Client wraps one WebSocket connection
// and runs the read/write pumps plus the inbound event dispatch for it.
package server

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/chatify/relay/internal/protocol"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

// Client represents one live client connection. The id is assigned at accept
// time and stays stable for the connection's lifetime.
type Client struct {
	id   string
	conn *websocket.Conn
	hub  *Hub
	addr string
	send chan []byte
	log  *slog.Logger

	// lastActivity is refreshed on every successfully decoded inbound event
	// and read by the idle reaper. Stored as Unix nanoseconds.
	lastActivity atomic.Int64

	// username, roomID and closed are owned by the hub and only touched
	// under its lock.
	username string
	roomID   string
	closed   bool
}

func newClient(conn *websocket.Conn, hub *Hub, addr string) *Client {
	id := uuid.NewString()
	if conn != nil {
		conn.SetReadLimit(hub.cfg.MaxMessageSize)
	}

	c := &Client{
		id:   id,
		conn: conn,
		hub:  hub,
		addr: addr,
		send: make(chan []byte, hub.cfg.SendQueueSize),
		log:  hub.log.With("connection", id, "addr", addr),
	}
	c.touch()
	return c
}

// ID returns the connection id assigned at accept time.
func (c *Client) ID() string {
	return c.id
}

func (c *Client) touch() {
	c.lastActivity.Store(time.Now().UnixNano())
}

func (c *Client) idleSince() time.Time {
	return time.Unix(0, c.lastActivity.Load())
}

// displayName is called under the hub lock. Connections that never joined a
// room have no username yet; fall back to the id so private messages from
// the lobby still carry a sender.
func (c *Client) displayName() string {
	if c.username != "" {
		return c.username
	}
	return c.id
}

// reply answers this client with a single event, going through the hub so the
// send races cleanly with a concurrent disconnect.
func (c *Client) reply(ev protocol.Outbound) {
	payload, err := protocol.Encode(ev)
	if err != nil {
		c.log.Error("encoding reply failed", "type", ev.Type, "error", err)
		return
	}
	c.hub.sendToClient(c, payload)
}

func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Warn("setting initial read deadline failed", "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.log.Warn("setting read deadline in pong handler failed", "error", err)
		}
		return nil
	})
}

// handleReadError logs the read failure appropriately; the read loop always
// terminates afterwards.
func (c *Client) handleReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn("inbound message exceeded size limit", "limit", c.hub.cfg.MaxMessageSize)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.log.Debug("client disconnected", "error", err)
	case errors.Is(err, io.EOF), isExpectedCloseError(err):
		c.log.Debug("connection closed", "error", err)
	default:
		c.log.Warn("read error", "error", err)
	}
}

// readPump reads frames until the connection dies, decoding each one and
// dispatching it to the hub. Decode failures answer the sender with an error
// event and keep the connection open.
func (c *Client) readPump() {
	defer func() {
		c.hub.Disconnect(c.id)
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Warn("closing connection in read pump failed", "error", err)
		}
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}

		ev, err := protocol.Decode(raw)
		if err != nil {
			c.log.Debug("rejected inbound event", "error", err)
			c.reply(protocol.NewError("invalid message format"))
			continue
		}

		c.touch()
		c.dispatch(ev)
	}
}

// dispatch routes one decoded inbound event to the matching hub operation.
// An unknown connection means the hub already dropped us; there is no one
// left to notify, so those errors are dropped silently.
func (c *Client) dispatch(ev protocol.Inbound) {
	switch ev.Type {
	case protocol.TypeJoinRoom:
		if err := c.hub.Join(c.id, ev.RoomID, ev.Username); err != nil {
			c.log.Debug("join rejected", "room", ev.RoomID, "error", err)
		}

	case protocol.TypeLeaveRoom:
		c.hub.Leave(c.id)

	case protocol.TypeChat:
		if err := c.hub.Relay(c.id, ev.Content); errors.Is(err, ErrNotInRoom) {
			c.reply(protocol.NewError("not in a room"))
		}

	case protocol.TypePrivateMessage:
		if err := c.hub.Whisper(c.id, ev.Target, ev.Content); errors.Is(err, ErrUnknownConnection) {
			c.reply(protocol.NewError("unknown recipient"))
		}
	}
}

// writePump drains the send queue onto the wire and keeps the connection
// alive with periodic pings. It exits when the queue is closed or a write
// fails, closing the connection either way.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Warn("closing connection in write pump failed", "error", err)
		}
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if !c.writeFrame(payload, ok) {
				return
			}
		case <-ticker.C:
			if !c.writePing() {
				return
			}
		}
	}
}

// writeFrame writes one queued payload, batching anything else already
// queued into the same frame. Returns false when the pump should stop.
func (c *Client) writeFrame(payload []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Warn("setting write deadline failed", "error", err)
		return false
	}

	if !ok {
		// The hub closed the queue: say goodbye properly.
		if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !isExpectedCloseError(err) {
			c.log.Debug("writing close message failed", "error", err)
		}
		return false
	}

	w, err := c.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		c.log.Debug("creating frame writer failed", "error", err)
		return false
	}
	if _, err := w.Write(payload); err != nil {
		c.log.Debug("writing frame failed", "error", err)
		return false
	}

	queued := len(c.send)
	for i := 0; i < queued; i++ {
		if _, err := w.Write([]byte{'\n'}); err != nil {
			c.log.Debug("writing frame separator failed", "error", err)
			return false
		}
		if _, err := w.Write(<-c.send); err != nil {
			c.log.Debug("writing queued frame failed", "error", err)
			return false
		}
	}

	if err := w.Close(); err != nil {
		c.log.Debug("closing frame writer failed", "error", err)
		return false
	}
	return true
}

func (c *Client) writePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Warn("setting write deadline for ping failed", "error", err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.log.Debug("writing ping failed", "error", err)
		return false
	}
	return true
}

// isExpectedCloseError reports whether an error is part of a normal
// connection teardown.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "websocket: close sent") ||
		strings.Contains(msg, "broken pipe")
}
