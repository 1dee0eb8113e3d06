// Package server hub: the single authority over connection lifecycle and
// room membership. Every membership mutation funnels through the hub so
// concurrent joins, leaves and disconnects never race on the same room, and
// events produced by one operation reach all members in the same order.
package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chatify/relay/internal/protocol"
)

// Hub owns the set of live clients and the room table. All mutating
// operations run under one lock; deliveries go into each client's buffered
// queue so a slow consumer never stalls the operation for other members.
type Hub struct {
	cfg     Config
	log     *slog.Logger
	metrics *Metrics

	mu      sync.RWMutex
	clients map[string]*Client
	rooms   *roomTable
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewHub creates a hub ready to accept connections. Call Run in a separate
// goroutine to start the idle reaper.
func NewHub(cfg Config, log *slog.Logger, metrics *Metrics) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		cfg:     cfg,
		log:     log,
		metrics: metrics,
		clients: make(map[string]*Client),
		rooms:   newRoomTable(),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// Accept wraps a freshly upgraded connection in a Client, registers it,
// acknowledges it with its assigned id, and starts its pump goroutines.
func (h *Hub) Accept(conn *websocket.Conn, addr string) (*Client, error) {
	c := newClient(conn, h, addr)
	if err := h.register(c); err != nil {
		return nil, err
	}

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		c.writePump()
	}()
	go func() {
		defer h.wg.Done()
		c.readPump()
	}()

	return c, nil
}

// register stores the client and queues its connection acknowledgement.
// Split from Accept so the registry can be exercised without a live socket.
func (h *Hub) register(c *Client) error {
	payload, err := protocol.Encode(protocol.NewConnectionAck(c.id))
	if err != nil {
		return err
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrHubClosed
	}
	h.clients[c.id] = c
	total := len(h.clients)
	h.deliverLocked(c, payload)
	h.mu.Unlock()

	h.metrics.Connections.Inc()
	h.log.Info("client connected", "connection", c.id, "addr", c.addr, "total", total)
	return nil
}

// Join puts a connection into a room, leaving its previous room first if it
// had one. The joiner receives a roster snapshot, then a user_joined event is
// broadcast to every member of the room, the joiner included.
func (h *Hub) Join(connectionID, roomID, username string) error {
	h.mu.Lock()
	c, ok := h.clients[connectionID]
	if !ok {
		h.mu.Unlock()
		return ErrUnknownConnection
	}

	var failed []string
	if c.roomID != "" {
		failed = append(failed, h.departLocked(c)...)
	}

	c.username = username
	c.roomID = roomID
	h.rooms.addMember(roomID, c.id)
	members := h.rooms.membersOf(roomID)
	h.metrics.Rooms.Set(float64(h.rooms.roomCount()))

	if payload, err := protocol.Encode(protocol.NewUserList(members)); err == nil {
		if !h.deliverLocked(c, payload) {
			failed = append(failed, c.id)
		}
	}
	failed = append(failed, h.broadcastLocked(roomID, protocol.NewUserJoined(username, members))...)
	h.mu.Unlock()

	h.log.Info("client joined room", "connection", connectionID, "room", roomID, "username", username)
	h.dropFailed(failed)
	return nil
}

// Leave removes a connection from its room, if it has one. Safe to call
// repeatedly; only the first call observes a state change.
func (h *Hub) Leave(connectionID string) {
	h.mu.Lock()
	var failed []string
	if c, ok := h.clients[connectionID]; ok {
		failed = h.departLocked(c)
	}
	h.mu.Unlock()

	h.dropFailed(failed)
}

// Relay broadcasts a chat event, stamped with the sender's display name and
// the current time, to every member of the sender's room, the sender
// included.
func (h *Hub) Relay(connectionID, content string) error {
	h.mu.Lock()
	c, ok := h.clients[connectionID]
	if !ok {
		h.mu.Unlock()
		return ErrUnknownConnection
	}
	if c.roomID == "" {
		h.mu.Unlock()
		return ErrNotInRoom
	}

	failed := h.broadcastLocked(c.roomID, protocol.NewChat(c.displayName(), content))
	h.mu.Unlock()

	h.metrics.EventsRelayed.Inc()
	h.dropFailed(failed)
	return nil
}

// Whisper delivers a chat event to a single target connection and echoes it
// to the sender, without any room involvement.
func (h *Hub) Whisper(senderID, targetID, content string) error {
	h.mu.Lock()
	sender, ok := h.clients[senderID]
	if !ok {
		h.mu.Unlock()
		return ErrUnknownConnection
	}
	target, ok := h.clients[targetID]
	if !ok {
		h.mu.Unlock()
		return ErrUnknownConnection
	}

	var failed []string
	if payload, err := protocol.Encode(protocol.NewChat(sender.displayName(), content)); err == nil {
		if !h.deliverLocked(target, payload) {
			failed = append(failed, target.id)
		}
		if target != sender && !h.deliverLocked(sender, payload) {
			failed = append(failed, sender.id)
		}
	}
	h.mu.Unlock()

	h.metrics.EventsRelayed.Inc()
	h.dropFailed(failed)
	return nil
}

// Disconnect performs leave-room side effects, removes the connection record
// and closes its send queue. It is the shared path for socket close, socket
// error and reap timeout, and is safe to call from all of them concurrently.
func (h *Hub) Disconnect(connectionID string) {
	h.mu.Lock()
	c, ok := h.clients[connectionID]
	if !ok {
		h.mu.Unlock()
		return
	}
	failed := h.departLocked(c)
	delete(h.clients, connectionID)
	c.closed = true
	total := len(h.clients)
	h.mu.Unlock()

	// Closing the queue makes the write pump send a close frame and tear the
	// socket down, which in turn unblocks the read pump.
	close(c.send)
	h.metrics.Connections.Dec()
	h.log.Info("client disconnected", "connection", connectionID, "total", total)
	h.dropFailed(failed)
}

// departLocked removes the client from its current room, deletes the room if
// it became empty, and broadcasts user_left to the remaining members. The
// leaver no longer receives it. Returns ids whose delivery failed.
func (h *Hub) departLocked(c *Client) []string {
	if c.roomID == "" {
		return nil
	}

	roomID := c.roomID
	c.roomID = ""
	h.rooms.removeMember(roomID, c.id)
	h.metrics.Rooms.Set(float64(h.rooms.roomCount()))

	remaining := h.rooms.membersOf(roomID)
	if len(remaining) == 0 {
		return nil
	}
	return h.broadcastLocked(roomID, protocol.NewUserLeft(c.username, remaining))
}

// broadcastLocked encodes the event once and attempts a best-effort delivery
// to every member of the room. A failed delivery never aborts the loop; the
// affected ids are returned so the caller can schedule their disconnect
// after releasing the lock.
func (h *Hub) broadcastLocked(roomID string, ev protocol.Outbound) []string {
	payload, err := protocol.Encode(ev)
	if err != nil {
		h.log.Error("encoding broadcast failed", "type", ev.Type, "room", roomID, "error", err)
		return nil
	}

	var failed []string
	for _, id := range h.rooms.membersOf(roomID) {
		target, ok := h.clients[id]
		if !ok {
			continue
		}
		if !h.deliverLocked(target, payload) {
			failed = append(failed, id)
		}
	}
	return failed
}

// deliverLocked queues a payload for one client without blocking. A full
// queue or a closed client counts as a transport failure.
func (h *Hub) deliverLocked(c *Client, payload []byte) bool {
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// sendToClient is the unlocked delivery path used by per-connection replies.
// The registry check makes the send race cleanly with a concurrent
// disconnect closing the queue.
func (h *Hub) sendToClient(c *Client, payload []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	registered, ok := h.clients[c.id]
	if !ok || registered != c {
		return false
	}
	return h.deliverLocked(c, payload)
}

// dropFailed disconnects clients whose queue rejected a delivery. Runs
// without the lock held; Disconnect is idempotent so racing with the
// client's own teardown is fine.
func (h *Hub) dropFailed(ids []string) {
	for _, id := range ids {
		h.log.Warn("dropping client with full send queue", "connection", id)
		h.metrics.SendFailures.Inc()
		h.Disconnect(id)
	}
}

// Run hosts the idle reaper until Shutdown is called. It should be started
// in its own goroutine before the server begins accepting connections.
func (h *Hub) Run() {
	defer close(h.done)

	h.log.Info("hub started",
		"reap_interval", h.cfg.ReapInterval,
		"idle_timeout", h.cfg.IdleTimeout)

	ticker := time.NewTicker(h.cfg.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return
		case <-ticker.C:
			h.reapIdle(time.Now())
		}
	}
}

// reapIdle force-disconnects every connection that has been silent longer
// than the idle timeout. Reaped connections go through the normal disconnect
// path, so their rooms still observe a user_left broadcast.
func (h *Hub) reapIdle(now time.Time) {
	h.mu.RLock()
	var stale []string
	for id, c := range h.clients {
		if now.Sub(c.idleSince()) > h.cfg.IdleTimeout {
			stale = append(stale, id)
		}
	}
	h.mu.RUnlock()

	for _, id := range stale {
		h.log.Info("reaping idle connection", "connection", id)
		h.metrics.Reaped.Inc()
		h.Disconnect(id)
	}
}

func (h *Hub) shutdownClients() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		if c.conn == nil {
			continue
		}
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			h.log.Warn("closing client connection failed", "connection", c.id, "error", err)
		}
	}

	h.log.Info("closed client connections", "count", len(clients))
}

// Shutdown stops the reaper, closes all client connections and waits for the
// pump goroutines to finish, up to the given timeout.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("hub shutting down")
	h.cancel()
	<-h.done

	finished := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		h.log.Info("hub shutdown complete")
		return nil
	case <-time.After(timeout):
		h.log.Warn("hub shutdown timed out")
		return context.DeadlineExceeded
	}
}

// ClientCount returns the number of live connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomCount returns the number of rooms with at least one member.
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rooms.roomCount()
}
