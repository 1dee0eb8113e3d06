// Package server HTTP handlers: the WebSocket upgrade endpoint, health check
// and the built-in test page.
package server

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
)

// Server ties the hub to its HTTP surface: upgrade endpoint, health check,
// metrics and the test page.
type Server struct {
	cfg      Config
	hub      *Hub
	log      *slog.Logger
	registry *prometheus.Registry
	upgrader websocket.Upgrader
}

// NewServer builds the HTTP-facing server around an existing hub.
func NewServer(cfg Config, hub *Hub, registry *prometheus.Registry, log *slog.Logger) *Server {
	policy := newOriginPolicy(cfg.AllowedOrigins, log)

	return &Server{
		cfg:      cfg,
		hub:      hub,
		log:      log,
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     policy.check,
		},
	}
}

// handleWebSocket upgrades the HTTP connection and hands it to the hub,
// which assigns the connection id and starts the pumps.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("WebSocket upgrade failed", "addr", r.RemoteAddr, "error", err)
		return
	}

	if _, err := s.hub.Accept(conn, r.RemoteAddr); err != nil {
		s.log.Warn("rejecting connection", "addr", r.RemoteAddr, "error", err)
		_ = conn.Close()
	}
}

// handleHealth reports process liveness in plain text.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "relay server is running")
}

// handleTestPage serves a minimal HTML client speaking the room protocol,
// useful for poking at the server without the real frontend.
func (s *Server) handleTestPage(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, testPageHTML); err != nil {
		s.log.Warn("writing test page failed", "error", err)
	}
}

const testPageHTML = `<!DOCTYPE html>
<html>
<head>
    <title>Relay Test Client</title>
    <style>
        body { font-family: sans-serif; margin: 20px; max-width: 640px; }
        #messages { border: 1px solid #ccc; height: 280px; padding: 8px; overflow-y: scroll; margin: 10px 0; }
        input { padding: 4px; margin-right: 6px; }
        .system { color: gray; font-style: italic; }
    </style>
</head>
<body>
    <h1>Relay Test Client</h1>
    <div>
        <input id="room" placeholder="room id">
        <input id="name" placeholder="username">
        <button onclick="join()">Join</button>
        <button onclick="leave()">Leave</button>
    </div>
    <div id="messages"></div>
    <div>
        <input id="text" placeholder="message" size="40">
        <button onclick="send()">Send</button>
    </div>
    <script>
        const messages = document.getElementById('messages');
        function log(text, cls) {
            const div = document.createElement('div');
            if (cls) div.className = cls;
            div.textContent = text;
            messages.appendChild(div);
            messages.scrollTop = messages.scrollHeight;
        }
        const ws = new WebSocket('ws://' + location.host + '/ws');
        ws.onmessage = (e) => {
            for (const line of e.data.split('\n')) {
                const ev = JSON.parse(line);
                switch (ev.type) {
                    case 'connection': log('connected as ' + ev.content.id, 'system'); break;
                    case 'chat': log(ev.sender + ': ' + ev.content); break;
                    case 'user_list': log('online: ' + ev.onlineUsers.join(', '), 'system'); break;
                    case 'user_joined': log(ev.username + ' joined (' + ev.onlineUsers.length + ' online)', 'system'); break;
                    case 'user_left': log(ev.username + ' left (' + ev.onlineUsers.length + ' online)', 'system'); break;
                    case 'error': log('error: ' + ev.content, 'system'); break;
                }
            }
        };
        ws.onclose = () => log('connection closed', 'system');
        function join() {
            ws.send(JSON.stringify({type: 'join_room',
                roomId: document.getElementById('room').value,
                username: document.getElementById('name').value}));
        }
        function leave() { ws.send(JSON.stringify({type: 'leave_room'})); }
        function send() {
            const input = document.getElementById('text');
            if (!input.value) return;
            ws.send(JSON.stringify({type: 'chat', content: input.value}));
            input.value = '';
        }
        document.getElementById('text').addEventListener('keypress', (e) => {
            if (e.key === 'Enter') send();
        });
    </script>
</body>
</html>`
