package protocol

import "time"

// Inbound event types sent by clients.
const (
	TypeJoinRoom       = "join_room"
	TypeLeaveRoom      = "leave_room"
	TypeChat           = "chat"
	TypePrivateMessage = "private_message"
)

// Outbound event types emitted by the server. TypeChat is shared between
// directions.
const (
	TypeConnection = "connection"
	TypeUserList   = "user_list"
	TypeUserJoined = "user_joined"
	TypeUserLeft   = "user_left"
	TypeError      = "error"
)

// SenderServer is the sender value stamped on every system event.
const SenderServer = "server"

// Inbound is a decoded client event. Which fields are populated depends on
// the Type; Decode enforces the per-type requirements.
type Inbound struct {
	Type     string `json:"type"`
	RoomID   string `json:"roomId,omitempty"`
	Username string `json:"username,omitempty"`
	Content  string `json:"content,omitempty"`
	Target   string `json:"target,omitempty"`
}

// ConnectionInfo is the payload of the connection acknowledgement sent to a
// client right after it is accepted.
type ConnectionInfo struct {
	ID      string `json:"id"`
	Message string `json:"message,omitempty"`
}

// Outbound is a server-to-client event. Timestamp is always stamped by the
// server, in milliseconds since the Unix epoch, at construction time.
type Outbound struct {
	Type        string   `json:"type"`
	Sender      string   `json:"sender"`
	Timestamp   int64    `json:"timestamp"`
	Content     any      `json:"content,omitempty"`
	Username    string   `json:"username,omitempty"`
	OnlineUsers []string `json:"onlineUsers,omitempty"`
}

func newOutbound(eventType, sender string) Outbound {
	return Outbound{
		Type:      eventType,
		Sender:    sender,
		Timestamp: time.Now().UnixMilli(),
	}
}

// NewConnectionAck builds the acknowledgement event carrying the id assigned
// to a freshly accepted connection.
func NewConnectionAck(connectionID string) Outbound {
	ev := newOutbound(TypeConnection, SenderServer)
	ev.Content = ConnectionInfo{ID: connectionID, Message: "Connected to server"}
	return ev
}

// NewChat builds a chat event attributed to the given display name.
func NewChat(sender, content string) Outbound {
	ev := newOutbound(TypeChat, sender)
	ev.Content = content
	return ev
}

// NewUserList builds a roster snapshot of the given room members.
func NewUserList(members []string) Outbound {
	ev := newOutbound(TypeUserList, SenderServer)
	ev.OnlineUsers = members
	return ev
}

// NewUserJoined announces that username entered a room whose roster is now
// members.
func NewUserJoined(username string, members []string) Outbound {
	ev := newOutbound(TypeUserJoined, SenderServer)
	ev.Username = username
	ev.OnlineUsers = members
	return ev
}

// NewUserLeft announces that username left a room, carrying the remaining
// roster.
func NewUserLeft(username string, members []string) Outbound {
	ev := newOutbound(TypeUserLeft, SenderServer)
	ev.Username = username
	ev.OnlineUsers = members
	return ev
}

// NewError builds an error event answered to a single client.
func NewError(reason string) Outbound {
	ev := newOutbound(TypeError, SenderServer)
	ev.Content = reason
	return ev
}
