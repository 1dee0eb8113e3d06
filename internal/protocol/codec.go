package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Decode failures. Both are recoverable: the caller answers the sender with
// an error event and keeps the connection open.
var (
	ErrMalformed   = errors.New("malformed event")
	ErrUnknownType = errors.New("unknown event type")
)

// Decode parses a wire frame into a typed inbound event. It validates that
// the event type is known and that the fields the type requires are present.
func Decode(data []byte) (Inbound, error) {
	var ev Inbound
	if err := json.Unmarshal(data, &ev); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch ev.Type {
	case TypeJoinRoom:
		if ev.RoomID == "" {
			return Inbound{}, fmt.Errorf("%w: join_room requires roomId", ErrMalformed)
		}
		if ev.Username == "" {
			return Inbound{}, fmt.Errorf("%w: join_room requires username", ErrMalformed)
		}
	case TypeLeaveRoom:
	case TypeChat:
		if ev.Content == "" {
			return Inbound{}, fmt.Errorf("%w: chat requires content", ErrMalformed)
		}
	case TypePrivateMessage:
		if ev.Target == "" {
			return Inbound{}, fmt.Errorf("%w: private_message requires target", ErrMalformed)
		}
	case "":
		return Inbound{}, fmt.Errorf("%w: missing type", ErrMalformed)
	default:
		return Inbound{}, fmt.Errorf("%w: %q", ErrUnknownType, ev.Type)
	}

	return ev, nil
}

// Encode serializes an outbound event for the wire.
func Encode(ev Outbound) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encoding %s event: %w", ev.Type, err)
	}
	return data, nil
}
