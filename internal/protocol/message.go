package protocol

import (
	"encoding/json"
	"errors"
)

// Frame represents every websocket message exchanged with the room server.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Inbound frame types.
const (
	TypeSync           = "sync"
	TypeUserJoined     = "user_joined"
	TypeUserLeft       = "user_left"
	TypeSetVideo       = "set_video"
	TypePlay           = "play"
	TypePause          = "pause"
	TypeSeek           = "seek"
	TypeQueueUpdate    = "queue_update"
	TypeRolesUpdate    = "roles_update"
	TypeSettingsUpdate = "room_settings_update"
	TypePong           = "pong"
	TypeHeartbeat      = "heartbeat"
)

// Outbound frame types. play, pause, seek and set_video are shared with the
// inbound direction.
const (
	TypePing            = "ping"
	TypeQueueAdd        = "queue_add"
	TypeQueueRemove     = "queue_remove"
	TypeQueueReorder    = "queue_reorder"
	TypeQueuePin        = "queue_pin"
	TypeQueuePlay       = "queue_play"
	TypeVideoEnded      = "video_ended"
	TypePromote         = "promote"
	TypeTogglePermanent = "toggle_permanent"
)

// Roles assigned by the room server.
const (
	RoleAdmin     = "admin"
	RoleModerator = "moderator"
	RoleUser      = "user"
)

var ErrEmptyType = errors.New("frame has no type")

// DecodeFrame parses a raw websocket text message.
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, err
	}
	if f.Type == "" {
		return Frame{}, ErrEmptyType
	}
	return f, nil
}

// DecodePayload decodes the frame payload into v. A missing payload leaves v untouched.
func (f Frame) DecodePayload(v any) error {
	if len(f.Payload) == 0 || string(f.Payload) == "null" {
		return nil
	}
	return json.Unmarshal(f.Payload, v)
}

// NewFrame creates a frame with the given type and payload. A nil payload is omitted.
func NewFrame(t string, payload any) (Frame, error) {
	if payload == nil {
		return Frame{Type: t}, nil
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}

	return Frame{
		Type:    t,
		Payload: b,
	}, nil
}
