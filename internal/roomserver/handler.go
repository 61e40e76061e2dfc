package roomserver

import (
	"log/slog"

	"github.com/BioHazard786/watchsync/internal/protocol"
)

// handleFrame applies one client frame to its room and fans out the result.
func (h *Hub) handleFrame(c *Client, f protocol.Frame) {
	r, ok := h.rooms[c.RoomID]
	if !ok {
		return
	}

	var err error
	switch f.Type {

	case protocol.TypePlay, protocol.TypePause, protocol.TypeSeek:
		err = h.handlePlayback(r, c, f)

	case protocol.TypeSetVideo:
		err = h.handleSetVideo(r, c, f)

	case protocol.TypeQueueAdd:
		err = h.handleQueueAdd(r, c, f)

	case protocol.TypeQueueRemove, protocol.TypeQueuePin, protocol.TypeQueuePlay:
		err = h.handleQueueIndex(r, f)

	case protocol.TypeQueueReorder:
		var p protocol.ReorderPayload
		if err = f.DecodePayload(&p); err == nil {
			r.reorder(p.OldIndex, p.NewIndex)
			h.broadcast(r, nil, protocol.TypeQueueUpdate, r.queuePayload())
		}

	case protocol.TypeVideoEnded:
		h.advance(r, r.next(h.clock.Now()))

	case protocol.TypePromote:
		var p protocol.PromotePayload
		if err = f.DecodePayload(&p); err == nil && p.TargetEmail != "" && r.promote(c.User, p.TargetEmail, p.Role) {
			h.broadcast(r, nil, protocol.TypeRolesUpdate, protocol.RolesPayload{Roles: r.roles})
		}

	case protocol.TypeTogglePermanent:
		if r.togglePermanent(c.User) {
			permanent := r.permanent
			h.broadcast(r, nil, protocol.TypeSettingsUpdate, protocol.SettingsPayload{Permanent: &permanent})
		}

	case protocol.TypePing:
		err = h.handlePing(c, f)

	default:
		slog.Debug("Unknown frame type", "type", f.Type, "room", r.id)
	}

	if err != nil {
		slog.Warn("Invalid payload", "type", f.Type, "room", r.id, "user", c.User, "error", err)
	}
}

// handlePlayback records the new position and relays the frame to everyone
// else in the room.
func (h *Hub) handlePlayback(r *room, c *Client, f protocol.Frame) error {
	var p protocol.TimestampPayload
	if err := f.DecodePayload(&p); err != nil {
		return err
	}

	now := h.clock.Now()
	switch f.Type {
	case protocol.TypePlay:
		r.setPlayback(true, p.Timestamp, now)
	case protocol.TypePause:
		r.setPlayback(false, p.Timestamp, now)
	case protocol.TypeSeek:
		r.seek(p.Timestamp, now)
	}

	h.broadcast(r, c, f.Type, p)
	return nil
}

func (h *Hub) handleSetVideo(r *room, c *Client, f protocol.Frame) error {
	var p protocol.VideoPayload
	if err := f.DecodePayload(&p); err != nil {
		return err
	}
	if p.VideoData == nil {
		return nil
	}

	v := *p.VideoData
	v.AddedBy = c.User
	h.advance(r, r.prepend(v, h.clock.Now()))
	return nil
}

func (h *Hub) handleQueueAdd(r *room, c *Client, f protocol.Frame) error {
	var p protocol.VideoPayload
	if err := f.DecodePayload(&p); err != nil {
		return err
	}
	if p.VideoData == nil {
		return nil
	}

	v := *p.VideoData
	v.AddedBy = c.User
	r.add(v)
	h.broadcast(r, nil, protocol.TypeQueueUpdate, r.queuePayload())
	return nil
}

func (h *Hub) handleQueueIndex(r *room, f protocol.Frame) error {
	var p protocol.IndexPayload
	if err := f.DecodePayload(&p); err != nil {
		return err
	}

	switch f.Type {
	case protocol.TypeQueueRemove:
		r.remove(p.Index)
	case protocol.TypeQueuePin:
		r.togglePin(p.Index)
	case protocol.TypeQueuePlay:
		h.advance(r, r.playFromQueue(p.Index, h.clock.Now()))
		return nil
	}

	h.broadcast(r, nil, protocol.TypeQueueUpdate, r.queuePayload())
	return nil
}

// advance announces a new current video, if any, followed by the queue.
func (h *Hub) advance(r *room, next *protocol.VideoData) {
	if next != nil {
		h.broadcast(r, nil, protocol.TypeSetVideo, protocol.VideoPayload{VideoData: next})
	}
	h.broadcast(r, nil, protocol.TypeQueueUpdate, r.queuePayload())
}

func (h *Hub) handlePing(c *Client, f protocol.Frame) error {
	var p protocol.PingPayload
	if err := f.DecodePayload(&p); err != nil {
		return err
	}

	clientTime := p.ClientTime
	h.send(c, protocol.TypePong, protocol.PongPayload{
		ClientTime: &clientTime,
		ServerTime: float64(h.clock.Now().UnixMilli()),
	})
	return nil
}
