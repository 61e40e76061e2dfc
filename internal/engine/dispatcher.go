package engine

import (
	"context"
	"log/slog"

	"github.com/BioHazard786/watchsync/internal/protocol"
)

// HandleFrame implements connection.Handler. Frames are applied one at a
// time in arrival order; a bad frame is logged and dropped.
func (e *Engine) HandleFrame(data []byte) {
	f, err := protocol.DecodeFrame(data)
	if err != nil {
		slog.Warn("discarding undecodable frame", "room", e.opts.Room, "error", err)
		return
	}
	if err := e.dispatch(f); err != nil {
		slog.Warn("discarding malformed frame", "room", e.opts.Room, "type", f.Type, "error", err)
	}
}

func (e *Engine) dispatch(f protocol.Frame) error {
	switch f.Type {

	case protocol.TypeSync:
		return e.handleSync(f)

	case protocol.TypeUserJoined, protocol.TypeUserLeft:
		return e.handleMembers(f)

	case protocol.TypeSetVideo:
		return e.handleSetVideo(f)

	case protocol.TypePlay:
		return e.handleTimestamp(f, e.sync.Play)

	case protocol.TypePause:
		return e.handleTimestamp(f, e.sync.Pause)

	case protocol.TypeSeek:
		return e.handleTimestamp(f, e.sync.Seek)

	case protocol.TypeQueueUpdate:
		return e.handleQueueUpdate(f)

	case protocol.TypeRolesUpdate:
		return e.handleRolesUpdate(f)

	case protocol.TypeSettingsUpdate:
		return e.handleSettingsUpdate(f)

	case protocol.TypePong:
		return e.handlePong(f)

	case protocol.TypeHeartbeat:
		return e.handleHeartbeat(f)

	default:
		slog.Debug("ignoring unknown frame", "type", f.Type)
		return nil
	}
}

func (e *Engine) handleSync(f protocol.Frame) error {
	var p protocol.SyncPayload
	if err := f.DecodePayload(&p); err != nil {
		return err
	}

	if e.store.ApplySync(p) {
		e.videoChanged(false)
	}

	// only a frame with a position is reconciled against; the stored one may
	// be older than the last heartbeat
	switch {
	case p.Timestamp != nil:
		e.sync.Sync(*p.Timestamp, e.store.State().IsPlaying)
	case p.IsPlaying != nil:
		e.sync.SetPlaying(*p.IsPlaying)
	}
	e.markSynced()
	return nil
}

func (e *Engine) handleMembers(f protocol.Frame) error {
	var p protocol.MembersPayload
	if err := f.DecodePayload(&p); err != nil {
		return err
	}
	if p.Email != "" {
		slog.Debug("room membership changed", "type", f.Type, "email", p.Email)
	}
	if p.Members != nil {
		e.store.SetMembers(*p.Members)
	}
	return nil
}

func (e *Engine) handleSetVideo(f protocol.Frame) error {
	var p protocol.VideoPayload
	if err := f.DecodePayload(&p); err != nil {
		return err
	}
	if p.VideoData == nil || p.VideoData.Identity() == "" {
		return ErrInvalidVideo
	}

	e.store.SetVideo(p.VideoData)
	e.store.SetPlayback(true, 0)
	e.videoChanged(true)
	return nil
}

func (e *Engine) handleTimestamp(f protocol.Frame, apply func(float64)) error {
	var p protocol.TimestampPayload
	if err := f.DecodePayload(&p); err != nil {
		return err
	}
	// playback only; the room state changes with the next sync
	apply(p.Timestamp)
	return nil
}

func (e *Engine) handleQueueUpdate(f protocol.Frame) error {
	var p protocol.QueuePayload
	if err := f.DecodePayload(&p); err != nil {
		return err
	}
	e.store.SetQueue(p.Queue, p.PlayingIndex)
	return nil
}

func (e *Engine) handleRolesUpdate(f protocol.Frame) error {
	var p protocol.RolesPayload
	if err := f.DecodePayload(&p); err != nil {
		return err
	}
	e.store.SetRoles(p.Roles)
	return nil
}

func (e *Engine) handleSettingsUpdate(f protocol.Frame) error {
	var p protocol.SettingsPayload
	if err := f.DecodePayload(&p); err != nil {
		return err
	}
	if p.Permanent != nil {
		e.store.SetPermanent(*p.Permanent)
	}
	return nil
}

func (e *Engine) handlePong(f protocol.Frame) error {
	var p protocol.PongPayload
	if err := f.DecodePayload(&p); err != nil {
		return err
	}
	if p.ClientTime == nil {
		return nil
	}

	now := float64(e.clock.Now().UnixMilli())
	ms := e.latency.OnProbeEcho(*p.ClientTime, now)
	e.sync.OnLatency(ms)
	return nil
}

func (e *Engine) handleHeartbeat(f protocol.Frame) error {
	var p protocol.HeartbeatPayload
	if err := f.DecodePayload(&p); err != nil {
		return err
	}
	if p.Timestamp == nil {
		return nil
	}

	playing := true
	if p.IsPlaying != nil {
		playing = *p.IsPlaying
	}
	e.sync.Heartbeat(*p.Timestamp, playing)
	return nil
}

// videoChanged reacts to a new current video. For set_video the position
// restarts; a sync carries its own position so the player only loads.
func (e *Engine) videoChanged(restart bool) {
	v := e.store.State().Video
	if restart {
		e.sync.NewVideo(v)
	} else {
		e.sync.Load(v)
	}
	e.resolve(v)
}

// resolve asks the resolver for a playable descriptor. The result comes back
// through the loop and is applied only if the store accepts it.
func (e *Engine) resolve(v *protocol.VideoData) {
	if e.opts.Resolver == nil || v == nil || v.Identity() == "" {
		return
	}

	requested := v.Identity()
	ctx, cancel := context.WithTimeout(e.ctx, e.opts.ResolveTimeout)

	go func() {
		defer cancel()
		resolved, err := e.opts.Resolver.Resolve(ctx, requested)
		e.post(func() { e.resolved(requested, resolved, err) })
	}()
}

func (e *Engine) resolved(requested string, v *protocol.VideoData, err error) {
	if err != nil {
		slog.Debug("video resolution failed, keeping provisional data", "url", requested, "error", err)
		return
	}
	if !e.store.ApplyResolution(requested, v, e.opts.GuardStaleResolutions) {
		slog.Debug("discarding stale video resolution", "url", requested)
		return
	}
	e.sync.Resolved(e.store.State().Video)
}
