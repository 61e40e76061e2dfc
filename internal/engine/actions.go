package engine

import (
	"github.com/BioHazard786/watchsync/internal/media"
	"github.com/BioHazard786/watchsync/internal/protocol"
)

// Outbound actions. Each runs on the engine goroutine and blocks the caller
// until the frame has been handed to the transport, so UIs should call them
// off their render loop. Local playback changes are applied before the room
// is told; the room's echo is not waited for.

// TogglePlay pauses a playing room and resumes a paused one.
func (e *Engine) TogglePlay() error {
	return e.call(func() error {
		if e.sync.Info().IsPlaying {
			return e.pauseLocal()
		}
		return e.playLocal()
	})
}

// Play resumes playback at the local position and announces it.
func (e *Engine) Play() error {
	return e.call(e.playLocal)
}

// Pause pauses playback and announces the local position.
func (e *Engine) Pause() error {
	return e.call(e.pauseLocal)
}

// SeekBy moves the local position by delta seconds and announces it.
func (e *Engine) SeekBy(delta float64) error {
	return e.call(func() error {
		return e.seekLocal(e.sync.Position() + delta)
	})
}

// SeekTo moves the local position to pos seconds and announces it.
func (e *Engine) SeekTo(pos float64) error {
	return e.call(func() error {
		return e.seekLocal(pos)
	})
}

// SetVideo asks the room to play originalURL now. The room answers with
// set_video to every member, this client included.
func (e *Engine) SetVideo(originalURL string) error {
	v, err := newVideo("set video", originalURL)
	if err != nil {
		return err
	}
	return e.call(func() error {
		return e.send("set video", protocol.TypeSetVideo, protocol.VideoPayload{VideoData: v})
	})
}

// QueueAdd appends originalURL to the room queue.
func (e *Engine) QueueAdd(originalURL string) error {
	v, err := newVideo("queue video", originalURL)
	if err != nil {
		return err
	}
	return e.call(func() error {
		return e.send("queue video", protocol.TypeQueueAdd, protocol.VideoPayload{VideoData: v})
	})
}

// QueueRemove drops the queue entry at index.
func (e *Engine) QueueRemove(index int) error {
	return e.call(func() error {
		return e.send("remove from queue", protocol.TypeQueueRemove, protocol.IndexPayload{Index: index})
	})
}

// QueueReorder moves the queue entry at from to to.
func (e *Engine) QueueReorder(from, to int) error {
	return e.call(func() error {
		return e.send("reorder queue", protocol.TypeQueueReorder, protocol.ReorderPayload{OldIndex: from, NewIndex: to})
	})
}

// QueuePin toggles the pinned flag of the queue entry at index.
func (e *Engine) QueuePin(index int) error {
	return e.call(func() error {
		return e.send("pin queue entry", protocol.TypeQueuePin, protocol.IndexPayload{Index: index})
	})
}

// QueuePlay asks the room to play the queue entry at index.
func (e *Engine) QueuePlay(index int) error {
	return e.call(func() error {
		return e.send("play queue entry", protocol.TypeQueuePlay, protocol.IndexPayload{Index: index})
	})
}

// VideoEnded tells the room the current video finished so it can advance.
func (e *Engine) VideoEnded() error {
	return e.call(func() error {
		return e.send("advance queue", protocol.TypeVideoEnded, struct{}{})
	})
}

// Promote changes target's role. Only admins are obeyed by the room.
func (e *Engine) Promote(target, role string) error {
	switch role {
	case protocol.RoleAdmin, protocol.RoleModerator, protocol.RoleUser:
	default:
		return WrapError("promote", ErrInvalidRole, role)
	}
	return e.call(func() error {
		return e.send("promote", protocol.TypePromote, protocol.PromotePayload{TargetEmail: target, Role: role})
	})
}

// TogglePermanent flips whether the room outlives its last member.
func (e *Engine) TogglePermanent() error {
	return e.call(func() error {
		return e.send("toggle permanent", protocol.TypeTogglePermanent, struct{}{})
	})
}

func (e *Engine) playLocal() error {
	pos := e.sync.LocalPlay()
	e.store.SetPlayback(true, pos)
	return e.send("play", protocol.TypePlay, protocol.TimestampPayload{Timestamp: pos})
}

func (e *Engine) pauseLocal() error {
	pos := e.sync.LocalPause()
	e.store.SetPlayback(false, pos)
	return e.send("pause", protocol.TypePause, protocol.TimestampPayload{Timestamp: pos})
}

func (e *Engine) seekLocal(pos float64) error {
	pos = e.sync.LocalSeek(pos)
	e.store.SetPlayback(e.sync.Info().IsPlaying, pos)
	return e.send("seek", protocol.TypeSeek, protocol.TimestampPayload{Timestamp: pos})
}

// send composes a frame and hands it to the transport. A dropped frame is
// reported as ErrNotConnected; it is never retried.
func (e *Engine) send(op, frameType string, payload any) error {
	f, err := protocol.NewFrame(frameType, payload)
	if err != nil {
		return WrapError(op, err, frameType)
	}
	if !e.conn.Send(f) {
		return NewRoomError(op, e.opts.Room, ErrNotConnected)
	}
	return nil
}

// call runs fn on the engine goroutine and waits for its result.
func (e *Engine) call(fn func() error) error {
	errc := make(chan error, 1)
	if !e.post(func() { errc <- fn() }) {
		return NewRoomError("send", e.opts.Room, ErrStopped)
	}
	select {
	case err := <-errc:
		return err
	case <-e.done:
		return NewRoomError("send", e.opts.Room, ErrStopped)
	}
}

func newVideo(op, originalURL string) (*protocol.VideoData, error) {
	src, err := media.ValidateURL(originalURL)
	if err != nil {
		return nil, WrapError(op, ErrInvalidVideo, err.Error())
	}
	return &protocol.VideoData{OriginalURL: src.URL}, nil
}
