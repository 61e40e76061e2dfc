package playback

import (
	"log/slog"
	"math"
	"time"

	"github.com/BioHazard786/watchsync/internal/latency"
	"github.com/BioHazard786/watchsync/internal/protocol"
	"github.com/BioHazard786/watchsync/internal/scheduler"
)

const (
	// DefaultDriftThreshold is the drift in seconds beyond which the player
	// is hard seeked instead of nudged.
	DefaultDriftThreshold = 2.0

	nudgeBand  = 0.5
	rateNormal = 1.0
	rateFast   = 1.05
	rateSlow   = 0.95

	pendingRetryInterval = time.Second
	pendingRetryWindow   = 5 * time.Second

	lastSyncLayout = "15:04:05"
)

// SyncInfo is the observable result of the last reconciliation.
type SyncInfo struct {
	IsPlaying bool
	Timestamp float64
	LastSync  string
	LatencyMs float64
}

// Synchronizer keeps a local player aligned with the room's declared
// position. It is not safe for concurrent use and must be driven from the
// goroutine that drains the scheduler's PostFunc.
type Synchronizer struct {
	latency   *latency.Estimator
	sched     *scheduler.Scheduler
	threshold float64

	player Player
	video  *protocol.VideoData
	info   SyncInfo

	pending      func(Player)
	pendingSince time.Time
	pendingRetry *scheduler.Timer

	observers map[int]func(SyncInfo)
	nextID    int
}

// NewSynchronizer creates a synchronizer. A threshold <= 0 selects
// DefaultDriftThreshold.
func NewSynchronizer(est *latency.Estimator, sched *scheduler.Scheduler, threshold float64) *Synchronizer {
	if threshold <= 0 {
		threshold = DefaultDriftThreshold
	}
	return &Synchronizer{
		latency:   est,
		sched:     sched,
		threshold: threshold,
		observers: make(map[int]func(SyncInfo)),
	}
}

// Threshold returns the hard-seek drift threshold in seconds.
func (s *Synchronizer) Threshold() float64 { return s.threshold }

// Info returns the last reconciliation result.
func (s *Synchronizer) Info() SyncInfo { return s.info }

// Player returns the attached player, if any.
func (s *Synchronizer) Player() Player { return s.player }

// Subscribe registers fn for SyncInfo changes and returns a function that
// removes it.
func (s *Synchronizer) Subscribe(fn func(SyncInfo)) func() {
	id := s.nextID
	s.nextID++
	s.observers[id] = fn
	return func() { delete(s.observers, id) }
}

// Attach sets the player. A pending reconciliation is applied at once when
// the player is ready.
func (s *Synchronizer) Attach(p Player) {
	s.player = p
	if p == nil {
		s.cancelPending()
		return
	}
	if l, ok := p.(Loader); ok && s.video != nil {
		if err := l.Load(s.video); err != nil {
			slog.Warn("failed to load video into player", "url", s.video.Identity(), "error", err)
		}
	}
	s.flushPending()
}

// Detach drops the player and any pending reconciliation.
func (s *Synchronizer) Detach() {
	s.player = nil
	s.cancelPending()
}

// Stop cancels background work.
func (s *Synchronizer) Stop() {
	s.cancelPending()
}

// SetVideo records the descriptor used for live and dual-stream decisions
// without touching the player.
func (s *Synchronizer) SetVideo(v *protocol.VideoData) {
	s.video = v.Clone()
}

// Load switches the player to v without changing the sync position.
func (s *Synchronizer) Load(v *protocol.VideoData) {
	s.video = v.Clone()
	if s.video == nil || s.player == nil {
		return
	}
	if l, ok := s.player.(Loader); ok {
		if err := l.Load(s.video); err != nil {
			slog.Warn("failed to load video into player", "url", s.video.Identity(), "error", err)
		}
	}
}

// NewVideo handles a room-wide video switch: the position restarts at zero
// in the playing state and the player loads the new descriptor.
func (s *Synchronizer) NewVideo(v *protocol.VideoData) {
	s.video = v.Clone()
	s.info.IsPlaying = true
	s.info.Timestamp = 0
	s.touch()

	video := s.video
	s.apply(func(p Player) {
		if l, ok := p.(Loader); ok && video != nil {
			if err := l.Load(video); err != nil {
				slog.Warn("failed to load video into player", "url", video.Identity(), "error", err)
				return
			}
		}
		s.setRate(p, rateNormal)
		s.play(p)
	})
}

// Resolved swaps in a resolved descriptor for the current video, keeping the
// player's position.
func (s *Synchronizer) Resolved(v *protocol.VideoData) {
	s.video = v.Clone()
	video := s.video
	p := s.player
	if p == nil {
		return
	}
	l, ok := p.(Loader)
	if !ok {
		return
	}
	pos := p.CurrentTime()
	if err := l.Load(video); err != nil {
		slog.Warn("failed to load resolved video", "url", video.Identity(), "error", err)
		return
	}
	if pos > 0 {
		s.seek(p, pos)
	}
	if s.info.IsPlaying {
		s.play(p)
	}
}

// Sync reconciles against a full room snapshot.
func (s *Synchronizer) Sync(serverTime float64, playing bool) {
	s.record(serverTime, playing)

	s.apply(func(p Player) {
		if !playing {
			s.pause(p)
			if s.skipSeek(serverTime) {
				return
			}
			if math.Abs(serverTime-p.CurrentTime()) > s.threshold {
				s.seek(p, serverTime)
			}
			return
		}

		s.play(p)
		if !s.live() {
			s.correctDrift(p, serverTime)
		}
	})
}

// SetPlaying follows a room play state that came without a position. The
// player keeps its position.
func (s *Synchronizer) SetPlaying(playing bool) {
	s.info.IsPlaying = playing
	s.info.Timestamp = s.localPosition()
	s.touch()

	s.apply(func(p Player) {
		if playing {
			s.play(p)
		} else {
			s.pause(p)
		}
	})
}

// Heartbeat applies continuous drift correction while the room plays.
func (s *Synchronizer) Heartbeat(serverTime float64, playing bool) {
	s.record(serverTime, playing)
	if !playing || s.live() {
		return
	}
	s.apply(func(p Player) {
		s.correctDrift(p, serverTime)
	})
}

// Play handles a room play event at serverTime.
func (s *Synchronizer) Play(serverTime float64) {
	s.record(serverTime, true)
	target := s.compensate(serverTime)
	skip := s.skipSeek(serverTime)

	s.apply(func(p Player) {
		if !skip {
			s.seek(p, target)
		}
		s.setRate(p, rateNormal)
		s.play(p)
	})
}

// Pause handles a room pause event at serverTime.
func (s *Synchronizer) Pause(serverTime float64) {
	s.record(serverTime, false)
	skip := s.skipSeek(serverTime)

	s.apply(func(p Player) {
		s.pause(p)
		if !skip {
			s.seek(p, serverTime)
		}
	})
}

// Seek handles a room seek event to serverTime.
func (s *Synchronizer) Seek(serverTime float64) {
	s.record(serverTime, s.info.IsPlaying)
	target := s.compensate(serverTime)
	if s.skipSeek(serverTime) {
		return
	}

	s.apply(func(p Player) {
		s.seek(p, target)
	})
}

// OnLatency refreshes the observable latency.
func (s *Synchronizer) OnLatency(ms float64) {
	s.info.LatencyMs = ms
	s.notify()
}

// LocalPlay resumes the local player and returns the position to announce.
func (s *Synchronizer) LocalPlay() float64 {
	pos := s.localPosition()
	s.info.IsPlaying = true
	s.info.Timestamp = pos
	if s.player != nil {
		s.play(s.player)
	}
	s.notify()
	return pos
}

// LocalPause pauses the local player and returns the position to announce.
func (s *Synchronizer) LocalPause() float64 {
	if s.player != nil {
		s.pause(s.player)
	}
	pos := s.localPosition()
	s.info.IsPlaying = false
	s.info.Timestamp = pos
	s.notify()
	return pos
}

// LocalSeek moves the local player to pos, clamped at zero, and returns the
// position to announce.
func (s *Synchronizer) LocalSeek(pos float64) float64 {
	pos = max(pos, 0)
	if s.player != nil {
		s.seek(s.player, pos)
	}
	s.info.Timestamp = pos
	s.notify()
	return pos
}

// Position returns the player's position, or the last known room position
// when no player is attached.
func (s *Synchronizer) Position() float64 {
	return s.localPosition()
}

func (s *Synchronizer) correctDrift(p Player, serverTime float64) {
	compensated := s.compensate(serverTime)
	drift := compensated - p.CurrentTime()

	switch {
	case math.Abs(drift) > s.threshold:
		slog.Debug("hard seek", "drift", drift, "target", compensated)
		s.seek(p, compensated)
		s.setRate(p, rateNormal)
	case s.video.IsDualStream():
		// separate audio and video streams drift apart when their rate changes
	case drift > nudgeBand:
		s.setRate(p, rateFast)
	case drift < -nudgeBand:
		s.setRate(p, rateSlow)
	default:
		s.setRate(p, rateNormal)
	}
}

func (s *Synchronizer) compensate(serverTime float64) float64 {
	return serverTime + s.latency.Seconds()
}

func (s *Synchronizer) live() bool {
	return s.video != nil && s.video.IsLive
}

// skipSeek reports whether a discrete event must not move the player: live
// streams report position zero.
func (s *Synchronizer) skipSeek(serverTime float64) bool {
	return s.live() && serverTime == 0
}

func (s *Synchronizer) record(serverTime float64, playing bool) {
	s.info.IsPlaying = playing
	if playing {
		s.info.Timestamp = s.compensate(serverTime)
	} else {
		s.info.Timestamp = serverTime
	}
	s.info.LatencyMs = s.latency.Estimate()
	s.touch()
}

func (s *Synchronizer) touch() {
	s.info.LastSync = s.sched.Clock().Now().Format(lastSyncLayout)
	s.notify()
}

func (s *Synchronizer) localPosition() float64 {
	if s.player != nil {
		return s.player.CurrentTime()
	}
	return s.info.Timestamp
}

// apply runs fn against the player now, or keeps it as the pending
// reconciliation until a ready player is attached. Only the latest pending
// reconciliation is kept.
func (s *Synchronizer) apply(fn func(Player)) {
	if ready(s.player) {
		s.cancelPending()
		fn(s.player)
		return
	}

	if s.pending == nil {
		s.pendingSince = s.sched.Clock().Now()
	}
	s.pending = fn
	if !s.pendingRetry.Active() {
		s.pendingRetry = s.sched.After(pendingRetryInterval, s.retryPending)
	}
}

func (s *Synchronizer) retryPending() {
	s.pendingRetry = nil
	if s.pending == nil {
		return
	}
	if ready(s.player) {
		s.flushPending()
		return
	}
	if s.sched.Clock().Since(s.pendingSince) >= pendingRetryWindow {
		slog.Debug("dropping pending sync, no player ready")
		s.pending = nil
		return
	}
	s.pendingRetry = s.sched.After(pendingRetryInterval, s.retryPending)
}

func (s *Synchronizer) flushPending() {
	if s.pending == nil || !ready(s.player) {
		return
	}
	fn := s.pending
	s.cancelPending()
	fn(s.player)
}

func (s *Synchronizer) cancelPending() {
	s.pending = nil
	s.pendingRetry.Stop()
	s.pendingRetry = nil
}

// HasPending reports whether a reconciliation is waiting for a player.
func (s *Synchronizer) HasPending() bool {
	return s.pending != nil
}

func (s *Synchronizer) play(p Player) {
	if err := p.Play(); err != nil {
		slog.Debug("player refused play", "error", err)
	}
}

func (s *Synchronizer) pause(p Player) {
	if err := p.Pause(); err != nil {
		slog.Debug("player refused pause", "error", err)
	}
}

func (s *Synchronizer) seek(p Player, pos float64) {
	if err := p.Seek(pos); err != nil {
		slog.Debug("player refused seek", "position", pos, "error", err)
	}
}

func (s *Synchronizer) setRate(p Player, rate float64) {
	if err := p.SetPlaybackRate(rate); err != nil {
		slog.Debug("player refused rate change", "rate", rate, "error", err)
	}
}

func (s *Synchronizer) notify() {
	for _, fn := range s.observers {
		fn(s.info)
	}
}
