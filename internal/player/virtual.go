// Package player provides media players for environments without a media
// element, such as a terminal.
package player

import (
	"errors"
	"sync"
	"time"

	"github.com/BioHazard786/watchsync/internal/protocol"
	"github.com/jonboulle/clockwork"
)

var (
	ErrNoVideo     = errors.New("no video loaded")
	ErrInvalidRate = errors.New("playback rate must be positive")
)

// Virtual is a clock-driven player. Its position advances with the clock
// while playing, scaled by the playback rate. It is safe for concurrent use
// so a UI can read it while the engine drives it.
type Virtual struct {
	clock clockwork.Clock

	mu       sync.Mutex
	video    *protocol.VideoData
	playing  bool
	rate     float64
	base     float64   // position at anchor
	anchor   time.Time // clock time when base was recorded
	duration float64
}

// NewVirtual returns a paused player with nothing loaded. A nil clock uses
// the real clock.
func NewVirtual(clock clockwork.Clock) *Virtual {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Virtual{clock: clock, rate: 1}
}

// Load switches to v and rewinds to the start.
func (p *Virtual) Load(v *protocol.VideoData) error {
	if v == nil {
		return ErrNoVideo
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.video = v.Clone()
	p.base = 0
	p.anchor = p.clock.Now()
	p.duration = 0
	return nil
}

// SetDuration bounds the position; zero means unbounded, as for live streams.
func (p *Virtual) SetDuration(seconds float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rebase()
	p.duration = max(seconds, 0)
}

func (p *Virtual) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.video == nil {
		return ErrNoVideo
	}
	if !p.playing {
		p.anchor = p.clock.Now()
		p.playing = true
	}
	return nil
}

func (p *Virtual) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rebase()
	p.playing = false
	return nil
}

func (p *Virtual) Seek(seconds float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.video == nil {
		return ErrNoVideo
	}
	p.base = p.clamp(seconds)
	p.anchor = p.clock.Now()
	return nil
}

func (p *Virtual) CurrentTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position()
}

func (p *Virtual) SetPlaybackRate(rate float64) error {
	if rate <= 0 {
		return ErrInvalidRate
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rebase()
	p.rate = rate
	return nil
}

// Ready reports whether a video is loaded.
func (p *Virtual) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.video != nil
}

// Status is a point-in-time view of the player.
type Status struct {
	Video    *protocol.VideoData
	Playing  bool
	Rate     float64
	Position float64
}

func (p *Virtual) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Status{
		Video:    p.video.Clone(),
		Playing:  p.playing,
		Rate:     p.rate,
		Position: p.position(),
	}
}

func (p *Virtual) position() float64 {
	if !p.playing {
		return p.base
	}
	elapsed := p.clock.Since(p.anchor).Seconds()
	return p.clamp(p.base + elapsed*p.rate)
}

// rebase folds elapsed play time into base so rate changes apply from now.
func (p *Virtual) rebase() {
	p.base = p.position()
	p.anchor = p.clock.Now()
}

func (p *Virtual) clamp(pos float64) float64 {
	pos = max(pos, 0)
	if p.duration > 0 {
		pos = min(pos, p.duration)
	}
	return pos
}
