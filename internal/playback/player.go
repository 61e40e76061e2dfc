package playback

import "github.com/BioHazard786/watchsync/internal/protocol"

// Player is the media element the synchronizer drives. Positions are seconds.
type Player interface {
	Play() error
	Pause() error
	Seek(seconds float64) error
	CurrentTime() float64
	SetPlaybackRate(rate float64) error
}

// Loader is implemented by players that can switch to a new descriptor.
type Loader interface {
	Load(v *protocol.VideoData) error
}

// Readier is implemented by players that need time before they accept
// commands, such as a media element still buffering its source.
type Readier interface {
	Ready() bool
}

func ready(p Player) bool {
	if p == nil {
		return false
	}
	if r, ok := p.(Readier); ok {
		return r.Ready()
	}
	return true
}
