package room

import (
	"maps"
	"slices"

	"github.com/BioHazard786/watchsync/internal/protocol"
)

// NoIndex marks that no queue entry is playing.
const NoIndex = -1

// State is the local mirror of a room's shared state.
type State struct {
	Room         string
	Video        *protocol.VideoData
	Queue        []protocol.VideoData
	PlayingIndex int
	Members      []protocol.Member
	Roles        map[string]string
	CurrentUser  string
	IsPlaying    bool
	Timestamp    float64
	Permanent    bool

	// Stale is set while the state comes from a snapshot and no sync has
	// been received yet.
	Stale bool
}

// Role returns the role of identity, or "" if unknown.
func (s State) Role(identity string) string {
	return s.Roles[identity]
}

// CanModerate reports whether the local user is admin or moderator.
func (s State) CanModerate() bool {
	switch s.Role(s.CurrentUser) {
	case protocol.RoleAdmin, protocol.RoleModerator:
		return true
	}
	return false
}

// NowPlaying returns the queue entry at PlayingIndex, if any.
func (s State) NowPlaying() (protocol.VideoData, bool) {
	if s.PlayingIndex < 0 || s.PlayingIndex >= len(s.Queue) {
		return protocol.VideoData{}, false
	}
	return s.Queue[s.PlayingIndex], true
}

// Clone returns a deep copy safe to hand to other goroutines.
func (s State) Clone() State {
	c := s
	c.Video = s.Video.Clone()
	if s.Queue != nil {
		c.Queue = make([]protocol.VideoData, len(s.Queue))
		for i := range s.Queue {
			c.Queue[i] = *s.Queue[i].Clone()
		}
	}
	c.Members = slices.Clone(s.Members)
	c.Roles = maps.Clone(s.Roles)
	return c
}

// normalizeIndex keeps PlayingIndex either NoIndex or a valid queue index.
func normalizeIndex(idx, queueLen int) int {
	if idx < 0 || idx >= queueLen {
		return NoIndex
	}
	return idx
}
