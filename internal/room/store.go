package room

import (
	"maps"
	"slices"

	"github.com/BioHazard786/watchsync/internal/protocol"
)

// Store holds the room state. Writes merge field by field: a field absent
// from an update never erases what is already known. The store is not safe
// for concurrent use; it lives on the engine loop.
type Store struct {
	state     State
	observers map[int]func(State)
	nextID    int
}

// NewStore creates an empty store for room.
func NewStore(room string) *Store {
	return &Store{
		state: State{
			Room:         room,
			PlayingIndex: NoIndex,
			Roles:        map[string]string{},
		},
		observers: make(map[int]func(State)),
	}
}

// State returns a copy of the current state.
func (s *Store) State() State {
	return s.state.Clone()
}

// Subscribe registers fn for change notifications and returns a function
// that removes it.
func (s *Store) Subscribe(fn func(State)) func() {
	id := s.nextID
	s.nextID++
	s.observers[id] = fn
	return func() { delete(s.observers, id) }
}

// Restore replaces the state with a snapshot and marks it stale.
func (s *Store) Restore(snapshot State) {
	snapshot.Room = s.state.Room
	snapshot.Stale = true
	snapshot.PlayingIndex = normalizeIndex(snapshot.PlayingIndex, len(snapshot.Queue))
	if snapshot.Roles == nil {
		snapshot.Roles = map[string]string{}
	}
	s.state = snapshot
	s.notify()
}

// ApplySync merges a sync payload. It reports whether the video identity
// changed, in which case the new descriptor is provisional.
func (s *Store) ApplySync(p protocol.SyncPayload) (videoChanged bool) {
	st := &s.state

	if p.VideoData != nil && p.VideoData.Identity() != st.Video.Identity() {
		st.Video = p.VideoData.Clone()
		videoChanged = true
	}
	if p.Members != nil {
		st.Members = slices.Clone(*p.Members)
	}
	if p.Queue != nil {
		st.Queue = cloneQueue(*p.Queue)
	}
	if p.Roles != nil {
		st.Roles = maps.Clone(p.Roles)
	}
	if p.YourEmail != nil {
		st.CurrentUser = *p.YourEmail
	}
	if p.PlayingIndex != nil {
		st.PlayingIndex = *p.PlayingIndex
	}
	if p.IsPlaying != nil {
		st.IsPlaying = *p.IsPlaying
	}
	if p.Timestamp != nil {
		st.Timestamp = *p.Timestamp
	}
	if p.Permanent != nil {
		st.Permanent = *p.Permanent
	}

	st.PlayingIndex = normalizeIndex(st.PlayingIndex, len(st.Queue))
	st.Stale = false
	s.notify()
	return videoChanged
}

// SetMembers replaces the member list.
func (s *Store) SetMembers(members []protocol.Member) {
	s.state.Members = slices.Clone(members)
	s.notify()
}

// SetVideo replaces the current video with a provisional descriptor and
// reports whether its identity changed.
func (s *Store) SetVideo(v *protocol.VideoData) bool {
	changed := v.Identity() != s.state.Video.Identity()
	s.state.Video = v.Clone()
	s.notify()
	return changed
}

// SetPlayback records the server's play flag and position.
func (s *Store) SetPlayback(playing bool, timestamp float64) {
	s.state.IsPlaying = playing
	s.state.Timestamp = timestamp
	s.notify()
}

// SetQueue replaces the queue and, when given, the playing index.
func (s *Store) SetQueue(queue *[]protocol.VideoData, playingIndex *int) {
	if queue != nil {
		s.state.Queue = cloneQueue(*queue)
	}
	if playingIndex != nil {
		s.state.PlayingIndex = *playingIndex
	}
	s.state.PlayingIndex = normalizeIndex(s.state.PlayingIndex, len(s.state.Queue))
	s.notify()
}

// SetRoles replaces the role mapping.
func (s *Store) SetRoles(roles map[string]string) {
	s.state.Roles = maps.Clone(roles)
	if s.state.Roles == nil {
		s.state.Roles = map[string]string{}
	}
	s.notify()
}

// SetPermanent records the room's permanent flag.
func (s *Store) SetPermanent(permanent bool) {
	s.state.Permanent = permanent
	s.notify()
}

// ApplyResolution replaces the provisional descriptor requested for
// requestedIdentity with its resolved form. With guard set, the result is
// dropped when the room has moved on to another video since the request.
func (s *Store) ApplyResolution(requestedIdentity string, resolved *protocol.VideoData, guard bool) bool {
	if resolved == nil {
		return false
	}
	if guard && s.state.Video.Identity() != requestedIdentity {
		return false
	}

	// the descriptor keeps the identity it was requested under so later
	// syncs of the same video match
	v := resolved.Clone()
	if requestedIdentity != "" {
		v.OriginalURL = requestedIdentity
	}
	// keep server-side attributes the resolver does not know about
	if cur := s.state.Video; cur != nil && cur.Identity() == v.Identity() {
		if v.AddedBy == "" {
			v.AddedBy = cur.AddedBy
		}
		v.Pinned = cur.Pinned
	}

	s.state.Video = v
	s.notify()
	return true
}

func (s *Store) notify() {
	if len(s.observers) == 0 {
		return
	}
	snapshot := s.state.Clone()
	for _, fn := range s.observers {
		fn(snapshot)
	}
}

func cloneQueue(q []protocol.VideoData) []protocol.VideoData {
	out := make([]protocol.VideoData, len(q))
	for i := range q {
		out[i] = *q[i].Clone()
	}
	return out
}
