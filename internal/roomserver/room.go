package roomserver

import (
	"maps"
	"slices"
	"time"

	"github.com/BioHazard786/watchsync/internal/protocol"
)

const noIndex = -1

// room holds the authoritative state of one room. It is owned by the hub
// goroutine.
type room struct {
	id      string
	clients map[*Client]struct{}

	video        *protocol.VideoData
	playing      bool
	timestamp    float64
	lastSync     time.Time
	queue        []protocol.VideoData
	playingIndex int
	roles        map[string]string
	permanent    bool

	// emptySince is set when the last client leaves.
	emptySince time.Time
}

func newRoom(id string, now time.Time) *room {
	return &room{
		id:           id,
		clients:      make(map[*Client]struct{}),
		lastSync:     now,
		queue:        []protocol.VideoData{},
		playingIndex: noIndex,
		roles:        make(map[string]string),
	}
}

// join assigns a role to user on first sight. The first user ever seen
// becomes admin.
func (r *room) join(user string) {
	if len(r.roles) == 0 {
		r.roles[user] = protocol.RoleAdmin
	} else if _, ok := r.roles[user]; !ok {
		r.roles[user] = protocol.RoleUser
	}
	r.emptySince = time.Time{}
}

// members returns the sorted, de-duplicated identities of connected clients.
func (r *room) members() []protocol.Member {
	var users []string
	for c := range r.clients {
		users = append(users, c.User)
	}
	slices.Sort(users)
	users = slices.Compact(users)

	members := make([]protocol.Member, len(users))
	for i, u := range users {
		members[i] = protocol.Member{Email: u}
	}
	return members
}

// position is the playback position at now, advanced by the wall clock for
// playing non-live videos.
func (r *room) position(now time.Time) float64 {
	if r.playing && r.video != nil && !r.video.IsLive {
		return r.timestamp + now.Sub(r.lastSync).Seconds()
	}
	return r.timestamp
}

func (r *room) syncPayload(now time.Time) protocol.SyncPayload {
	members := r.members()
	queue := r.cloneQueue()
	index := r.playingIndex
	playing := r.playing
	ts := r.position(now)
	permanent := r.permanent

	return protocol.SyncPayload{
		VideoData:    r.video.Clone(),
		Members:      &members,
		Queue:        &queue,
		Roles:        maps.Clone(r.roles),
		PlayingIndex: &index,
		IsPlaying:    &playing,
		Timestamp:    &ts,
		Permanent:    &permanent,
	}
}

func (r *room) queuePayload() protocol.QueuePayload {
	queue := r.cloneQueue()
	index := r.playingIndex
	return protocol.QueuePayload{Queue: &queue, PlayingIndex: &index}
}

func (r *room) cloneQueue() []protocol.VideoData {
	queue := make([]protocol.VideoData, len(r.queue))
	for i := range r.queue {
		queue[i] = *r.queue[i].Clone()
	}
	return queue
}

func (r *room) setPlayback(playing bool, ts float64, now time.Time) {
	r.playing = playing
	r.timestamp = ts
	r.lastSync = now
}

func (r *room) seek(ts float64, now time.Time) {
	r.timestamp = ts
	r.lastSync = now
}

// start makes the entry at index the current video from the beginning.
func (r *room) start(index int, now time.Time) *protocol.VideoData {
	r.playingIndex = index
	r.video = r.queue[index].Clone()
	r.setPlayback(true, 0, now)
	return r.video.Clone()
}

// prepend puts v at the front of the queue and starts it.
func (r *room) prepend(v protocol.VideoData, now time.Time) *protocol.VideoData {
	r.queue = slices.Insert(r.queue, 0, v)
	return r.start(0, now)
}

func (r *room) add(v protocol.VideoData) {
	r.queue = append(r.queue, v)
}

// remove drops the entry at index. The playing entry cannot be removed.
func (r *room) remove(index int) {
	if index < 0 || index >= len(r.queue) || index == r.playingIndex {
		return
	}
	r.queue = slices.Delete(r.queue, index, index+1)
	if r.playingIndex > index {
		r.playingIndex--
	}
}

// reorder moves the entry at from to to, keeping playingIndex on the same
// video.
func (r *room) reorder(from, to int) {
	n := len(r.queue)
	if from < 0 || from >= n || to < 0 || to >= n {
		return
	}
	item := r.queue[from]
	r.queue = slices.Delete(r.queue, from, from+1)
	r.queue = slices.Insert(r.queue, to, item)

	switch p := r.playingIndex; {
	case p == from:
		r.playingIndex = to
	case from < p && p <= to:
		r.playingIndex--
	case to <= p && p < from:
		r.playingIndex++
	}
}

func (r *room) togglePin(index int) {
	if index < 0 || index >= len(r.queue) {
		return
	}
	r.queue[index].Pinned = !r.queue[index].Pinned
}

// playFromQueue starts the entry at index. The previously playing entry is
// dropped unless pinned. It returns nil when index is out of range.
func (r *room) playFromQueue(index int, now time.Time) *protocol.VideoData {
	old := r.playingIndex
	if old >= 0 && old < len(r.queue) && !r.queue[old].Pinned {
		r.queue = slices.Delete(r.queue, old, old+1)
		if index > old {
			index--
		}
	}

	if index < 0 || index >= len(r.queue) {
		return nil
	}
	return r.start(index, now)
}

// next advances after the current video ends. A finished entry is dropped
// unless pinned, in which case playback moves to the following entry and
// wraps around. It returns nil when the queue is exhausted.
func (r *room) next(now time.Time) *protocol.VideoData {
	index := r.playingIndex
	pinned := false
	if index >= 0 && index < len(r.queue) {
		pinned = r.queue[index].Pinned
		if !pinned {
			r.queue = slices.Delete(r.queue, index, index+1)
		}
	}

	next := noIndex
	switch {
	case pinned:
		next = index + 1
		if next >= len(r.queue) {
			next = 0
		}
	case len(r.queue) > 0:
		next = min(index, len(r.queue)-1)
	}

	if len(r.queue) == 0 || next < 0 {
		r.video = nil
		r.playingIndex = noIndex
		r.setPlayback(false, r.timestamp, now)
		return nil
	}
	return r.start(next, now)
}

// promote changes target's role. Only admins may promote.
func (r *room) promote(actor, target, role string) bool {
	if r.roles[actor] != protocol.RoleAdmin {
		return false
	}
	switch role {
	case protocol.RoleAdmin, protocol.RoleModerator, protocol.RoleUser:
	default:
		return false
	}
	r.roles[target] = role
	return true
}

// togglePermanent flips the permanent flag. Only admins may change it.
func (r *room) togglePermanent(actor string) bool {
	if r.roles[actor] != protocol.RoleAdmin {
		return false
	}
	r.permanent = !r.permanent
	return true
}

// idle reports whether the room has been empty for longer than ttl.
func (r *room) idle(now time.Time, ttl time.Duration) bool {
	if r.permanent || len(r.clients) > 0 || r.emptySince.IsZero() {
		return false
	}
	return now.Sub(r.emptySince) > ttl
}

// summary is one entry of GET /api/rooms.
type summary struct {
	ID           string  `json:"id"`
	ActiveUsers  int     `json:"active_users"`
	CurrentVideo *string `json:"current_video"`
	QueueSize    int     `json:"queue_size"`
}

func (r *room) listed() bool {
	return len(r.clients) > 0 || r.video != nil || len(r.queue) > 0
}

func (r *room) summary() summary {
	s := summary{ID: r.id, ActiveUsers: len(r.clients), QueueSize: len(r.queue)}
	if r.video != nil && r.video.Title != "" {
		title := r.video.Title
		s.CurrentVideo = &title
	}
	return s
}
