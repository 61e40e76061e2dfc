// Package roomserver is a small room server speaking the watch-together
// protocol. It keeps all rooms in memory and is meant for local runs and
// integration tests.
package roomserver

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/BioHazard786/watchsync/internal/protocol"
	"github.com/jonboulle/clockwork"
)

const (
	DefaultHeartbeatInterval = 5 * time.Second
	DefaultCleanupInterval   = time.Minute
	DefaultRoomTTL           = 5 * time.Minute
)

type inbound struct {
	client *Client
	frame  protocol.Frame
}

// Hub owns every room. All room state is touched only by the Run goroutine.
type Hub struct {
	clock clockwork.Clock
	rooms map[string]*room

	register   chan *Client
	unregister chan *Client
	inbound    chan inbound
	requests   chan func()
	done       chan struct{}

	HeartbeatInterval time.Duration
	CleanupInterval   time.Duration
	RoomTTL           time.Duration
}

// NewHub creates a hub. A nil clock uses the real clock.
func NewHub(clock clockwork.Clock) *Hub {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Hub{
		clock:             clock,
		rooms:             make(map[string]*room),
		register:          make(chan *Client),
		unregister:        make(chan *Client),
		inbound:           make(chan inbound),
		requests:          make(chan func()),
		done:              make(chan struct{}),
		HeartbeatInterval: DefaultHeartbeatInterval,
		CleanupInterval:   DefaultCleanupInterval,
		RoomTTL:           DefaultRoomTTL,
	}
}

// Run processes joins, leaves and frames until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	heartbeat := h.clock.NewTicker(h.HeartbeatInterval)
	cleanup := h.clock.NewTicker(h.CleanupInterval)
	defer func() {
		heartbeat.Stop()
		cleanup.Stop()
		h.shutdown()
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.handleJoin(c)

		case c := <-h.unregister:
			h.handleLeave(c)

		case in := <-h.inbound:
			h.handleFrame(in.client, in.frame)

		case fn := <-h.requests:
			fn()

		case <-heartbeat.Chan():
			h.sendHeartbeats()

		case <-cleanup.Chan():
			h.cleanupRooms()
		}
	}
}

func (h *Hub) shutdown() {
	close(h.done)
	for _, r := range h.rooms {
		for c := range r.clients {
			close(c.send)
		}
		clear(r.clients)
	}
}

// join hands a new client to the hub. It reports false once the hub stopped.
func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) submit(c *Client, f protocol.Frame) bool {
	select {
	case h.inbound <- inbound{client: c, frame: f}:
		return true
	case <-h.done:
		return false
	}
}

// do runs fn on the hub goroutine and waits for it.
func (h *Hub) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	select {
	case h.requests <- func() { fn(); close(finished) }:
	case <-h.done:
		return context.Canceled
	case <-ctx.Done():
		return ctx.Err()
	}
	<-finished
	return nil
}

// Rooms lists rooms that have members, a current video or a queue.
func (h *Hub) Rooms(ctx context.Context) ([]summary, error) {
	var out []summary
	err := h.do(ctx, func() {
		out = []summary{}
		for _, r := range h.rooms {
			if r.listed() {
				out = append(out, r.summary())
			}
		}
	})
	slices.SortFunc(out, func(a, b summary) int { return strings.Compare(a.ID, b.ID) })
	return out, err
}

func (h *Hub) handleJoin(c *Client) {
	now := h.clock.Now()
	r, ok := h.rooms[c.RoomID]
	if !ok {
		r = newRoom(c.RoomID, now)
		h.rooms[c.RoomID] = r
		slog.Info("Room created", "room", r.id)
	}

	r.join(c.User)
	r.clients[c] = struct{}{}
	slog.Info("Client joined", "room", r.id, "user", c.User, "client", c.ID, "role", r.roles[c.User])

	sync := r.syncPayload(now)
	user := c.User
	sync.YourEmail = &user
	h.send(c, protocol.TypeSync, sync)

	members := r.members()
	h.broadcast(r, nil, protocol.TypeUserJoined, protocol.MembersPayload{Email: c.User, Members: &members})
}

func (h *Hub) handleLeave(c *Client) {
	r, ok := h.rooms[c.RoomID]
	if !ok {
		return
	}
	if _, ok := r.clients[c]; !ok {
		return
	}

	delete(r.clients, c)
	close(c.send)
	slog.Info("Client left", "room", r.id, "user", c.User, "client", c.ID)

	if len(r.clients) == 0 {
		r.emptySince = h.clock.Now()
		return
	}
	members := r.members()
	h.broadcast(r, nil, protocol.TypeUserLeft, protocol.MembersPayload{Members: &members})
}

func (h *Hub) sendHeartbeats() {
	now := h.clock.Now()
	playing := true
	for _, r := range h.rooms {
		if !r.playing || len(r.clients) == 0 {
			continue
		}
		ts := r.position(now)
		h.broadcast(r, nil, protocol.TypeHeartbeat, protocol.HeartbeatPayload{
			Timestamp:  &ts,
			ServerTime: float64(now.UnixMilli()),
			IsPlaying:  &playing,
		})
	}
}

func (h *Hub) cleanupRooms() {
	now := h.clock.Now()
	for id, r := range h.rooms {
		if r.idle(now, h.RoomTTL) {
			delete(h.rooms, id)
			slog.Info("Cleaned up stale room", "room", id)
		}
	}
}

// send queues a frame for one client. Frames to a client whose buffer is
// full are dropped.
func (h *Hub) send(c *Client, typ string, payload any) {
	f, err := protocol.NewFrame(typ, payload)
	if err != nil {
		slog.Error("Failed to build frame", "type", typ, "error", err)
		return
	}
	h.deliver(c, f)
}

func (h *Hub) deliver(c *Client, f protocol.Frame) {
	select {
	case c.send <- f:
	default:
		slog.Warn("Send buffer full, dropping frame", "client", c.ID, "type", f.Type)
	}
}

// broadcast sends to every client in r except exclude.
func (h *Hub) broadcast(r *room, exclude *Client, typ string, payload any) {
	f, err := protocol.NewFrame(typ, payload)
	if err != nil {
		slog.Error("Failed to build frame", "type", typ, "error", err)
		return
	}
	for c := range r.clients {
		if c != exclude {
			h.deliver(c, f)
		}
	}
}
