// Package engine keeps a local player in step with a watch-together room.
//
// All engine work runs on one goroutine started by Run. Public methods may be
// called from any goroutine: they post closures to that loop.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/BioHazard786/watchsync/internal/connection"
	"github.com/BioHazard786/watchsync/internal/latency"
	"github.com/BioHazard786/watchsync/internal/playback"
	"github.com/BioHazard786/watchsync/internal/protocol"
	"github.com/BioHazard786/watchsync/internal/room"
	"github.com/BioHazard786/watchsync/internal/scheduler"
	"github.com/jonboulle/clockwork"
)

const (
	DefaultResolveTimeout = 30 * time.Second
	eventBuffer           = 256
)

// Resolver turns an original video URL into a playable descriptor.
type Resolver interface {
	Resolve(ctx context.Context, originalURL string) (*protocol.VideoData, error)
}

// Observer receives engine updates on the engine goroutine. Nil callbacks
// are skipped. Callbacks must not block.
type Observer struct {
	RoomState func(room.State)
	SyncInfo  func(playback.SyncInfo)
	Status    func(connection.Status)
}

// Options configures an Engine.
type Options struct {
	Room     string
	Identity string
	// Endpoint is the full websocket URL of the room.
	Endpoint string

	DriftThreshold float64
	ProbeInterval  time.Duration
	Backoff        connection.Backoff

	// GuardStaleResolutions drops resolver results for a video the room has
	// already moved away from. Disabling it restores last-writer-wins.
	GuardStaleResolutions bool
	ResolveTimeout        time.Duration

	// SnapshotPath, when set, is where the room state is restored from on
	// start and saved to on exit.
	SnapshotPath string

	Clock    clockwork.Clock
	Dialer   connection.Dialer
	Resolver Resolver
}

// DefaultOptions returns options with the documented defaults.
func DefaultOptions(roomID, endpoint string) Options {
	return Options{
		Room:                  roomID,
		Endpoint:              endpoint,
		DriftThreshold:        playback.DefaultDriftThreshold,
		ProbeInterval:         connection.DefaultProbeInterval,
		Backoff:               connection.DefaultBackoff(),
		GuardStaleResolutions: true,
		ResolveTimeout:        DefaultResolveTimeout,
	}
}

// Engine is the room synchronization engine.
type Engine struct {
	opts     Options
	observer Observer
	clock    clockwork.Clock

	events  chan func()
	done    chan struct{}
	running sync.Once

	sched   *scheduler.Scheduler
	latency *latency.Estimator
	store   *room.Store
	sync    *playback.Synchronizer
	conn    *connection.Manager

	ctx        context.Context
	status     connection.Status
	synced     chan struct{}
	syncedOnce sync.Once
}

// New creates an engine. It does not connect until Run is called.
func New(opts Options, observer Observer) (*Engine, error) {
	if opts.Room == "" {
		return nil, WrapError("start session", ErrRoomUnavailable, "room id is required")
	}
	if opts.Endpoint == "" {
		return nil, NewRoomError("start session", opts.Room, errors.New("endpoint is required"))
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Dialer == nil {
		opts.Dialer = &connection.WebsocketDialer{}
	}
	if opts.ResolveTimeout <= 0 {
		opts.ResolveTimeout = DefaultResolveTimeout
	}

	e := &Engine{
		opts:     opts,
		observer: observer,
		clock:    opts.Clock,
		events:   make(chan func(), eventBuffer),
		done:     make(chan struct{}),
		ctx:      context.Background(),
		synced:   make(chan struct{}),
	}

	e.sched = scheduler.New(opts.Clock, e.postAsync)
	e.latency = latency.New()
	e.store = room.NewStore(opts.Room)
	e.sync = playback.NewSynchronizer(e.latency, e.sched, opts.DriftThreshold)
	e.conn = connection.NewManager(opts.Dialer, e.sched, e.postAsync, e, connection.Options{
		Endpoint:      opts.Endpoint,
		ProbeInterval: opts.ProbeInterval,
		Backoff:       opts.Backoff,
	})

	if observer.RoomState != nil {
		e.store.Subscribe(observer.RoomState)
	}
	if observer.SyncInfo != nil {
		e.sync.Subscribe(observer.SyncInfo)
	}

	return e, nil
}

// Run connects and processes events until ctx is cancelled. On exit the
// transport is closed, timers are stopped and the room snapshot is saved.
func (e *Engine) Run(ctx context.Context) error {
	started := false
	e.running.Do(func() { started = true })
	if !started {
		return NewError("run engine", errors.New("already running"))
	}

	e.ctx = ctx
	e.restoreSnapshot()
	e.conn.Connect()

	for {
		select {
		case fn := <-e.events:
			fn()
		case <-ctx.Done():
			e.shutdown()
			return nil
		}
	}
}

// Done is closed once Run has returned.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// WaitSynced blocks until the first sync frame has been applied.
func (e *Engine) WaitSynced(ctx context.Context) error {
	select {
	case <-e.synced:
		return nil
	case <-e.done:
		return NewRoomError("join", e.opts.Room, ErrStopped)
	case <-ctx.Done():
		return NewRoomError("join", e.opts.Room, ErrTimeout)
	}
}

// Snapshot returns the room state, sync info and connection status as seen
// by the engine goroutine.
func (e *Engine) Snapshot(ctx context.Context) (room.State, playback.SyncInfo, connection.Status, error) {
	type result struct {
		state  room.State
		info   playback.SyncInfo
		status connection.Status
	}
	ch := make(chan result, 1)
	if !e.post(func() { ch <- result{e.store.State(), e.sync.Info(), e.status} }) {
		return room.State{}, playback.SyncInfo{}, connection.StatusDisconnected, ErrStopped
	}
	select {
	case r := <-ch:
		return r.state, r.info, r.status, nil
	case <-e.done:
		return room.State{}, playback.SyncInfo{}, connection.StatusDisconnected, ErrStopped
	case <-ctx.Done():
		return room.State{}, playback.SyncInfo{}, connection.StatusDisconnected, ctx.Err()
	}
}

// AttachPlayer hands the engine a player to drive. Passing nil detaches.
func (e *Engine) AttachPlayer(p playback.Player) {
	e.post(func() {
		if p == nil {
			e.sync.Detach()
			return
		}
		e.sync.SetVideo(e.store.State().Video)
		e.sync.Attach(p)
	})
}

// Reconnect starts a fresh connection, resetting the attempt counter. It is
// the way out of the exhausted state.
func (e *Engine) Reconnect() {
	e.post(e.conn.Connect)
}

// post queues fn on the engine goroutine. It reports false once the engine
// has stopped.
func (e *Engine) post(fn func()) bool {
	select {
	case <-e.done:
		return false
	default:
	}
	select {
	case e.events <- fn:
		return true
	case <-e.done:
		return false
	}
}

// postAsync is post for callers that cannot act on a stopped engine, such as
// timers and transport goroutines.
func (e *Engine) postAsync(fn func()) {
	e.post(fn)
}

func (e *Engine) shutdown() {
	e.conn.Disconnect()
	e.sync.Stop()
	e.sched.StopAll()
	e.saveSnapshot()
	close(e.done)
	slog.Debug("engine stopped", "room", e.opts.Room)
}

func (e *Engine) restoreSnapshot() {
	if e.opts.SnapshotPath == "" {
		return
	}
	st, savedAt, err := room.LoadSnapshot(e.opts.SnapshotPath)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("ignoring room snapshot", "path", e.opts.SnapshotPath, "error", err)
		}
		return
	}
	slog.Debug("restored room snapshot", "room", e.opts.Room, "saved_at", savedAt)
	e.store.Restore(st)
	e.sync.SetVideo(st.Video)
}

func (e *Engine) saveSnapshot() {
	if e.opts.SnapshotPath == "" {
		return
	}
	st := e.store.State()
	if st.Stale && st.Video == nil && len(st.Queue) == 0 {
		return
	}
	if err := room.SaveSnapshot(e.opts.SnapshotPath, st, e.clock.Now()); err != nil {
		slog.Warn("failed to save room snapshot", "path", e.opts.SnapshotPath, "error", err)
	}
}

// HandleOpen implements connection.Handler.
func (e *Engine) HandleOpen() {
	slog.Info("joined room", "room", e.opts.Room)
}

// HandleStatus implements connection.Handler.
func (e *Engine) HandleStatus(status connection.Status) {
	e.status = status
	if e.observer.Status != nil {
		e.observer.Status(status)
	}
}

func (e *Engine) markSynced() {
	e.syncedOnce.Do(func() { close(e.synced) })
}
