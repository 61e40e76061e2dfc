package connection

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/BioHazard786/watchsync/internal/protocol"
	"github.com/BioHazard786/watchsync/internal/scheduler"
	"github.com/google/uuid"
)

// State is the lifecycle state of the room connection.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "disconnected"
	}
}

// Status is what callers see of the connection.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
	// StatusExhausted is terminal: no automatic reconnect follows.
	StatusExhausted
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusExhausted:
		return "disconnected (gave up)"
	default:
		return "disconnected"
	}
}

// Connected reports whether frames can currently be sent.
func (s Status) Connected() bool {
	return s == StatusConnected
}

// Handler receives connection events on the owner's loop.
type Handler interface {
	HandleOpen()
	HandleFrame(data []byte)
	HandleStatus(status Status)
}

// Options configures a Manager.
type Options struct {
	Endpoint      string
	ProbeInterval time.Duration
	Backoff       Backoff
}

// Manager owns the transport lifecycle: dialing, probing, and reconnecting
// with exponential backoff. All methods must be called from the goroutine
// that drains the scheduler's PostFunc; transport goroutines only post back.
type Manager struct {
	dialer  Dialer
	sched   *scheduler.Scheduler
	post    scheduler.PostFunc
	handler Handler
	opts    Options

	state      State
	status     Status
	attempts   int
	lastOpenAt time.Time

	gen        uint64
	link       *link
	cancelDial context.CancelFunc
	probe      *scheduler.Timer
	retry      *scheduler.Timer
}

// NewManager creates a manager. post must deliver callbacks to the same
// goroutine that calls the manager's methods.
func NewManager(dialer Dialer, sched *scheduler.Scheduler, post scheduler.PostFunc, handler Handler, opts Options) *Manager {
	if opts.ProbeInterval <= 0 {
		opts.ProbeInterval = DefaultProbeInterval
	}
	if opts.Backoff == (Backoff{}) {
		opts.Backoff = DefaultBackoff()
	}
	return &Manager{
		dialer:  dialer,
		sched:   sched,
		post:    post,
		handler: handler,
		opts:    opts,
	}
}

// Connect starts a fresh connection attempt, tearing down any existing
// transport first. It resets the attempt counter, so it also recovers from
// an exhausted state.
func (m *Manager) Connect() {
	m.attempts = 0
	m.dial()
}

// Disconnect closes the transport and cancels probes and pending reconnects.
func (m *Manager) Disconnect() {
	m.state = StateClosing
	m.teardown()
	m.retry.Stop()
	m.retry = nil
	m.state = StateDisconnected
	m.setStatus(StatusDisconnected)
}

// Send transmits a frame if the transport is open. Frames are never queued
// across reconnects; false means the frame was dropped.
func (m *Manager) Send(f protocol.Frame) bool {
	if m.state != StateOpen || m.link == nil {
		slog.Debug("dropping frame, connection not open", "type", f.Type, "state", m.state)
		return false
	}

	data, err := json.Marshal(f)
	if err != nil {
		slog.Warn("failed to encode frame", "type", f.Type, "error", err)
		return false
	}

	if !m.link.enqueue(data) {
		slog.Warn("dropping frame, write buffer full", "type", f.Type)
		return false
	}
	return true
}

// State returns the lifecycle state.
func (m *Manager) State() State { return m.state }

// Status returns the last status reported to the handler.
func (m *Manager) Status() Status { return m.status }

// Attempts returns the number of reconnects scheduled since the last open.
func (m *Manager) Attempts() int { return m.attempts }

// LastOpenAt returns when the transport last opened.
func (m *Manager) LastOpenAt() time.Time { return m.lastOpenAt }

// ReconnectPending reports whether a reconnect timer is armed.
func (m *Manager) ReconnectPending() bool { return m.retry.Active() }

func (m *Manager) dial() {
	m.teardown()
	m.retry.Stop()
	m.retry = nil

	m.gen++
	gen := m.gen
	m.state = StateConnecting
	if m.attempts == 0 {
		m.setStatus(StatusConnecting)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancelDial = cancel
	endpoint := m.opts.Endpoint

	slog.Debug("dialing room", "endpoint", endpoint, "attempt", m.attempts)

	go func() {
		conn, err := m.dialer.Dial(ctx, endpoint)
		m.post(func() { m.dialed(gen, conn, err) })
	}()
}

func (m *Manager) dialed(gen uint64, conn Conn, err error) {
	if gen != m.gen {
		// superseded by a newer attempt or a disconnect
		if conn != nil {
			conn.Close()
		}
		return
	}
	m.cancelDial = nil

	if err != nil {
		slog.Info("room connection failed", "error", err, "attempt", m.attempts)
		m.closed(gen)
		return
	}

	l := newLink(uuid.NewString(), gen, conn)
	m.link = l
	m.state = StateOpen
	m.attempts = 0
	m.lastOpenAt = m.sched.Clock().Now()
	m.retry.Stop()
	m.retry = nil

	onClose := func(err error) {
		m.post(func() {
			if m.link == l {
				slog.Info("room connection closed", "conn_id", l.id, "error", err)
				m.closed(gen)
			}
		})
	}
	go l.readPump(func(data []byte) {
		m.post(func() {
			if m.link == l {
				m.handler.HandleFrame(data)
			}
		})
	}, onClose)
	go l.writePump(onClose)

	slog.Info("room connection open", "conn_id", l.id, "endpoint", m.opts.Endpoint)

	m.setStatus(StatusConnected)
	m.handler.HandleOpen()

	m.sendProbe()
	m.probe = m.sched.Every(m.opts.ProbeInterval, m.sendProbe)
}

// closed handles any transport loss and decides whether to reconnect.
func (m *Manager) closed(gen uint64) {
	if gen != m.gen {
		return
	}
	m.teardown()
	m.state = StateDisconnected

	if m.opts.Backoff.Exhausted(m.attempts) {
		slog.Warn("giving up on room connection", "attempts", m.attempts)
		m.setStatus(StatusExhausted)
		return
	}

	delay := m.opts.Backoff.Delay(m.attempts)
	m.attempts++
	slog.Info("scheduling reconnect", "attempt", m.attempts, "delay", delay)

	m.setStatus(StatusReconnecting)
	m.retry = m.sched.After(delay, m.dial)
}

// teardown stops the probe and closes the current transport, if any.
func (m *Manager) teardown() {
	m.probe.Stop()
	m.probe = nil

	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
	if m.link != nil {
		m.link.close()
		m.link = nil
	}
	// invalidate callbacks still in flight for the old transport
	m.gen++
}

func (m *Manager) sendProbe() {
	now := float64(m.sched.Clock().Now().UnixMilli())
	f, err := protocol.NewFrame(protocol.TypePing, protocol.PingPayload{ClientTime: now})
	if err != nil {
		return
	}
	m.Send(f)
}

func (m *Manager) setStatus(s Status) {
	if m.status == s && s != StatusReconnecting {
		return
	}
	m.status = s
	m.handler.HandleStatus(s)
}
