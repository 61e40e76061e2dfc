package connection

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/BioHazard786/watchsync/internal/protocol"
	"github.com/BioHazard786/watchsync/internal/scheduler"
	"github.com/jonboulle/clockwork"
)

var errClosed = errors.New("closed")

type fakeConn struct {
	in      chan []byte
	written chan []byte
	closed  chan struct{}
	once    sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:      make(chan []byte, 16),
		written: make(chan []byte, 64),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case data := <-c.in:
		return data, nil
	case <-c.closed:
		return nil, errClosed
	}
}

func (c *fakeConn) WriteMessage(data []byte) error {
	select {
	case <-c.closed:
		return errClosed
	default:
	}
	c.written <- data
	return nil
}

func (c *fakeConn) Ping() error { return nil }

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// fakeDialer hands out queued connections; when none are queued it fails.
type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	dials int
}

func (d *fakeDialer) Dial(ctx context.Context, endpoint string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if len(d.conns) == 0 {
		return nil, errors.New("connection refused")
	}
	c := d.conns[0]
	d.conns = d.conns[1:]
	return c, nil
}

func (d *fakeDialer) queue(c *fakeConn) {
	d.mu.Lock()
	d.conns = append(d.conns, c)
	d.mu.Unlock()
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

type recorder struct {
	opens    int
	frames   [][]byte
	statuses []Status
}

func (r *recorder) HandleOpen()             { r.opens++ }
func (r *recorder) HandleFrame(data []byte) { r.frames = append(r.frames, data) }
func (r *recorder) HandleStatus(s Status)   { r.statuses = append(r.statuses, s) }
func (r *recorder) lastStatus() Status      { return r.statuses[len(r.statuses)-1] }

type harness struct {
	events  chan func()
	clock   *clockwork.FakeClock
	dialer  *fakeDialer
	rec     *recorder
	manager *Manager
}

func newHarness() *harness {
	h := &harness{
		events: make(chan func(), 256),
		clock:  clockwork.NewFakeClockAt(time.UnixMilli(1000)),
		dialer: &fakeDialer{},
		rec:    &recorder{},
	}
	post := func(fn func()) { h.events <- fn }
	sched := scheduler.New(h.clock, post)
	h.manager = NewManager(h.dialer, sched, post, h.rec, Options{Endpoint: "ws://room.test/ws/abc"})
	return h
}

// until runs posted callbacks on the test goroutine until cond holds.
func (h *harness) until(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for !cond() {
		select {
		case fn := <-h.events:
			fn()
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		}
	}
}

func (h *harness) settle() {
	for {
		select {
		case fn := <-h.events:
			fn()
		case <-time.After(50 * time.Millisecond):
			return
		}
	}
}

func readPing(t *testing.T, c *fakeConn) float64 {
	t.Helper()
	select {
	case data := <-c.written:
		var f protocol.Frame
		if err := json.Unmarshal(data, &f); err != nil {
			t.Fatalf("bad frame: %v", err)
		}
		if f.Type != protocol.TypePing {
			t.Fatalf("expected ping, got %s", f.Type)
		}
		var p protocol.PingPayload
		if err := f.DecodePayload(&p); err != nil {
			t.Fatalf("bad ping payload: %v", err)
		}
		return p.ClientTime
	case <-time.After(time.Second):
		t.Fatal("no ping written")
		return 0
	}
}

func TestReconnectDelaySequence(t *testing.T) {
	b := DefaultBackoff()
	for n := 0; n <= 20; n++ {
		want := time.Duration(math.Min(1000*math.Pow(1.5, float64(n)), 30000) * float64(time.Millisecond))
		if got := b.Delay(n); got != want {
			t.Errorf("attempt %d: expected %v, got %v", n, want, got)
		}
	}

	if b.Delay(0) != time.Second {
		t.Errorf("first delay should be 1s, got %v", b.Delay(0))
	}
	if b.Delay(4) != 5062500*time.Microsecond {
		t.Errorf("fifth delay should be 5.0625s, got %v", b.Delay(4))
	}
	if b.Delay(9) != 30*time.Second {
		t.Errorf("delay should be capped at 30s, got %v", b.Delay(9))
	}
}

func TestOpenResetsAttemptsAndProbes(t *testing.T) {
	h := newHarness()
	conn := newFakeConn()
	h.dialer.queue(conn)

	h.manager.Connect()
	h.until(t, "open", func() bool { return h.manager.State() == StateOpen })

	if h.rec.opens != 1 {
		t.Fatalf("expected one open, got %d", h.rec.opens)
	}
	if h.manager.Attempts() != 0 {
		t.Errorf("attempts should be 0 after open, got %d", h.manager.Attempts())
	}
	if h.rec.lastStatus() != StatusConnected {
		t.Errorf("expected connected status, got %v", h.rec.lastStatus())
	}

	// immediate probe carries the local clock
	if got := readPing(t, conn); got != 1000 {
		t.Errorf("expected client_time 1000, got %v", got)
	}

	h.clock.Advance(DefaultProbeInterval)
	h.settle()
	if got := readPing(t, conn); got != 6000 {
		t.Errorf("expected client_time 6000, got %v", got)
	}
}

func TestInboundFramesReachHandler(t *testing.T) {
	h := newHarness()
	conn := newFakeConn()
	h.dialer.queue(conn)

	h.manager.Connect()
	h.until(t, "open", func() bool { return h.manager.State() == StateOpen })

	conn.in <- []byte(`{"type":"heartbeat","payload":{"timestamp":3}}`)
	h.until(t, "frame", func() bool { return len(h.rec.frames) == 1 })
}

func TestSendDroppedWhenNotOpen(t *testing.T) {
	h := newHarness()
	f, _ := protocol.NewFrame(protocol.TypePlay, protocol.TimestampPayload{Timestamp: 3})

	if h.manager.Send(f) {
		t.Fatal("send should be dropped before connecting")
	}
}

func TestRemoteCloseSchedulesReconnect(t *testing.T) {
	h := newHarness()
	first := newFakeConn()
	second := newFakeConn()
	h.dialer.queue(first)
	h.dialer.queue(second)

	h.manager.Connect()
	h.until(t, "open", func() bool { return h.manager.State() == StateOpen })

	first.Close()
	h.until(t, "reconnect scheduled", func() bool { return h.manager.ReconnectPending() })

	if h.manager.Attempts() != 1 {
		t.Fatalf("expected 1 attempt, got %d", h.manager.Attempts())
	}
	if h.rec.lastStatus() != StatusReconnecting {
		t.Errorf("expected reconnecting status, got %v", h.rec.lastStatus())
	}

	h.clock.Advance(999 * time.Millisecond)
	h.settle()
	if h.dialer.count() != 1 {
		t.Fatalf("reconnected before the 1s delay")
	}

	h.clock.Advance(time.Millisecond)
	h.until(t, "reopen", func() bool { return h.manager.State() == StateOpen })

	if h.dialer.count() != 2 {
		t.Errorf("expected 2 dials, got %d", h.dialer.count())
	}
	if h.manager.Attempts() != 0 {
		t.Errorf("attempts should reset on open, got %d", h.manager.Attempts())
	}
	if h.manager.ReconnectPending() {
		t.Error("no reconnect should be pending after open")
	}
}

func TestGivesUpAfterMaxAttempts(t *testing.T) {
	h := newHarness()

	h.manager.Connect()
	for attempt := 1; attempt <= DefaultMaxReconnects; attempt++ {
		h.until(t, "reconnect scheduled", func() bool { return h.manager.Attempts() == attempt && h.manager.ReconnectPending() })
		h.clock.Advance(DefaultReconnectCap)
	}

	h.until(t, "exhaustion", func() bool { return h.manager.Status() == StatusExhausted })

	if h.dialer.count() != DefaultMaxReconnects+1 {
		t.Errorf("expected %d dials, got %d", DefaultMaxReconnects+1, h.dialer.count())
	}
	if h.manager.ReconnectPending() {
		t.Fatal("no reconnect may be scheduled after exhaustion")
	}

	h.clock.Advance(time.Hour)
	h.settle()
	if h.dialer.count() != DefaultMaxReconnects+1 {
		t.Errorf("dialed again after giving up")
	}

	// caller-initiated connect is the recovery path
	conn := newFakeConn()
	h.dialer.queue(conn)
	h.manager.Connect()
	h.until(t, "recovery", func() bool { return h.manager.State() == StateOpen })
}

func TestConnectTearsDownPriorTransport(t *testing.T) {
	h := newHarness()
	first := newFakeConn()
	second := newFakeConn()
	h.dialer.queue(first)
	h.dialer.queue(second)

	h.manager.Connect()
	h.until(t, "first open", func() bool { return h.rec.opens == 1 })

	h.manager.Connect()
	h.until(t, "second open", func() bool { return h.rec.opens == 2 })

	h.until(t, "first closed", first.isClosed)
	if second.isClosed() {
		t.Fatal("current transport must stay open")
	}

	// the old transport's close must not trigger a reconnect
	h.settle()
	if h.manager.ReconnectPending() || h.manager.State() != StateOpen {
		t.Errorf("stale close leaked into the live connection: state=%v", h.manager.State())
	}

	// frames from the live transport still flow
	before := len(h.rec.frames)
	second.in <- []byte(`{"type":"sync"}`)
	h.until(t, "frame", func() bool { return len(h.rec.frames) == before+1 })
}

func TestDisconnectStopsEverything(t *testing.T) {
	h := newHarness()
	conn := newFakeConn()
	h.dialer.queue(conn)

	h.manager.Connect()
	h.until(t, "open", func() bool { return h.manager.State() == StateOpen })
	readPing(t, conn)

	h.manager.Disconnect()
	h.until(t, "closed", conn.isClosed)

	h.clock.Advance(time.Minute)
	h.settle()

	if h.manager.ReconnectPending() {
		t.Error("disconnect must not schedule a reconnect")
	}
	if h.dialer.count() != 1 {
		t.Errorf("expected no redial, got %d dials", h.dialer.count())
	}
	if h.rec.lastStatus() != StatusDisconnected {
		t.Errorf("expected disconnected status, got %v", h.rec.lastStatus())
	}
	select {
	case <-conn.written:
		t.Error("probe sent after disconnect")
	default:
	}
}
