package engine

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BioHazard786/watchsync/internal/protocol"
	"github.com/BioHazard786/watchsync/internal/room"
	"github.com/jonboulle/clockwork"
)

// gatedResolver blocks each resolution until the test releases it.
type gatedResolver struct {
	mu    sync.Mutex
	gates map[string]chan struct{}
	calls []string
}

func newGatedResolver() *gatedResolver {
	return &gatedResolver{gates: make(map[string]chan struct{})}
}

func (r *gatedResolver) gate(url string) chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.gates[url]
	if !ok {
		g = make(chan struct{})
		r.gates[url] = g
	}
	return g
}

func (r *gatedResolver) Resolve(ctx context.Context, url string) (*protocol.VideoData, error) {
	r.mu.Lock()
	r.calls = append(r.calls, url)
	r.mu.Unlock()

	select {
	case <-r.gate(url):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if url == "https://fail.example/x" {
		return nil, errors.New("resolver unavailable")
	}
	return &protocol.VideoData{OriginalURL: url, StreamURL: url + "/stream.m3u8", Title: "resolved " + url}, nil
}

func (r *gatedResolver) release(url string) {
	close(r.gate(url))
}

type loopPlayer struct {
	position float64
	playing  bool
	seeks    []float64
	loaded   []string
}

func (p *loopPlayer) Play() error  { p.playing = true; return nil }
func (p *loopPlayer) Pause() error { p.playing = false; return nil }
func (p *loopPlayer) Seek(pos float64) error {
	p.position = pos
	p.seeks = append(p.seeks, pos)
	return nil
}
func (p *loopPlayer) CurrentTime() float64             { return p.position }
func (p *loopPlayer) SetPlaybackRate(float64) error    { return nil }
func (p *loopPlayer) Load(v *protocol.VideoData) error { p.loaded = append(p.loaded, v.StreamURL); return nil }

func newLoopEngine(t *testing.T, guard bool, resolver Resolver) (*Engine, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.UnixMilli(1120))
	opts := DefaultOptions("abc", "ws://room.test/ws/abc")
	opts.Clock = clock
	opts.GuardStaleResolutions = guard
	if resolver != nil {
		opts.Resolver = resolver
	}
	e, err := New(opts, Observer{})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e, clock
}

// step runs the next posted event, as the engine loop would.
func step(t *testing.T, e *Engine) {
	t.Helper()
	select {
	case fn := <-e.events:
		fn()
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for an engine event")
	}
}

func frame(t *testing.T, typ string, payload any) []byte {
	t.Helper()
	f, err := protocol.NewFrame(typ, payload)
	if err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(f)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestPongUpdatesLatency(t *testing.T) {
	e, _ := newLoopEngine(t, true, nil)

	// probe sent at 1000, echo arrives at 1120
	e.HandleFrame([]byte(`{"type":"pong","payload":{"client_time":1000,"server_time":5000}}`))

	if got := e.latency.Estimate(); got != 60 {
		t.Fatalf("expected 60ms, got %v", got)
	}
	if got := e.sync.Info().LatencyMs; got != 60 {
		t.Errorf("observable latency not refreshed, got %v", got)
	}
}

func TestPongWithoutClockIgnored(t *testing.T) {
	e, _ := newLoopEngine(t, true, nil)
	e.HandleFrame([]byte(`{"type":"pong","payload":{"server_time":5000}}`))

	if e.latency.Samples() != 0 {
		t.Error("pong without client_time should not count")
	}
}

func TestQueueSurvivesPartialSync(t *testing.T) {
	e, _ := newLoopEngine(t, true, nil)

	e.HandleFrame([]byte(`{"type":"queue_update","payload":{"queue":[{"original_url":"A"},{"original_url":"B"}],"playing_index":1}}`))
	e.HandleFrame([]byte(`{"type":"sync","payload":{"is_playing":false,"timestamp":12}}`))

	st := e.store.State()
	if len(st.Queue) != 2 || st.Queue[0].OriginalURL != "A" || st.Queue[1].OriginalURL != "B" {
		t.Fatalf("queue lost: %+v", st.Queue)
	}
	if st.PlayingIndex != 1 {
		t.Errorf("expected playing index 1, got %d", st.PlayingIndex)
	}
	if st.Timestamp != 12 {
		t.Errorf("expected timestamp 12, got %v", st.Timestamp)
	}
}

func TestMalformedFramesDoNotStopDispatch(t *testing.T) {
	e, _ := newLoopEngine(t, true, nil)

	e.HandleFrame([]byte(`not json`))
	e.HandleFrame([]byte(`{"payload":{}}`))
	e.HandleFrame([]byte(`{"type":"roles_update","payload":"oops"}`))
	e.HandleFrame([]byte(`{"type":"set_video","payload":{"video_data":null}}`))
	e.HandleFrame([]byte(`{"type":"mystery","payload":{"x":1}}`))
	e.HandleFrame([]byte(`{"type":"roles_update","payload":{"roles":{"a@x":"admin"}}}`))

	if got := e.store.State().Roles["a@x"]; got != protocol.RoleAdmin {
		t.Fatalf("valid frame after bad ones was not applied, roles=%v", e.store.State().Roles)
	}
}

func TestMembershipAndSettings(t *testing.T) {
	e, _ := newLoopEngine(t, true, nil)

	e.HandleFrame([]byte(`{"type":"user_joined","payload":{"email":"b@x","members":[{"email":"a@x"},{"email":"b@x"}]}}`))
	e.HandleFrame([]byte(`{"type":"user_left","payload":{}}`))
	e.HandleFrame([]byte(`{"type":"room_settings_update","payload":{"permanent":true}}`))

	st := e.store.State()
	if len(st.Members) != 2 {
		t.Errorf("user_left without members should keep the list, got %+v", st.Members)
	}
	if !st.Permanent {
		t.Error("permanent flag not applied")
	}
}

func TestSetVideoRestartsPlayback(t *testing.T) {
	e, _ := newLoopEngine(t, true, nil)
	p := &loopPlayer{position: 50}
	e.sync.Attach(p)

	e.HandleFrame([]byte(`{"type":"set_video","payload":{"video_data":{"original_url":"https://v/new","stream_url":"https://cdn/new"}}}`))

	st := e.store.State()
	if st.Video.Identity() != "https://v/new" || !st.IsPlaying || st.Timestamp != 0 {
		t.Errorf("unexpected state: %+v", st)
	}
	info := e.sync.Info()
	if !info.IsPlaying || info.Timestamp != 0 {
		t.Errorf("sync info not reset: %+v", info)
	}
	if len(p.loaded) != 1 || p.loaded[0] != "https://cdn/new" || !p.playing {
		t.Errorf("player not switched: %+v", p)
	}
}

func TestLivePlayPause(t *testing.T) {
	live := `{"type":"sync","payload":{"video_data":{"original_url":"https://live/1","is_live":true},"is_playing":false,"timestamp":0}}`

	t.Run("zero timestamp never seeks", func(t *testing.T) {
		e, _ := newLoopEngine(t, true, nil)
		p := &loopPlayer{position: 300}
		e.HandleFrame([]byte(live))
		e.sync.Attach(p)
		p.position = 300
		p.seeks = nil

		e.HandleFrame([]byte(`{"type":"play","payload":{"timestamp":0}}`))
		e.HandleFrame([]byte(`{"type":"pause","payload":{"timestamp":0}}`))

		if len(p.seeks) != 0 {
			t.Errorf("live stream seeked: %v", p.seeks)
		}
	})

	t.Run("explicit timestamp seeks", func(t *testing.T) {
		e, _ := newLoopEngine(t, true, nil)
		e.HandleFrame([]byte(`{"type":"pong","payload":{"client_time":1000}}`))
		p := &loopPlayer{}
		e.HandleFrame([]byte(live))
		e.sync.Attach(p)
		p.seeks = nil

		e.HandleFrame([]byte(`{"type":"play","payload":{"timestamp":42}}`))
		if want := 42 + e.latency.Seconds(); len(p.seeks) != 1 || p.seeks[0] != want {
			t.Fatalf("expected seek to %v, got %v", want, p.seeks)
		}

		e.HandleFrame([]byte(`{"type":"pause","payload":{"timestamp":42}}`))
		if len(p.seeks) != 2 || p.seeks[1] != 42 {
			t.Errorf("expected pause seek to 42, got %v", p.seeks)
		}
		if got := e.store.State(); got.IsPlaying || got.Timestamp != 0 {
			t.Errorf("play/pause frames changed the room state: playing=%v ts=%v", got.IsPlaying, got.Timestamp)
		}
		if info := e.sync.Info(); info.IsPlaying || info.Timestamp != 42 {
			t.Errorf("sync info = %+v, want paused at 42", info)
		}
	})
}

func TestHeartbeatCorrectsDrift(t *testing.T) {
	e, _ := newLoopEngine(t, true, nil)
	p := &loopPlayer{position: 10}
	e.sync.Attach(p)

	e.HandleFrame([]byte(`{"type":"heartbeat","payload":{"timestamp":30,"server_time":1,"is_playing":true}}`))

	if len(p.seeks) != 1 || p.seeks[0] != 30 {
		t.Errorf("expected hard seek to 30, got %v", p.seeks)
	}
}

func TestSyncWithoutTimestampKeepsPosition(t *testing.T) {
	e, _ := newLoopEngine(t, true, nil)
	p := &loopPlayer{}
	e.sync.Attach(p)

	e.HandleFrame([]byte(`{"type":"sync","payload":{"video_data":{"original_url":"https://v/1"},"is_playing":true,"timestamp":10}}`))
	e.HandleFrame([]byte(`{"type":"heartbeat","payload":{"timestamp":100,"is_playing":true}}`))
	if p.position != 100 {
		t.Fatalf("expected heartbeat to move the player to 100, got %v", p.position)
	}
	seeks := len(p.seeks)

	e.HandleFrame([]byte(`{"type":"sync","payload":{"members":[{"email":"a@x"},{"email":"b@x"}]}}`))
	if p.position != 100 || len(p.seeks) != seeks {
		t.Errorf("sync without timestamp moved the player: position=%v seeks=%v", p.position, p.seeks)
	}
	if got := e.store.State(); len(got.Members) != 2 {
		t.Errorf("members not applied: %+v", got.Members)
	}

	e.HandleFrame([]byte(`{"type":"sync","payload":{"is_playing":false}}`))
	if p.playing || p.position != 100 || len(p.seeks) != seeks {
		t.Errorf("play state only sync: playing=%v position=%v seeks=%v", p.playing, p.position, p.seeks)
	}
	if info := e.sync.Info(); info.IsPlaying || info.Timestamp != 100 {
		t.Errorf("sync info = %+v, want paused at 100", info)
	}
}

func TestStaleResolutionDiscardedWhenGuarded(t *testing.T) {
	r := newGatedResolver()
	e, _ := newLoopEngine(t, true, r)

	e.HandleFrame(frame(t, protocol.TypeSetVideo, protocol.VideoPayload{VideoData: &protocol.VideoData{OriginalURL: "A"}}))
	e.HandleFrame(frame(t, protocol.TypeSetVideo, protocol.VideoPayload{VideoData: &protocol.VideoData{OriginalURL: "B"}}))

	r.release("B")
	step(t, e)
	r.release("A")
	step(t, e)

	v := e.store.State().Video
	if v.Identity() != "B" || v.StreamURL != "B/stream.m3u8" {
		t.Fatalf("expected resolved B to stay current, got %+v", v)
	}
}

func TestStaleResolutionAppliedWhenUnguarded(t *testing.T) {
	r := newGatedResolver()
	e, _ := newLoopEngine(t, false, r)

	e.HandleFrame(frame(t, protocol.TypeSetVideo, protocol.VideoPayload{VideoData: &protocol.VideoData{OriginalURL: "A"}}))
	e.HandleFrame(frame(t, protocol.TypeSetVideo, protocol.VideoPayload{VideoData: &protocol.VideoData{OriginalURL: "B"}}))

	r.release("B")
	step(t, e)
	r.release("A")
	step(t, e)

	if got := e.store.State().Video.Identity(); got != "A" {
		t.Fatalf("last writer should win without the guard, got %q", got)
	}
}

func TestResolutionFailureKeepsProvisional(t *testing.T) {
	r := newGatedResolver()
	e, _ := newLoopEngine(t, true, r)

	e.HandleFrame(frame(t, protocol.TypeSync, protocol.SyncPayload{VideoData: &protocol.VideoData{OriginalURL: "https://fail.example/x", Title: "provisional"}}))
	r.release("https://fail.example/x")
	step(t, e)

	if v := e.store.State().Video; v.Title != "provisional" {
		t.Fatalf("provisional data replaced: %+v", v)
	}
}

func TestResolvedVideoLoadsIntoPlayer(t *testing.T) {
	r := newGatedResolver()
	e, _ := newLoopEngine(t, true, r)
	p := &loopPlayer{}
	e.sync.Attach(p)

	e.HandleFrame(frame(t, protocol.TypeSetVideo, protocol.VideoPayload{VideoData: &protocol.VideoData{OriginalURL: "A"}}))
	r.release("A")
	step(t, e)

	if n := len(p.loaded); n != 2 || p.loaded[n-1] != "A/stream.m3u8" {
		t.Fatalf("expected provisional then resolved load, got %v", p.loaded)
	}
}

func TestSyncWithSameVideoDoesNotResolve(t *testing.T) {
	r := newGatedResolver()
	e, _ := newLoopEngine(t, true, r)

	sync := protocol.SyncPayload{VideoData: &protocol.VideoData{OriginalURL: "A"}}
	e.HandleFrame(frame(t, protocol.TypeSync, sync))
	e.HandleFrame(frame(t, protocol.TypeSync, sync))

	r.release("A")
	step(t, e)

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) != 1 {
		t.Errorf("expected one resolution, got %v", r.calls)
	}
}

func TestSnapshotRestoredAsStale(t *testing.T) {
	e, _ := newLoopEngine(t, true, nil)
	e.opts.SnapshotPath = t.TempDir() + "/rooms/abc.msgpack"

	st := room.NewStore("abc")
	q := []protocol.VideoData{{OriginalURL: "A"}}
	idx := 0
	st.SetQueue(&q, &idx)
	if err := room.SaveSnapshot(e.opts.SnapshotPath, st.State(), time.Now()); err != nil {
		t.Fatal(err)
	}

	e.restoreSnapshot()
	got := e.store.State()
	if !got.Stale || len(got.Queue) != 1 {
		t.Fatalf("snapshot not restored as stale: %+v", got)
	}

	e.HandleFrame([]byte(`{"type":"sync","payload":{"timestamp":1}}`))
	if e.store.State().Stale {
		t.Error("first sync should clear the stale flag")
	}
}
