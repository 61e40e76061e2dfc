package ui

import (
	"errors"
	"strings"
	"testing"

	"github.com/BioHazard786/watchsync/internal/protocol"
	"github.com/BioHazard786/watchsync/internal/room"
	tea "github.com/charmbracelet/bubbletea"
)

type fakeController struct {
	calls []string
	err   error
}

func (f *fakeController) record(call string) error {
	f.calls = append(f.calls, call)
	return f.err
}

func (f *fakeController) TogglePlay() error               { return f.record("toggle") }
func (f *fakeController) SeekBy(delta float64) error      { return f.record("seek") }
func (f *fakeController) VideoEnded() error               { return f.record("ended") }
func (f *fakeController) QueuePlay(index int) error       { return f.record("play") }
func (f *fakeController) QueueRemove(index int) error     { return f.record("remove") }
func (f *fakeController) QueuePin(index int) error        { return f.record("pin") }
func (f *fakeController) QueueReorder(from, to int) error { return f.record("reorder") }
func (f *fakeController) TogglePermanent() error          { return f.record("permanent") }
func (f *fakeController) Reconnect()                      { f.record("reconnect") }

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// press sends key to the model and runs the resulting command, if any.
func press(t *testing.T, m *dashboardModel, key tea.KeyMsg) tea.Msg {
	t.Helper()
	_, cmd := m.Update(key)
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if res, ok := msg.(actionResultMsg); ok {
		m.Update(res)
	}
	return msg
}

func newTestDashboard(ctrl Controller, st room.State) *Dashboard {
	d := NewDashboard("movie-night", "https://watch.test/room/movie-night", ctrl, nil)
	d.SetRoomState(st)
	return d
}

func testState() room.State {
	return room.State{
		Room: "movie-night",
		Queue: []protocol.VideoData{
			{OriginalURL: "https://a.test/1.mp4", Title: "First"},
			{OriginalURL: "https://a.test/2.mp4", Title: "Second"},
		},
		PlayingIndex: room.NoIndex,
		CurrentUser:  "ana",
		Roles:        map[string]string{"ana": protocol.RoleUser},
	}
}

func TestDashboardPlaybackKeys(t *testing.T) {
	ctrl := &fakeController{}
	m := newTestDashboard(ctrl, testState()).model

	press(t, m, tea.KeyMsg{Type: tea.KeySpace})
	press(t, m, tea.KeyMsg{Type: tea.KeyLeft})
	press(t, m, runes("l"))
	press(t, m, runes("n"))
	press(t, m, runes("r"))

	want := []string{"toggle", "seek", "seek", "ended", "reconnect"}
	if strings.Join(ctrl.calls, ",") != strings.Join(want, ",") {
		t.Errorf("calls = %v, want %v", ctrl.calls, want)
	}
}

func TestDashboardQueueKeysNeedSelection(t *testing.T) {
	ctrl := &fakeController{}
	m := newTestDashboard(ctrl, testState()).model

	press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	press(t, m, runes("d"))
	if len(ctrl.calls) != 0 {
		t.Fatalf("queue actions without a selection: %v", ctrl.calls)
	}

	press(t, m, tea.KeyMsg{Type: tea.KeyDown})
	press(t, m, tea.KeyMsg{Type: tea.KeyDown})
	press(t, m, tea.KeyMsg{Type: tea.KeyDown})
	if m.selected != 1 {
		t.Fatalf("selected = %d, want 1", m.selected)
	}

	press(t, m, runes("K"))
	if m.selected != 0 {
		t.Errorf("selected after move up = %d, want 0", m.selected)
	}
	press(t, m, runes("p"))
	press(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	want := []string{"reorder", "pin", "play"}
	if strings.Join(ctrl.calls, ",") != strings.Join(want, ",") {
		t.Errorf("calls = %v, want %v", ctrl.calls, want)
	}
}

func TestDashboardPermanentNeedsModerator(t *testing.T) {
	ctrl := &fakeController{}
	d := newTestDashboard(ctrl, testState())

	press(t, d.model, runes("P"))
	if len(ctrl.calls) != 0 {
		t.Fatalf("plain user toggled permanent: %v", ctrl.calls)
	}

	st := testState()
	st.Roles["ana"] = protocol.RoleAdmin
	d.SetRoomState(st)
	press(t, d.model, runes("P"))
	if len(ctrl.calls) != 1 || ctrl.calls[0] != "permanent" {
		t.Errorf("calls = %v, want [permanent]", ctrl.calls)
	}
}

func TestDashboardShowsActionError(t *testing.T) {
	ctrl := &fakeController{err: errors.New("not connected to room")}
	m := newTestDashboard(ctrl, testState()).model

	press(t, m, tea.KeyMsg{Type: tea.KeySpace})
	if !strings.Contains(m.View(), "play/pause: not connected to room") {
		t.Errorf("view does not show the action error:\n%s", m.View())
	}
}

func TestDashboardSelectionFollowsQueue(t *testing.T) {
	d := newTestDashboard(&fakeController{}, testState())
	d.model.selected = 1

	st := testState()
	st.Queue = st.Queue[:1]
	d.SetRoomState(st)
	d.model.Update(refreshMsg{})

	if d.model.selected != 0 {
		t.Errorf("selected = %d, want 0", d.model.selected)
	}
}

func TestDashboardView(t *testing.T) {
	st := testState()
	st.Video = &protocol.VideoData{OriginalURL: "https://a.test/1.mp4", Title: "First", AddedBy: "ana"}
	st.PlayingIndex = 0
	st.Members = []protocol.Member{{Email: "ana"}, {Email: "ben"}}
	st.Stale = true

	d := newTestDashboard(&fakeController{}, st)
	view := d.model.View()

	for _, want := range []string{"movie-night", "First", "added by ana", "Second", "ben", "saved state"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
	if strings.Contains(view, "P permanent") {
		t.Error("plain user sees the permanent key")
	}
}
