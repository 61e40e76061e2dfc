package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/BioHazard786/watchsync/internal/connection"
	"github.com/BioHazard786/watchsync/internal/playback"
	"github.com/BioHazard786/watchsync/internal/room"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

const (
	seekStep     = 10.0
	refreshEvery = 250 * time.Millisecond
	errorTTL     = 5 * time.Second
)

// Controller is the set of room actions the dashboard can trigger.
type Controller interface {
	TogglePlay() error
	SeekBy(delta float64) error
	VideoEnded() error
	QueuePlay(index int) error
	QueueRemove(index int) error
	QueuePin(index int) error
	QueueReorder(from, to int) error
	TogglePermanent() error
	Reconnect()
}

// Dashboard is the interactive room view. Engine observers feed it through
// SetRoomState, SetSyncInfo and SetStatus, which never block.
type Dashboard struct {
	model   *dashboardModel
	program *tea.Program
}

// refreshMsg tells the model that new engine data is waiting.
type refreshMsg struct{}

type tickMsg time.Time

type actionResultMsg struct {
	action string
	err    error
}

// dashboardModel is the bubbletea model behind Dashboard
type dashboardModel struct {
	roomID   string
	roomLink string
	ctrl     Controller
	position func() float64

	// latest engine data, written by observers
	mu      sync.Mutex
	state   room.State
	info    playback.SyncInfo
	status  connection.Status
	updates chan struct{}

	spinner  spinner.Model
	selected int
	lastErr  string
	errAt    time.Time
	quitting bool
}

// NewDashboard creates the dashboard. position reports the local player
// position and may be nil.
func NewDashboard(roomID, roomLink string, ctrl Controller, position func() float64) *Dashboard {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	m := &dashboardModel{
		roomID:   roomID,
		roomLink: roomLink,
		ctrl:     ctrl,
		position: position,
		updates:  make(chan struct{}, 1),
		spinner:  s,
		selected: -1,
	}
	return &Dashboard{model: m}
}

// Run shows the dashboard until the user quits.
func (d *Dashboard) Run() error {
	d.program = tea.NewProgram(d.model, tea.WithAltScreen())
	_, err := d.program.Run()
	return err
}

// Quit closes a running dashboard.
func (d *Dashboard) Quit() {
	if d.program != nil {
		d.program.Quit()
	}
}

func (d *Dashboard) SetRoomState(st room.State) {
	d.model.mu.Lock()
	d.model.state = st
	d.model.mu.Unlock()
	d.model.notify()
}

func (d *Dashboard) SetSyncInfo(info playback.SyncInfo) {
	d.model.mu.Lock()
	d.model.info = info
	d.model.mu.Unlock()
	d.model.notify()
}

func (d *Dashboard) SetStatus(s connection.Status) {
	d.model.mu.Lock()
	d.model.status = s
	d.model.mu.Unlock()
	d.model.notify()
}

func (m *dashboardModel) notify() {
	select {
	case m.updates <- struct{}{}:
	default:
	}
}

func (m *dashboardModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForUpdates(), tick())
}

func (m *dashboardModel) waitForUpdates() tea.Cmd {
	return func() tea.Msg {
		<-m.updates
		return refreshMsg{}
	}
}

func tick() tea.Cmd {
	return tea.Tick(refreshEvery, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// run calls an action off the render loop; engine actions block until the
// engine goroutine has handled them.
func (m *dashboardModel) run(action string, fn func() error) tea.Cmd {
	return func() tea.Msg {
		return actionResultMsg{action: action, err: fn()}
	}
}

func (m *dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m, m.handleKey(msg)

	case refreshMsg:
		m.mu.Lock()
		if n := len(m.state.Queue); m.selected >= n {
			m.selected = n - 1
		}
		m.mu.Unlock()
		return m, m.waitForUpdates()

	case tickMsg:
		if m.lastErr != "" && time.Since(m.errAt) > errorTTL {
			m.lastErr = ""
		}
		return m, tick()

	case actionResultMsg:
		if msg.err != nil {
			m.lastErr = fmt.Sprintf("%s: %v", msg.action, msg.err)
			m.errAt = time.Now()
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *dashboardModel) handleKey(msg tea.KeyMsg) tea.Cmd {
	m.mu.Lock()
	queueLen := len(m.state.Queue)
	canModerate := m.state.CanModerate()
	m.mu.Unlock()

	sel := m.selected
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return tea.Quit

	case " ", "k":
		return m.run("play/pause", m.ctrl.TogglePlay)
	case "left", "h":
		return m.run("seek", func() error { return m.ctrl.SeekBy(-seekStep) })
	case "right", "l":
		return m.run("seek", func() error { return m.ctrl.SeekBy(seekStep) })
	case "n":
		return m.run("next video", m.ctrl.VideoEnded)
	case "r":
		m.ctrl.Reconnect()
		return nil

	case "up":
		if queueLen > 0 {
			m.selected = max(sel-1, 0)
		}
	case "down":
		if queueLen > 0 {
			m.selected = min(sel+1, queueLen-1)
		}
	case "esc":
		m.selected = -1

	case "enter":
		if sel >= 0 {
			return m.run("play from queue", func() error { return m.ctrl.QueuePlay(sel) })
		}
	case "d", "delete":
		if sel >= 0 {
			return m.run("remove from queue", func() error { return m.ctrl.QueueRemove(sel) })
		}
	case "p":
		if sel >= 0 {
			return m.run("pin", func() error { return m.ctrl.QueuePin(sel) })
		}
	case "shift+up", "K":
		if sel > 0 {
			m.selected = sel - 1
			return m.run("reorder queue", func() error { return m.ctrl.QueueReorder(sel, sel-1) })
		}
	case "shift+down", "J":
		if sel >= 0 && sel < queueLen-1 {
			m.selected = sel + 1
			return m.run("reorder queue", func() error { return m.ctrl.QueueReorder(sel, sel+1) })
		}
	case "P":
		if canModerate {
			return m.run("toggle permanent", m.ctrl.TogglePermanent)
		}
	}
	return nil
}

func (m *dashboardModel) View() string {
	if m.quitting {
		return ""
	}

	m.mu.Lock()
	st := m.state
	info := m.info
	status := m.status
	m.mu.Unlock()

	var b strings.Builder

	header := fmt.Sprintf("%s watchsync  %s", IconTV, m.roomID)
	if st.Permanent {
		header += "  " + IconPin
	}
	b.WriteString(HeaderStyle.Render(header) + "  " + StatusLabel(status) + "\n")
	b.WriteString(MutedStyle.Render(IconLink+" "+m.roomLink) + "\n\n")

	b.WriteString(m.nowPlayingView(st, info) + "\n\n")
	b.WriteString(NewQueueTable(st.Queue, st.PlayingIndex, m.selected).View() + "\n\n")
	b.WriteString(MembersView(st) + "\n")

	if st.Stale {
		b.WriteString(WarningStyle.Render("Showing saved state until the room answers") + "\n")
	}
	if m.lastErr != "" {
		b.WriteString(ErrorStyle.Render(m.lastErr) + "\n")
	}

	keys := "space play/pause • ←/→ seek • n next • ↑/↓ select • enter play • d remove • p pin • J/K move"
	if st.CanModerate() {
		keys += " • P permanent"
	}
	keys += " • r reconnect • q quit"
	b.WriteString(FooterStyle.Render(keys))

	return b.String()
}

func (m *dashboardModel) nowPlayingView(st room.State, info playback.SyncInfo) string {
	if st.Video == nil {
		return MutedStyle.Render("Nothing playing. Add a video with `watchsync cast`.")
	}

	title := BoldStyle.Render(truncateString(st.Video.DisplayTitle(), 60))
	if st.Video.IsLive {
		title += " " + LiveStyle.Render("LIVE")
	}
	if st.Video.AddedBy != "" {
		title += MutedStyle.Render("  added by " + st.Video.AddedBy)
	}

	icon := IconPause
	if info.IsPlaying {
		icon = IconPlay
	}
	pos := info.Timestamp
	if m.position != nil {
		pos = m.position()
	}

	line := fmt.Sprintf("%s %s   %s %s", icon, FormatPosition(pos), IconLatency, FormatLatency(info.LatencyMs))
	if info.LastSync != "" {
		line += fmt.Sprintf("   %s synced %s", IconClock, info.LastSync)
	} else {
		line += "   " + m.spinner.View() + " waiting for sync"
	}
	return BoxStyle.Render(title + "\n" + line)
}
