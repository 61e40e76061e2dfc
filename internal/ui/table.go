package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/BioHazard786/watchsync/internal/protocol"
	"github.com/BioHazard786/watchsync/internal/room"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	prettytable "github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// QueueTable renders the room queue using lipgloss/table
type QueueTable struct {
	queue    []protocol.VideoData
	playing  int
	selected int
}

// NewQueueTable creates a queue table. selected is the highlighted row, or
// -1 for none.
func NewQueueTable(queue []protocol.VideoData, playing, selected int) *QueueTable {
	return &QueueTable{queue: queue, playing: playing, selected: selected}
}

// View renders the table as a string
func (t *QueueTable) View() string {
	if len(t.queue) == 0 {
		return MutedStyle.Render("Queue is empty")
	}

	var rows [][]string
	for i, v := range t.queue {
		marker := " "
		switch {
		case i == t.playing:
			marker = IconPlay
		case v.Pinned:
			marker = IconPin
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", i+1),
			marker,
			truncateString(v.DisplayTitle(), 48),
			truncateString(v.AddedBy, 20),
		})
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers("#", "", "Video", "Added by").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row == t.selected:
				return TableSelectedStyle
			case row == t.playing:
				return TablePlayingStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})

	return tbl.Render()
}

// MembersView lists members with their role.
func MembersView(st room.State) string {
	if len(st.Members) == 0 {
		return MutedStyle.Render("Nobody here yet")
	}

	names := make([]string, 0, len(st.Members))
	for _, m := range st.Members {
		name := m.Email
		if role := st.Role(m.Email); role != "" && role != protocol.RoleUser {
			name += MutedStyle.Render(" (" + role + ")")
		}
		if m.Email == st.CurrentUser {
			name = BoldStyle.Render(m.Email) + strings.TrimPrefix(name, m.Email)
		}
		names = append(names, name)
	}
	return fmt.Sprintf("%s %s", IconPeer, strings.Join(names, ", "))
}

type RoomInfo struct {
	RoomID   string
	RoomLink string
}

func NewRoomInfo(roomID, roomLink string) *RoomInfo {
	return &RoomInfo{
		RoomID:   roomID,
		RoomLink: roomLink,
	}
}

func (r *RoomInfo) View() string {
	content := fmt.Sprintf("%s Room ID:    %s\n%s Room Link:  %s",
		IconCopy, BoldStyle.Foreground(Primary).Render(r.RoomID),
		IconWeb, MutedStyle.Render(r.RoomLink),
	)
	return InfoBoxStyle.Render(content)
}

// RoomListing is one row of the active room table.
type RoomListing struct {
	ID           string
	ActiveUsers  int
	CurrentVideo string
	QueueSize    int
}

// RenderRooms writes the active room table using go-pretty.
func RenderRooms(w io.Writer, rooms []RoomListing) {
	tw := prettytable.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(prettytable.StyleRounded)
	tw.Style().Color.Header = text.Colors{text.FgHiMagenta, text.Bold}
	tw.SetTitle("%s Active Rooms", IconRoom)
	tw.AppendHeader(prettytable.Row{"Room", "Watching", "Now Playing", "Queued"})

	for _, r := range rooms {
		video := r.CurrentVideo
		if video == "" {
			video = "–"
		}
		tw.AppendRow(prettytable.Row{r.ID, r.ActiveUsers, truncateString(video, 40), r.QueueSize})
	}

	tw.SetColumnConfigs([]prettytable.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
	})
	tw.Render()
}
