package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/BioHazard786/watchsync/internal/config"
	"github.com/BioHazard786/watchsync/internal/connection"
	"github.com/BioHazard786/watchsync/internal/engine"
	"github.com/BioHazard786/watchsync/internal/playback"
	"github.com/BioHazard786/watchsync/internal/player"
	"github.com/BioHazard786/watchsync/internal/room"
	"github.com/BioHazard786/watchsync/internal/ui"
	"github.com/spf13/cobra"
)

var (
	flagHeadless       bool
	flagStatusInterval time.Duration
)

var joinCmd = &cobra.Command{
	Use:     "join [room-id|url]",
	Aliases: []string{"j"},
	Short:   "Join a watch room",
	Long: `Join a watch room and stay in sync with its members. Without a room id a
new room with a random name is created.

Examples:
  watchsync join
  watchsync join cozy-popcorn-rooftop-otter
  watchsync join https://watch.qzz.io/room/cozy-popcorn-rooftop-otter
  watchsync join movie-night --headless`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID := room.NewID()
		if len(args) == 1 {
			id, err := config.ParseRoomID(args[0])
			if err != nil {
				return err
			}
			roomID = id
		} else {
			ui.PrintSuccessf("Created room %s", roomID)
		}
		return joinRoom(cmd.Context(), roomID)
	},
}

func joinRoom(ctx context.Context, roomID string) error {
	cfg, err := LoadConfig(configOptions())
	if err != nil {
		return err
	}

	fmt.Println(ui.NewRoomInfo(roomID, cfg.GetRoomLink(roomID)).View())

	p := player.NewVirtual(nil)

	var dash *ui.Dashboard
	var observer engine.Observer
	if !flagHeadless {
		observer = engine.Observer{
			RoomState: func(st room.State) { dash.SetRoomState(st) },
			SyncInfo:  func(info playback.SyncInfo) { dash.SetSyncInfo(info) },
			Status:    func(s connection.Status) { dash.SetStatus(s) },
		}
	}

	s, err := NewSession(cfg, roomID, observer)
	if err != nil {
		return err
	}
	if !flagHeadless {
		dash = ui.NewDashboard(roomID, cfg.GetRoomLink(roomID), s.Engine, p.CurrentTime)
	}

	s.Start(ctx)
	defer s.Close()
	s.Engine.AttachPlayer(p)

	if err := s.WaitSynced(ctx); err != nil {
		return err
	}

	if flagHeadless {
		return printStatus(ctx, s, p)
	}

	go func() {
		select {
		case <-ctx.Done():
		case <-s.Engine.Done():
		}
		dash.Quit()
	}()
	return dash.Run()
}

// printStatus writes one status line per interval until ctx is done.
func printStatus(ctx context.Context, s *Session, p *player.Virtual) error {
	ui.PrintInfo("Press Ctrl+C to leave the room")

	interval := flagStatusInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastStatus connection.Status = -1
	for {
		st, info, status, err := s.Engine.Snapshot(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if status != lastStatus {
			fmt.Println(ui.StatusLabel(status))
			lastStatus = status
		}
		fmt.Println(statusLine(st, info, p.Status()))

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func statusLine(st room.State, info playback.SyncInfo, ps player.Status) string {
	title := "nothing playing"
	if st.Video != nil {
		title = st.Video.DisplayTitle()
	}
	icon := ui.IconPause
	if ps.Playing {
		icon = ui.IconPlay
	}
	return fmt.Sprintf("%s %s %s  %s %s  %s %d  %s %d",
		icon, ui.FormatPosition(ps.Position), title,
		ui.IconLatency, ui.FormatLatency(info.LatencyMs),
		ui.IconQueue, len(st.Queue),
		ui.IconPeer, len(st.Members),
	)
}

func init() {
	rootCmd.AddCommand(joinCmd)

	joinCmd.Flags().BoolVar(&flagHeadless, "headless", false, "Print status lines instead of the interactive view")
	joinCmd.Flags().DurationVar(&flagStatusInterval, "interval", 5*time.Second, "Status line interval in headless mode")
}
