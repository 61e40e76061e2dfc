package cmd

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/BioHazard786/watchsync/internal/config"
	"github.com/BioHazard786/watchsync/internal/engine"
	"github.com/BioHazard786/watchsync/internal/media"
	"github.com/BioHazard786/watchsync/internal/protocol"
	"github.com/BioHazard786/watchsync/internal/ui"
	"github.com/spf13/cobra"
)

var flagCastNow bool

// confirmTimeout bounds how long cast waits to see its videos in the queue.
const confirmTimeout = 5 * time.Second

var castCmd = &cobra.Command{
	Use:     "cast <room-id|url> <video-url>...",
	Aliases: []string{"c"},
	Short:   "Add videos to a room's queue",
	Long: `Add one or more videos to a room's queue. With --now the first video
starts playing for everyone immediately and the rest are queued.

Examples:
  watchsync cast movie-night https://youtu.be/dQw4w9WgXcQ
  watchsync cast movie-night --now https://example.com/stream.m3u8
  watchsync cast https://watch.qzz.io/room/movie-night a.mp4 b.mp4`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID, err := config.ParseRoomID(args[0])
		if err != nil {
			return err
		}
		return castVideos(cmd.Context(), roomID, args[1:])
	},
}

func castVideos(ctx context.Context, roomID string, rawURLs []string) error {
	sources, err := media.ValidateURLs(rawURLs)
	if err != nil {
		return err
	}

	s, err := Connect(ctx, roomID, engine.Observer{})
	if err != nil {
		return err
	}
	defer s.Close()

	for i, src := range sources {
		if i == 0 && flagCastNow {
			if err := s.Engine.SetVideo(src.URL); err != nil {
				return err
			}
			ui.PrintSuccessf("Now playing %s", src.URL)
			continue
		}
		if err := s.Engine.QueueAdd(src.URL); err != nil {
			return err
		}
		ui.PrintSuccessf("Queued %s %s", src.URL, ui.MutedStyle.Render("("+string(src.Kind)+")"))
	}

	sp := ui.NewConnectionSpinner("Waiting for the room...")
	sp.Start()
	if err := waitForQueue(ctx, s, sources, sp); err != nil {
		sp.Error(fmt.Sprintf("The room has not confirmed every video yet: %v", err))
		return nil
	}
	sp.Success(fmt.Sprintf("Room %s has %d new video(s)", roomID, len(sources)))
	return nil
}

// waitForQueue polls the room state until every source shows up in the queue,
// reporting progress on sp.
func waitForQueue(ctx context.Context, s *Session, sources []media.Source, sp *ui.SimpleSpinner) error {
	ctx, cancel := context.WithTimeout(ctx, confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		st, _, _, err := s.Engine.Snapshot(ctx)
		if err != nil {
			return err
		}
		n := confirmed(st.Queue, sources)
		if n == len(sources) {
			return nil
		}
		sp.UpdateMessage(fmt.Sprintf("Waiting for the room... %d/%d queued", n, len(sources)))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// confirmed counts the sources present in the queue.
func confirmed(queue []protocol.VideoData, sources []media.Source) int {
	n := 0
	for _, src := range sources {
		found := slices.ContainsFunc(queue, func(v protocol.VideoData) bool {
			return v.OriginalURL == src.URL
		})
		if found {
			n++
		}
	}
	return n
}

func init() {
	rootCmd.AddCommand(castCmd)

	castCmd.Flags().BoolVarP(&flagCastNow, "now", "n", false, "Play the first video immediately")
}
