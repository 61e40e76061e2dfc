package cmd

import (
	"context"
	"os"

	"github.com/BioHazard786/watchsync/internal/api"
	"github.com/BioHazard786/watchsync/internal/engine"
	"github.com/BioHazard786/watchsync/internal/ui"
	"github.com/spf13/cobra"
)

var roomsCmd = &cobra.Command{
	Use:     "rooms",
	Aliases: []string{"ls"},
	Short:   "List active rooms",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listRooms(cmd.Context())
	},
}

func listRooms(ctx context.Context) error {
	cfg, err := LoadConfig(configOptions())
	if err != nil {
		return err
	}

	stopSpinner := ui.RunConnectionSpinner("Fetching rooms...")
	rooms, err := api.NewClient(cfg.APIBaseURL(), cfg.User).Rooms(ctx)
	stopSpinner()
	if err != nil {
		return engine.NewError("list rooms", err)
	}

	if len(rooms) == 0 {
		ui.PrintInfo("No active rooms")
		return nil
	}

	listing := make([]ui.RoomListing, 0, len(rooms))
	for _, r := range rooms {
		listing = append(listing, ui.RoomListing{
			ID:           r.ID,
			ActiveUsers:  r.ActiveUsers,
			CurrentVideo: r.CurrentVideo,
			QueueSize:    r.QueueSize,
		})
	}
	ui.RenderRooms(os.Stdout, listing)
	return nil
}

func init() {
	rootCmd.AddCommand(roomsCmd)
}
