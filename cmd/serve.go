package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/BioHazard786/watchsync/internal/roomserver"
	"github.com/BioHazard786/watchsync/internal/ui"
	"github.com/spf13/cobra"
)

var (
	flagListen  string
	flagRoomTTL time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a local room server",
	Long: `Run an in-memory room server for local watch parties and testing. Clients
connect with --domain localhost:8000.

Examples:
  watchsync serve
  watchsync serve --listen :9000 --room-ttl 1h`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func serve(ctx context.Context) error {
	opts := configOptions()
	opts.Listen = flagListen
	cfg, err := LoadConfig(opts)
	if err != nil {
		return err
	}

	hub := roomserver.NewHub(nil)
	if flagRoomTTL > 0 {
		hub.RoomTTL = flagRoomTTL
	}

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           roomserver.NewHandler(hub),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()

	ui.PrintSuccessf("Room server listening on %s", cfg.Listen)
	slog.Info("room server started", "addr", cfg.Listen, "room_ttl", hub.RoomTTL)

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stopHub()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	ui.PrintInfo("Room server stopped")
	return nil
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&flagListen, "listen", "l", "", "Address to listen on (default :8000)")
	serveCmd.Flags().DurationVar(&flagRoomTTL, "room-ttl", 0, "How long an empty room is kept (default 5m)")
}
