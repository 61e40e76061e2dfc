package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/BioHazard786/watchsync/internal/config"
	"github.com/BioHazard786/watchsync/internal/ui"
	"github.com/BioHazard786/watchsync/internal/version"
	"github.com/spf13/cobra"
)

var (
	flagDomain         string
	flagUser           string
	flagInsecure       bool
	flagConfigFile     string
	flagCacheDir       string
	flagDriftThreshold float64
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "watchsync",
	Short: "Watch videos together from the terminal",
	Long: `watchsync joins shared watch rooms and keeps your playback in sync with
everyone else in the room. Play, pause, seek and queue changes made by any
member are applied for all of them, and the room queue can be managed from
the command line.`,
	Version: version.Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}

func configOptions() config.Options {
	return config.Options{
		Domain:         flagDomain,
		User:           flagUser,
		DriftThreshold: flagDriftThreshold,
		Insecure:       flagInsecure,
		CacheDir:       flagCacheDir,
		ConfigFile:     flagConfigFile,
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagDomain, "domain", "", "Room service domain")
	pf.StringVarP(&flagUser, "user", "u", "", "Name shown to other room members")
	pf.BoolVar(&flagInsecure, "insecure", false, "Use ws:// and http:// instead of TLS")
	pf.StringVar(&flagConfigFile, "config", "", "Config file (default $XDG_CONFIG_HOME/watchsync/config.yaml)")
	pf.StringVar(&flagCacheDir, "cache-dir", "", "Directory for room snapshots")
	pf.Float64Var(&flagDriftThreshold, "drift-threshold", 0, "Seconds of drift tolerated before seeking")
}
