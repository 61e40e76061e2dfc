package main

import (
	"errors"
	"io/fs"
	"log/slog"

	"github.com/BioHazard786/watchsync/cmd"
	"github.com/BioHazard786/watchsync/internal/logging"
	"github.com/joho/godotenv"
)

func main() {
	// .env is optional; a missing file is not worth a warning
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to load .env file", "error", err)
	}

	closeLog, err := logging.Init()
	if err != nil {
		slog.Warn("failed to open log file", "error", err)
	}
	if closeLog != nil {
		defer closeLog()
	}

	cmd.Execute()
}
