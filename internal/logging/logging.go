package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// Init installs the default logger. LOG_LEVEL picks the level and LOG_FILE,
// when set, sends logs to a file instead of stderr so they do not draw over
// the dashboard. The returned function closes the log file.
func Init() (func() error, error) {
	level := slog.LevelError // default: production only shows errors

	if l, ok := os.LookupEnv("LOG_LEVEL"); ok {
		switch l {
		case "dev", "development", "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn", "warning":
			level = slog.LevelWarn
		case "error", "production", "prod":
			level = slog.LevelError
		}
	}

	var out io.Writer = os.Stderr
	closer := func() error { return nil }

	if path := os.Getenv("LOG_FILE"); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return closer, fmt.Errorf("failed to open log file: %w", err)
		}
		out = f
		closer = f.Close
	}

	logger := slog.New(
		slog.NewTextHandler(out, &slog.HandlerOptions{
			Level: level,
		}),
	)
	slog.SetDefault(logger)
	return closer, nil
}
