package ui

import (
	"fmt"
	"math"
	"strings"

	"github.com/BioHazard786/watchsync/internal/connection"
)

// FormatPosition formats seconds as m:ss or h:mm:ss.
func FormatPosition(seconds float64) string {
	if math.IsNaN(seconds) || seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	hours := total / 3600
	minutes := (total / 60) % 60
	secs := total % 60

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%d:%02d", minutes, secs)
}

// FormatLatency formats a one-way latency estimate.
func FormatLatency(ms float64) string {
	if ms <= 0 {
		return "–"
	}
	if ms >= 1000 {
		return fmt.Sprintf("%.2fs", ms/1000)
	}
	return fmt.Sprintf("%.0fms", ms)
}

// StatusLabel renders a connection status badge.
func StatusLabel(s connection.Status) string {
	switch s {
	case connection.StatusConnected:
		return SuccessStyle.Render("● connected")
	case connection.StatusConnecting:
		return WarningStyle.Render("◌ connecting")
	case connection.StatusExhausted:
		return ErrorStyle.Render("✕ gave up, press r to retry")
	default:
		return MutedStyle.Render("○ " + s.String())
	}
}

// truncateString shortens s to maxLen runes, ending with an ellipsis.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 1 {
		return string(r[:maxLen])
	}
	return strings.TrimSpace(string(r[:maxLen-1])) + "…"
}
