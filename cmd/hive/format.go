package main

import (
	"io"
	"os"
	"time"

	"github.com/zulandar/hive/internal/health"
	"github.com/zulandar/hive/internal/status"
	"golang.org/x/term"
)

const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiCyan   = "\033[36m"
	ansiGrey   = "\033[90m"
)

// isTerminal reports whether w is a terminal. Buffers and pipes are not.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func statusColor(s string) string {
	switch s {
	case status.StatusIdle, health.StatusHealthy:
		return ansiGreen
	case status.StatusBusy, health.StatusWarning:
		return ansiYellow
	case status.StatusWaiting:
		return ansiCyan
	case status.StatusOffline, health.StatusCritical:
		return ansiRed
	default:
		return ansiGrey
	}
}

// colorize wraps a status word in its colour when w is a terminal.
func colorize(w io.Writer, s string) string {
	if !isTerminal(w) {
		return s
	}
	return statusColor(s) + s + ansiReset
}

// formatAge renders how long ago t was, e.g. "3m ago".
func formatAge(now, t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := now.Sub(t)
	switch {
	case d < time.Second:
		return "just now"
	case d < time.Minute:
		return d.Truncate(time.Second).String() + " ago"
	case d < time.Hour:
		return d.Truncate(time.Minute).String() + " ago"
	default:
		return d.Truncate(time.Hour).String() + " ago"
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
