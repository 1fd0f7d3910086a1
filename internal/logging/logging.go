// Package logging configures the process-wide slog logger. The server runs
// with JSON output; the CLI uses tint-colorized text when stderr is a
// terminal and plain text otherwise.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"
)

// Format selects the log output format.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Options configures Setup. A nil Output defaults to stderr.
type Options struct {
	Format Format
	Level  slog.Level
	Output io.Writer
}

// Setup builds a handler for the options and installs it as the slog
// default. The logger is also returned for callers that pass it explicitly.
func Setup(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	var handler slog.Handler
	switch opts.Format {
	case FormatText:
		handler = tint.NewHandler(out, &tint.Options{
			Level:      opts.Level,
			TimeFormat: time.TimeOnly,
			NoColor:    !isTerminal(out),
		})
	default:
		handler = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: opts.Level})
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// ParseLevel maps a config string onto a slog level. Unknown values fall
// back to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseFormat maps a config string onto a Format. Unknown values fall back
// to JSON.
func ParseFormat(s string) Format {
	if strings.EqualFold(s, string(FormatText)) {
		return FormatText
	}
	return FormatJSON
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
