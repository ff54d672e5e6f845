// Package logger builds the process-wide slog logger.
package logger

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
)

// messager describes an error that can report its own message without the
// chain, as zerr errors do.
type messager interface {
	Message() string
}

// Options selects the handler and level
type Options struct {
	// Format is "text" or "json"
	Format string

	// Level is debug, info, warn or error
	Level string

	// Verbose forces debug level
	Verbose bool

	// Output defaults to os.Stderr
	Output io.Writer
}

// New creates a logger for opts
func New(opts Options) *slog.Logger {
	w := opts.Output
	if w == nil {
		w = os.Stderr
	}

	level := ParseLevel(opts.Level)
	if opts.Verbose {
		level = slog.LevelDebug
	}

	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(opts.Format, "json") {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}

	return slog.New(handler)
}

// ParseLevel maps a level name to a slog level, defaulting to info
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
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

// FormatError renders an error chain for a terminal:
//
//	Error: <outermost message>
//
//	  Caused by:
//	    → <cause>
func FormatError(err error) string {
	if err == nil {
		return ""
	}

	// Collect messages by traversing the error chain
	var messages []string
	current := err

	for current != nil {
		m, ok := current.(messager)
		if !ok {
			messages = append(messages, current.Error())
			break
		}

		// zerr.With leaves an empty message on the wrapper it adds
		if msg := m.Message(); msg != "" {
			messages = append(messages, msg)
		}

		current = errors.Unwrap(current)
	}

	var lines []string
	for i, msg := range messages {
		if i == 0 {
			lines = append(lines, "Error: "+msg)
			continue
		}

		if i == 1 {
			lines = append(lines, "", "  Caused by:")
		}

		lines = append(lines, "    → "+msg)
	}

	return strings.Join(lines, "\n")
}
