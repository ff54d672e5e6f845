package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/zerr"
)

func TestNew_Text(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Format: "text", Level: "info", Output: &buf})

	log.Debug("hidden")
	log.Info("cache hit", slog.String("key", "abc"))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "msg=\"cache hit\"")
	assert.Contains(t, out, "key=abc")
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Format: "JSON", Level: "warn", Output: &buf})

	log.Info("hidden")
	log.Warn("old lock", slog.Int("pid", 42))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "old lock", entry["msg"])
	assert.Equal(t, float64(42), entry["pid"])
}

func TestNew_VerboseForcesDebug(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Level: "error", Verbose: true, Output: &buf})

	log.Debug("visible")
	assert.Contains(t, buf.String(), "visible")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestFormatError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "nil",
			err:  nil,
			want: "",
		},
		{
			name: "standard error",
			err:  errors.New("boom"),
			want: "Error: boom",
		},
		{
			name: "zerr chain",
			err:  zerr.Wrap(zerr.Wrap(errors.New("permission denied"), "failed to create cache entry"), "build failed"),
			want: "Error: build failed\n\n  Caused by:\n    → failed to create cache entry\n    → permission denied",
		},
		{
			name: "metadata wrapper skipped",
			err:  zerr.With(zerr.Wrap(errors.New("no such file"), "failed to open"), "path", "/x"),
			want: "Error: failed to open\n\n  Caused by:\n    → no such file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatError(tt.err))
		})
	}
}
