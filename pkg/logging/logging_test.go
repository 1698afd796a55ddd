package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var entries []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		entries = append(entries, entry)
	}
	return entries
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected slog.Level
	}{
		{LogLevelDebug, slog.LevelDebug},
		{LogLevelInfo, slog.LevelInfo},
		{LogLevelWarn, slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLevel(tt.level))
		})
	}
}

func TestLogger_OutputsStructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter("booking", LogLevelDebug, FormatJSON, &buf)

	logger.Info("attempting to book", "date", "2024-06-10", "attempt", 1)

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "INFO", entries[0]["level"])
	assert.Equal(t, "attempting to book", entries[0]["msg"])
	assert.Equal(t, "booking", entries[0]["component"])
	assert.Equal(t, "2024-06-10", entries[0]["date"])
	assert.Equal(t, float64(1), entries[0]["attempt"])
	assert.Contains(t, entries[0], "time")
}

func TestLogger_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter("booking", LogLevelWarn, FormatJSON, &buf)

	logger.Debug("payload")
	logger.Info("info")
	logger.Warn("already booked")
	logger.Error("failed")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "WARN", entries[0]["level"])
	assert.Equal(t, "ERROR", entries[1]["level"])
}

func TestLogger_WithComponentAndRun(t *testing.T) {
	var buf bytes.Buffer
	root := NewWithWriter("gymbook", LogLevelInfo, FormatJSON, &buf)

	child := root.WithRun("run-1").WithComponent("session")
	child.Info("logged out")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "session", entries[0]["component"])
	assert.Equal(t, "run-1", entries[0]["run_id"])
	assert.Equal(t, "session", child.Component())
}

func TestLogger_LogError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter("executor", LogLevelInfo, FormatJSON, &buf)

	logger.LogError("login", errors.New("connection refused"), "attempt", 2)

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "operation failed", entries[0]["msg"])
	assert.Equal(t, "login", entries[0]["operation"])
	assert.Equal(t, "connection refused", entries[0]["exception"])
	assert.Equal(t, float64(2), entries[0]["attempt"])
}

func TestLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter("gymbook", LogLevelInfo, FormatText, &buf)

	logger.Info("hello", "key", "value")

	assert.Contains(t, buf.String(), "msg=hello")
	assert.Contains(t, buf.String(), "component=gymbook")
	assert.Contains(t, buf.String(), "key=value")
}

func TestNew_WritesToFile(t *testing.T) {
	// Given a log file path
	path := filepath.Join(t.TempDir(), "gymbook.log")
	var stdout bytes.Buffer

	// When a logger is created with that file
	logger, closer, err := New("gymbook", Options{Level: LogLevelInfo, Output: &stdout, File: path})
	require.NoError(t, err)
	logger.Info("booked")
	require.NoError(t, closer.Close())

	// Then the record is written to both outputs
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"booked"`)
	assert.Contains(t, stdout.String(), `"msg":"booked"`)
}

func TestNew_BadFile(t *testing.T) {
	_, _, err := New("gymbook", Options{File: filepath.Join(t.TempDir(), "missing", "x.log")})
	require.Error(t, err)
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	assert.NotPanics(t, func() { logger.Error("nothing") })
}
