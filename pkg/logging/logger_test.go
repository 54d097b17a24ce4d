package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []LogEntry {
	t.Helper()
	var entries []LogEntry
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var e LogEntry
		require.NoError(t, json.Unmarshal([]byte(line), &e))
		entries = append(entries, e)
	}
	return entries
}

func TestStructuredLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger("test", "1.0.0", WarnLevel)
	logger.SetOutput(&buf)

	ctx := context.Background()
	logger.Debug(ctx, "debug", nil)
	logger.Info(ctx, "info", nil)
	logger.Warn(ctx, "warn", Fields{"k": "v"})
	logger.Error(ctx, "error", nil, errors.New("boom"))

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "WARN", entries[0].Level)
	assert.Equal(t, "v", entries[0].Fields["k"])
	assert.Equal(t, "ERROR", entries[1].Level)
	assert.Equal(t, "boom", entries[1].Error)
	assert.NotEmpty(t, entries[1].File)
}

func TestStructuredLogger_ContextIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger("test", "1.0.0", DebugLevel)
	logger.SetOutput(&buf)

	ctx := WithJobID(WithRequestID(context.Background(), "req-1"), "job-1")
	logger.Info(ctx, "hello", nil)

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "req-1", entries[0].RequestID)
	assert.Equal(t, "job-1", entries[0].JobID)
}

func TestContextLogger_MergesFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger("test", "1.0.0", DebugLevel)
	logger.SetOutput(&buf)

	child := logger.WithFields(Fields{"job_id": "j", "model_type": "xgboost"}).WithFields(Fields{"item_code": "A1"})
	child.Info(context.Background(), "trained", Fields{"model_type": "prophet"})

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "j", entries[0].Fields["job_id"])
	assert.Equal(t, "A1", entries[0].Fields["item_code"])
	assert.Equal(t, "prophet", entries[0].Fields["model_type"])
}

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   DebugLevel,
		"DEBUG":   DebugLevel,
		"warn":    WarnLevel,
		"warning": WarnLevel,
		"error":   ErrorLevel,
		"info":    InfoLevel,
		"":        InfoLevel,
		"bogus":   InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNopLogger_Discards(t *testing.T) {
	logger := NewNopLogger()
	logger.Error(context.Background(), "ignored", nil, errors.New("x"))
}

func TestWithFields_WrapsInterface(t *testing.T) {
	var buf bytes.Buffer
	base := NewStructuredLogger("test", "1.0.0", DebugLevel)
	base.SetOutput(&buf)

	var l Logger = base
	l = WithFields(l, Fields{"job_id": "j"})
	l = WithFields(l, Fields{"item_code": "A1"})
	l.Warn(context.Background(), "gap", nil)

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "j", entries[0].Fields["job_id"])
	assert.Equal(t, "A1", entries[0].Fields["item_code"])
}
