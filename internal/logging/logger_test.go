package logging

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewFromCoreWritesFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewFromCore(core).Named("pipeline").With(String("run_id", "r1"))

	l.Info("tile done", Int("tile_index", 4), Duration("took", time.Second), Err(errors.New("boom")))

	entries := logs.All()
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "tile done", e.Message)
	assert.Equal(t, "pipeline", e.LoggerName)
	ctx := e.ContextMap()
	assert.Equal(t, "r1", ctx["run_id"])
	assert.EqualValues(t, 4, ctx["tile_index"])
	assert.Equal(t, "boom", ctx["error"])
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"WARN", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"", zapcore.InfoLevel},
		{"verbose", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLevel(tt.in), tt.in)
	}
}

func TestDefaultFallsBackToNop(t *testing.T) {
	SetDefault(nil)
	assert.NotNil(t, Default())

	l := NewNop()
	SetDefault(l)
	assert.Equal(t, l, Default())
}

func TestNewRejectsBadOutputPath(t *testing.T) {
	_, err := New(Config{OutputPaths: []string{"/nonexistent-dir/x/y.log"}})
	assert.Error(t, err)
}
