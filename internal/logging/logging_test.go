package logging

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/example/face-verify/internal/domain"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"":        zapcore.InfoLevel,
		"INFO":    zapcore.InfoLevel,
		"debug":   zapcore.DebugLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger("warn")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))

	_, err = NewLogger("loud")
	assert.Error(t, err)
}

func TestWithOperation(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)

	WithOperation(zap.New(core), "verify_pair", "req-1").Info("done")
	WithOperation(zap.New(core), "health", "").Info("done")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "req-1", entries[0].ContextMap()["request_id"])
	assert.Equal(t, "verify_pair", entries[0].ContextMap()["operation"])
	_, ok := entries[1].ContextMap()["request_id"]
	assert.False(t, ok)
}

func TestOperationError(t *testing.T) {
	assert.Nil(t, NewOperationError("save", "", nil))

	err := NewOperationError("load_entry", "req-9", domain.ErrNotFound)
	assert.Equal(t, "load_entry [request req-9]: "+domain.ErrNotFound.Error(), err.Error())
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	var opErr *OperationError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, "load_entry", opErr.Operation)
}

func TestRetriedOperationError(t *testing.T) {
	err := NewRetriedOperationError("cache.set.result", "", 3, errors.New("timeout"))

	assert.Equal(t, "cache.set.result after 3 attempts: timeout", err.Error())
	assert.Nil(t, NewRetriedOperationError("x", "y", 2, nil))
}
