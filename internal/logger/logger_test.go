package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observe(level zapcore.Level) *observer.ObservedLogs {
	core, logs := observer.New(level)
	New(zap.New(core))
	return logs
}

func TestInit(t *testing.T) {
	require.NoError(t, Init("info", "json"))
	assert.NotNil(t, log)

	assert.Error(t, Init("loud", "json"))
}

func TestInfo(t *testing.T) {
	logs := observe(zapcore.InfoLevel)

	Info("test message", "ref_no", "2025/R/00001")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "test message", entries[0].Message)
	assert.Equal(t, "2025/R/00001", entries[0].ContextMap()["ref_no"])
}

func TestError(t *testing.T) {
	logs := observe(zapcore.InfoLevel)

	Error("test error")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
}

func TestDebugFilteredByLevel(t *testing.T) {
	logs := observe(zapcore.InfoLevel)

	Debug("hidden")

	assert.Zero(t, logs.Len())
}

func TestInfof(t *testing.T) {
	logs := observe(zapcore.DebugLevel)

	Infof("test %s", "message")
	Errorf("test %s", "error")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "test message", entries[0].Message)
	assert.Equal(t, "test error", entries[1].Message)
}
