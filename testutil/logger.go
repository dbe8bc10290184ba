package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// GetTestLogger returns a development logger that only prints errors.
func GetTestLogger(t *testing.T) *zap.Logger {
	t.Helper()

	loggerConfig := zap.NewDevelopmentConfig()
	loggerConfig.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	loggerConfig.DisableStacktrace = true
	logger, err := loggerConfig.Build()
	require.NoError(t, err)

	return logger
}

// GetObservedLogger records every entry at or above level for assertions.
func GetObservedLogger(level zapcore.Level) (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)

	return zap.New(core), logs
}
