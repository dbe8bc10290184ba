package log_test

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fortuna-labs/keeper/log"
)

func TestNewRootLoggerFormats(t *testing.T) {
	t.Parallel()

	tests := []struct {
		format   string
		contains string
	}{
		{"json", `"msg":"delivered"`},
		{"logfmt", `msg=delivered`},
		{"console", "delivered"},
	}

	for _, tc := range tests {
		t.Run(tc.format, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			logger, err := log.NewRootLogger(tc.format, "info", &buf)
			require.NoError(t, err)

			logger.Debug("hidden")
			logger.Info("delivered", zap.Uint64("sequence_number", 7))
			require.NoError(t, logger.Sync())

			require.Contains(t, buf.String(), tc.contains)
			require.NotContains(t, buf.String(), "hidden")
			require.Contains(t, buf.String(), "sequence_number")
		})
	}
}

func TestNewRootLoggerJSONIsParseable(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := log.NewRootLogger("json", "debug", &buf)
	require.NoError(t, err)
	logger.Debug("attempt", zap.Uint("attempt", 2))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "DEBUG", entry["level"])
	require.Equal(t, float64(2), entry["attempt"])
}

func TestNewRootLoggerRejectsUnknown(t *testing.T) {
	t.Parallel()

	_, err := log.NewRootLogger("xml", "info", &bytes.Buffer{})
	require.ErrorContains(t, err, "unsupported log format")

	_, err = log.NewRootLogger("json", "verbose", &bytes.Buffer{})
	require.ErrorContains(t, err, "unsupported log level")
}

func TestNewRootLoggerWithFile(t *testing.T) {
	t.Parallel()

	logFile := filepath.Join(t.TempDir(), "logs", "keeperd.log")
	logger, err := log.NewRootLoggerWithFile(logFile, "info", "json", log.FileOptions{MaxSizeMB: 1})
	require.NoError(t, err)
	logger.Info("hello")
	_ = logger.Sync()

	require.FileExists(t, logFile)
}
