package logger_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/shelfscribe/engine/internal/config"
	"github.com/shelfscribe/engine/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_ValidLevels(t *testing.T) {
	cases := []struct {
		configured string
		want       slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
	}

	for _, tc := range cases {
		t.Run(tc.configured, func(t *testing.T) {
			log, err := logger.Setup(config.ServerConfig{LogLevel: tc.configured})
			require.NoError(t, err)
			require.NotNil(t, log)
			assert.True(t, log.Enabled(context.Background(), tc.want))
		})
	}
}

func TestSetup_InvalidLevelFallsBackToInfo(t *testing.T) {
	log, err := logger.Setup(config.ServerConfig{LogLevel: "verbose"})
	require.NoError(t, err)
	require.NotNil(t, log)

	assert.True(t, log.Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, log.Enabled(context.Background(), slog.LevelDebug))
}
