package cli

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gagyebu/internal/backend"
	"gagyebu/internal/config"
	"gagyebu/internal/core"
	"gagyebu/internal/log"
	"gagyebu/internal/services"
)

func TestNewProcessor_UsesConfiguredLocation(t *testing.T) {
	t.Setenv("DATA_BACKEND", "memory")
	t.Setenv("RECURRING_TIMEZONE", "Asia/Seoul")
	cfg, err := config.Parse()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	be, err := backend.NewFactory(log.Discard()).CreateBackend(context.Background(), backend.Config{Type: backend.MemoryBackend})
	require.NoError(t, err)
	defer be.Cleanup()

	// 20:00 UTC on Jan 31 is already Feb 1 in Seoul.
	now := time.Date(2025, 1, 31, 20, 0, 0, 0, time.UTC)
	p := NewProcessor(cfg, be, log.Discard(), services.WithClock(func() time.Time { return now }))

	assert.Equal(t, core.NewDate(2025, 2, 1), p.Today())
}

func TestSetupLogger(t *testing.T) {
	cfg := &config.Config{LogLevel: "debug", LogFormat: "json"}
	logger := SetupLogger(cfg, log.ComponentWorker)
	assert.Equal(t, log.ComponentWorker, logger.Component())
}

func TestInitTelemetry_DisabledIsNoop(t *testing.T) {
	cfg := &config.Config{OTELEnabled: false}
	shutdown := InitTelemetry(context.Background(), log.Discard(), cfg, "test")
	assert.NoError(t, shutdown(context.Background()))
}
