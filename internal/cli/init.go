// Package cli provides common initialization for the ledger binaries:
// configuration, logging, tracing, the storage backend and the scheduler.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"gagyebu/internal/backend"
	"gagyebu/internal/config"
	"gagyebu/internal/core"
	"gagyebu/internal/log"
	"gagyebu/internal/services"
	"gagyebu/internal/telemetry"
)

// LoadAndValidateConfig loads .env and the environment and validates them.
// It exits the process on failure since nothing can start without config.
func LoadAndValidateConfig() *config.Config {
	cfg, err := config.Load()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		log.New(log.DefaultConfig()).Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	return cfg
}

// SetupLogger builds the process logger from cfg and installs it as the
// slog default, so packages logging through slog share its handler.
func SetupLogger(cfg *config.Config, component string) *log.Logger {
	logger := log.New(log.Config{
		Level:     log.ParseLevel(cfg.LogLevel),
		Format:    cfg.LogFormat,
		Component: component,
		Output:    os.Stdout,
	})
	log.SetDefault(logger)
	return logger
}

// InitTelemetry starts span export when configured. Failures only disable
// tracing.
func InitTelemetry(ctx context.Context, logger *log.Logger, cfg *config.Config, serviceName string) telemetry.ShutdownFunc {
	shutdown, err := telemetry.Setup(ctx, serviceName, telemetry.Config{
		Enabled:  cfg.OTELEnabled,
		Endpoint: cfg.OTELEndpoint,
	})
	if err != nil {
		logger.Warn("Tracing disabled", log.FieldError, err)
		return shutdown
	}
	if cfg.TracingEnabled() {
		logger.Info("Tracing enabled", "endpoint", cfg.OTELEndpoint)
	}
	return shutdown
}

// InitBackend opens the configured store and, when set, the AMQP client.
// It exits the process on failure.
func InitBackend(ctx context.Context, logger *log.Logger, cfg *config.Config) *backend.BackendResult {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	return result
}

// NewProcessor wires the recurring processor over the backend with the
// scheduling knobs from cfg.
func NewProcessor(cfg *config.Config, be *backend.BackendResult, logger *log.Logger, opts ...services.ProcessorOption) *services.RecurringProcessor {
	opts = append([]services.ProcessorOption{
		services.WithLogger(logger.WithComponent(log.ComponentRecurring)),
	}, opts...)
	return services.NewRecurringProcessorForStore(be.Repository, be.Publisher(), services.ProcessorConfig{
		Location:     cfg.Location(),
		RangePolicy:  core.RangePolicy(cfg.RangePolicy),
		ParseOptions: cfg.ParseOptions(),
		RunTimeout:   cfg.RunTimeout,
	}, opts...)
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
