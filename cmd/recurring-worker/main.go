package main

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"gagyebu/internal/cli"
	"gagyebu/internal/log"
	"gagyebu/internal/services"
)

func main() {
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, log.ComponentWorker)

	logger.Info("Starting recurring-worker")

	ctx, stop := cli.SignalContext()
	defer stop()

	shutdownTracing := cli.InitTelemetry(ctx, logger, cfg, "recurring-worker")
	be := cli.InitBackend(ctx, logger, cfg)
	defer func() {
		if err := be.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", log.FieldError, err)
		}
	}()
	if be.AMQP == nil {
		logger.Info("AMQP disabled - generated transactions will be mirrored by the sync poller")
	}

	processor := cli.NewProcessor(cfg, be, logger)

	logger.Info("Recurring processor configured",
		"interval", cfg.ProcessorInterval,
		"timezone", cfg.Timezone,
		"range_policy", cfg.RangePolicy,
		"backend", cfg.DataBackend)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runLoop(gctx, logger, processor, cfg.ProcessorInterval)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Recurring worker stopped with error", log.FieldError, err)
	}

	logger.Info("Shutting down recurring-worker...", log.FieldOperation, log.OpShutdown)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("Tracing shutdown failed", log.FieldError, err)
	}
	logger.Info("Recurring-worker shutdown complete")
}

// runLoop processes today's rules once at startup and then on every tick.
// Re-running a day is safe: already generated rules come back as skipped.
func runLoop(ctx context.Context, logger *log.Logger, processor *services.RecurringProcessor, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("Running initial recurring processing...", log.FieldOperation, log.OpStartup)
	processToday(ctx, logger, processor)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			processToday(ctx, logger, processor)
			logger.Debug("Next recurring check scheduled", "next_check", now.Add(interval).Format(time.TimeOnly))
		}
	}
}

func processToday(ctx context.Context, logger *log.Logger, processor *services.RecurringProcessor) {
	result, err := processor.ProcessToday(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logger.Error("Recurring processing failed",
				log.FieldDate, result.Date,
				log.FieldError, err)
		}
		return
	}
	logger.Info("Recurring processing complete",
		log.FieldDate, result.Date,
		log.FieldCreated, result.Created,
		log.FieldSkipped, result.Skipped,
		log.FieldFailed, result.Failed,
		log.FieldTotal, result.Total)
}
