package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"gagyebu/internal/cli"
	apphttp "gagyebu/internal/http"
	"gagyebu/internal/log"
	"gagyebu/internal/services"
)

func main() {
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, log.ComponentApp)

	ctx, stop := cli.SignalContext()
	defer stop()

	shutdownTracing := cli.InitTelemetry(ctx, logger, cfg, "ledger-api")
	be := cli.InitBackend(ctx, logger, cfg)
	defer func() {
		if err := be.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", log.FieldError, err)
		}
	}()

	if cfg.JWTSecret == "" {
		logger.Warn("JWT_SECRET not set - user endpoints will reject every token")
	}
	if cfg.SchedulerAPIKey == "" {
		logger.Warn("RECURRING_SCHEDULER_API_KEY not set - scheduled processing endpoint is disabled")
	}

	metrics := apphttp.NewSchedulerMetrics()
	processor := cli.NewProcessor(cfg, be, logger, services.WithObserver(metrics))
	rules := services.NewRuleService(be.Repository, logger.WithComponent(log.ComponentRecurring))

	srv := apphttp.NewServer(apphttp.ServerConfig{
		Addr:              ":" + cfg.Port,
		MaxRangeDays:      cfg.MaxRangeDays,
		JWTSecret:         cfg.JWTSecret,
		SchedulerAPIKey:   cfg.SchedulerAPIKey,
		RequestsPerMinute: cfg.HTTPRateLimit,
	}, processor, rules, be.Repository, metrics, logger)
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting ledger API", "port", cfg.Port, "backend", cfg.DataBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received", log.FieldOperation, log.OpShutdown)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		if terr := shutdownTracing(shutdownCtx); terr != nil {
			logger.Warn("Tracing shutdown failed", log.FieldError, terr)
		}
		return err
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
