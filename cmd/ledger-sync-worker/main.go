package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"gagyebu/internal/cli"
	"gagyebu/internal/log"
	gsheet "gagyebu/internal/sheets/google"
	"gagyebu/internal/worker"
)

func main() {
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, log.ComponentWorker)

	logger.Info("Starting ledger-sync-worker")

	if !cfg.SheetsEnabled() {
		logger.Error("GOOGLE_SPREADSHEET_ID is required for the sync worker")
		os.Exit(1)
	}

	ctx, stop := cli.SignalContext()
	defer stop()

	shutdownTracing := cli.InitTelemetry(ctx, logger, cfg, "ledger-sync-worker")
	be := cli.InitBackend(ctx, logger, cfg)
	defer func() {
		if err := be.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", log.FieldError, err)
		}
	}()

	sheetsClient, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:      cfg.GoogleSpreadsheetID,
		SheetName:          cfg.GoogleSheetName,
		ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
		ServiceAccountFile: cfg.GoogleServiceAccountFile,
	})
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	syncWorker := worker.NewSyncWorker(be.Repository, sheetsClient, cfg.SyncBatchSize)

	// Catch up on anything generated while the worker was down
	logger.Info("Performing startup sync check...", log.FieldOperation, log.OpStartup)
	if err := syncWorker.StartupSyncCheck(ctx); err != nil {
		logger.Error("Failed startup sync check", log.FieldError, err)
	}

	poller := worker.NewPoller(syncWorker, worker.PollerConfig{Interval: cfg.SyncInterval})
	if err := poller.Start(ctx); err != nil {
		logger.Error("Failed to start pending sync poller", log.FieldError, err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	if be.AMQP != nil {
		g.Go(func() error {
			return be.AMQP.ConsumeTransactionGenerated(gctx, syncWorker.HandleGeneratedMessage)
		})
	} else {
		logger.Info("AMQP disabled - relying on the pending sync poller only")
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", log.FieldError, err)
	}

	logger.Info("Shutting down worker...", log.FieldOperation, log.OpShutdown)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := poller.Stop(shutdownCtx); err != nil {
		logger.Warn("Poller did not stop cleanly", log.FieldError, err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("Tracing shutdown failed", log.FieldError, err)
	}
	logger.Info("Worker shutdown complete")
}
