package main

import (
	"context"
	"errors"
	"time"

	"risparmi/internal/amqp"
	"risparmi/internal/cli"
	"risparmi/internal/config"
	applog "risparmi/internal/log"
	"risparmi/internal/scheduler"
	"risparmi/internal/sheets"
	gsheet "risparmi/internal/sheets/google"
	memarchive "risparmi/internal/sheets/memory"
	"risparmi/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentWorker)
	cfg := cli.LoadAndValidateConfig(logger)

	logger.Info("Starting ledger-worker", "db_path", cfg.SQLiteDBPath)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)

	exporter := newExporter(cfg, logger)
	exportWorker := worker.NewExportWorker(repo, exporter, cfg.SyncBatchSize)

	parent, stop := context.WithCancel(context.Background())
	defer stop()

	var consumer *amqp.Client
	if cfg.AMQPURL != "" {
		var err error
		consumer, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			cli.Fatal(logger, "Failed to initialize AMQP client", err)
		}
	}

	sched := scheduler.New(cfg.SyncInterval)
	ctx, done := cli.GracefulShutdown(parent, logger, 30*time.Second, func(context.Context) {
		sched.Stop()
		if consumer != nil {
			_ = consumer.Close()
		}
		if err := repo.Close(); err != nil {
			logger.Error("Failed to close database", "error", err)
		}
	})

	logger.Info("Performing startup sync check...")
	if err := exportWorker.StartupSyncCheck(ctx); err != nil {
		logger.Error("Failed startup sync check", "error", err)
	}

	// backup sweep for rows whose message was lost
	sweep := scheduler.NewJob("pending-export", exportWorker.ProcessPending)
	if err := sched.AddJob("@every "+cfg.SyncInterval.String(), sweep); err != nil {
		cli.Fatal(logger, "Failed to schedule pending export", err)
	}
	sched.Start()

	if consumer == nil {
		logger.Info("AMQP disabled - relying on periodic sweeps", "interval", cfg.SyncInterval.String())
	} else {
		go func() {
			err := consumer.ConsumeLedgerSync(ctx, exportWorker.HandleMessage)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", "error", err)
			}
			stop()
		}()
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped")
}

// newExporter targets Google Sheets when a spreadsheet is configured and an
// in-process archive otherwise.
func newExporter(cfg *config.Config, logger *applog.Logger) sheets.LedgerExporter {
	if cfg.GoogleSpreadsheetID == "" {
		logger.Warn("GOOGLE_SPREADSHEET_ID not set - exporting to an in-memory archive")
		return memarchive.New()
	}
	// the service keeps ctx for token refreshes, so it must not expire
	client, err := gsheet.New(context.Background(), gsheet.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSheetName,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
		OAuthClientJSON: cfg.GoogleOAuthClientJSON,
		OAuthClientFile: cfg.GoogleOAuthClientFile,
		OAuthTokenJSON:  cfg.GoogleOAuthTokenJSON,
		OAuthTokenFile:  cfg.GoogleOAuthTokenFile,
	})
	if err != nil {
		cli.Fatal(logger, "Failed to initialize Google Sheets client", err)
	}
	logger.Info("Google Sheets exporter initialized",
		"spreadsheet_id", cfg.GoogleSpreadsheetID,
		"sheet", cfg.GoogleSheetName)
	return client
}
