// Command donations-worker mirrors ledger events from AMQP into a
// spreadsheet.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"donations/internal/amqp"
	"donations/internal/backend"
	"donations/internal/cli"
	"donations/internal/config"
	applog "donations/internal/log"
	"donations/internal/sheets"
	gsheet "donations/internal/sheets/google"
	"donations/internal/sheets/memory"
	"donations/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	bootLogger, _ := cli.SetupLogger("info")
	cfg := cli.MustLoadConfig(bootLogger, os.Getenv("CONFIG_FILE"))

	logger, err := cli.SetupLogger(cfg.LogLevel)
	if err != nil {
		bootLogger.Error("Invalid log level", applog.FieldError, err)
		os.Exit(1)
	}
	logger = logger.WithComponent(applog.ComponentWorker)

	if err := run(logger, cfg); err != nil {
		logger.Error("Worker stopped with error", applog.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Worker stopped gracefully")
}

func run(logger *applog.Logger, cfg *config.Config) error {
	if cfg.AMQPURL == "" {
		return errors.New("AMQP_URL is required to consume ledger events")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mirror, err := openMirror(ctx, logger, cfg)
	if err != nil {
		return err
	}
	mirrorWorker := worker.NewMirrorWorker(mirror, logger)

	if cfg.MirrorResync {
		if err := resync(ctx, logger, cfg, mirrorWorker); err != nil {
			// Keep consuming; the mirror catches up with new events.
			logger.Error("Startup resync failed", applog.FieldError, err)
		}
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := client.Consume(gctx, mirrorWorker.HandleEvent)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		return client.Close()
	})

	logger.Info("Worker started",
		"queue", cfg.AMQPQueue,
		"mirror", cfg.MirrorEnabled())
	return g.Wait()
}

// openMirror returns the Google Sheets mirror when a spreadsheet is
// configured and an in-process one otherwise.
func openMirror(ctx context.Context, logger *applog.Logger, cfg *config.Config) (sheets.Mirror, error) {
	if !cfg.MirrorEnabled() {
		logger.Warn("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided, mirroring in memory only")
		return memory.New(), nil
	}

	client, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:      cfg.GoogleSpreadsheetID,
		SheetName:          cfg.GoogleSheetName,
		ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
		ServiceAccountFile: cfg.GoogleServiceAccountFile,
	}, logger)
	if err != nil {
		return nil, err
	}
	if err := client.EnsureHeader(ctx); err != nil {
		return nil, err
	}
	logger.Info("Google Sheets mirror initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	return client, nil
}

// resync rebuilds the mirror from the ledger before any event is consumed
func resync(ctx context.Context, logger *applog.Logger, cfg *config.Config, w *worker.MirrorWorker) error {
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	result, err := backend.NewFactory(logger).CreateLedger(ctx, backendCfg)
	if err != nil {
		return err
	}
	defer result.Close()

	_, err = w.Resync(ctx, result.Ledger.All(ctx))
	return err
}
