// Command donations-server serves the donations JSON API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"donations/internal/cli"
	apphttp "donations/internal/http"
	applog "donations/internal/log"
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

	rt, err := cli.Bootstrap(context.Background(), cfg, logger,
		cli.WithEventPublishing(),
		cli.WithFeedReplay())
	if err != nil {
		logger.Error("Failed to initialize donations runtime", applog.FieldError, err)
		os.Exit(1)
	}
	defer rt.Close()

	srv := apphttp.NewServer(apphttp.Config{
		Addr:               ":" + cfg.Port,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Logger:             logger,
	}, rt.Manager, rt.Feed)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, srv.Shutdown)

	go func() {
		logger.Info("Starting donations server",
			"port", cfg.Port,
			applog.FieldBackend, cfg.LedgerBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
			os.Exit(1)
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
