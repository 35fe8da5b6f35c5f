// Package cli provides common process initialization utilities shared by
// cmd/donations, cmd/donations-server and cmd/donations-worker.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"donations/internal/amqp"
	"donations/internal/backend"
	"donations/internal/config"
	"donations/internal/feed"
	applog "donations/internal/log"
	"donations/internal/services"
)

// SetupLogger initializes structured logging at the given level and sets
// it as the default logger.
func SetupLogger(level string) (*applog.Logger, error) {
	lvl, err := applog.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	logger := applog.New(applog.Config{Level: lvl, Component: applog.ComponentApp})
	applog.SetDefault(logger)
	return logger, nil
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadConfig reads the optional YAML file at path, applies environment
// overrides and validates the result.
func LoadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoadConfig is LoadConfig for long-running processes: it logs and
// exits on failure.
func MustLoadConfig(logger *applog.Logger, path string) *config.Config {
	cfg, err := LoadConfig(path)
	if err != nil {
		logger.Error("Configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}
	return cfg
}

// Runtime bundles the pieces every driver needs: the ledger, the donation
// manager on top of it and an activity feed.
type Runtime struct {
	Config    *config.Config
	Logger    *applog.Logger
	Ledger    *backend.Result
	Manager   *services.DonationManager
	Feed      *feed.Feed
	Publisher *amqp.Client
}

// RuntimeOption adjusts how Bootstrap builds the runtime
type RuntimeOption func(*runtimeOptions)

type runtimeOptions struct {
	factory    backend.Factory
	publish    bool
	replayFeed bool
}

// WithFactory overrides the ledger backend factory
func WithFactory(f backend.Factory) RuntimeOption {
	return func(o *runtimeOptions) { o.factory = f }
}

// WithEventPublishing connects to AMQP when AMQP_URL is set and publishes
// ledger events through it. A broker that cannot be reached is logged and
// the runtime continues without publishing.
func WithEventPublishing() RuntimeOption {
	return func(o *runtimeOptions) { o.publish = true }
}

// WithFeedReplay fills the feed from the ledger so it shows the most
// recent donations right away.
func WithFeedReplay() RuntimeOption {
	return func(o *runtimeOptions) { o.replayFeed = true }
}

// Bootstrap opens the configured ledger and builds the manager and feed.
// Close releases everything it opened.
func Bootstrap(ctx context.Context, cfg *config.Config, logger *applog.Logger, opts ...RuntimeOption) (*Runtime, error) {
	o := runtimeOptions{factory: backend.NewFactory(logger)}
	for _, opt := range opts {
		opt(&o)
	}

	goal, err := cfg.Goal()
	if err != nil {
		return nil, fmt.Errorf("invalid donation goal: %w", err)
	}
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}

	result, err := o.factory.CreateLedger(ctx, backendCfg)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	rt := &Runtime{Config: cfg, Logger: logger, Ledger: result}

	managerOpts := []services.Option{
		services.WithTimestamps(cfg.LedgerTimestamps),
		services.WithLogger(logger),
	}
	if o.publish && cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Warn("Event publishing disabled, broker unreachable", applog.FieldError, err)
		} else {
			rt.Publisher = client
			managerOpts = append(managerOpts, services.WithPublisher(client))
		}
	}

	rt.Manager, err = services.NewDonationManager(ctx, result.Ledger, goal, managerOpts...)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}

	rt.Feed = feed.New(feed.WithCapacity(cfg.FeedCapacity), feed.WithLogger(logger))
	if o.replayFeed {
		if err := rt.Feed.Replay(rt.Manager.Donations(ctx)); err != nil {
			_ = rt.Close()
			return nil, err
		}
	}

	logger.Info("Runtime ready",
		applog.FieldBackend, string(backendCfg.Type),
		applog.FieldTotal, rt.Manager.Total().String(),
		applog.FieldGoal, goal.String(),
		"publishing", rt.Publisher != nil)
	return rt, nil
}

// Close releases the publisher and the ledger
func (rt *Runtime) Close() error {
	if rt.Publisher != nil {
		if err := rt.Publisher.Close(); err != nil {
			rt.Logger.Warn("Failed to close AMQP client", applog.FieldError, err)
		}
	}
	if rt.Ledger != nil {
		return rt.Ledger.Close()
	}
	return nil
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that is cancelled on SIGINT or SIGTERM, and a channel
// that is closed once cleanup has finished or timed out.
func GracefulShutdown(logger *applog.Logger, timeout time.Duration, cleanup func(context.Context) error) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		if cleanup != nil {
			if err := cleanup(shutdownCtx); err != nil {
				logger.Error("Shutdown cleanup failed", applog.FieldError, err)
			}
		}
		cancel()

		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached")
			return
		}
		logger.Info("Shutdown complete")
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and cleanup is done.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
