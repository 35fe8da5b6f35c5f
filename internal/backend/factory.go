package backend

import (
	"context"
	"fmt"

	"donations/internal/ledger"
	applog "donations/internal/log"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *applog.Logger
}

// NewFactory creates a new ledger factory
func NewFactory(logger *applog.Logger) Factory {
	if logger == nil {
		logger = applog.Discard()
	}
	return &DefaultFactory{
		logger: logger.WithComponent(applog.ComponentBackend),
	}
}

// CreateLedger implements Factory.CreateLedger
func (f *DefaultFactory) CreateLedger(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	opts := []ledger.Option{
		ledger.WithLoadPolicy(config.LoadPolicy),
		ledger.WithLogger(f.logger),
	}

	switch config.Type {
	case FileBackend:
		return f.createFileLedger(ctx, config, opts)
	case SQLiteBackend:
		return f.createSQLiteLedger(ctx, config, opts)
	case MemoryBackend:
		return f.createMemoryLedger(ctx)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createFileLedger(ctx context.Context, config Config, opts []ledger.Option) (*Result, error) {
	store := ledger.NewFileStore(config.LedgerPath, opts...)

	f.logger.InfoContext(ctx, "Initialized file ledger",
		applog.FieldPathOnDisk, config.LedgerPath,
		"load_policy", config.LoadPolicy)

	return &Result{Ledger: store}, nil
}

func (f *DefaultFactory) createSQLiteLedger(ctx context.Context, config Config, opts []ledger.Option) (*Result, error) {
	store, err := ledger.NewSQLiteStore(config.SQLiteDBPath, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite ledger: %w", err)
	}

	f.logger.InfoContext(ctx, "Initialized SQLite ledger",
		"db_path", config.SQLiteDBPath,
		"load_policy", config.LoadPolicy)

	return &Result{
		Ledger:  store,
		Cleanup: store.Close,
	}, nil
}

func (f *DefaultFactory) createMemoryLedger(ctx context.Context) (*Result, error) {
	f.logger.WarnContext(ctx, "Initialized memory ledger; donations are lost on exit")
	return &Result{Ledger: ledger.NewMemoryStore()}, nil
}
