package backend

import (
	"context"

	"donations/internal/ledger"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// Result contains the ledger instance and optional cleanup function
type Result struct {
	Ledger  ledger.Ledger
	Cleanup CleanupFunc
}

// Close runs the cleanup function if there is one
func (r *Result) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

// Factory creates ledgers based on configuration
type Factory interface {
	// CreateLedger creates a ledger instance based on the provided config
	CreateLedger(ctx context.Context, config Config) (*Result, error)
}

// Config holds configuration for ledger creation
type Config struct {
	// Backend type
	Type BackendType

	// Malformed record handling, shared by every backend
	LoadPolicy ledger.LoadPolicy

	// File specific
	LedgerPath string

	// SQLite specific
	SQLiteDBPath string
}

// BackendType represents the type of backend
type BackendType string

const (
	FileBackend   BackendType = "file"
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case FileBackend, SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
