package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"sync"

	"github.com/shopspring/decimal"

	"donations/internal/core"
	applog "donations/internal/log"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps the ledger in a SQLite table. Row id order is the
// append order.
type SQLiteStore struct {
	mu   sync.RWMutex
	db   *sql.DB
	opts options
}

// NewSQLiteStore opens (creating if needed) the database at dbPath and
// migrates it.
func NewSQLiteStore(dbPath string, opts ...Option) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	o := buildOptions(opts)
	o.logger = o.logger.With(applog.FieldPathOnDisk, dbPath)
	return &SQLiteStore{db: db, opts: o}, nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Append inserts the donation as the newest row.
func (s *SQLiteStore) Append(ctx context.Context, d core.Donation) error {
	var donatedAt sql.NullString
	if at, ok := d.Timestamp(); ok {
		donatedAt = sql.NullString{String: at.Local().Format(core.TimestampLayout), Valid: true}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO donations (donor_name, amount, donated_at) VALUES (?, ?, ?)`,
		d.Name(), d.Amount().String(), donatedAt)
	if err != nil {
		return fmt.Errorf("%w: insert donation: %w", ErrStoreWrite, err)
	}

	id, _ := res.LastInsertId()
	s.opts.logger.DebugContext(ctx, "Donation saved to SQLite",
		"id", id,
		applog.FieldDonor, d.Name(),
		applog.FieldAmount, d.Amount().String())
	return nil
}

// All yields rows in id order, decoding each one with the ledger rules.
func (s *SQLiteStore) All(ctx context.Context) iter.Seq2[core.Donation, error] {
	return func(yield func(core.Donation, error) bool) {
		s.mu.RLock()
		defer s.mu.RUnlock()

		rows, err := s.db.QueryContext(ctx,
			`SELECT id, donor_name, amount, COALESCE(donated_at, '') FROM donations ORDER BY id`)
		if err != nil {
			yield(core.Donation{}, fmt.Errorf("%w: query donations: %w", ErrStoreRead, err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var (
				id                      int64
				name, amount, donatedAt string
			)
			if err := rows.Scan(&id, &name, &amount, &donatedAt); err != nil {
				yield(core.Donation{}, fmt.Errorf("%w: scan donation: %w", ErrStoreRead, err))
				return
			}
			text := name + core.Delimiter + amount + core.Delimiter + donatedAt
			d, skip, err := s.opts.decodeRecord(int(id), text, func() (core.Donation, error) {
				return core.DecodeFields(name, amount, donatedAt)
			})
			if err != nil {
				yield(core.Donation{}, err)
				return
			}
			if skip {
				continue
			}
			if !yield(d, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(core.Donation{}, fmt.Errorf("%w: iterate donations: %w", ErrStoreRead, err))
		}
	}
}

// Clear deletes every row in one transaction.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", ErrStoreWrite, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM donations`); err != nil {
		tx.Rollback()
		return fmt.Errorf("%w: delete donations: %w", ErrStoreWrite, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", ErrStoreWrite, err)
	}

	s.opts.logger.InfoContext(ctx, "Ledger cleared")
	return nil
}

// Sum adds up every stored amount.
func (s *SQLiteStore) Sum(ctx context.Context) (decimal.Decimal, error) {
	return SumOf(s.All(ctx))
}
