package backend

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"donations/internal/config"
	"donations/internal/core"
	"donations/internal/ledger"
)

func TestFactory_CreateLedger(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name   string
		config Config
	}{
		{"file", Config{Type: FileBackend, LedgerPath: filepath.Join(dir, "donations.txt")}},
		{"sqlite", Config{Type: SQLiteBackend, SQLiteDBPath: filepath.Join(dir, "donations.db"), LoadPolicy: ledger.Strict}},
		{"memory", Config{Type: MemoryBackend}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			res, err := NewFactory(nil).CreateLedger(ctx, tt.config)
			if err != nil {
				t.Fatalf("CreateLedger() error = %v", err)
			}
			defer res.Close()

			d, _ := core.NewUntimedDonation("Alice", decimal.NewFromInt(12))
			if err := res.Ledger.Append(ctx, d); err != nil {
				t.Fatalf("Append() error = %v", err)
			}
			sum, err := res.Ledger.Sum(ctx)
			if err != nil || !sum.Equal(decimal.NewFromInt(12)) {
				t.Fatalf("Sum() = %s, %v; want 12", sum, err)
			}
		})
	}
}

func TestFactory_CreateLedgerInvalid(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{"unknown type", Config{Type: "postgres"}},
		{"file without path", Config{Type: FileBackend}},
		{"sqlite without path", Config{Type: SQLiteBackend}},
		{"bad policy", Config{Type: MemoryBackend, LoadPolicy: "loose"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewFactory(nil).CreateLedger(context.Background(), tt.config); err == nil {
				t.Fatal("CreateLedger() expected error")
			}
		})
	}
}

func TestFromAppConfig(t *testing.T) {
	app := config.Defaults()
	app.LoadPolicy = "strict"

	cfg, err := FromAppConfig(app)
	if err != nil {
		t.Fatalf("FromAppConfig() error = %v", err)
	}
	if cfg.Type != FileBackend || cfg.LedgerPath != "donations.txt" || cfg.LoadPolicy != ledger.Strict {
		t.Errorf("FromAppConfig() = %+v", cfg)
	}

	app.LedgerBackend = "sheets"
	if _, err := FromAppConfig(app); err == nil {
		t.Error("FromAppConfig() expected error for unknown backend")
	}
	if _, err := FromAppConfig(nil); err == nil {
		t.Error("FromAppConfig() expected error for nil config")
	}
}

func TestGetBackendTypeStrings(t *testing.T) {
	got := GetBackendTypeStrings()
	want := []string{"file", "sqlite", "memory"}
	if len(got) != len(want) {
		t.Fatalf("GetBackendTypeStrings() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("GetBackendTypeStrings()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
