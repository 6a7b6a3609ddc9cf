package migrate

import (
	"context"
	"path/filepath"
	"testing"
)

func TestUpCreatesTables(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "gmeter.db")

	if err := Up(ctx, "sqlite", dsn); err != nil {
		t.Fatalf("Up failed: %v", err)
	}
	// Re-running is a no-op.
	if err := Up(ctx, "sqlite", dsn); err != nil {
		t.Fatalf("second Up failed: %v", err)
	}

	db, err := openDB("sqlite", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	for _, table := range []string{"eop_snapshots", "settings", "tokens", "casbin_rules", "scheduled_jobs"} {
		var name string
		row := db.QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table)
		if err := row.Scan(&name); err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestConfigureGooseRejectsUnknownDriver(t *testing.T) {
	if err := configureGoose("oracle"); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
}

func TestMigrationDir(t *testing.T) {
	if got := migrationDir("postgrespool"); got != "migrations/postgres" {
		t.Fatalf("unexpected dir %q", got)
	}
	if got := migrationDir("sqlite"); got != "migrations/sqlite" {
		t.Fatalf("unexpected dir %q", got)
	}
}
