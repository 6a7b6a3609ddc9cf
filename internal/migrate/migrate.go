// Package migrate applies the embedded goose migrations for the SQL storage
// backends.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	_ "github.com/glebarez/sqlite"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations
var embedMigrations embed.FS

func configureGoose(driver string) error {
	goose.SetBaseFS(embedMigrations)
	goose.SetTableName("schema_migrations")

	switch driver {
	case "sqlite", "sqlite3":
		return goose.SetDialect("sqlite3")
	case "postgres", "pgx", "postgrespool":
		return goose.SetDialect("postgres")
	}
	return fmt.Errorf("unsupported driver for goose: %s", driver)
}

func migrationDir(driver string) string {
	if driver == "postgres" || driver == "pgx" || driver == "postgrespool" {
		return "migrations/postgres"
	}
	return "migrations/sqlite"
}

// openDB maps storage driver names onto registered database/sql drivers.
// SQLite goes through the pure-Go driver that gorm's glebarez dialector
// registers as "sqlite".
func openDB(driver, dsn string) (*sql.DB, error) {
	if driver == "" {
		driver = "sqlite"
	}
	if dsn == "" {
		dsn = "gmeter.db"
	}
	switch driver {
	case "postgres", "postgrespool":
		driver = "pgx"
	case "sqlite3":
		driver = "sqlite"
	}
	return sql.Open(driver, dsn)
}

func withDB(driver, dsn string, fn func(*sql.DB) error) error {
	if err := configureGoose(driver); err != nil {
		return err
	}
	db, err := openDB(driver, dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db)
}

func Up(ctx context.Context, driver, dsn string) error {
	return withDB(driver, dsn, func(db *sql.DB) error {
		return goose.UpContext(ctx, db, migrationDir(driver))
	})
}

func Down(ctx context.Context, driver, dsn string) error {
	return withDB(driver, dsn, func(db *sql.DB) error {
		return goose.DownContext(ctx, db, migrationDir(driver))
	})
}

func Status(ctx context.Context, driver, dsn string) error {
	return withDB(driver, dsn, func(db *sql.DB) error {
		return goose.StatusContext(ctx, db, migrationDir(driver))
	})
}

// UpDB migrates an already open database. driver selects the dialect.
func UpDB(ctx context.Context, db *sql.DB, driver string) error {
	if err := configureGoose(driver); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, migrationDir(driver))
}
