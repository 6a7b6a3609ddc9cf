package storage

import (
	"context"
	"fmt"
	"log"
)

// Config controls how the storage backend is opened.
type Config struct {
	// Driver is one of memory, sqlite, postgres (gorm) or postgrespool (pgx).
	Driver string
	DSN    string
	// AutoMigrate applies pending schema migrations on open.
	AutoMigrate bool
}

type migrator interface {
	Storage
	Migrate(ctx context.Context) error
}

// Open constructs a Storage based on the given configuration.
func Open(ctx context.Context, cfg Config) (Storage, error) {
	drv := cfg.Driver
	if drv == "" {
		drv = "memory"
	}

	var st migrator
	switch drv {
	case "memory":
		log.Printf("storage: using in-memory backend")
		return NewMemory(), nil

	case "sqlite", "postgres":
		log.Printf("storage: using gorm driver=%s", drv)
		gs, err := NewGormStorage(drv, cfg.DSN)
		if err != nil {
			return nil, err
		}
		st = gs

	case "postgrespool":
		log.Printf("storage: using pgx pool")
		ps, err := OpenPostgresPool(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		st = ps

	default:
		return nil, fmt.Errorf("unsupported storage driver %q", drv)
	}

	if cfg.AutoMigrate {
		if err := st.Migrate(ctx); err != nil {
			st.Close()
			return nil, fmt.Errorf("storage migrate: %w", err)
		}
	}
	return st, nil
}
