package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bher20/gmeter/internal/migrate"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

// PostgresPoolStorage implements Storage directly on a pgx connection pool.
type PostgresPoolStorage struct {
	pool *pgxpool.Pool

	lockMu    sync.Mutex
	lockConns map[int64]*pgxpool.Conn
}

func OpenPostgresPool(ctx context.Context, dsn string) (*PostgresPoolStorage, error) {
	if dsn == "" {
		dsn = "postgres://localhost:5432/gmeter?sslmode=disable"
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &PostgresPoolStorage{pool: pool, lockConns: make(map[int64]*pgxpool.Conn)}, nil
}

func (s *PostgresPoolStorage) Close() error {
	s.lockMu.Lock()
	for key, conn := range s.lockConns {
		conn.Release()
		delete(s.lockConns, key)
	}
	s.lockMu.Unlock()
	s.pool.Close()
	return nil
}

func (s *PostgresPoolStorage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate runs the embedded goose migrations through a database/sql view of
// the pool.
func (s *PostgresPoolStorage) Migrate(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(s.pool)
	defer db.Close()
	return migrate.UpDB(ctx, db, "postgres")
}

func (s *PostgresPoolStorage) GetTableSnapshot(ctx context.Context, source string) (*TableSnapshot, error) {
	row := s.pool.QueryRow(ctx, `
        SELECT id, payload, sample_count, first_mjd, last_mjd, fetched_at
        FROM eop_snapshots
        WHERE source=$1
        ORDER BY fetched_at DESC
        LIMIT 1
    `, source)

	snap := TableSnapshot{Source: source}
	var id int64
	if err := row.Scan(&id, &snap.Payload, &snap.SampleCount, &snap.FirstMJD, &snap.LastMJD, &snap.FetchedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	snap.ID = uint(id)
	return &snap, nil
}

func (s *PostgresPoolStorage) SaveTableSnapshot(ctx context.Context, snap TableSnapshot) error {
	if snap.FetchedAt.IsZero() {
		snap.FetchedAt = time.Now()
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var id int64
		err := tx.QueryRow(ctx, `
            INSERT INTO eop_snapshots (source, payload, sample_count, first_mjd, last_mjd, fetched_at)
            VALUES ($1,$2,$3,$4,$5,$6)
            RETURNING id
        `, snap.Source, snap.Payload, snap.SampleCount, snap.FirstMJD, snap.LastMJD, snap.FetchedAt).Scan(&id)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `DELETE FROM eop_snapshots WHERE source=$1 AND id<>$2`, snap.Source, id)
		return err
	})
}

func (s *PostgresPoolStorage) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM settings WHERE key=$1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return value, err
}

func (s *PostgresPoolStorage) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx, `
        INSERT INTO settings (key, value, updated_at)
        VALUES ($1,$2,$3)
        ON CONFLICT (key) DO UPDATE SET
            value=EXCLUDED.value,
            updated_at=EXCLUDED.updated_at
    `, key, value, time.Now())
	return err
}

func (s *PostgresPoolStorage) CreateToken(ctx context.Context, t Token) error {
	_, err := s.pool.Exec(ctx, `
        INSERT INTO tokens (id, name, secret_hash, role, created_at, expires_at, last_used_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
    `, t.ID, t.Name, t.SecretHash, t.Role, t.CreatedAt, t.ExpiresAt, t.LastUsedAt)
	return err
}

const tokenColumns = `id, name, secret_hash, role, created_at, expires_at, last_used_at`

func scanToken(row pgx.Row) (Token, error) {
	var t Token
	err := row.Scan(&t.ID, &t.Name, &t.SecretHash, &t.Role, &t.CreatedAt, &t.ExpiresAt, &t.LastUsedAt)
	return t, err
}

func (s *PostgresPoolStorage) GetToken(ctx context.Context, id string) (*Token, error) {
	t, err := scanToken(s.pool.QueryRow(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (s *PostgresPoolStorage) ListTokens(ctx context.Context) ([]Token, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+tokenColumns+` FROM tokens ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresPoolStorage) DeleteToken(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM tokens WHERE id=$1`, id)
	return err
}

func (s *PostgresPoolStorage) UpdateTokenLastUsed(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `UPDATE tokens SET last_used_at=$2 WHERE id=$1`, id, time.Now())
	return err
}

func (s *PostgresPoolStorage) LoadCasbinRules(ctx context.Context) ([]CasbinRule, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT id, COALESCE(ptype,''), COALESCE(v0,''), COALESCE(v1,''), COALESCE(v2,''),
               COALESCE(v3,''), COALESCE(v4,''), COALESCE(v5,'')
        FROM casbin_rules ORDER BY id
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CasbinRule
	for rows.Next() {
		var r CasbinRule
		var id int64
		if err := rows.Scan(&id, &r.PType, &r.V0, &r.V1, &r.V2, &r.V3, &r.V4, &r.V5); err != nil {
			return nil, err
		}
		r.ID = uint(id)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresPoolStorage) AddCasbinRule(ctx context.Context, r CasbinRule) error {
	_, err := s.pool.Exec(ctx, `
        INSERT INTO casbin_rules (ptype, v0, v1, v2, v3, v4, v5)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
    `, r.PType, r.V0, r.V1, r.V2, r.V3, r.V4, r.V5)
	return err
}

func (s *PostgresPoolStorage) RemoveCasbinRule(ctx context.Context, r CasbinRule) error {
	_, err := s.pool.Exec(ctx, `
        DELETE FROM casbin_rules
        WHERE ptype=$1 AND v0=$2 AND v1=$3 AND v2=$4 AND v3=$5 AND v4=$6 AND v5=$7
    `, r.PType, r.V0, r.V1, r.V2, r.V3, r.V4, r.V5)
	return err
}

func (s *PostgresPoolStorage) AcquireAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	if _, held := s.lockConns[key]; held {
		return false, nil
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return false, err
	}
	var ok bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&ok); err != nil {
		conn.Release()
		return false, err
	}
	if !ok {
		conn.Release()
		return false, nil
	}
	s.lockConns[key] = conn
	return true, nil
}

func (s *PostgresPoolStorage) ReleaseAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	s.lockMu.Lock()
	conn, held := s.lockConns[key]
	delete(s.lockConns, key)
	s.lockMu.Unlock()
	if !held {
		return false, nil
	}
	defer conn.Release()

	var ok bool
	err := conn.QueryRow(ctx, `SELECT pg_advisory_unlock($1)`, key).Scan(&ok)
	return ok, err
}

func (s *PostgresPoolStorage) UpdateScheduledJob(ctx context.Context, name string, started time.Time, dur time.Duration, success bool, errMsg string) error {
	status := 0
	if success {
		status = 1
	}
	_, err := s.pool.Exec(ctx, `
        INSERT INTO scheduled_jobs (name, last_run_at, last_duration_ms, last_success, last_error)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (name) DO UPDATE SET
            last_run_at=EXCLUDED.last_run_at,
            last_duration_ms=EXCLUDED.last_duration_ms,
            last_success=EXCLUDED.last_success,
            last_error=EXCLUDED.last_error
    `, name, started, dur.Milliseconds(), status, errMsg)
	return err
}

func (s *PostgresPoolStorage) GetScheduledJob(ctx context.Context, name string) (*ScheduledJob, error) {
	j := ScheduledJob{Name: name}
	err := s.pool.QueryRow(ctx, `
        SELECT last_run_at, last_duration_ms, last_success, COALESCE(last_error,'')
        FROM scheduled_jobs WHERE name=$1
    `, name).Scan(&j.LastRunAt, &j.LastDurationMs, &j.LastSuccess, &j.LastError)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &j, nil
}
