package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/leadtrace/internal/model"
)

// Pool is the subset of pgxpool.Pool the store needs; pgxmock satisfies
// it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool (used in tests).
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS enrichment_cache (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	ip           TEXT NOT NULL UNIQUE,
	payload      JSONB NOT NULL,
	status       TEXT NOT NULL DEFAULT 'none',
	attempts     INTEGER NOT NULL DEFAULT 0,
	last_attempt TIMESTAMPTZ,
	resolved_at  TIMESTAMPTZ,
	processing   BOOLEAN NOT NULL DEFAULT false,
	locked_at    TIMESTAMPTZ,
	location     BYTEA,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS people (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	domain     TEXT NOT NULL,
	position   INTEGER NOT NULL,
	person     JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_cache_status ON enrichment_cache(status);
CREATE INDEX IF NOT EXISTS idx_cache_retry ON enrichment_cache(processing, status, attempts, last_attempt);
CREATE INDEX IF NOT EXISTS idx_people_domain ON people(domain, position);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

const postgresRecordCols = `id, ip, payload, status, attempts, last_attempt, resolved_at, processing, locked_at, location, created_at, updated_at`

func (s *PostgresStore) GetRecord(ctx context.Context, ip string) (*model.EnrichmentRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+postgresRecordCols+` FROM enrichment_cache WHERE ip = $1`,
		ip,
	)
	rec, err := scanPostgresRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

func (s *PostgresStore) UpsertRecord(ctx context.Context, rec *model.EnrichmentRecord) error {
	if rec == nil || rec.IP == "" {
		return eris.New("postgres: record without ip")
	}

	now := time.Now().UTC()
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	rec.Processing = false
	rec.LockedAt = time.Time{}

	payload, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal record")
	}

	var location []byte
	if rec.Lat != 0 || rec.Lon != 0 {
		location, err = EncodePoint(rec.Lat, rec.Lon)
		if err != nil {
			return err
		}
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO enrichment_cache
		 (id, ip, payload, status, attempts, last_attempt, resolved_at, processing, locked_at, location, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, false, NULL, $8, $9, $10)
		 ON CONFLICT (ip) DO UPDATE SET
		   payload = excluded.payload, status = excluded.status,
		   attempts = excluded.attempts, last_attempt = excluded.last_attempt,
		   resolved_at = excluded.resolved_at, processing = false, locked_at = NULL,
		   location = excluded.location, updated_at = excluded.updated_at`,
		rec.ID, rec.IP, payload, string(rec.Status), rec.Attempts,
		pgNullTime(rec.LastAttempt), pgNullTime(rec.ResolvedAt), location, rec.CreatedAt, rec.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: upsert record %s", rec.IP)
}

func (s *PostgresStore) TryLock(ctx context.Context, ip string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	now := time.Now().UTC()
	cutoff := now.Add(-ttl)

	skeleton, err := json.Marshal(&model.EnrichmentRecord{IP: ip, Status: model.TierNone})
	if err != nil {
		return false, eris.Wrap(err, "postgres: marshal skeleton")
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO enrichment_cache (id, ip, payload, status, attempts, processing, locked_at, created_at, updated_at)
		 VALUES ($1, $2, $3, 'none', 0, true, $4, $5, $6)
		 ON CONFLICT (ip) DO UPDATE SET
		   processing = true, locked_at = excluded.locked_at, updated_at = excluded.updated_at
		 WHERE enrichment_cache.processing = false OR enrichment_cache.locked_at <= $7`,
		uuid.New().String(), ip, skeleton, now, now, now, cutoff,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: try lock %s", ip)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) Unlock(ctx context.Context, ip string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE enrichment_cache SET processing = false, locked_at = NULL, updated_at = $1 WHERE ip = $2`,
		time.Now().UTC(), ip,
	)
	return eris.Wrapf(err, "postgres: unlock %s", ip)
}

func (s *PostgresStore) SweepExpiredLocks(ctx context.Context, ttl time.Duration) (int, error) {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	cutoff := time.Now().UTC().Add(-ttl)

	tag, err := s.pool.Exec(ctx,
		`UPDATE enrichment_cache SET processing = false, locked_at = NULL
		 WHERE processing = true AND locked_at <= $1`,
		cutoff,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: sweep locks")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) ListRetryDue(ctx context.Context, before time.Time, maxAttempts, limit int) ([]model.EnrichmentRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+postgresRecordCols+` FROM enrichment_cache
		 WHERE processing = false AND status <> 'enriched'
		   AND attempts >= 1 AND attempts < $1
		   AND last_attempt <= $2
		 ORDER BY last_attempt ASC LIMIT $3`,
		maxAttempts, before, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list retry due")
	}
	defer rows.Close()

	var recs []model.EnrichmentRecord
	for rows.Next() {
		rec, err := scanPostgresRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	return recs, eris.Wrap(rows.Err(), "postgres: list retry due iterate")
}

func (s *PostgresStore) ReplacePeople(ctx context.Context, domain string, people []model.Person) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM people WHERE domain = $1`, domain); err != nil {
		return eris.Wrapf(err, "postgres: clear people %s", domain)
	}

	now := time.Now().UTC()
	for i, p := range people {
		personJSON, err := json.Marshal(p)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal person")
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO people (id, domain, position, person, created_at) VALUES ($1, $2, $3, $4, $5)`,
			uuid.New().String(), domain, i, personJSON, now,
		); err != nil {
			return eris.Wrapf(err, "postgres: insert person %s", domain)
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit people")
}

func (s *PostgresStore) GetPeople(ctx context.Context, domain string) ([]model.Person, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT person FROM people WHERE domain = $1 ORDER BY position ASC`,
		domain,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get people %s", domain)
	}
	defer rows.Close()

	var people []model.Person
	for rows.Next() {
		var personJSON []byte
		if err := rows.Scan(&personJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan person")
		}
		var p model.Person
		if err := json.Unmarshal(personJSON, &p); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal person")
		}
		people = append(people, p)
	}
	return people, eris.Wrap(rows.Err(), "postgres: get people iterate")
}

func (s *PostgresStore) CountByStatus(ctx context.Context) (map[model.StatusTier]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM enrichment_cache GROUP BY status`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count by status")
	}
	defer rows.Close()

	counts := make(map[model.StatusTier]int)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan count")
		}
		counts[model.StatusTier(status)] = int(n)
	}
	return counts, eris.Wrap(rows.Err(), "postgres: count iterate")
}

// helpers

func pgNullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func scanPostgresRecord(row pgx.Row) (*model.EnrichmentRecord, error) {
	var (
		rec         model.EnrichmentRecord
		id, ip      string
		payload     []byte
		status      string
		attempts    int
		lastAttempt *time.Time
		resolvedAt  *time.Time
		processing  bool
		lockedAt    *time.Time
		location    []byte
		createdAt   time.Time
		updatedAt   time.Time
	)

	err := row.Scan(&id, &ip, &payload, &status, &attempts,
		&lastAttempt, &resolvedAt, &processing, &lockedAt, &location, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan record")
	}

	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal record")
	}

	rec.ID = id
	rec.IP = ip
	rec.Status = model.StatusTier(status)
	rec.Attempts = attempts
	rec.Processing = processing
	rec.CreatedAt = createdAt
	rec.UpdatedAt = updatedAt
	rec.LastAttempt = timeOrZero(lastAttempt)
	rec.ResolvedAt = timeOrZero(resolvedAt)
	rec.LockedAt = timeOrZero(lockedAt)

	if len(location) > 0 {
		lat, lon, err := DecodePoint(location)
		if err != nil {
			return nil, err
		}
		rec.Lat, rec.Lon = lat, lon
	}
	return &rec, nil
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
