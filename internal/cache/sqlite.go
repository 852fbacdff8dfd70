package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/leadtrace/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS enrichment_cache (
	id           TEXT PRIMARY KEY,
	ip           TEXT NOT NULL UNIQUE,
	payload      TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'none',
	attempts     INTEGER NOT NULL DEFAULT 0,
	last_attempt DATETIME,
	resolved_at  DATETIME,
	processing   INTEGER NOT NULL DEFAULT 0,
	locked_at    DATETIME,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS people (
	id         TEXT PRIMARY KEY,
	domain     TEXT NOT NULL,
	position   INTEGER NOT NULL,
	person     TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_cache_status ON enrichment_cache(status);
CREATE INDEX IF NOT EXISTS idx_cache_retry ON enrichment_cache(processing, status, attempts, last_attempt);
CREATE INDEX IF NOT EXISTS idx_people_domain ON people(domain, position);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const sqliteRecordCols = `id, ip, payload, status, attempts, last_attempt, resolved_at, processing, locked_at, created_at, updated_at`

func (s *SQLiteStore) GetRecord(ctx context.Context, ip string) (*model.EnrichmentRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteRecordCols+` FROM enrichment_cache WHERE ip = ?`,
		ip,
	)
	rec, err := scanSQLiteRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

func (s *SQLiteStore) UpsertRecord(ctx context.Context, rec *model.EnrichmentRecord) error {
	if rec == nil || rec.IP == "" {
		return eris.New("sqlite: record without ip")
	}

	now := time.Now().UTC()
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	// A full upsert always releases the processing lock.
	rec.Processing = false
	rec.LockedAt = time.Time{}

	payload, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal record")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO enrichment_cache
		 (id, ip, payload, status, attempts, last_attempt, resolved_at, processing, locked_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 0, NULL, ?, ?)
		 ON CONFLICT(ip) DO UPDATE SET
		   payload = excluded.payload, status = excluded.status,
		   attempts = excluded.attempts, last_attempt = excluded.last_attempt,
		   resolved_at = excluded.resolved_at, processing = 0, locked_at = NULL,
		   updated_at = excluded.updated_at`,
		rec.ID, rec.IP, string(payload), string(rec.Status), rec.Attempts,
		nullTime(rec.LastAttempt), nullTime(rec.ResolvedAt), rec.CreatedAt, rec.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: upsert record %s", rec.IP)
}

func (s *SQLiteStore) TryLock(ctx context.Context, ip string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	now := time.Now().UTC()
	cutoff := now.Add(-ttl)

	skeleton, err := json.Marshal(&model.EnrichmentRecord{IP: ip, Status: model.TierNone})
	if err != nil {
		return false, eris.Wrap(err, "sqlite: marshal skeleton")
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO enrichment_cache (id, ip, payload, status, attempts, processing, locked_at, created_at, updated_at)
		 VALUES (?, ?, ?, 'none', 0, 1, ?, ?, ?)
		 ON CONFLICT(ip) DO UPDATE SET
		   processing = 1, locked_at = excluded.locked_at, updated_at = excluded.updated_at
		 WHERE enrichment_cache.processing = 0 OR enrichment_cache.locked_at <= ?`,
		uuid.New().String(), ip, string(skeleton), now, now, now, cutoff,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: try lock %s", ip)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) Unlock(ctx context.Context, ip string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE enrichment_cache SET processing = 0, locked_at = NULL, updated_at = ? WHERE ip = ?`,
		time.Now().UTC(), ip,
	)
	return eris.Wrapf(err, "sqlite: unlock %s", ip)
}

func (s *SQLiteStore) SweepExpiredLocks(ctx context.Context, ttl time.Duration) (int, error) {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	cutoff := time.Now().UTC().Add(-ttl)

	res, err := s.db.ExecContext(ctx,
		`UPDATE enrichment_cache SET processing = 0, locked_at = NULL
		 WHERE processing = 1 AND locked_at <= ?`,
		cutoff,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: sweep locks")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) ListRetryDue(ctx context.Context, before time.Time, maxAttempts, limit int) ([]model.EnrichmentRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteRecordCols+` FROM enrichment_cache
		 WHERE processing = 0 AND status <> 'enriched'
		   AND attempts >= 1 AND attempts < ?
		   AND last_attempt <= ?
		 ORDER BY last_attempt ASC LIMIT ?`,
		maxAttempts, before, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list retry due")
	}
	defer rows.Close()

	var recs []model.EnrichmentRecord
	for rows.Next() {
		rec, err := scanSQLiteRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	return recs, eris.Wrap(rows.Err(), "sqlite: list retry due iterate")
}

func (s *SQLiteStore) ReplacePeople(ctx context.Context, domain string, people []model.Person) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM people WHERE domain = ?`, domain); err != nil {
		return eris.Wrapf(err, "sqlite: clear people %s", domain)
	}

	now := time.Now().UTC()
	for i, p := range people {
		personJSON, err := json.Marshal(p)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal person")
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO people (id, domain, position, person, created_at) VALUES (?, ?, ?, ?, ?)`,
			uuid.New().String(), domain, i, string(personJSON), now,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert person %s", domain)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit people")
}

func (s *SQLiteStore) GetPeople(ctx context.Context, domain string) ([]model.Person, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT person FROM people WHERE domain = ? ORDER BY position ASC`,
		domain,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get people %s", domain)
	}
	defer rows.Close()

	var people []model.Person
	for rows.Next() {
		var personJSON string
		if err := rows.Scan(&personJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan person")
		}
		var p model.Person
		if err := json.Unmarshal([]byte(personJSON), &p); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal person")
		}
		people = append(people, p)
	}
	return people, eris.Wrap(rows.Err(), "sqlite: get people iterate")
}

func (s *SQLiteStore) CountByStatus(ctx context.Context) (map[model.StatusTier]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM enrichment_cache GROUP BY status`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count by status")
	}
	defer rows.Close()

	counts := make(map[model.StatusTier]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan count")
		}
		counts[model.StatusTier(status)] = n
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: count iterate")
}

// helpers

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

type scannable interface {
	Scan(dest ...any) error
}

// scanSQLiteRecord rebuilds a record from its payload snapshot, with
// the lifecycle columns taking precedence.
func scanSQLiteRecord(row scannable) (*model.EnrichmentRecord, error) {
	var (
		rec         model.EnrichmentRecord
		id, ip      string
		payload     string
		status      string
		attempts    int
		lastAttempt sql.NullTime
		resolvedAt  sql.NullTime
		processing  bool
		lockedAt    sql.NullTime
		createdAt   time.Time
		updatedAt   time.Time
	)

	err := row.Scan(&id, &ip, &payload, &status, &attempts,
		&lastAttempt, &resolvedAt, &processing, &lockedAt, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan record")
	}

	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal record")
	}

	rec.ID = id
	rec.IP = ip
	rec.Status = model.StatusTier(status)
	rec.Attempts = attempts
	rec.LastAttempt = lastAttempt.Time
	rec.ResolvedAt = resolvedAt.Time
	rec.Processing = processing
	rec.LockedAt = lockedAt.Time
	rec.CreatedAt = createdAt
	rec.UpdatedAt = updatedAt
	return &rec, nil
}
