// Package cache persists per-IP enrichment records and the people
// extracted from team pages. Two backends exist: SQLite for single-node
// and local use, Postgres for shared deployments.
package cache

import (
	"context"
	"time"

	"github.com/sells-group/leadtrace/internal/model"
)

// DefaultLockTTL bounds how long a processing lock may be held before
// other workers treat it as abandoned.
const DefaultLockTTL = 300 * time.Second

// Store is the persistence interface for the enrichment cache.
//
// Lifecycle columns (processing, locked_at, attempts, last_attempt) are
// authoritative in the row itself; the record payload is a snapshot
// from the last full upsert.
type Store interface {
	// GetRecord returns the cached record for an IP, or nil when the IP
	// was never seen.
	GetRecord(ctx context.Context, ip string) (*model.EnrichmentRecord, error)

	// UpsertRecord writes the full record for rec.IP and releases any
	// processing lock held on the row.
	UpsertRecord(ctx context.Context, rec *model.EnrichmentRecord) error

	// TryLock atomically claims the IP for processing. It succeeds when
	// the row is unlocked, its lock is older than ttl, or the row does
	// not exist yet (a locked skeleton row is created).
	TryLock(ctx context.Context, ip string, ttl time.Duration) (bool, error)

	// Unlock releases a processing lock without touching the payload.
	Unlock(ctx context.Context, ip string) error

	// SweepExpiredLocks clears locks older than ttl and returns how many
	// rows were released.
	SweepExpiredLocks(ctx context.Context, ttl time.Duration) (int, error)

	// ListRetryDue returns unlocked, not-yet-enriched records whose last
	// attempt is older than before and whose attempt count sits in
	// [1, maxAttempts). The caller applies the exact backoff schedule.
	ListRetryDue(ctx context.Context, before time.Time, maxAttempts, limit int) ([]model.EnrichmentRecord, error)

	// ReplacePeople swaps the stored people set for a domain.
	ReplacePeople(ctx context.Context, domain string, people []model.Person) error

	// GetPeople returns the stored people for a domain in insert order.
	GetPeople(ctx context.Context, domain string) ([]model.Person, error)

	// CountByStatus reports how many records sit in each status tier.
	CountByStatus(ctx context.Context) (map[model.StatusTier]int, error)

	Migrate(ctx context.Context) error
	Close() error
}
