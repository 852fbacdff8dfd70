// Package enrich orchestrates one enrichment pass for a visitor IP:
// cache consult, advisory locking, parallel evidence collection, fusion,
// and the improvement-gated write back to the cache.
package enrich

import (
	"time"

	"github.com/sells-group/leadtrace/internal/cache"
	"github.com/sells-group/leadtrace/internal/model"
	"github.com/sells-group/leadtrace/internal/resilience"
)

// Policy holds the cache lifecycle tunables.
type Policy struct {
	// FreshTTL is how long an enriched record is served without rework.
	FreshTTL time.Duration `yaml:"fresh_ttl" mapstructure:"fresh_ttl"`

	// RecrawlTTL is how long scraped people remain current before a
	// stale record also re-runs the team scraper.
	RecrawlTTL time.Duration `yaml:"recrawl_ttl" mapstructure:"recrawl_ttl"`

	// MaxAttempts bounds retries; at the bound an unresolved record is
	// permanently failed.
	MaxAttempts int `yaml:"max_attempts" mapstructure:"max_attempts"`

	// LockTTL is the advisory processing lock lifetime.
	LockTTL time.Duration `yaml:"lock_ttl" mapstructure:"lock_ttl"`

	// Backoff spaces retry attempts.
	Backoff resilience.Schedule `yaml:"backoff" mapstructure:"backoff"`
}

// DefaultPolicy returns the production lifecycle settings.
func DefaultPolicy() Policy {
	return Policy{
		FreshTTL:    7 * 24 * time.Hour,
		RecrawlTTL:  14 * 24 * time.Hour,
		MaxAttempts: 8,
		LockTTL:     cache.DefaultLockTTL,
		Backoff:     resilience.DefaultSchedule(),
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.FreshTTL <= 0 {
		p.FreshTTL = d.FreshTTL
	}
	if p.RecrawlTTL <= 0 {
		p.RecrawlTTL = d.RecrawlTTL
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.LockTTL <= 0 {
		p.LockTTL = d.LockTTL
	}
	if p.Backoff.Initial <= 0 {
		p.Backoff = d.Backoff
	}
	return p
}

// FreshnessOf derives the lifecycle state of a cached record. The state
// is never stored; it is a pure function of the record and the clock.
func FreshnessOf(rec *model.EnrichmentRecord, now time.Time, p Policy) model.Freshness {
	p = p.withDefaults()

	if rec == nil {
		return model.FreshnessStale
	}

	if rec.Status != model.TierEnriched && rec.Attempts >= p.MaxAttempts {
		return model.FreshnessPermaFailed
	}

	if rec.Status == model.TierEnriched && !rec.ResolvedAt.IsZero() {
		if now.Sub(rec.ResolvedAt) <= p.FreshTTL {
			return model.FreshnessFresh
		}
		return model.FreshnessStale
	}

	if rec.Attempts >= 1 && !rec.LastAttempt.IsZero() {
		if now.Sub(rec.LastAttempt) < p.Backoff.WaitFor(rec.Attempts) {
			return model.FreshnessRetry
		}
	}

	return model.FreshnessStale
}
