package enrich

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/leadtrace/internal/model"
)

func TestFreshnessOf(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := DefaultPolicy()

	tests := []struct {
		name string
		rec  *model.EnrichmentRecord
		want model.Freshness
	}{
		{"never seen", nil, model.FreshnessStale},
		{
			"recently enriched",
			&model.EnrichmentRecord{Status: model.TierEnriched, ResolvedAt: now.Add(-24 * time.Hour), Attempts: 1},
			model.FreshnessFresh,
		},
		{
			"enriched at the ttl boundary",
			&model.EnrichmentRecord{Status: model.TierEnriched, ResolvedAt: now.Add(-7 * 24 * time.Hour), Attempts: 1},
			model.FreshnessFresh,
		},
		{
			"enriched past the ttl",
			&model.EnrichmentRecord{Status: model.TierEnriched, ResolvedAt: now.Add(-8 * 24 * time.Hour), Attempts: 1},
			model.FreshnessStale,
		},
		{
			"failed attempt inside backoff",
			&model.EnrichmentRecord{Status: model.TierNone, Attempts: 1, LastAttempt: now.Add(-5 * time.Minute)},
			model.FreshnessRetry,
		},
		{
			"failed attempt past backoff",
			&model.EnrichmentRecord{Status: model.TierNone, Attempts: 1, LastAttempt: now.Add(-20 * time.Minute)},
			model.FreshnessStale,
		},
		{
			"fourth attempt waits two hours",
			&model.EnrichmentRecord{Status: model.TierNone, Attempts: 4, LastAttempt: now.Add(-90 * time.Minute)},
			model.FreshnessRetry,
		},
		{
			"attempts exhausted",
			&model.EnrichmentRecord{Status: model.TierNone, Attempts: 8, LastAttempt: now.Add(-time.Hour)},
			model.FreshnessPermaFailed,
		},
		{
			"enriched records never permanently fail",
			&model.EnrichmentRecord{Status: model.TierEnriched, ResolvedAt: now.Add(-time.Hour), Attempts: 9},
			model.FreshnessFresh,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, FreshnessOf(tc.rec, now, p))
		})
	}
}

func TestPolicyWithDefaults(t *testing.T) {
	p := Policy{}.withDefaults()
	assert.Equal(t, 7*24*time.Hour, p.FreshTTL)
	assert.Equal(t, 8, p.MaxAttempts)
	assert.Equal(t, 300*time.Second, p.LockTTL)
	assert.Equal(t, 15*time.Minute, p.Backoff.Initial)

	custom := Policy{MaxAttempts: 3}.withDefaults()
	assert.Equal(t, 3, custom.MaxAttempts)
	assert.Equal(t, 7*24*time.Hour, custom.FreshTTL)
}
