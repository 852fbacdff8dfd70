package model

import "time"

// StatusTier ranks how complete an enrichment record is.
type StatusTier string

// Enrichment status tiers, ordered none < partial < enriched.
const (
	TierNone     StatusTier = "none"
	TierPartial  StatusTier = "partial"
	TierEnriched StatusTier = "enriched"
)

// Rank returns the ordinal of the tier for comparisons.
func (t StatusTier) Rank() int {
	switch t {
	case TierEnriched:
		return 2
	case TierPartial:
		return 1
	default:
		return 0
	}
}

// Freshness is the cache-key lifecycle state, derived from attempt
// count and elapsed time rather than stored directly.
type Freshness string

// Freshness states.
const (
	FreshnessFresh       Freshness = "fresh"
	FreshnessStale       Freshness = "stale"
	FreshnessRetry       Freshness = "retry_pending"
	FreshnessPermaFailed Freshness = "permanently_failed"
)

// EnrichmentRecord is the persisted per-IP enrichment row: the last
// fused identity plus whatever contact detail the collectors produced.
type EnrichmentRecord struct {
	ID          string     `json:"id"`
	IP          string     `json:"ip"`
	Domain      string     `json:"domain,omitempty"`
	Source      Source     `json:"enrichment_source,omitempty"`
	Confidence  float64    `json:"confidence,omitempty"`
	Reason      string     `json:"confidence_reason,omitempty"`
	CompanyName string     `json:"company_name,omitempty"`
	Phone       string     `json:"phone,omitempty"`
	Email       string     `json:"email,omitempty"`
	Website     string     `json:"website,omitempty"`
	LinkedIn    string     `json:"linkedin,omitempty"`
	Address     string     `json:"address,omitempty"`
	City        string     `json:"city,omitempty"`
	PostalCode  string     `json:"postal_code,omitempty"`
	Country     string     `json:"country,omitempty"`
	Category    string     `json:"category,omitempty"`
	Lat         float64    `json:"lat,omitempty"`
	Lon         float64    `json:"lon,omitempty"`
	PeopleCount int        `json:"people_count,omitempty"`
	Status      StatusTier `json:"status"`
	Attempts    int        `json:"attempts"`
	LastAttempt time.Time  `json:"last_attempt,omitzero"`
	ResolvedAt  time.Time  `json:"resolved_at,omitzero"`
	Processing  bool       `json:"processing"`
	LockedAt    time.Time  `json:"locked_at,omitzero"`
	CreatedAt   time.Time  `json:"created_at,omitzero"`
	UpdatedAt   time.Time  `json:"updated_at,omitzero"`
}

// Identity extracts the fused identity held by the record, or nil when
// the record has no resolved domain.
func (r *EnrichmentRecord) Identity() *FusedIdentity {
	if r == nil || r.Domain == "" {
		return nil
	}
	return &FusedIdentity{
		Domain:     r.Domain,
		Source:     r.Source,
		Confidence: r.Confidence,
		Reason:     r.Reason,
	}
}

// ContactFieldCount counts populated contact fields, used by the
// improvement gate to decide whether a rewrite adds information.
func (r *EnrichmentRecord) ContactFieldCount() int {
	if r == nil {
		return 0
	}
	n := 0
	for _, f := range []string{
		r.CompanyName, r.Phone, r.Email, r.Website, r.LinkedIn,
		r.Address, r.City, r.PostalCode, r.Country, r.Category,
	} {
		if f != "" {
			n++
		}
	}
	return n
}

// LockExpired reports whether an advisory processing lock is stale.
func (r *EnrichmentRecord) LockExpired(now time.Time, ttl time.Duration) bool {
	if r == nil || !r.Processing {
		return true
	}
	return now.Sub(r.LockedAt) > ttl
}
