package enrich

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadtrace/internal/cache"
	"github.com/sells-group/leadtrace/internal/collect"
	"github.com/sells-group/leadtrace/internal/fusion"
	"github.com/sells-group/leadtrace/internal/hostname"
	"github.com/sells-group/leadtrace/internal/model"
	"github.com/sells-group/leadtrace/internal/teamscrape"
	"github.com/sells-group/leadtrace/pkg/ipgeo"
)

// Event is one visitor observation to resolve.
type Event struct {
	IP    string `json:"ip"`
	Email string `json:"email,omitempty"`

	// Lat/Lon is a caller-supplied visitor coordinate; HasLocation
	// distinguishes it from the zero value. When absent the orchestrator
	// looks the IP up itself.
	Lat         float64 `json:"lat,omitempty"`
	Lon         float64 `json:"lon,omitempty"`
	HasLocation bool    `json:"-"`
}

// Result is the outcome of resolving one event.
type Result struct {
	Record    *model.EnrichmentRecord `json:"record,omitempty"`
	Identity  *model.FusedIdentity    `json:"identity,omitempty"`
	Freshness model.Freshness         `json:"freshness"`
	FromCache bool                    `json:"from_cache"`
	Signals   []model.DomainSignal    `json:"signals,omitempty"`
}

// ScrapeReports exposes team-scrape output per probed domain.
// Implemented by collect.WebsiteScrape.
type ScrapeReports interface {
	ReportFor(domain string) *teamscrape.Report
}

// Orchestrator runs the full enrichment pass for visitor events.
type Orchestrator struct {
	store  cache.Store
	runner *collect.Runner
	fuser  *fusion.Engine
	geo    ipgeo.Client
	scrape ScrapeReports
	policy Policy
	now    func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithGeo sets the IP geolocation client used when an event carries no
// coordinate.
func WithGeo(geo ipgeo.Client) Option {
	return func(o *Orchestrator) { o.geo = geo }
}

// WithScrapeReports lets the orchestrator persist people from the
// website-scrape collector's per-domain reports.
func WithScrapeReports(reports ScrapeReports) Option {
	return func(o *Orchestrator) { o.scrape = reports }
}

// WithClock overrides the wall clock (used in tests).
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an Orchestrator.
func New(store cache.Store, runner *collect.Runner, fuser *fusion.Engine, policy Policy, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:  store,
		runner: runner,
		fuser:  fuser,
		policy: policy.withDefaults(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Resolve runs one enrichment pass for the event.
//
// Fresh, retry-pending, and permanently failed records are served from
// cache untouched. A stale record is re-resolved under an advisory
// lock, with the old identity re-entering fusion as weak cache_reuse
// evidence. The write back is improvement-gated: a worse result never
// overwrites a better one, though the attempt itself is always
// recorded. A form-submitted email bypasses the freshness gate; ground
// truth is worth a rework at any age.
func (o *Orchestrator) Resolve(ctx context.Context, event Event) (*Result, error) {
	ip := strings.TrimSpace(event.IP)
	if ip == "" {
		return nil, eris.New("enrich: empty ip")
	}

	prev, err := o.store.GetRecord(ctx, ip)
	if err != nil {
		return nil, err
	}

	now := o.now().UTC()
	fr := FreshnessOf(prev, now, o.policy)

	if event.Email == "" {
		switch fr {
		case model.FreshnessFresh, model.FreshnessRetry, model.FreshnessPermaFailed:
			return &Result{
				Record:    prev,
				Identity:  prev.Identity(),
				Freshness: fr,
				FromCache: true,
			}, nil
		}
	}

	locked, err := o.store.TryLock(ctx, ip, o.policy.LockTTL)
	if err != nil {
		return nil, err
	}
	if !locked {
		zap.L().Debug("enrich: ip locked by another worker", zap.String("ip", ip))
		return &Result{
			Record:    prev,
			Identity:  prev.Identity(),
			Freshness: fr,
			FromCache: true,
		}, nil
	}

	signals := o.collectEvidence(ctx, ip, event, prev)
	identity := o.fuser.Fuse(signals)

	// The scrape report only matters when it is for the fused domain;
	// keyed lookup keeps concurrent resolves from reading each other's.
	var report *teamscrape.Report
	if identity != nil && o.scrape != nil {
		report = o.scrape.ReportFor(identity.Domain)
	}

	next := o.buildRecord(prev, ip, event, identity, report, now)

	if !IsImprovement(prev, next) {
		merged := *prev
		merged.Attempts = next.Attempts
		merged.LastAttempt = now
		if err := o.store.UpsertRecord(ctx, &merged); err != nil {
			if uerr := o.store.Unlock(ctx, ip); uerr != nil {
				zap.L().Warn("enrich: unlock after failed upsert", zap.String("ip", ip), zap.Error(uerr))
			}
			return nil, err
		}
		zap.L().Debug("enrich: result not an improvement, kept previous",
			zap.String("ip", ip),
			zap.String("previous_domain", merged.Domain),
		)
		return &Result{
			Record:    &merged,
			Identity:  merged.Identity(),
			Freshness: FreshnessOf(&merged, now, o.policy),
			Signals:   signals,
		}, nil
	}

	if err := o.store.UpsertRecord(ctx, next); err != nil {
		if uerr := o.store.Unlock(ctx, ip); uerr != nil {
			zap.L().Warn("enrich: unlock after failed upsert", zap.String("ip", ip), zap.Error(uerr))
		}
		return nil, err
	}

	if report != nil && report.Accepted && next.Domain != "" && report.Domain == next.Domain {
		if err := o.store.ReplacePeople(ctx, next.Domain, report.People); err != nil {
			zap.L().Warn("enrich: persist people", zap.String("domain", next.Domain), zap.Error(err))
		}
	}

	zap.L().Info("enrich: resolved",
		zap.String("ip", ip),
		zap.String("domain", next.Domain),
		zap.Float64("confidence", next.Confidence),
		zap.String("status", string(next.Status)),
		zap.Int("signals", len(signals)),
	)

	return &Result{
		Record:    next,
		Identity:  next.Identity(),
		Freshness: FreshnessOf(next, now, o.policy),
		Signals:   signals,
	}, nil
}

// collectEvidence builds the probe target, runs all collectors, and
// folds the stale cached identity back in as weak evidence.
func (o *Orchestrator) collectEvidence(ctx context.Context, ip string, event Event, prev *model.EnrichmentRecord) []model.DomainSignal {
	target := collect.Target{
		IP:          ip,
		Email:       event.Email,
		Lat:         event.Lat,
		Lon:         event.Lon,
		HasLocation: event.HasLocation,
	}

	if prev != nil && prev.Domain != "" {
		target.Candidates = []string{prev.Domain}
		target.Known = &hostname.Known{
			Domain:     prev.Domain,
			Address:    prev.Address,
			City:       prev.City,
			PostalCode: prev.PostalCode,
			Phone:      prev.Phone,
		}
	}
	if domain := collect.EmailDomain(event.Email); domain != "" {
		target.Candidates = append([]string{domain}, target.Candidates...)
	}

	if !target.HasLocation && o.geo != nil {
		if res, err := o.geo.Lookup(ctx, ip); err == nil && res.Located() {
			target.Lat, target.Lon = res.Lat, res.Lon
			target.HasLocation = true
		} else if err != nil {
			zap.L().Debug("enrich: ip geolocation unavailable", zap.String("ip", ip), zap.Error(err))
		}
	}

	signals := o.runner.Collect(ctx, target)

	if prev != nil && prev.Domain != "" {
		sig, ok := model.NewSignal(prev.Domain, string(model.SourceCacheReuse), prev.Confidence, "previously resolved identity")
		if ok {
			signals = append(signals, sig)
		}
	}

	return signals
}

// buildRecord assembles the candidate replacement record. Contact
// fields from the previous record carry forward; the improvement gate
// decides whether the whole thing lands.
func (o *Orchestrator) buildRecord(prev *model.EnrichmentRecord, ip string, event Event, identity *model.FusedIdentity, report *teamscrape.Report, now time.Time) *model.EnrichmentRecord {
	next := &model.EnrichmentRecord{IP: ip}
	if prev != nil {
		*next = *prev
	}
	next.IP = ip
	next.Attempts++
	next.LastAttempt = now

	if event.HasLocation {
		next.Lat, next.Lon = event.Lat, event.Lon
	}
	if event.Email != "" && next.Email == "" {
		next.Email = strings.ToLower(strings.TrimSpace(event.Email))
	}

	if identity == nil {
		next.Status = model.TierNone
		return next
	}

	next.Domain = identity.Domain
	next.Source = identity.Source
	next.Confidence = identity.Confidence
	next.Reason = identity.Reason
	next.ResolvedAt = now

	if report != nil && report.Accepted && report.Domain == identity.Domain {
		next.PeopleCount = len(report.People)
	}

	if next.ContactFieldCount() >= 2 || next.PeopleCount > 0 {
		next.Status = model.TierEnriched
	} else {
		next.Status = model.TierPartial
	}
	return next
}

// RetryDue returns records whose backoff window has elapsed, applying
// the exact per-attempt schedule on top of the store's coarse filter.
func (o *Orchestrator) RetryDue(ctx context.Context, limit int) ([]model.EnrichmentRecord, error) {
	now := o.now().UTC()
	recs, err := o.store.ListRetryDue(ctx, now, o.policy.MaxAttempts, limit)
	if err != nil {
		return nil, err
	}

	due := recs[:0]
	for _, rec := range recs {
		if now.Sub(rec.LastAttempt) >= o.policy.Backoff.WaitFor(rec.Attempts) {
			due = append(due, rec)
		}
	}
	return due, nil
}

// SweepLocks releases abandoned processing locks.
func (o *Orchestrator) SweepLocks(ctx context.Context) (int, error) {
	return o.store.SweepExpiredLocks(ctx, o.policy.LockTTL)
}
