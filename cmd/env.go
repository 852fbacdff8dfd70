package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadtrace/internal/cache"
	"github.com/sells-group/leadtrace/internal/collect"
	"github.com/sells-group/leadtrace/internal/enrich"
	"github.com/sells-group/leadtrace/internal/fusion"
	"github.com/sells-group/leadtrace/internal/geomatch"
	"github.com/sells-group/leadtrace/internal/resilience"
	"github.com/sells-group/leadtrace/internal/teamscrape"
	"github.com/sells-group/leadtrace/pkg/ipgeo"
	"github.com/sells-group/leadtrace/pkg/places"
)

// enrichEnv holds the store, collectors, and orchestrator shared by the
// resolve/batch/serve commands.
type enrichEnv struct {
	Store        cache.Store
	Orchestrator *enrich.Orchestrator
}

// Close releases resources held by the environment.
func (e *enrichEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initStore opens the configured cache backend.
func initStore(ctx context.Context) (cache.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		st, err := cache.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
		if err != nil {
			return nil, eris.Wrap(err, "open postgres store")
		}
		zap.L().Info("using postgres store")
		return st, nil
	default:
		st, err := cache.NewSQLite(cfg.Store.SQLitePath)
		if err != nil {
			return nil, eris.Wrap(err, "open sqlite store")
		}
		zap.L().Info("using sqlite store", zap.String("path", cfg.Store.SQLitePath))
		return st, nil
	}
}

// initEnrich sets up the store, probe stack, fusion engine, and
// orchestrator for the given run mode. Callers should defer env.Close().
func initEnrich(ctx context.Context, mode string) (*enrichEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	geoClient := ipgeo.NewClient(
		ipgeo.WithBaseURL(cfg.IPGeo.BaseURL),
		ipgeo.WithRateLimit(cfg.IPGeo.RPS, cfg.IPGeo.Burst),
	)

	timeout := cfg.Collect.Timeout()
	scraper := teamscrape.NewScraper(cfg.Scrape.PageTimeout())
	websiteScrape := collect.NewWebsiteScrape(scraper)

	collectors := []collect.Collector{
		collect.NewReverseDNS(nil),
		collect.NewTLSCert(timeout),
		collect.NewHostHeader(timeout, cfg.Collect.RequireBrand),
		collect.NewFavicon(timeout, nil),
		collect.NewBaseline(geoClient),
		collect.NewFormTruth(),
		websiteScrape,
	}

	// Directory lookups need an API key; the stack degrades without one.
	if cfg.Places.Key != "" {
		placesClient := places.NewClient(cfg.Places.Key, places.WithBaseURL(cfg.Places.BaseURL))
		collectors = append(collectors, collect.NewDirectory(placesClient, geomatch.New()))
		zap.L().Info("directory collector enabled")
	} else {
		zap.L().Debug("LEADTRACE_PLACES_KEY not set, directory collector disabled")
	}

	runner := collect.NewRunner(timeout, collectors...)

	policy := fusion.DefaultPolicy()
	if cfg.Fusion.PolicyFile != "" {
		policy, err = fusion.LoadPolicy(cfg.Fusion.PolicyFile)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		zap.L().Info("fusion policy loaded", zap.String("path", cfg.Fusion.PolicyFile))
	}
	if cfg.Fusion.AcceptThreshold > 0 {
		policy.AcceptThreshold = cfg.Fusion.AcceptThreshold
	}
	fuser := fusion.NewEngine(policy)

	lifecycle := enrich.Policy{
		FreshTTL:    cfg.Enrich.FreshTTL(),
		RecrawlTTL:  cfg.Enrich.RecrawlTTL(),
		MaxAttempts: cfg.Enrich.MaxAttempts,
		LockTTL:     cfg.Enrich.LockTTL(),
		Backoff: resilience.Schedule{
			Initial: time.Duration(cfg.Enrich.RetryInitialMins) * time.Minute,
			Max:     time.Duration(cfg.Enrich.RetryMaxHours) * time.Hour,
		},
	}

	orch := enrich.New(st, runner, fuser, lifecycle,
		enrich.WithGeo(geoClient),
		enrich.WithScrapeReports(websiteScrape),
	)

	return &enrichEnv{Store: st, Orchestrator: orch}, nil
}
