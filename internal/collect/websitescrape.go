package collect

import (
	"context"
	"fmt"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadtrace/internal/model"
	"github.com/sells-group/leadtrace/internal/teamscrape"
)

// WebsiteScrape runs the team-page scraper against the leading
// candidate domain. An accepted team page is weak corroboration that
// the domain is a real operating company; the people it yields are a
// side artifact handled by the orchestrator.
type WebsiteScrape struct {
	scraper *teamscrape.Scraper

	// reports holds scrape output per probed domain. Resolve calls run
	// concurrently against the shared collector, so access is locked and
	// lookups are keyed rather than last-write-wins.
	mu      sync.Mutex
	reports map[string]*teamscrape.Report
}

// NewWebsiteScrape creates the collector.
func NewWebsiteScrape(scraper *teamscrape.Scraper) *WebsiteScrape {
	return &WebsiteScrape{
		scraper: scraper,
		reports: make(map[string]*teamscrape.Report),
	}
}

func (c *WebsiteScrape) Name() string { return "website_scrape" }

// ReportFor returns the most recent scrape report for a domain, or nil
// when the domain was never probed.
func (c *WebsiteScrape) ReportFor(domain string) *teamscrape.Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reports[model.NormalizeDomain(domain)]
}

// Collect implements Collector.
func (c *WebsiteScrape) Collect(ctx context.Context, target Target) ([]model.DomainSignal, error) {
	if len(target.Candidates) == 0 {
		return nil, nil
	}
	domain := model.NormalizeDomain(target.Candidates[0])
	if domain == "" {
		return nil, nil
	}

	report, err := c.scraper.ScrapeDomain(ctx, domain)
	if err != nil {
		return nil, eris.Wrap(err, "website_scrape: scrape")
	}

	c.mu.Lock()
	c.reports[domain] = report
	c.mu.Unlock()

	if !report.Accepted {
		return nil, nil
	}

	// 0.15 base plus 0.15 per credibility point keeps this channel weak
	// even at full credibility.
	conf := 0.15 + 0.15*float64(report.Credibility)
	reason := fmt.Sprintf("team page with %d people (credibility %d)", len(report.People), report.Credibility)

	sig, ok := model.NewSignal(domain, string(model.SourceWebsiteScrape), conf, reason)
	if !ok {
		return nil, nil
	}
	return []model.DomainSignal{sig}, nil
}
