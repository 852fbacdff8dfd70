package collect

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadtrace/internal/model"
	"github.com/sells-group/leadtrace/internal/teamscrape"
)

func teamPageServer(t *testing.T, withPeople bool) *httptest.Server {
	t.Helper()
	filler := "<!-- " + strings.Repeat("filler ", 6000) + " -->"
	people := ""
	if withPeople {
		people = `<div class="team-member"><h3>Jan de Vries</h3><p>Directeur</p></div>
		<div class="team-member"><h3>Sophie Jansen</h3><p>CTO</p></div>`
	}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/team" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, "<html><head><title>Team</title></head><body>%s%s</body></html>", people, filler)
	}))
}

func TestWebsiteScrapeAcceptedTeamPage(t *testing.T) {
	srv := teamPageServer(t, true)
	defer srv.Close()

	scraper := teamscrape.NewScraper(2*time.Second, teamscrape.WithBaseURL(srv.URL))
	c := NewWebsiteScrape(scraper)

	signals, err := c.Collect(context.Background(), Target{
		IP:         "203.0.113.7",
		Candidates: []string{"acme.nl"},
	})
	require.NoError(t, err)

	require.Len(t, signals, 1)
	assert.Equal(t, "acme.nl", signals[0].Domain)
	assert.Equal(t, model.SourceWebsiteScrape, signals[0].Source)
	// 0.15 base plus 0.15 per credibility point; two people on a /team
	// URL score credibility 2.
	assert.InDelta(t, 0.45, signals[0].Confidence, 1e-9)

	report := c.ReportFor("acme.nl")
	require.NotNil(t, report)
	assert.True(t, report.Accepted)
	assert.Len(t, report.People, 2)
}

func TestWebsiteScrapeRejectedPageYieldsNoSignal(t *testing.T) {
	srv := teamPageServer(t, false)
	defer srv.Close()

	scraper := teamscrape.NewScraper(2*time.Second, teamscrape.WithBaseURL(srv.URL))
	c := NewWebsiteScrape(scraper)

	signals, err := c.Collect(context.Background(), Target{
		IP:         "203.0.113.7",
		Candidates: []string{"acme.nl"},
	})
	require.NoError(t, err)
	assert.Empty(t, signals)

	report := c.ReportFor("acme.nl")
	require.NotNil(t, report, "the report survives for the orchestrator even when rejected")
	assert.False(t, report.Accepted)
}

func TestWebsiteScrapeNoCandidates(t *testing.T) {
	c := NewWebsiteScrape(teamscrape.NewScraper(time.Second))
	signals, err := c.Collect(context.Background(), Target{IP: "203.0.113.7"})
	require.NoError(t, err)
	assert.Empty(t, signals)
	assert.Nil(t, c.ReportFor("acme.nl"))
}

func TestWebsiteScrapeReportsKeyedByDomain(t *testing.T) {
	srv := teamPageServer(t, true)
	defer srv.Close()

	scraper := teamscrape.NewScraper(2*time.Second, teamscrape.WithBaseURL(srv.URL))
	c := NewWebsiteScrape(scraper)

	for _, domain := range []string{"acme.nl", "beta.nl"} {
		_, err := c.Collect(context.Background(), Target{
			IP:         "203.0.113.7",
			Candidates: []string{domain},
		})
		require.NoError(t, err)
	}

	acme := c.ReportFor("acme.nl")
	beta := c.ReportFor("beta.nl")
	require.NotNil(t, acme)
	require.NotNil(t, beta)
	assert.Equal(t, "acme.nl", acme.Domain, "each domain keeps its own report")
	assert.Equal(t, "beta.nl", beta.Domain)
	assert.Nil(t, c.ReportFor("never-probed.nl"))
}

func TestWebsiteScrapeConcurrentCollects(t *testing.T) {
	srv := teamPageServer(t, true)
	defer srv.Close()

	scraper := teamscrape.NewScraper(2*time.Second, teamscrape.WithBaseURL(srv.URL))
	c := NewWebsiteScrape(scraper)

	domains := []string{"acme.nl", "beta.nl", "gamma.nl", "delta.nl"}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		domain := domains[i%len(domains)]
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := c.Collect(context.Background(), Target{
				IP:         "203.0.113.7",
				Candidates: []string{domain},
			})
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			// A concurrent reader must never see another domain's report.
			if report := c.ReportFor(domain); report != nil {
				assert.Equal(t, domain, report.Domain)
			}
		}()
	}
	wg.Wait()

	for _, domain := range domains {
		report := c.ReportFor(domain)
		require.NotNil(t, report, domain)
		assert.Equal(t, domain, report.Domain)
	}
}
