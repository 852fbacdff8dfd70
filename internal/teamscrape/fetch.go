// Package teamscrape extracts people-profile cards from a company's
// team/about pages and scores page credibility. The people dataset is a
// side artifact of enrichment; an accepted scrape also backs a weak
// website_scrape identity signal.
package teamscrape

import (
	"context"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

// Page size guardrails: below the floor a page cannot hold real team
// content, above the ceiling it is not worth parsing.
const (
	minPageBytes = 30 * 1024
	maxPageBytes = 2 << 20
)

type fetcher struct {
	client    *http.Client
	userAgent string
}

func newFetcher(timeout time.Duration) *fetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &fetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: "Mozilla/5.0 (compatible; LeadtraceBot/1.0)",
	}
}

// fetchHTML fetches a URL and returns decoded UTF-8 HTML, enforcing the
// content-type and size guardrails.
func (f *fetcher) fetchHTML(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", eris.Wrap(err, "teamscrape: build request")
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", eris.Wrapf(err, "teamscrape: fetch %s", pageURL)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", eris.Errorf("teamscrape: status %d for %s", resp.StatusCode, pageURL)
	}

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || (mediaType != "text/html" && mediaType != "application/xhtml+xml") {
		return "", eris.Errorf("teamscrape: not html (%s)", resp.Header.Get("Content-Type"))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes+1))
	if err != nil {
		return "", eris.Wrap(err, "teamscrape: read body")
	}
	if len(body) > maxPageBytes {
		return "", eris.Errorf("teamscrape: page exceeds %d bytes", maxPageBytes)
	}
	if len(body) < minPageBytes {
		return "", eris.Errorf("teamscrape: page under %d bytes", minPageBytes)
	}

	html := string(body)
	if charset := strings.ToLower(params["charset"]); charset != "" && charset != "utf-8" {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return "", eris.Wrapf(err, "teamscrape: unsupported charset %q", charset)
		}
		decoded, err := enc.NewDecoder().String(html)
		if err != nil {
			return "", eris.Wrapf(err, "teamscrape: decode charset %q", charset)
		}
		html = decoded
	}

	return html, nil
}
