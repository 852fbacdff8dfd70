package teamscrape

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadtrace/internal/model"
)

// fixedTeamPaths are always tried after the homepage.
var fixedTeamPaths = []string{"/team", "/about", "/over-ons"}

// maxExtraAnchors caps how many homepage anchors matching team keywords
// get followed beyond the fixed paths.
const maxExtraAnchors = 3

// Report is the outcome of scraping one domain's team pages.
type Report struct {
	Domain        string         `json:"domain"`
	People        []model.Person `json:"people"`
	Credibility   int            `json:"credibility"`
	Accepted      bool           `json:"accepted"`
	PagesFetched  int            `json:"pages_fetched"`
	AcceptedPage  string         `json:"accepted_page,omitempty"`
	HasStructured bool           `json:"has_structured"`
}

// Scraper fetches a company's likely team pages and extracts people.
type Scraper struct {
	fetcher *fetcher
	baseURL string
}

// ScraperOption configures a Scraper.
type ScraperOption func(*Scraper)

// WithBaseURL overrides the https://<domain> base (used in tests).
func WithBaseURL(base string) ScraperOption {
	return func(s *Scraper) {
		s.baseURL = strings.TrimSuffix(base, "/")
	}
}

// NewScraper creates a Scraper. Zero timeout means 10 seconds per page.
func NewScraper(timeout time.Duration, opts ...ScraperOption) *Scraper {
	s := &Scraper{fetcher: newFetcher(timeout)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScrapeDomain scrapes the homepage plus candidate team paths for the
// domain and returns the best page's people with a credibility score.
func (s *Scraper) ScrapeDomain(ctx context.Context, domain string) (*Report, error) {
	domain = model.NormalizeDomain(domain)
	if domain == "" {
		return nil, eris.New("teamscrape: empty domain")
	}

	report := &Report{Domain: domain}
	base := s.baseURL
	if base == "" {
		base = "https://" + domain
	}

	paths := append([]string{""}, fixedTeamPaths...)

	// The homepage may link to a localized team page not on the fixed
	// list; pick up a few keyword-matching anchors.
	if home, err := s.fetchDoc(ctx, base+"/"); err == nil {
		report.PagesFetched++
		paths = append(paths, discoverAnchors(home)...)
		s.scorePage(report, home, base+"/")
	} else {
		zap.L().Debug("teamscrape: homepage fetch failed",
			zap.String("domain", domain),
			zap.Error(err),
		)
	}

	for _, path := range paths {
		if path == "" || report.Accepted {
			continue
		}
		pageURL := base + path
		doc, err := s.fetchDoc(ctx, pageURL)
		if err != nil {
			zap.L().Debug("teamscrape: page fetch failed",
				zap.String("url", pageURL),
				zap.Error(err),
			)
			continue
		}
		report.PagesFetched++
		s.scorePage(report, doc, pageURL)
	}

	return report, nil
}

func (s *Scraper) fetchDoc(ctx context.Context, pageURL string) (*goquery.Document, error) {
	html, err := s.fetcher.fetchHTML(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, eris.Wrap(err, "teamscrape: parse html")
	}
	return doc, nil
}

// scorePage extracts people from one page and promotes it to the
// report when it beats the current best.
func (s *Scraper) scorePage(report *Report, doc *goquery.Document, pageURL string) {
	jsonldPeople := extractJSONLD(doc)
	domPeople := extractDOM(doc)
	people := Dedupe(append(jsonldPeople, domPeople...))
	if len(people) == 0 {
		return
	}

	hasStructured := len(jsonldPeople) > 0
	title := doc.Find("title").First().Text()
	cred := Credibility(people, hasStructured, pageURL+" "+title)

	if cred > report.Credibility || (cred == report.Credibility && len(people) > len(report.People)) {
		report.People = people
		report.Credibility = cred
		report.HasStructured = hasStructured
		report.Accepted = Accepted(people, cred)
		if report.Accepted {
			report.AcceptedPage = pageURL
		}
	}
}

// discoverAnchors returns up to maxExtraAnchors homepage link paths
// whose anchor text matches team/about keywords.
func discoverAnchors(doc *goquery.Document) []string {
	var paths []string
	seen := make(map[string]bool)

	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if len(paths) >= maxExtraAnchors {
			return false
		}
		text := strings.ToLower(strings.TrimSpace(a.Text()))
		if text == "" || !hasTeamContext(text) {
			return true
		}
		href, _ := a.Attr("href")
		if href == "" || strings.HasPrefix(href, "http") || strings.HasPrefix(href, "#") ||
			strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "tel:") {
			return true
		}
		if !strings.HasPrefix(href, "/") {
			href = "/" + href
		}
		if seen[href] || containsPath(fixedTeamPaths, href) {
			return true
		}
		seen[href] = true
		paths = append(paths, href)
		return true
	})

	return paths
}

func containsPath(paths []string, p string) bool {
	for _, candidate := range paths {
		if candidate == p {
			return true
		}
	}
	return false
}
