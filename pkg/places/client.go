// Package places queries a business-directory API (Google Places style)
// for candidate company locations by name or domain.
package places

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/leadtrace/internal/model"
	"github.com/sells-group/leadtrace/internal/resilience"
)

const defaultBaseURL = "https://maps.googleapis.com/maps/api/place"

// maxDetailFetches bounds how many candidates get a detail lookup per
// search; directory calls are billed per request.
const maxDetailFetches = 5

// Client searches the business directory.
type Client interface {
	// Search runs a text search and resolves details for the top
	// candidates (address, phone, website, coordinates).
	Search(ctx context.Context, query string) ([]model.Place, error)
}

// Option configures the client.
type Option func(*client)

// WithBaseURL overrides the API endpoint (used in tests).
func WithBaseURL(baseURL string) Option {
	return func(c *client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) {
		c.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second limit.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithRetry overrides the transient-failure retry settings.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *client) {
		c.retry = cfg
	}
}

type client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      resilience.RetryConfig
}

// NewClient creates a directory client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(10, 10),
		retry:      resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type textSearchResponse struct {
	Results []struct {
		PlaceID string `json:"place_id"`
		Name    string `json:"name"`
	} `json:"results"`
	Status string `json:"status"`
}

type detailsResponse struct {
	Result struct {
		Name             string `json:"name"`
		FormattedAddress string `json:"formatted_address"`
		FormattedPhone   string `json:"international_phone_number"`
		Website          string `json:"website"`
		Types            []string `json:"types"`
		Geometry         struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"result"`
	Status string `json:"status"`
}

// Search implements Client.
func (c *client) Search(ctx context.Context, query string) ([]model.Place, error) {
	if strings.TrimSpace(query) == "" {
		return nil, eris.New("places: empty query")
	}

	var searchResp textSearchResponse
	params := url.Values{
		"query": {query},
		"key":   {c.apiKey},
	}
	if err := c.getJSON(ctx, "/textsearch/json?"+params.Encode(), &searchResp); err != nil {
		return nil, err
	}
	if searchResp.Status != "OK" || len(searchResp.Results) == 0 {
		return nil, nil
	}

	candidates := searchResp.Results
	if len(candidates) > maxDetailFetches {
		candidates = candidates[:maxDetailFetches]
	}

	var places []model.Place
	for _, cand := range candidates {
		place, err := c.details(ctx, cand.PlaceID)
		if err != nil {
			zap.L().Debug("places: detail fetch failed",
				zap.String("place_id", cand.PlaceID),
				zap.Error(err),
			)
			continue
		}
		if place != nil {
			places = append(places, *place)
		}
	}

	return places, nil
}

// details fetches structured detail for one candidate.
func (c *client) details(ctx context.Context, placeID string) (*model.Place, error) {
	params := url.Values{
		"place_id": {placeID},
		"fields":   {"name,formatted_address,international_phone_number,website,geometry,types"},
		"key":      {c.apiKey},
	}

	var resp detailsResponse
	if err := c.getJSON(ctx, "/details/json?"+params.Encode(), &resp); err != nil {
		return nil, err
	}
	if resp.Status != "OK" {
		return nil, eris.Errorf("places: details status %s", resp.Status)
	}

	r := resp.Result
	place := model.Place{
		Name:    r.Name,
		Address: r.FormattedAddress,
		Phone:   r.FormattedPhone,
		Website: r.Website,
		Lat:     r.Geometry.Location.Lat,
		Lon:     r.Geometry.Location.Lng,
	}
	if len(r.Types) > 0 {
		place.Category = r.Types[0]
	}

	if street, postal, city, country, ok := ParseAddress(r.FormattedAddress); ok {
		place.Street = street
		place.Postal = postal
		place.City = city
		place.Country = country
	}

	return &place, nil
}

// getJSON issues one API call with rate limiting and transient-failure
// retry.
func (c *client) getJSON(ctx context.Context, path string, out any) error {
	return resilience.Do(ctx, c.retry, func(ctx context.Context) error {
		return c.fetchJSON(ctx, path, out)
	})
}

func (c *client) fetchJSON(ctx context.Context, path string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "places: rate limit")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return eris.Wrap(err, "places: build request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return eris.Wrap(err, "places: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		statusErr := eris.Errorf("places: status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(statusErr, resp.StatusCode)
		}
		return statusErr
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return eris.Wrap(err, "places: read body")
	}
	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrap(err, "places: parse response")
	}
	return nil
}

// addressRe expects "<street>, <postal> <city>, <country>".
var addressRe = regexp.MustCompile(`^(.+?),\s*([0-9]{4,5}\s?[A-Z]{0,2})\s+(.+?),\s*(.+)$`)

// ParseAddress splits a directory-formatted address into street,
// postal code, city, and country. Returns ok=false when the address
// does not match the expected layout.
func ParseAddress(addr string) (street, postal, city, country string, ok bool) {
	m := addressRe.FindStringSubmatch(strings.TrimSpace(addr))
	if m == nil {
		return "", "", "", "", false
	}
	return strings.TrimSpace(m[1]), strings.TrimSpace(m[2]), strings.TrimSpace(m[3]), strings.TrimSpace(m[4]), true
}
