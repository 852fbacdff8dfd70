// Package ipgeo looks up approximate geolocation and ISP/organization
// info for an IP address. The result is weak evidence: it feeds the
// geo-match chooser and, at best, a low-confidence baseline signal.
package ipgeo

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/leadtrace/internal/resilience"
)

const defaultBaseURL = "http://ip-api.com/json"

// Result holds the geolocation lookup output for an IP.
type Result struct {
	IP          string  `json:"query"`
	Country     string  `json:"country"`
	CountryCode string  `json:"countryCode"`
	Region      string  `json:"regionName"`
	City        string  `json:"city"`
	Zip         string  `json:"zip"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	ISP         string  `json:"isp"`
	Org         string  `json:"org"`
	AS          string  `json:"as"`
	Status      string  `json:"status"`
	Message     string  `json:"message"`
}

// Located reports whether the lookup produced usable coordinates.
func (r *Result) Located() bool {
	return r != nil && r.Status == "success" && (r.Lat != 0 || r.Lon != 0)
}

// Client queries an ip-api style geolocation endpoint.
type Client interface {
	Lookup(ctx context.Context, ip string) (*Result, error)
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

// WithRateLimit sets the requests-per-second limit. The free tier
// allows 45 req/min; the default stays well under it.
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
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      resilience.RetryConfig
}

// NewClient creates a geolocation client with the given options.
func NewClient(opts ...Option) Client {
	c := &client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		limiter:    rate.NewLimiter(0.5, 2),
		retry:      resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lookup fetches geolocation for one IP, retrying transient faults.
func (c *client) Lookup(ctx context.Context, ip string) (*Result, error) {
	if ip == "" {
		return nil, eris.New("ipgeo: empty ip")
	}

	reqURL := c.baseURL + "/" + ip + "?fields=status,message,country,countryCode,regionName,city,zip,lat,lon,isp,org,as,query"

	var result Result
	err := resilience.Do(ctx, c.retry, func(ctx context.Context) error {
		return c.fetch(ctx, reqURL, &result)
	})
	if err != nil {
		return nil, err
	}

	if result.Status != "success" {
		return nil, eris.Errorf("ipgeo: lookup failed: %s", result.Message)
	}

	return &result, nil
}

func (c *client) fetch(ctx context.Context, reqURL string, out *Result) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "ipgeo: rate limit")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return eris.Wrap(err, "ipgeo: build request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return eris.Wrap(err, "ipgeo: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		statusErr := eris.Errorf("ipgeo: status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(statusErr, resp.StatusCode)
		}
		return statusErr
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return eris.Wrap(err, "ipgeo: read body")
	}

	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrap(err, "ipgeo: parse response")
	}
	return nil
}
