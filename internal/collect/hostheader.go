package collect

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/leadtrace/internal/model"
)

const hostHeaderConfidence = 0.85

// Trial records one host-header attempt, for the probe log.
type Trial struct {
	Domain     string `json:"domain"`
	StatusCode int    `json:"status_code,omitempty"`
	Branded    bool   `json:"branded"`
	Err        string `json:"error,omitempty"`
}

// HostHeader requests the bare IP while claiming each candidate domain
// via the Host header, to test which virtual host answers. First
// success wins; per-candidate failures are swallowed.
type HostHeader struct {
	client       *http.Client
	requireBrand bool
	scheme       string

	mu         sync.Mutex
	lastTrials []Trial
}

// NewHostHeader creates the probe. requireBrand additionally demands
// the response body contain the candidate's label before accepting.
func NewHostHeader(timeout time.Duration, requireBrand bool) *HostHeader {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HostHeader{
		client: &http.Client{
			Timeout: timeout,
			// Redirects off-IP would test someone else's server.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		requireBrand: requireBrand,
		scheme:       "http",
	}
}

func (c *HostHeader) Name() string { return "host_header" }

// Trials returns the attempt log from the most recent Collect call.
func (c *HostHeader) Trials() []Trial {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastTrials
}

func (c *HostHeader) logTrial(trial Trial) {
	c.mu.Lock()
	c.lastTrials = append(c.lastTrials, trial)
	c.mu.Unlock()
}

// Collect implements Collector.
func (c *HostHeader) Collect(ctx context.Context, target Target) ([]model.DomainSignal, error) {
	c.mu.Lock()
	c.lastTrials = nil
	c.mu.Unlock()
	if len(target.Candidates) == 0 {
		return nil, nil
	}

	for _, candidate := range target.Candidates {
		domain := model.NormalizeDomain(candidate)
		if domain == "" {
			continue
		}

		trial := Trial{Domain: domain}
		ok, branded, status, err := c.try(ctx, target.IP, domain)
		trial.StatusCode = status
		trial.Branded = branded
		if err != nil {
			trial.Err = err.Error()
		}
		c.logTrial(trial)

		if err != nil {
			zap.L().Debug("host_header: candidate failed",
				zap.String("ip", target.IP),
				zap.String("domain", domain),
				zap.Error(err),
			)
			continue
		}
		if !ok {
			continue
		}

		reason := "virtual host answered for domain"
		if c.requireBrand {
			reason = "virtual host answered with branded content"
		}
		sig, valid := model.NewSignal(domain, string(model.SourceHostHeader), hostHeaderConfidence, reason)
		if !valid {
			continue
		}
		return []model.DomainSignal{sig}, nil
	}

	return nil, nil
}

// try issues one probe request. Accept requires HTTP 200 and, when
// branding is demanded, the candidate's label in the body.
func (c *HostHeader) try(ctx context.Context, ip, domain string) (ok, branded bool, status int, err error) {
	reqURL := fmt.Sprintf("%s://%s/", c.scheme, ip)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return false, false, 0, err
	}
	req.Host = domain

	resp, err := c.client.Do(req)
	if err != nil {
		return false, false, 0, err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return false, false, resp.StatusCode, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 256*1024))
	if err != nil {
		return false, false, resp.StatusCode, err
	}

	label := domainLabel(domain)
	branded = label != "" && strings.Contains(strings.ToLower(string(body)), label)

	if c.requireBrand && !branded {
		return false, branded, resp.StatusCode, nil
	}
	return true, branded, resp.StatusCode, nil
}

// domainLabel returns the brand-ish label of a domain ("acme" for
// "www.acme.nl").
func domainLabel(domain string) string {
	reg := model.RegistrableDomain(domain)
	if i := strings.Index(reg, "."); i > 0 {
		return strings.ToLower(reg[:i])
	}
	return strings.ToLower(reg)
}
