package collect

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadtrace/internal/model"
)

const faviconConfidence = 0.85

// Favicon fetches /favicon.ico from the visitor IP and hashes it.
// A signal is emitted only when the digest is present in the known
// favicon index; unknown digests are kept for later indexing.
type Favicon struct {
	client *http.Client

	mu    sync.RWMutex
	index map[string]string // sha256 hex -> domain

	lastDigest string
}

// NewFavicon creates the collector with a digest->domain index.
func NewFavicon(timeout time.Duration, index map[string]string) *Favicon {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if index == nil {
		index = make(map[string]string)
	}
	return &Favicon{
		client: &http.Client{Timeout: timeout},
		index:  index,
	}
}

func (c *Favicon) Name() string { return "favicon_hash" }

// AddKnown registers a digest->domain pair in the index.
func (c *Favicon) AddKnown(digest, domain string) {
	c.mu.Lock()
	c.index[strings.ToLower(digest)] = model.NormalizeDomain(domain)
	c.mu.Unlock()
}

// LastDigest returns the digest from the most recent successful fetch,
// whether or not it matched the index.
func (c *Favicon) LastDigest() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastDigest
}

// Collect implements Collector. Non-2xx, non-image, and timeouts all
// resolve to "no evidence".
func (c *Favicon) Collect(ctx context.Context, target Target) ([]model.DomainSignal, error) {
	reqURL := fmt.Sprintf("http://%s/favicon.ico", target.IP)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "favicon: build request")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "favicon: fetch %s", target.IP)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, eris.Errorf("favicon: status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return nil, eris.Errorf("favicon: not an image (%s)", contentType)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, eris.Wrap(err, "favicon: read body")
	}
	if len(body) == 0 {
		return nil, eris.New("favicon: empty body")
	}

	sum := sha256.Sum256(body)
	digest := hex.EncodeToString(sum[:])

	c.mu.Lock()
	c.lastDigest = digest
	domain := c.index[digest]
	c.mu.Unlock()

	if domain == "" {
		return nil, nil
	}

	sig, ok := model.NewSignal(domain, string(model.SourceFaviconHash), faviconConfidence, "favicon digest matched known site")
	if !ok {
		return nil, nil
	}
	return []model.DomainSignal{sig}, nil
}
