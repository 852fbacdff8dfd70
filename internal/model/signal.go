// Package model defines the core data types for visitor identity resolution.
package model

import (
	"math"
	"strings"

	"golang.org/x/net/idna"
)

// Source identifies the evidentiary channel a signal came from.
type Source string

// Known signal sources.
const (
	SourceReverseDNS    Source = "reverse_dns"
	SourceTLSCert       Source = "tls_cert"
	SourceHTTPFetch     Source = "http_fetch"
	SourceFaviconHash   Source = "favicon_hash"
	SourceHostHeader    Source = "host_header"
	SourceGoogleMaps    Source = "google_maps"
	SourceWebsiteScrape Source = "website_scrape"
	SourceISPBaseline   Source = "isp_baseline"
	SourceIPAPIBaseline Source = "ipapi_baseline"
	SourceCacheReuse    Source = "cache_reuse"
	SourceFormSubmit    Source = "form_submission"
	SourceFinalLikely   Source = "final_likely"
	SourceUnknown       Source = "unknown"
)

// DefaultCap is the fusion weight ceiling for unrecognized sources.
const DefaultCap = 0.75

// sourceCaps is the per-source ceiling on how much weight a single
// signal may contribute during fusion. These are documented policy
// constants, tunable via fusion.Policy.
var sourceCaps = map[Source]float64{
	SourceReverseDNS:    0.90,
	SourceTLSCert:       0.90,
	SourceHTTPFetch:     0.80,
	SourceFaviconHash:   0.85,
	SourceHostHeader:    0.80,
	SourceGoogleMaps:    0.80,
	SourceWebsiteScrape: 0.70,
	SourceISPBaseline:   0.50,
	SourceIPAPIBaseline: 0.50,
	SourceCacheReuse:    0.60,
	SourceFormSubmit:    0.95,
	SourceFinalLikely:   0.90,
}

// Cap returns the fusion weight ceiling for the source. Unrecognized
// sources fall through to DefaultCap so that a new tag can never bypass
// capping.
func (s Source) Cap() float64 {
	if cap, ok := sourceCaps[s]; ok {
		return cap
	}
	return DefaultCap
}

// ParseSource normalizes a raw source tag. Empty or unrecognized tags
// map to SourceUnknown.
func ParseSource(raw string) Source {
	s := Source(strings.ToLower(strings.TrimSpace(raw)))
	if s == "" {
		return SourceUnknown
	}
	if _, ok := sourceCaps[s]; ok {
		return s
	}
	return SourceUnknown
}

// DomainSignal is one piece of evidence: a collector's guess at the
// visitor's company domain, with a source tag and a collector-local
// confidence. Signals are transient; only the fused result persists.
type DomainSignal struct {
	Domain     string  `json:"domain"`
	Source     Source  `json:"source"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"confidence_reason,omitempty"`
}

// NewSignal builds a validated signal. The domain is normalized to a
// bare lowercase hostname, the source tag is lowercased (defaulting to
// unknown), and the confidence is clamped into [0,1] with non-finite
// values coerced to 0. Returns false when no usable domain remains.
func NewSignal(domain, source string, confidence float64, reason string) (DomainSignal, bool) {
	d := NormalizeDomain(domain)
	if d == "" {
		return DomainSignal{}, false
	}

	src := Source(strings.ToLower(strings.TrimSpace(source)))
	if src == "" {
		src = SourceUnknown
	}

	if math.IsNaN(confidence) || math.IsInf(confidence, 0) {
		confidence = 0
	}
	confidence = Clamp01(confidence)

	return DomainSignal{
		Domain:     d,
		Source:     src,
		Confidence: confidence,
		Reason:     reason,
	}, true
}

// NormalizeDomain lowercases a hostname and strips any scheme, path,
// port, or trailing dot. Unicode hostnames are converted to their ASCII
// (punycode) form. Returns "" when nothing hostname-like remains.
func NormalizeDomain(raw string) string {
	d := strings.TrimSpace(strings.ToLower(raw))
	if d == "" {
		return ""
	}

	// Strip scheme and path.
	if i := strings.Index(d, "://"); i >= 0 {
		d = d[i+3:]
	}
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}

	// Strip userinfo and port.
	if i := strings.LastIndex(d, "@"); i >= 0 {
		d = d[i+1:]
	}
	if i := strings.Index(d, ":"); i >= 0 {
		d = d[:i]
	}

	d = strings.TrimSuffix(d, ".")
	if d == "" {
		return ""
	}

	if ascii, err := idna.Lookup.ToASCII(d); err == nil {
		d = ascii
	}
	return d
}

// RegistrableDomain returns the last two dot-separated labels of a
// hostname ("mail.acme.nl" -> "acme.nl"). Hostnames with fewer than two
// labels are returned unchanged.
func RegistrableDomain(hostname string) string {
	h := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(hostname)), ".")
	parts := strings.Split(h, ".")
	if len(parts) < 2 {
		return h
	}
	return strings.Join(parts[len(parts)-2:], ".")
}

// Clamp01 bounds v into [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
