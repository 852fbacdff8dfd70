package collect

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadtrace/internal/model"
	"github.com/sells-group/leadtrace/pkg/ipgeo"
)

const baselineConfidence = 0.45

// Baseline asks a generic IP geolocation service for the ISP/org behind
// the IP. Only used as weak fallback evidence: a business-looking org
// name yields a low-confidence signal; consumer ISPs yield nothing.
type Baseline struct {
	client ipgeo.Client
}

// NewBaseline creates the collector.
func NewBaseline(client ipgeo.Client) *Baseline {
	return &Baseline{client: client}
}

func (c *Baseline) Name() string { return "ipapi_baseline" }

// consumerISPWords disqualify an org name from being treated as the
// visitor's employer.
var consumerISPWords = []string{
	"telecom", "internet", "broadband", "cable", "mobile", "wireless",
	"hosting", "datacenter", "data center", "cloud", "vpn", "isp",
	"communications", "telefonica", "telia", "kpn", "ziggo", "vodafone",
}

// Collect implements Collector.
func (c *Baseline) Collect(ctx context.Context, target Target) ([]model.DomainSignal, error) {
	res, err := c.client.Lookup(ctx, target.IP)
	if err != nil {
		return nil, eris.Wrap(err, "baseline: lookup")
	}

	org := strings.TrimSpace(res.Org)
	if org == "" {
		org = strings.TrimSpace(res.ISP)
	}
	if org == "" {
		return nil, nil
	}

	lower := strings.ToLower(org)
	for _, word := range consumerISPWords {
		if strings.Contains(lower, word) {
			return nil, nil
		}
	}

	domain := guessDomainFromOrg(org, res.CountryCode)
	if domain == "" {
		return nil, nil
	}

	sig, ok := model.NewSignal(domain, string(model.SourceIPAPIBaseline), baselineConfidence, "organization name from IP geolocation")
	if !ok {
		return nil, nil
	}
	return []model.DomainSignal{sig}, nil
}

// countryTLDs maps country codes to their common ccTLD.
var countryTLDs = map[string]string{
	"NL": "nl", "BE": "be", "DE": "de", "FR": "fr", "GB": "co.uk",
	"US": "com", "ES": "es", "IT": "it", "AT": "at", "CH": "ch",
}

// guessDomainFromOrg derives a plausible domain from an organization
// name: strip legal suffixes, squeeze to a label, attach the local TLD.
func guessDomainFromOrg(org, countryCode string) string {
	name := strings.ToLower(org)
	for _, suffix := range []string{" b.v.", " bv", " n.v.", " nv", " gmbh", " inc", " inc.", " llc", " ltd", " s.a.", " sa", " ag"} {
		name = strings.TrimSuffix(name, suffix)
	}
	name = strings.TrimSpace(name)

	var label strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			label.WriteRune(r)
		case r == '-':
			label.WriteRune(r)
		}
	}
	if label.Len() < 3 {
		return ""
	}

	tld := countryTLDs[strings.ToUpper(countryCode)]
	if tld == "" {
		tld = "com"
	}
	return label.String() + "." + tld
}
