// Package hostname scores reverse-DNS hostnames for how business-like
// they look. Consumer ISP and VPN patterns score near zero; a hostname
// that matches an already-enriched company domain scores near one.
package hostname

import (
	"strings"

	"github.com/sells-group/leadtrace/internal/model"
)

// Known carries previously enriched company context for an IP. When the
// hostname matches the known domain, populated contact fields raise the
// score to certainty.
type Known struct {
	Domain     string
	Address    string
	City       string
	PostalCode string
	Phone      string
}

// hasContactDetail reports whether any corroborating contact field is set.
func (k *Known) hasContactDetail() bool {
	if k == nil {
		return false
	}
	return k.Address != "" || k.City != "" || k.PostalCode != "" || k.Phone != ""
}

// ispDomains are registrable domains of residential/consumer ISPs whose
// reverse-DNS names say nothing about the visitor's employer.
var ispDomains = map[string]bool{
	"kpn.net":       true,
	"kpn.nl":        true,
	"ziggo.nl":      true,
	"xs4all.nl":     true,
	"chello.nl":     true,
	"home.nl":       true,
	"online.nl":     true,
	"telfort.nl":    true,
	"t-mobile.nl":   true,
	"tmobile.nl":    true,
	"vodafone.nl":   true,
	"tele2.nl":      true,
	"solcon.nl":     true,
	"telenet.be":    true,
	"proximus.be":   true,
	"skynet.be":     true,
	"comcast.net":   true,
	"verizon.net":   true,
	"rr.com":        true,
	"charter.com":   true,
	"btinternet.com": true,
	"sky.com":       true,
	"orange.fr":     true,
	"telekom.de":    true,
	"t-ipconnect.de": true,
}

// consumerKeywords mark dynamically assigned consumer address pools.
var consumerKeywords = []string{
	"dynamic", "client", "customer", "dsl", "broadband", "home", "pool", "ip",
}

// Score bands map to fixed reason strings; the wording matches the
// dashboard copy.
const (
	ReasonKnownEnriched  = "Match op domein met verrijkte bedrijfsinformatie"
	ReasonKnownDomain    = "Hostname komt overeen met bekend bedrijfsdomein"
	ReasonBusinessLike   = "Zakelijke subdomeinstructuur"
	ReasonUnknownPattern = "Onbekend hostnamepatroon"
	ReasonConsumer       = "Consumentenpatroon in hostname"
	ReasonISP            = "Consumentenhost of ISP-domein"
	ReasonVPNProxy       = "Waarschijnlijk VPN/proxy/dynamisch IP"
)

// ReasonFor returns the canned justification for a score band.
func ReasonFor(score float64) string {
	switch {
	case score >= 0.95:
		return ReasonKnownEnriched
	case score >= 0.6:
		return ReasonKnownDomain
	case score >= 0.5:
		return ReasonBusinessLike
	case score >= 0.3:
		return ReasonUnknownPattern
	case score >= 0.2:
		return ReasonConsumer
	case score >= 0.1:
		return ReasonISP
	default:
		return ReasonVPNProxy
	}
}

// Score classifies a reverse-DNS hostname into a 0..1 business
// likelihood with a fixed reason string. Pure function, no I/O.
//
// Rule order matters: VPN/proxy and ISP blacklists short-circuit before
// any structural heuristic gets a say.
func Score(host string, known *Known) (float64, string) {
	h := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(host)), ".")
	if h == "" {
		return 0, ReasonVPNProxy
	}

	if strings.Contains(h, "vpn") || strings.Contains(h, "proxy") {
		return 0, ReasonVPNProxy
	}

	reg := model.RegistrableDomain(h)
	if ispDomains[reg] {
		return 0.1, ReasonFor(0.1)
	}

	for _, kw := range consumerKeywords {
		if strings.Contains(h, kw) {
			return 0.2, ReasonFor(0.2)
		}
	}

	if known != nil && known.Domain != "" {
		kd := strings.ToLower(known.Domain)
		if h == kd || reg == kd {
			if known.hasContactDetail() {
				return 1.0, ReasonFor(1.0)
			}
			return 0.6, ReasonFor(0.6)
		}
	}

	segments := strings.Split(h, ".")
	if len(segments) >= 3 && !strings.HasPrefix(h, "ip") {
		return 0.5, ReasonFor(0.5)
	}
	if len(segments) == 2 {
		return 0.4, ReasonFor(0.4)
	}
	return 0.3, ReasonFor(0.3)
}
