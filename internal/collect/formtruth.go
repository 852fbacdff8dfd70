package collect

import (
	"context"
	"strings"

	"github.com/sells-group/leadtrace/internal/model"
)

// FormTruth converts a voluntarily submitted form email into a
// near-certain identity signal. Ground truth, not inference: the stored
// record keeps the full 1.0, while fusion caps it like any other source.
type FormTruth struct{}

// NewFormTruth creates the collector.
func NewFormTruth() *FormTruth { return &FormTruth{} }

func (c *FormTruth) Name() string { return "form_submission" }

// freemailDomains are personal email providers that say nothing about
// the visitor's employer.
var freemailDomains = map[string]bool{
	"gmail.com":      true,
	"googlemail.com": true,
	"hotmail.com":    true,
	"hotmail.nl":     true,
	"outlook.com":    true,
	"live.nl":        true,
	"live.com":       true,
	"yahoo.com":      true,
	"icloud.com":     true,
	"protonmail.com": true,
	"proton.me":      true,
	"ziggo.nl":       true,
	"kpnmail.nl":     true,
}

// Collect implements Collector.
func (c *FormTruth) Collect(ctx context.Context, target Target) ([]model.DomainSignal, error) {
	domain := EmailDomain(target.Email)
	if domain == "" || freemailDomains[domain] {
		return nil, nil
	}

	sig, ok := model.NewSignal(domain, string(model.SourceFormSubmit), 1.0, "visitor-submitted email domain")
	if !ok {
		return nil, nil
	}
	return []model.DomainSignal{sig}, nil
}

// EmailDomain extracts the normalized domain of an email address, or ""
// when the input is not email-shaped.
func EmailDomain(email string) string {
	email = strings.TrimSpace(strings.ToLower(email))
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return ""
	}
	domain := model.NormalizeDomain(email[at+1:])
	if !strings.Contains(domain, ".") {
		return ""
	}
	return domain
}
