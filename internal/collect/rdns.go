package collect

import (
	"context"
	"net"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadtrace/internal/hostname"
	"github.com/sells-group/leadtrace/internal/model"
)

// ReverseDNS resolves a hostname for the visitor IP and scores its
// business likelihood. Only a positive score emits a signal.
type ReverseDNS struct {
	resolver *net.Resolver
}

// NewReverseDNS creates the collector. A nil resolver uses the default.
func NewReverseDNS(resolver *net.Resolver) *ReverseDNS {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	return &ReverseDNS{resolver: resolver}
}

func (c *ReverseDNS) Name() string { return "reverse_dns" }

// Collect implements Collector.
func (c *ReverseDNS) Collect(ctx context.Context, target Target) ([]model.DomainSignal, error) {
	names, err := c.resolver.LookupAddr(ctx, target.IP)
	if err != nil {
		return nil, eris.Wrapf(err, "rdns: lookup %s", target.IP)
	}
	if len(names) == 0 {
		return nil, nil
	}

	host := names[0]
	score, reason := hostname.Score(host, target.Known)
	if score <= 0 {
		return nil, nil
	}

	sig, ok := model.NewSignal(model.RegistrableDomain(host), string(model.SourceReverseDNS), score, reason)
	if !ok {
		return nil, nil
	}
	return []model.DomainSignal{sig}, nil
}
