// Package fusion combines per-source domain signals into one identity
// guess via noisy-OR, with per-source weight caps and an acceptance
// threshold. Better to report "unknown" than a low-confidence false
// identity.
package fusion

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/leadtrace/internal/model"
)

// Engine fuses signals under a fixed policy. Fusion is a pure,
// synchronous reduction; an Engine is safe for concurrent use.
type Engine struct {
	policy Policy
}

// NewEngine creates a fusion engine. A zero policy is replaced by the
// defaults.
func NewEngine(policy Policy) *Engine {
	if policy.MaxPerSource == 0 {
		policy = DefaultPolicy()
	}
	return &Engine{policy: policy}
}

// Policy returns the engine's active policy.
func (e *Engine) Policy() Policy {
	return e.policy
}

// domainGroup accumulates the retained evidence for one candidate domain.
type domainGroup struct {
	domain    string
	firstSeen int
	bySource  map[model.Source][]float64
	reasons   []string
	seen      map[string]bool
}

// Fuse reduces a bag of signals to a single identity, or nil when no
// domain clears the acceptance threshold.
//
// Per domain, at most MaxPerSource of the highest capped weights per
// source survive; the retained weights combine as
// 1 - prod(1 - min(w, SafetyClamp)). Ties on combined confidence break
// toward the first-seen domain so repeated runs stay deterministic.
func (e *Engine) Fuse(signals []model.DomainSignal) *model.FusedIdentity {
	groups := make(map[string]*domainGroup)
	var order []string

	for _, raw := range signals {
		sig, ok := model.NewSignal(raw.Domain, string(raw.Source), raw.Confidence, raw.Reason)
		if !ok {
			continue
		}

		g := groups[sig.Domain]
		if g == nil {
			g = &domainGroup{
				domain:    sig.Domain,
				firstSeen: len(order),
				bySource:  make(map[model.Source][]float64),
				seen:      make(map[string]bool),
			}
			groups[sig.Domain] = g
			order = append(order, sig.Domain)
		}

		weight := math.Min(sig.Confidence, e.policy.CapFor(sig.Source))
		g.bySource[sig.Source] = append(g.bySource[sig.Source], weight)

		if sig.Reason != "" {
			key := fmt.Sprintf("%s: %s", sig.Source, sig.Reason)
			if !g.seen[key] {
				g.seen[key] = true
				g.reasons = append(g.reasons, key)
			}
		}
	}

	if len(groups) == 0 {
		return nil
	}

	var winner *domainGroup
	var winnerConf float64
	for _, domain := range order {
		g := groups[domain]
		conf := e.combine(g)
		if winner == nil || conf > winnerConf {
			winner = g
			winnerConf = conf
		}
	}

	if winner == nil || winnerConf < e.policy.AcceptThreshold {
		zap.L().Debug("fusion: no domain cleared acceptance threshold",
			zap.Int("signals", len(signals)),
			zap.Int("domains", len(groups)),
			zap.Float64("best", winnerConf),
		)
		return nil
	}

	return &model.FusedIdentity{
		Domain:     winner.domain,
		Source:     model.SourceFinalLikely,
		Confidence: math.Round(winnerConf*100) / 100,
		Reason:     e.justification(winner),
	}
}

// combine applies the anti-noise per-source retention and the noisy-OR
// product for one domain group.
func (e *Engine) combine(g *domainGroup) float64 {
	notTrue := 1.0
	for _, weights := range g.bySource {
		retained := weights
		if len(retained) > e.policy.MaxPerSource {
			sorted := make([]float64, len(retained))
			copy(sorted, retained)
			sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))
			retained = sorted[:e.policy.MaxPerSource]
		}
		for _, w := range retained {
			notTrue *= 1 - math.Min(w, e.policy.SafetyClamp)
		}
	}
	return model.Clamp01(1 - notTrue)
}

// justification concatenates up to MaxReasons contributing reasons in
// first-appearance order.
func (e *Engine) justification(g *domainGroup) string {
	reasons := g.reasons
	if len(reasons) > e.policy.MaxReasons {
		reasons = reasons[:e.policy.MaxReasons]
	}
	if len(reasons) == 0 {
		return "combined evidence"
	}
	return strings.Join(reasons, "; ")
}
