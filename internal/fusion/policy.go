package fusion

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/leadtrace/internal/model"
)

// Policy holds the tunable fusion constants. The defaults are the
// documented contract values; they are empirically chosen, not derived,
// and are therefore exposed as configuration rather than hardcoded.
type Policy struct {
	// AcceptThreshold is the minimum combined confidence required to
	// assert an identity. The test is >=, so a value sitting exactly on
	// the threshold is accepted.
	AcceptThreshold float64 `yaml:"accept_threshold"`

	// SafetyClamp bounds any single weight inside the noisy-OR product
	// so that no lone reading can reach certainty.
	SafetyClamp float64 `yaml:"safety_clamp"`

	// MaxPerSource limits how many readings from the same source may
	// contribute for one domain (anti-noise).
	MaxPerSource int `yaml:"max_per_source"`

	// MaxReasons caps the justification list length.
	MaxReasons int `yaml:"max_reasons"`

	// SourceCaps overrides per-source weight ceilings. Sources absent
	// from the map fall back to the model defaults.
	SourceCaps map[string]float64 `yaml:"source_caps,omitempty"`

	// DefaultCap is the ceiling for sources absent from both maps.
	DefaultCap float64 `yaml:"default_cap"`
}

// DefaultPolicy returns the contract policy values.
func DefaultPolicy() Policy {
	return Policy{
		AcceptThreshold: 0.50,
		SafetyClamp:     0.95,
		MaxPerSource:    2,
		MaxReasons:      6,
		DefaultCap:      model.DefaultCap,
	}
}

// CapFor returns the weight ceiling for a source under this policy.
func (p Policy) CapFor(src model.Source) float64 {
	if p.SourceCaps != nil {
		if cap, ok := p.SourceCaps[string(src)]; ok {
			return cap
		}
	}
	if model.ParseSource(string(src)) == model.SourceUnknown && p.DefaultCap > 0 {
		return p.DefaultCap
	}
	return src.Cap()
}

// LoadPolicy reads a fusion policy from a YAML file, filling omitted
// fields with defaults.
func LoadPolicy(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, eris.Wrapf(err, "fusion: read policy %s", path)
	}

	var wrapper struct {
		Fusion Policy `yaml:"fusion"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return Policy{}, eris.Wrap(err, "fusion: parse policy")
	}

	p := wrapper.Fusion
	def := DefaultPolicy()
	if p.AcceptThreshold == 0 {
		p.AcceptThreshold = def.AcceptThreshold
	}
	if p.SafetyClamp == 0 {
		p.SafetyClamp = def.SafetyClamp
	}
	if p.MaxPerSource == 0 {
		p.MaxPerSource = def.MaxPerSource
	}
	if p.MaxReasons == 0 {
		p.MaxReasons = def.MaxReasons
	}
	if p.DefaultCap == 0 {
		p.DefaultCap = def.DefaultCap
	}
	return p, nil
}
