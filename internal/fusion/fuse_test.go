package fusion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadtrace/internal/model"
)

func sig(domain string, source model.Source, conf float64) model.DomainSignal {
	return model.DomainSignal{Domain: domain, Source: source, Confidence: conf}
}

func TestFuse_EmptyInput(t *testing.T) {
	assert.Nil(t, NewEngine(DefaultPolicy()).Fuse(nil))
	assert.Nil(t, NewEngine(DefaultPolicy()).Fuse([]model.DomainSignal{}))
}

func TestFuse_SignalsWithoutDomainSkipped(t *testing.T) {
	res := NewEngine(DefaultPolicy()).Fuse([]model.DomainSignal{
		sig("", model.SourceReverseDNS, 0.9),
		sig("   ", model.SourceTLSCert, 0.9),
	})
	assert.Nil(t, res)
}

func TestFuse_TwoSourceScenario(t *testing.T) {
	// 0.90 and 0.60 after caps: 1 - 0.1*0.4 = 0.96.
	res := NewEngine(DefaultPolicy()).Fuse([]model.DomainSignal{
		sig("acme.nl", model.SourceReverseDNS, 0.9),
		sig("acme.nl", model.SourceHTTPFetch, 0.6),
	})
	require.NotNil(t, res)
	assert.Equal(t, "acme.nl", res.Domain)
	assert.Equal(t, model.SourceFinalLikely, res.Source)
	assert.Equal(t, 0.96, res.Confidence)
}

func TestFuse_SourceCapInvariant(t *testing.T) {
	// Raw 1.0 from a 0.80-capped source cannot exceed the cap alone.
	res := NewEngine(DefaultPolicy()).Fuse([]model.DomainSignal{
		sig("acme.nl", model.SourceHTTPFetch, 1.0),
	})
	require.NotNil(t, res)
	assert.LessOrEqual(t, res.Confidence, 0.80)
}

func TestFuse_BaselineBoundaryAccepted(t *testing.T) {
	// Capped at exactly 0.50: the acceptance test is >=, so it passes.
	res := NewEngine(DefaultPolicy()).Fuse([]model.DomainSignal{
		sig("x.io", model.SourceIPAPIBaseline, 0.9),
	})
	require.NotNil(t, res)
	assert.Equal(t, "x.io", res.Domain)
	assert.Equal(t, 0.50, res.Confidence)
}

func TestFuse_BelowThresholdRejected(t *testing.T) {
	res := NewEngine(DefaultPolicy()).Fuse([]model.DomainSignal{
		sig("acme.nl", model.SourceWebsiteScrape, 0.3),
	})
	assert.Nil(t, res)
}

func TestFuse_Monotonicity(t *testing.T) {
	base := []model.DomainSignal{
		sig("acme.nl", model.SourceReverseDNS, 0.6),
		sig("acme.nl", model.SourceTLSCert, 0.4),
	}
	engine := NewEngine(DefaultPolicy())
	without := engine.Fuse(base)
	require.NotNil(t, without)

	for _, extra := range []model.DomainSignal{
		sig("acme.nl", model.SourceGoogleMaps, 0.05),
		sig("acme.nl", model.SourceHostHeader, 0.5),
		sig("acme.nl", model.SourceFaviconHash, 0.99),
	} {
		with := engine.Fuse(append(append([]model.DomainSignal{}, base...), extra))
		require.NotNil(t, with)
		assert.GreaterOrEqual(t, with.Confidence, without.Confidence)
	}
}

func TestFuse_AntiNoiseTopTwoPerSource(t *testing.T) {
	engine := NewEngine(DefaultPolicy())

	five := engine.Fuse([]model.DomainSignal{
		sig("acme.nl", model.SourceHTTPFetch, 0.30),
		sig("acme.nl", model.SourceHTTPFetch, 0.55),
		sig("acme.nl", model.SourceHTTPFetch, 0.10),
		sig("acme.nl", model.SourceHTTPFetch, 0.60),
		sig("acme.nl", model.SourceHTTPFetch, 0.20),
	})
	topTwo := engine.Fuse([]model.DomainSignal{
		sig("acme.nl", model.SourceHTTPFetch, 0.60),
		sig("acme.nl", model.SourceHTTPFetch, 0.55),
	})

	require.NotNil(t, five)
	require.NotNil(t, topTwo)
	assert.Equal(t, topTwo.Confidence, five.Confidence)
}

func TestFuse_SafetyClampBlocksCertainty(t *testing.T) {
	// Ground truth at 1.0 is clamped to 0.95 inside the product.
	res := NewEngine(DefaultPolicy()).Fuse([]model.DomainSignal{
		sig("acme.nl", model.SourceFormSubmit, 1.0),
	})
	require.NotNil(t, res)
	assert.Equal(t, 0.95, res.Confidence)
}

func TestFuse_TieBreakDeterministic(t *testing.T) {
	signals := []model.DomainSignal{
		sig("first.nl", model.SourceReverseDNS, 0.8),
		sig("second.nl", model.SourceReverseDNS, 0.8),
	}
	engine := NewEngine(DefaultPolicy())

	for range 25 {
		res := engine.Fuse(signals)
		require.NotNil(t, res)
		assert.Equal(t, "first.nl", res.Domain)
	}
}

func TestFuse_HighestDomainWins(t *testing.T) {
	res := NewEngine(DefaultPolicy()).Fuse([]model.DomainSignal{
		sig("weak.nl", model.SourceWebsiteScrape, 0.6),
		sig("strong.nl", model.SourceReverseDNS, 0.9),
		sig("strong.nl", model.SourceTLSCert, 0.7),
	})
	require.NotNil(t, res)
	assert.Equal(t, "strong.nl", res.Domain)
}

func TestFuse_UnknownSourceGetsDefaultCap(t *testing.T) {
	res := NewEngine(DefaultPolicy()).Fuse([]model.DomainSignal{
		sig("acme.nl", model.Source("mystery_probe"), 1.0),
	})
	require.NotNil(t, res)
	assert.Equal(t, 0.75, res.Confidence)
}

func TestFuse_NonFiniteConfidenceCoerced(t *testing.T) {
	inf := 1.0
	for range 400 {
		inf *= 10
	}
	res := NewEngine(DefaultPolicy()).Fuse([]model.DomainSignal{
		sig("acme.nl", model.SourceReverseDNS, inf),
		sig("acme.nl", model.SourceTLSCert, 0.8),
	})
	require.NotNil(t, res)
	// The infinite reading contributes zero weight.
	assert.Equal(t, 0.80, res.Confidence)
}

func TestFuse_ReasonAggregation(t *testing.T) {
	res := NewEngine(DefaultPolicy()).Fuse([]model.DomainSignal{
		{Domain: "acme.nl", Source: model.SourceReverseDNS, Confidence: 0.8, Reason: "hostname match"},
		{Domain: "acme.nl", Source: model.SourceTLSCert, Confidence: 0.7, Reason: "certificate CN"},
		{Domain: "acme.nl", Source: model.SourceTLSCert, Confidence: 0.6, Reason: "certificate CN"},
	})
	require.NotNil(t, res)
	assert.Equal(t, "reverse_dns: hostname match; tls_cert: certificate CN", res.Reason)
}

func TestFuse_ReasonFallback(t *testing.T) {
	res := NewEngine(DefaultPolicy()).Fuse([]model.DomainSignal{
		sig("acme.nl", model.SourceReverseDNS, 0.9),
	})
	require.NotNil(t, res)
	assert.Equal(t, "combined evidence", res.Reason)
}

func TestFuse_ReasonCapAtSix(t *testing.T) {
	signals := []model.DomainSignal{
		{Domain: "acme.nl", Source: model.SourceReverseDNS, Confidence: 0.9, Reason: "r1"},
		{Domain: "acme.nl", Source: model.SourceTLSCert, Confidence: 0.9, Reason: "r2"},
		{Domain: "acme.nl", Source: model.SourceHTTPFetch, Confidence: 0.9, Reason: "r3"},
		{Domain: "acme.nl", Source: model.SourceFaviconHash, Confidence: 0.9, Reason: "r4"},
		{Domain: "acme.nl", Source: model.SourceHostHeader, Confidence: 0.9, Reason: "r5"},
		{Domain: "acme.nl", Source: model.SourceGoogleMaps, Confidence: 0.9, Reason: "r6"},
		{Domain: "acme.nl", Source: model.SourceWebsiteScrape, Confidence: 0.9, Reason: "r7"},
	}
	res := NewEngine(DefaultPolicy()).Fuse(signals)
	require.NotNil(t, res)
	assert.Equal(t,
		"reverse_dns: r1; tls_cert: r2; http_fetch: r3; favicon_hash: r4; host_header: r5; google_maps: r6",
		res.Reason)
}

func TestFuse_DomainNormalization(t *testing.T) {
	res := NewEngine(DefaultPolicy()).Fuse([]model.DomainSignal{
		sig("https://ACME.nl/over-ons", model.SourceReverseDNS, 0.6),
		sig("acme.nl.", model.SourceTLSCert, 0.6),
	})
	require.NotNil(t, res)
	assert.Equal(t, "acme.nl", res.Domain)
	// Both readings landed in the same group: 1 - 0.4*0.4 = 0.84.
	assert.Equal(t, 0.84, res.Confidence)
}
