package enrich

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/leadtrace/internal/model"
)

func TestIsImprovement(t *testing.T) {
	partial := &model.EnrichmentRecord{Status: model.TierPartial, Domain: "acme.nl", Confidence: 0.6}
	enriched := &model.EnrichmentRecord{
		Status: model.TierEnriched, Domain: "acme.nl", Confidence: 0.8,
		CompanyName: "Acme B.V.", City: "Amsterdam",
	}

	assert.True(t, IsImprovement(nil, partial), "anything beats an empty cache")
	assert.False(t, IsImprovement(partial, nil))

	assert.True(t, IsImprovement(partial, enriched), "higher tier wins")
	assert.False(t, IsImprovement(enriched, partial), "a worse tier never overwrites")

	richer := &model.EnrichmentRecord{
		Status: model.TierEnriched, Domain: "acme.nl", Confidence: 0.7,
		CompanyName: "Acme B.V.", City: "Amsterdam", Phone: "+31 20 123 4567",
	}
	assert.True(t, IsImprovement(enriched, richer), "same tier, more contact fields")
	assert.False(t, IsImprovement(richer, enriched))

	confident := &model.EnrichmentRecord{
		Status: model.TierEnriched, Domain: "acme.nl", Confidence: 0.9,
		CompanyName: "Acme B.V.", City: "Amsterdam",
	}
	assert.True(t, IsImprovement(enriched, confident), "same tier and fields, higher confidence")
	assert.False(t, IsImprovement(enriched, enriched), "equal data is not an improvement")
}
