package enrich

import "github.com/sells-group/leadtrace/internal/model"

// IsImprovement reports whether writing next over prev adds
// information. The comparison is lexicographic: status tier first, then
// populated contact fields, then fused confidence. Ties are not
// improvements; the cache never swaps equal data for equal data.
func IsImprovement(prev, next *model.EnrichmentRecord) bool {
	if next == nil {
		return false
	}
	if prev == nil {
		return true
	}

	if d := next.Status.Rank() - prev.Status.Rank(); d != 0 {
		return d > 0
	}
	if d := next.ContactFieldCount() - prev.ContactFieldCount(); d != 0 {
		return d > 0
	}
	return next.Confidence > prev.Confidence
}
