package model

// FusedIdentity is the fusion engine's best guess for one visitor IP.
// A nil *FusedIdentity means no identity cleared the acceptance
// threshold; Domain and Confidence are always set together.
type FusedIdentity struct {
	Domain     string  `json:"domain"`
	Source     Source  `json:"enrichment_source"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"confidence_reason"`
}
