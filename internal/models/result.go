package models

// DefaultSignificance is the p-value below which a reported distance is kept.
const DefaultSignificance = 0.05

// MaxDistance replaces distances whose comparison is not significant.
const MaxDistance = 1.0

// PairwiseResult is one row reported by the distance engine
type PairwiseResult struct {
	ReferenceID  string  `json:"reference_id"`
	QueryID      string  `json:"query_id"`
	Distance     float64 `json:"distance"`
	PValue       float64 `json:"p_value"`
	SharedHashes string  `json:"shared_hashes,omitempty"`
}

// Filtered returns the distance to put in the matrix: the reported
// distance when significant, MaxDistance otherwise.
func (r PairwiseResult) Filtered(threshold float64) float64 {
	if r.PValue < threshold {
		return r.Distance
	}
	return MaxDistance
}
