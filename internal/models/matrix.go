package models

// DistanceMatrix is a square matrix over sorted identifiers.
// Rows[id][i] is the distance between id and IDs[i].
type DistanceMatrix struct {
	IDs  []string
	Rows map[string][]float64
}

// Len returns the number of identifiers
func (m *DistanceMatrix) Len() int {
	return len(m.IDs)
}

// Row returns the distance vector for id, or nil if the id is not present
func (m *DistanceMatrix) Row(id string) []float64 {
	return m.Rows[id]
}

// At returns the distance between query and reference
func (m *DistanceMatrix) At(query, reference string) (float64, bool) {
	row, ok := m.Rows[query]
	if !ok {
		return 0, false
	}
	for i, id := range m.IDs {
		if id == reference {
			return row[i], true
		}
	}
	return 0, false
}
