package models

import "time"

// Run is the ledger entry describing one pipeline execution
type Run struct {
	ID         string    `json:"id"`
	Tag        string    `json:"tag"`
	ParamsHash string    `json:"params_hash"`
	Inputs     []string  `json:"inputs"`
	Units      int       `json:"units"`
	Failed     int       `json:"failed"`
	Matrix     string    `json:"matrix,omitempty"`
	Complete   bool      `json:"complete"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// ShortID returns a shortened run ID (first 8 characters)
func (r *Run) ShortID() string {
	if len(r.ID) > 8 {
		return r.ID[:8]
	}
	return r.ID
}
