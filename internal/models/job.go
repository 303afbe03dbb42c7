package models

import "time"

// JobStatus is the lifecycle state of a pairwise job
type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
	JobSkipped JobStatus = "skipped"
)

// Job describes the files one pairwise job reads and writes
type Job struct {
	Unit       Unit   `json:"unit"`
	Reference  string `json:"reference"`
	SketchBase string `json:"sketch_base"` // engine appends the sketch extension
	ResultPath string `json:"result_path"`
}

// JobRecord is the persisted state of a job in the run ledger
type JobRecord struct {
	Ordinal    int       `json:"ordinal"`
	RecordID   string    `json:"record_id"`
	Checksum   string    `json:"checksum"`
	UnitPath   string    `json:"unit_path"`
	SketchPath string    `json:"sketch_path,omitempty"`
	ResultPath string    `json:"result_path"`
	Status     JobStatus `json:"status"`
	Error      string    `json:"error,omitempty"`
	Attempts   int       `json:"attempts"`
	CacheHit   bool      `json:"cache_hit,omitempty"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// Duration returns how long the job ran, or zero if it never finished
func (r *JobRecord) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// UnitFailure records a job that did not produce a usable result
type UnitFailure struct {
	Ordinal  int    `json:"ordinal"`
	RecordID string `json:"record_id"`
	UnitPath string `json:"unit_path"`
	Err      error  `json:"-"`
}

func (f UnitFailure) Error() string {
	if f.Err == nil {
		return f.UnitPath
	}
	return f.UnitPath + ": " + f.Err.Error()
}

func (f UnitFailure) Unwrap() error {
	return f.Err
}
