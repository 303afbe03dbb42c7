package models

// Record is a single named sequence read from an input file
type Record struct {
	ID          string `json:"id"`
	SanitizedID string `json:"sanitized_id"`
	Source      string `json:"source"`
	Body        []byte `json:"-"`
}

// Unit is a single-record file derived from the partitioned corpus.
// Units are named after their ordinal, never after the record id.
type Unit struct {
	Ordinal  int    `json:"ordinal"`
	RecordID string `json:"record_id"`
	Path     string `json:"path"`
	Checksum string `json:"checksum"`
}

// SketchProfile holds the engine parameters for one sketch invocation
type SketchProfile struct {
	KmerSize  int `json:"kmer_size"`
	MinCopies int `json:"min_copies,omitempty"` // 0 disables the filter
	Threads   int `json:"threads"`
}
