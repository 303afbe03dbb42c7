package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	ResultsDir         = "results"
	UnitsDir           = "tmp"
	ReferenceSketchDir = "reference_sketch"
	QuerySketchDir     = "genome_sketchs"
	DistDir            = "dist_files"
	LedgerFile         = "ledger.db"
)

// Layout is the namespaced output tree of one run:
//
//	<dir>/<tag>/master_fasta_<tag>.fas
//	<dir>/<tag>/reference_sketch/<tag>_reference.msh
//	<dir>/<tag>/tmp/seq_000001.fas
//	<dir>/<tag>/genome_sketchs/seq_000001.msh
//	<dir>/<tag>/genome_sketchs/dist_files/seq_000001_distances.txt
//	<dir>/<tag>/results/<tag>.csv
type Layout struct {
	Root string
	Tag  string
}

// NewLayout returns the layout rooted at dir/tag
func NewLayout(dir, tag string) *Layout {
	return &Layout{Root: filepath.Join(dir, tag), Tag: tag}
}

// CorpusPath returns the path of the merged reference corpus
func (l *Layout) CorpusPath() string {
	return filepath.Join(l.Root, "master_fasta_"+l.Tag+".fas")
}

// ReferenceSketchBase returns the reference sketch path without its extension
func (l *Layout) ReferenceSketchBase() string {
	return filepath.Join(l.Root, ReferenceSketchDir, l.Tag+"_reference")
}

// UnitsPath returns the directory holding the per-record units
func (l *Layout) UnitsPath() string {
	return filepath.Join(l.Root, UnitsDir)
}

// UnitName returns the file stem of the unit at ordinal
func UnitName(ordinal int) string {
	return fmt.Sprintf("seq_%06d", ordinal)
}

// UnitPath returns the file holding the unit at ordinal
func (l *Layout) UnitPath(ordinal int) string {
	return filepath.Join(l.UnitsPath(), UnitName(ordinal)+".fas")
}

// QuerySketchBase returns the query sketch path of a unit without its extension
func (l *Layout) QuerySketchBase(ordinal int) string {
	return filepath.Join(l.Root, QuerySketchDir, UnitName(ordinal))
}

// DistPath returns the raw distance file of a unit
func (l *Layout) DistPath(ordinal int) string {
	return filepath.Join(l.Root, QuerySketchDir, DistDir, UnitName(ordinal)+"_distances.txt")
}

// ResultsPath returns the directory kept by cleanup
func (l *Layout) ResultsPath() string {
	return filepath.Join(l.Root, ResultsDir)
}

// MatrixPath returns the final matrix file
func (l *Layout) MatrixPath() string {
	return filepath.Join(l.ResultsPath(), l.Tag+".csv")
}

// SQLitePath returns the optional SQLite export
func (l *Layout) SQLitePath() string {
	return filepath.Join(l.ResultsPath(), l.Tag+".db")
}

// LedgerPath returns the bbolt run ledger
func (l *Layout) LedgerPath() string {
	return filepath.Join(l.ResultsPath(), LedgerFile)
}

// Create makes every directory of the layout
func (l *Layout) Create() error {
	dirs := []string{
		l.Root,
		filepath.Dir(l.ReferenceSketchBase()),
		l.UnitsPath(),
		filepath.Join(l.Root, QuerySketchDir, DistDir),
		l.ResultsPath(),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", d, err)
		}
	}
	return nil
}

// Clean removes everything under the root except the results directory
func (l *Layout) Clean() error {
	entries, err := os.ReadDir(l.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", l.Root, err)
	}
	for _, e := range entries {
		if e.Name() == ResultsDir {
			continue
		}
		if err := os.RemoveAll(filepath.Join(l.Root, e.Name())); err != nil {
			return fmt.Errorf("failed to remove %s: %w", e.Name(), err)
		}
	}
	return nil
}
