package fasta

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kilupskalvis/mashix/internal/models"
)

// ErrDuplicateID is returned when two records sanitize to the same identifier.
var ErrDuplicateID = errors.New("duplicate sanitized identifier")

// Paths tells the partitioner where to write.
type Paths interface {
	CorpusPath() string
	UnitPath(ordinal int) string
}

// Partition is the output of splitting the inputs into units
type Partition struct {
	Corpus string
	Units  []models.Unit
}

// IDs returns the sanitized record ids in ordinal order
func (p *Partition) IDs() []string {
	ids := make([]string, len(p.Units))
	for i, u := range p.Units {
		ids[i] = u.RecordID
	}
	return ids
}

// CheckInputs validates the input set without creating anything.
func CheckInputs(inputs []string) error {
	if len(inputs) == 0 {
		return ErrNoInputs
	}
	for _, in := range inputs {
		if !IsSequenceFile(in) {
			return fmt.Errorf("%s: %w", in, ErrUnsupportedInput)
		}
		info, err := os.Stat(in)
		if err != nil {
			return fmt.Errorf("input %s: %w", in, err)
		}
		if info.IsDir() {
			return fmt.Errorf("input %s is a directory", in)
		}
	}
	return nil
}

// PartitionInputs concatenates every record of inputs, with sanitized
// headers, into one corpus file and writes each record to its own unit file
// named after its ordinal (starting at 1).
func PartitionInputs(ctx context.Context, inputs []string, paths Paths) (*Partition, error) {
	if err := CheckInputs(inputs); err != nil {
		return nil, err
	}

	corpusPath := paths.CorpusPath()
	if err := os.MkdirAll(filepath.Dir(corpusPath), 0755); err != nil {
		return nil, fmt.Errorf("create corpus directory: %w", err)
	}
	corpus, err := os.Create(corpusPath)
	if err != nil {
		return nil, fmt.Errorf("create corpus: %w", err)
	}
	defer corpus.Close()
	cw := bufio.NewWriter(corpus)

	part := &Partition{Corpus: corpusPath}
	seen := make(map[string]string)

	for _, in := range inputs {
		err := ReadFile(in, func(rec models.Record) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if prev, dup := seen[rec.SanitizedID]; dup {
				return fmt.Errorf("%w: %q and %q both become %q", ErrDuplicateID, prev, rec.ID, rec.SanitizedID)
			}
			seen[rec.SanitizedID] = rec.ID

			content := unitContent(rec)
			if _, err := cw.Write(content); err != nil {
				return fmt.Errorf("write corpus: %w", err)
			}

			ordinal := len(part.Units) + 1
			unitPath := paths.UnitPath(ordinal)
			if err := writeUnit(unitPath, content); err != nil {
				return err
			}

			sum := sha256.Sum256(content)
			part.Units = append(part.Units, models.Unit{
				Ordinal:  ordinal,
				RecordID: rec.SanitizedID,
				Path:     unitPath,
				Checksum: hex.EncodeToString(sum[:]),
			})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	if len(part.Units) == 0 {
		return nil, ErrNoRecords
	}

	if err := cw.Flush(); err != nil {
		return nil, fmt.Errorf("flush corpus: %w", err)
	}
	if err := corpus.Sync(); err != nil {
		return nil, fmt.Errorf("sync corpus: %w", err)
	}

	return part, nil
}

// unitContent renders a record with its sanitized header
func unitContent(rec models.Record) []byte {
	buf := make([]byte, 0, len(rec.SanitizedID)+2+len(rec.Body))
	buf = append(buf, '>')
	buf = append(buf, rec.SanitizedID...)
	buf = append(buf, '\n')
	return append(buf, rec.Body...)
}

func writeUnit(path string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create unit directory: %w", err)
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		return fmt.Errorf("write unit %s: %w", path, err)
	}
	return nil
}
