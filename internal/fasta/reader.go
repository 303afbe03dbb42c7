// Package fasta reads sequence files and partitions them into single-record
// units for the pairwise distance pipeline.
package fasta

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/shenwei356/bio/seq"
	"github.com/shenwei356/bio/seqio/fastx"

	"github.com/kilupskalvis/mashix/internal/models"
)

var (
	// ErrNoInputs is returned when no input files were given.
	ErrNoInputs = errors.New("no input files")

	// ErrNoRecords is returned when the inputs contain no records at all.
	ErrNoRecords = errors.New("no sequence records found")

	// ErrMissingHeader is returned when a file has content before its first header line.
	ErrMissingHeader = errors.New("sequence data before first header")

	// ErrEmptyID is returned for a header line with no identifier.
	ErrEmptyID = errors.New("empty record identifier")

	// ErrUnsupportedInput is returned for files without a sequence file extension.
	ErrUnsupportedInput = errors.New("unsupported input file extension")
)

// Extensions lists the accepted sequence file extensions. Each may be
// followed by ".gz".
var Extensions = []string{".fas", ".fasta", ".fna", ".fsa", ".fa"}

// IsSequenceFile reports whether path carries an accepted extension
func IsSequenceFile(path string) bool {
	name := strings.ToLower(filepath.Base(path))
	name = strings.TrimSuffix(name, ".gz")
	for _, ext := range Extensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// ReadFile calls fn for every record of the sequence file at path, in file
// order. Compressed files are detected and decompressed by the reader. The
// record id is the whole header line after '>', and the body is the sequence
// with line breaks removed, terminated by '\n'.
func ReadFile(path string, fn func(models.Record) error) error {
	reader, err := fastx.NewReader(seq.Unlimit, path, "")
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return readError(path, 0, err)
	}
	defer reader.Close()

	var i int
	for {
		record, err := reader.Read()
		if err != nil {
			if err == io.EOF {
				break
			}
			return readError(path, i+1, err)
		}
		i++

		id := strings.TrimSpace(string(record.Name))
		if id == "" {
			return fmt.Errorf("%s: record %d: %w", path, i, ErrEmptyID)
		}

		// The reader reuses its record, so the sequence is copied out.
		var body []byte
		if record.Seq != nil && len(record.Seq.Seq) > 0 {
			body = make([]byte, 0, len(record.Seq.Seq)+1)
			body = append(body, record.Seq.Seq...)
			body = append(body, '\n')
		}

		if err := fn(models.Record{ID: id, SanitizedID: SanitizeID(id), Source: path, Body: body}); err != nil {
			return err
		}
	}
	return nil
}

func readError(path string, record int, err error) error {
	if errors.Is(err, fastx.ErrNotFASTXFormat) {
		return fmt.Errorf("%s: %w", path, ErrMissingHeader)
	}
	if record > 0 {
		return fmt.Errorf("read %s: record %d: %w", path, record, err)
	}
	return fmt.Errorf("read %s: %w", path, err)
}
