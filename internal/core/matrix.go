package core

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kilupskalvis/mashix/internal/models"
)

// HeaderCell is the top-left cell of the matrix header.
const HeaderCell = " "

// FormatDistance renders a distance with the fewest digits that round-trip.
func FormatDistance(d float64) string {
	return strconv.FormatFloat(d, 'f', -1, 64)
}

// WriteMatrix writes m as delimited text: a header of HeaderCell followed by
// the identifiers, then one row per identifier in the same order. Fields are
// never quoted; a delimiter inside an identifier is escaped with a backslash.
func WriteMatrix(w io.Writer, m *models.DistanceMatrix, delim rune) error {
	sep := string(delim)
	escape := strings.NewReplacer(`\`, `\\`, sep, `\`+sep)

	bw := bufio.NewWriter(w)
	fields := make([]string, 0, len(m.IDs)+1)

	fields = append(fields, HeaderCell)
	for _, id := range m.IDs {
		fields = append(fields, escape.Replace(id))
	}
	bw.WriteString(strings.Join(fields, sep))
	bw.WriteByte('\n')

	for _, id := range m.IDs {
		row := m.Rows[id]
		if len(row) != len(m.IDs) {
			return fmt.Errorf("row %s has %d columns, want %d", id, len(row), len(m.IDs))
		}
		fields = fields[:0]
		fields = append(fields, escape.Replace(id))
		for _, d := range row {
			fields = append(fields, FormatDistance(d))
		}
		bw.WriteString(strings.Join(fields, sep))
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// WriteMatrixFile writes the matrix to path, replacing it atomically.
func WriteMatrixFile(path string, m *models.DistanceMatrix, delim rune) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create results directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".matrix-*")
	if err != nil {
		return fmt.Errorf("failed to create matrix file: %w", err)
	}
	tmpPath := tmp.Name()

	err = WriteMatrix(tmp, m, delim)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write matrix: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to finalize matrix: %w", err)
	}
	return os.Chmod(path, 0644)
}
