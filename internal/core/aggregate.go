package core

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/kilupskalvis/mashix/internal/models"
)

var (
	// ErrMalformedResult is returned for a result file that cannot be parsed.
	ErrMalformedResult = errors.New("malformed result")

	// ErrIdentifierCollision is returned when two result sets for the same
	// query identifier disagree.
	ErrIdentifierCollision = errors.New("identifier collision")

	// ErrMissingColumn is returned when a query has no distance to one of the
	// matrix identifiers.
	ErrMissingColumn = errors.New("missing distance")

	// ErrUnexpectedQuery is returned when a result file reports a query other
	// than the record its unit holds.
	ErrUnexpectedQuery = errors.New("unexpected query identifier")
)

// ParseResults reads the tab-separated rows written by the distance engine:
// reference_id, query_id, distance, p_value and an optional shared-hashes field.
// Blank lines are ignored.
func ParseResults(r io.Reader) ([]models.PairwiseResult, error) {
	var results []models.PairwiseResult

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) < 4 {
			return nil, fmt.Errorf("%w: line %d: expected at least 4 fields, got %d", ErrMalformedResult, lineNo, len(fields))
		}

		res := models.PairwiseResult{
			ReferenceID: strings.TrimSpace(fields[0]),
			QueryID:     strings.TrimSpace(fields[1]),
		}
		if res.ReferenceID == "" || res.QueryID == "" {
			return nil, fmt.Errorf("%w: line %d: empty identifier", ErrMalformedResult, lineNo)
		}

		var err error
		if res.Distance, err = parseUnit(fields[2]); err != nil {
			return nil, fmt.Errorf("%w: line %d: distance: %v", ErrMalformedResult, lineNo, err)
		}
		if res.PValue, err = parseUnit(fields[3]); err != nil {
			return nil, fmt.Errorf("%w: line %d: p-value: %v", ErrMalformedResult, lineNo, err)
		}
		if len(fields) > 4 {
			res.SharedHashes = strings.TrimSpace(fields[4])
		}
		results = append(results, res)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResult, err)
	}
	return results, nil
}

// parseUnit parses a float in [0,1].
func parseUnit(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if v < 0 || v > 1 {
		return 0, fmt.Errorf("%g out of range [0,1]", v)
	}
	return v, nil
}

// Aggregator merges per-unit results into one row per query identifier,
// applying the significance filter to every distance.
type Aggregator struct {
	threshold float64
	rows      map[string]map[string]float64
	sources   map[string]string
}

// NewAggregator creates an aggregator keeping distances with p-value below threshold
func NewAggregator(threshold float64) *Aggregator {
	return &Aggregator{
		threshold: threshold,
		rows:      make(map[string]map[string]float64),
		sources:   make(map[string]string),
	}
}

// AddFile parses the result file of one unit and adds it as the row of the
// unit's record. Every line must carry the same query identifier, and that
// identifier must name the unit: either its record id or, for sketches built
// from the whole file, the unit path.
func (a *Aggregator) AddFile(path string, unit models.Unit) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	results, err := ParseResults(f)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return fmt.Errorf("%w: no rows", ErrMalformedResult)
	}
	query := results[0].QueryID
	for _, r := range results[1:] {
		if r.QueryID != query {
			return fmt.Errorf("%w: multiple query identifiers (%s, %s)", ErrMalformedResult, query, r.QueryID)
		}
	}
	if !namesUnit(query, unit) {
		return fmt.Errorf("%w: %s reports query %q, expected %q", ErrUnexpectedQuery, path, query, unit.RecordID)
	}
	return a.Add(unit.RecordID, results, path)
}

func namesUnit(query string, unit models.Unit) bool {
	if query == unit.RecordID {
		return true
	}
	if unit.Path == "" {
		return false
	}
	return query == unit.Path || filepath.Clean(query) == filepath.Clean(unit.Path) ||
		query == filepath.Base(unit.Path)
}

// Add adds the filtered results of one query. Adding an identical row for a
// query already present is a no-op; a differing one is a collision.
func (a *Aggregator) Add(query string, results []models.PairwiseResult, source string) error {
	row := make(map[string]float64, len(results))
	for _, r := range results {
		d := r.Filtered(a.threshold)
		if prev, ok := row[r.ReferenceID]; ok && prev != d {
			return fmt.Errorf("%w: %s reports two distances to %s", ErrIdentifierCollision, source, r.ReferenceID)
		}
		row[r.ReferenceID] = d
	}

	if prev, ok := a.rows[query]; ok {
		if !sameRow(prev, row) {
			return fmt.Errorf("%w: %s in both %s and %s", ErrIdentifierCollision, query, a.sources[query], source)
		}
	}
	a.rows[query] = row
	a.sources[query] = source
	return nil
}

func sameRow(a, b map[string]float64) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if w, ok := b[k]; !ok || w != v {
			return false
		}
	}
	return true
}

// Len returns the number of query rows
func (a *Aggregator) Len() int {
	return len(a.rows)
}

// Matrix returns the square matrix over the sorted query identifiers.
// References that are not also queries are dropped.
func (a *Aggregator) Matrix() (*models.DistanceMatrix, error) {
	ids := make([]string, 0, len(a.rows))
	for id := range a.rows {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	m := &models.DistanceMatrix{IDs: ids, Rows: make(map[string][]float64, len(ids))}
	for _, q := range ids {
		src := a.rows[q]
		vec := make([]float64, len(ids))
		for i, ref := range ids {
			d, ok := src[ref]
			if !ok {
				return nil, fmt.Errorf("%w: %s has no distance to %s", ErrMissingColumn, q, ref)
			}
			vec[i] = d
		}
		m.Rows[q] = vec
	}
	return m, nil
}
