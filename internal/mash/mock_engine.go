package mash

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/kilupskalvis/mashix/internal/fasta"
	"github.com/kilupskalvis/mashix/internal/models"
)

const mockSketchHeader = "#mock-sketch"

// Pair is a reference/query identifier pair.
type Pair struct {
	Reference string
	Query     string
}

// Estimate is a distance and its p-value.
type Estimate struct {
	Distance float64
	PValue   float64
}

// MockEngine is an in-process Engine for testing. Its sketches are text files
// listing record ids; distances come from Table, with identical ids at
// distance 0 and unknown pairs at Default.
type MockEngine struct {
	// Table holds distances by pair. Lookups try (ref, query) then (query, ref).
	Table map[Pair]Estimate
	// Default is returned for unknown pairs
	Default Estimate
	// FailQueries makes Dist fail for any query sketch containing one of these ids
	FailQueries map[string]error
	// EmptyQueries makes Dist write nothing for these query ids
	EmptyQueries map[string]bool
	// FailSketch makes Sketch fail for every input
	FailSketch error

	mu          sync.Mutex
	sketchCalls int
	distCalls   int
}

// NewMockEngine creates a MockEngine whose unknown pairs are unrelated.
func NewMockEngine() *MockEngine {
	return &MockEngine{
		Table:        make(map[Pair]Estimate),
		Default:      Estimate{Distance: 1, PValue: 1},
		FailQueries:  make(map[string]error),
		EmptyQueries: make(map[string]bool),
	}
}

// Set records a symmetric distance between a and b.
func (m *MockEngine) Set(a, b string, distance, pValue float64) {
	m.Table[Pair{Reference: a, Query: b}] = Estimate{Distance: distance, PValue: pValue}
}

// SketchCalls returns how many times Sketch ran.
func (m *MockEngine) SketchCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sketchCalls
}

// DistCalls returns how many times Dist ran.
func (m *MockEngine) DistCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.distCalls
}

// Sketch writes the record ids of req.Input to req.Output + SketchExt. With a
// min-copies filter it behaves like mash read mode and writes a single entry
// named after req.Input, remembering the records it was built from.
func (m *MockEngine) Sketch(ctx context.Context, req SketchRequest) (string, error) {
	m.mu.Lock()
	m.sketchCalls++
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if m.FailSketch != nil {
		return "", m.FailSketch
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s k=%d m=%d\n", mockSketchHeader, req.Profile.KmerSize, req.Profile.MinCopies)
	var ids []string
	err := fasta.ReadFile(req.Input, func(r models.Record) error {
		ids = append(ids, r.ID)
		return nil
	})
	if err != nil {
		return "", err
	}
	if req.Profile.MinCopies > 0 {
		// Read mode: one entry named after the input file
		fmt.Fprintf(&b, "%s\t%s\n", req.Input, strings.Join(ids, ","))
	} else {
		for _, id := range ids {
			fmt.Fprintf(&b, "%s\t%s\n", id, id)
		}
	}

	out := req.Output + SketchExt
	if err := os.WriteFile(out, []byte(b.String()), 0644); err != nil {
		return "", err
	}
	return out, nil
}

// Dist writes one row per (reference id, query id) pair.
func (m *MockEngine) Dist(ctx context.Context, reference, query string, w io.Writer) error {
	m.mu.Lock()
	m.distCalls++
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	refs, err := readMockSketch(reference)
	if err != nil {
		return err
	}
	queries, err := readMockSketch(query)
	if err != nil {
		return err
	}

	for _, q := range queries {
		for _, id := range q.records {
			if ferr, ok := m.FailQueries[id]; ok {
				return &ExecError{Op: "dist", Args: DistArgs(reference, query), ExitCode: 1, Stderr: ferr.Error(), Err: ferr}
			}
			if m.EmptyQueries[id] {
				return fmt.Errorf("dist %s: %w", query, ErrEmptyOutput)
			}
		}
	}

	bw := bufio.NewWriter(w)
	for _, q := range queries {
		for _, r := range refs {
			est := m.lookup(r.records[0], q.records[0])
			fmt.Fprintf(bw, "%s\t%s\t%s\t%s\t%d/1000\n", r.name, q.name,
				strconv.FormatFloat(est.Distance, 'f', -1, 64),
				strconv.FormatFloat(est.PValue, 'g', -1, 64),
				int(math.Round((1-est.Distance)*1000)))
		}
	}
	return bw.Flush()
}

func (m *MockEngine) lookup(ref, query string) Estimate {
	if ref == query {
		return Estimate{Distance: 0, PValue: 0}
	}
	if est, ok := m.Table[Pair{Reference: ref, Query: query}]; ok {
		return est
	}
	if est, ok := m.Table[Pair{Reference: query, Query: ref}]; ok {
		return est
	}
	return m.Default
}

// mockEntry is one sketch entry and the record ids it covers
type mockEntry struct {
	name    string
	records []string
}

func readMockSketch(path string) ([]mockEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) == 0 || !strings.HasPrefix(lines[0], mockSketchHeader) {
		return nil, fmt.Errorf("%s is not a mock sketch", path)
	}

	entries := make([]mockEntry, 0, len(lines)-1)
	for _, line := range lines[1:] {
		name, records, ok := strings.Cut(line, "\t")
		if !ok || records == "" {
			return nil, fmt.Errorf("%s: malformed entry %q", path, line)
		}
		entries = append(entries, mockEntry{name: name, records: strings.Split(records, ",")})
	}
	return entries, nil
}
