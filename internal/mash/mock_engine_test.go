package mash

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kilupskalvis/mashix/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockEngine_SketchAndDist(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	corpus := filepath.Join(dir, "corpus.fas")
	unit := filepath.Join(dir, "unit.fas")
	require.NoError(t, os.WriteFile(corpus, []byte(">A\nAC\n>B\nGG\n"), 0644))
	require.NoError(t, os.WriteFile(unit, []byte(">A\nAC\n"), 0644))

	m := NewMockEngine()
	m.Set("A", "B", 0.1, 0.001)

	ref, err := m.Sketch(ctx, SketchRequest{Input: corpus, Output: filepath.Join(dir, "ref"), Profile: models.SketchProfile{KmerSize: 21}})
	require.NoError(t, err)
	q, err := m.Sketch(ctx, SketchRequest{Input: unit, Output: filepath.Join(dir, "q"), Profile: models.SketchProfile{KmerSize: 21}})
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, m.Dist(ctx, ref, q, &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "A\tA\t0\t0\t1000/1000", lines[0])
	assert.Equal(t, "B\tA\t0.1\t0.001\t900/1000", lines[1])
	assert.Equal(t, 2, m.SketchCalls())
	assert.Equal(t, 1, m.DistCalls())
}

func TestMockEngine_FailQuery(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	unit := filepath.Join(dir, "unit.fas")
	require.NoError(t, os.WriteFile(unit, []byte(">A\nAC\n"), 0644))

	m := NewMockEngine()
	m.FailQueries["A"] = errors.New("boom")

	q, err := m.Sketch(ctx, SketchRequest{Input: unit, Output: filepath.Join(dir, "q")})
	require.NoError(t, err)

	err = m.Dist(ctx, q, q, &bytes.Buffer{})
	var ee *ExecError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, 1, ee.ExitCode)
}

func TestMockEngine_NotASketch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.msh")
	require.NoError(t, os.WriteFile(path, []byte("junk\n"), 0644))

	err := NewMockEngine().Dist(context.Background(), path, path, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestMockEngine_ReadModeNamesEntryAfterFile(t *testing.T) {
	dir := t.TempDir()
	unit := filepath.Join(dir, "seq_000001.fas")
	require.NoError(t, os.WriteFile(unit, []byte(">A\nAC\n"), 0644))

	m := NewMockEngine()
	q, err := m.Sketch(context.Background(), SketchRequest{
		Input:   unit,
		Output:  filepath.Join(dir, "q"),
		Profile: models.SketchProfile{KmerSize: 21, MinCopies: 2},
	})
	require.NoError(t, err)

	entries, err := readMockSketch(q)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, unit, entries[0].name)
	assert.Equal(t, []string{"A"}, entries[0].records)

	var out bytes.Buffer
	require.NoError(t, m.Dist(context.Background(), q, q, &out))
	assert.Equal(t, unit+"\t"+unit+"\t0\t0\t1000/1000\n", out.String())
}
