package core

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilupskalvis/mashix/internal/config"
	"github.com/kilupskalvis/mashix/internal/export"
	"github.com/kilupskalvis/mashix/internal/mash"
	"github.com/kilupskalvis/mashix/internal/models"
	"github.com/kilupskalvis/mashix/internal/store"
)

func abcEngine() *mash.MockEngine {
	eng := mash.NewMockEngine()
	eng.Set("A", "B", 0.1, 0.001)
	eng.Set("A", "C", 0.2, 0.2)
	eng.Set("B", "C", 0.3, 0.01)
	return eng
}

func TestRun_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	input := writeFasta(t, dir, "genomes.fasta", "C", "A", "B")
	cfg := testConfig(t, input)
	eng := abcEngine()

	result, err := Run(context.Background(), cfg, RunOptions{Engine: eng})
	require.NoError(t, err)

	assert.True(t, result.Complete())
	assert.Equal(t, 3, result.Rows())
	assert.Empty(t, result.Failures)
	assert.Equal(t, filepath.Join(cfg.OutputDir, "test", "results", "test.csv"), result.MatrixPath)

	want := " ;A;B;C\n" +
		"A;0;0.1;1\n" +
		"B;0.1;0;0.3\n" +
		"C;1;0.3;0\n"
	assert.Equal(t, want, readFile(t, result.MatrixPath))

	// One reference sketch plus one sketch and one dist per unit
	assert.Equal(t, 4, eng.SketchCalls())
	assert.Equal(t, 3, eng.DistCalls())
}

func TestRun_SanitizedIdentifiers(t *testing.T) {
	dir := t.TempDir()
	input := writeFasta(t, dir, "genomes.fasta", "gi|123|ref|NC_1.1| strain (x)", "plain")
	cfg := testConfig(t, input)

	result, err := Run(context.Background(), cfg, RunOptions{Engine: mash.NewMockEngine()})
	require.NoError(t, err)

	header := strings.SplitN(readFile(t, result.MatrixPath), "\n", 2)[0]
	assert.Equal(t, " ;gi_123_ref_NC_1_1__strain__x_;plain", header)
}

func TestRun_PartialFailure(t *testing.T) {
	dir := t.TempDir()
	input := writeFasta(t, dir, "genomes.fasta", "A", "B", "C", "D", "E")
	cfg := testConfig(t, input)
	eng := mash.NewMockEngine()
	eng.FailQueries["C"] = errors.New("sketch is corrupt")

	result, err := Run(context.Background(), cfg, RunOptions{Engine: eng})
	require.NoError(t, err)

	assert.False(t, result.Complete())
	require.Len(t, result.Failures, 1)
	assert.Equal(t, 3, result.Failures[0].Ordinal)
	assert.Equal(t, filepath.Join(cfg.OutputDir, "test", "tmp", "seq_000003.fas"), result.Failures[0].UnitPath)

	lines := strings.Split(strings.TrimRight(readFile(t, result.MatrixPath), "\n"), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, " ;A;B;D;E", lines[0])
	for _, line := range lines[1:] {
		assert.NotContains(t, line, "C")
		assert.Len(t, strings.Split(line, ";"), 5)
	}

	st, err := store.Open(result.Layout.LedgerPath())
	require.NoError(t, err)
	defer st.Close()
	run, err := st.GetLastRun()
	require.NoError(t, err)
	assert.Equal(t, 1, run.Failed)
	assert.False(t, run.Complete)
}

func TestRun_AllFailed(t *testing.T) {
	dir := t.TempDir()
	input := writeFasta(t, dir, "genomes.fasta", "A", "B")
	cfg := testConfig(t, input)
	eng := mash.NewMockEngine()
	eng.FailQueries["A"] = errors.New("boom")
	eng.FailQueries["B"] = errors.New("boom")

	result, err := Run(context.Background(), cfg, RunOptions{Engine: eng})
	assert.ErrorIs(t, err, ErrNoResults)
	assert.Len(t, result.Failures, 2)
	assert.NoFileExists(t, result.Layout.MatrixPath())
}

func TestRun_RowCountMatchesRecords(t *testing.T) {
	for _, n := range []int{1, 2, 7} {
		dir := t.TempDir()
		ids := make([]string, n)
		for i := range ids {
			ids[i] = "rec" + strings.Repeat("x", i)
		}
		cfg := testConfig(t, writeFasta(t, dir, "in.fa", ids...))

		result, err := Run(context.Background(), cfg, RunOptions{Engine: mash.NewMockEngine()})
		require.NoError(t, err)

		lines := strings.Split(strings.TrimRight(readFile(t, result.MatrixPath), "\n"), "\n")
		assert.Len(t, lines, n+1)
		for _, line := range lines {
			assert.Len(t, strings.Split(line, ";"), n+1)
		}
	}
}

func TestRun_DeterministicAcrossThreads(t *testing.T) {
	dir := t.TempDir()
	ids := []string{"E", "B", "D", "A", "F", "C"}
	input := writeFasta(t, dir, "genomes.fasta", ids...)

	var outputs []string
	for _, threads := range []int{1, 2, 6} {
		eng := abcEngine()
		eng.Set("D", "E", 0.05, 0.0001)
		cfg := testConfig(t, input)
		cfg.Threads = threads

		result, err := Run(context.Background(), cfg, RunOptions{Engine: eng})
		require.NoError(t, err)
		outputs = append(outputs, readFile(t, result.MatrixPath))
	}
	assert.Equal(t, outputs[0], outputs[1])
	assert.Equal(t, outputs[0], outputs[2])
}

func TestRun_MultipleInputs(t *testing.T) {
	dir := t.TempDir()
	first := writeFasta(t, dir, "one.fasta", "A")
	second := writeFasta(t, dir, "two.fna", "B", "C")
	cfg := testConfig(t, first, second)

	result, err := Run(context.Background(), cfg, RunOptions{Engine: abcEngine()})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, result.Matrix.IDs)

	corpus := readFile(t, result.Layout.CorpusPath())
	assert.Equal(t, 3, strings.Count(corpus, ">"))
}

func TestRun_InvalidConfig(t *testing.T) {
	cfg := testConfig(t, "missing.fasta")
	cfg.Threads = 0

	_, err := Run(context.Background(), cfg, RunOptions{Engine: mash.NewMockEngine()})
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestRun_MissingInputCreatesNothing(t *testing.T) {
	cfg := testConfig(t, filepath.Join(t.TempDir(), "missing.fasta"))

	_, err := Run(context.Background(), cfg, RunOptions{Engine: mash.NewMockEngine()})
	require.Error(t, err)
	assert.NoDirExists(t, filepath.Join(cfg.OutputDir, "test"))
}

func TestRun_Cancelled(t *testing.T) {
	dir := t.TempDir()
	input := writeFasta(t, dir, "genomes.fasta", "A", "B", "C", "D")
	cfg := testConfig(t, input)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eng := &cancellingEngine{Engine: abcEngine(), cancel: cancel}

	result, err := Run(ctx, cfg, RunOptions{Engine: eng})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, result.Skipped)
	assert.NoFileExists(t, result.Layout.MatrixPath())
}

func TestRun_Resume(t *testing.T) {
	dir := t.TempDir()
	input := writeFasta(t, dir, "genomes.fasta", "A", "B", "C")
	cfg := testConfig(t, input)

	first, err := Run(context.Background(), cfg, RunOptions{Engine: abcEngine()})
	require.NoError(t, err)
	want := readFile(t, first.MatrixPath)

	cfg.Resume = true
	eng := abcEngine()
	var (
		mu    sync.Mutex
		ticks [][2]int
	)
	second, err := Run(context.Background(), cfg, RunOptions{
		Engine: eng,
		Progress: func(done, total int) {
			mu.Lock()
			ticks = append(ticks, [2]int{done, total})
			mu.Unlock()
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, second.Resumed)
	assert.Equal(t, 0, eng.SketchCalls())
	assert.Equal(t, 0, eng.DistCalls())
	assert.Equal(t, want, readFile(t, second.MatrixPath))
	assert.Equal(t, [][2]int{{3, 3}}, ticks)
}

func TestRun_ResumeAfterFailure(t *testing.T) {
	dir := t.TempDir()
	input := writeFasta(t, dir, "genomes.fasta", "A", "B", "C")
	cfg := testConfig(t, input)

	eng := abcEngine()
	eng.FailQueries["B"] = errors.New("transient")
	first, err := Run(context.Background(), cfg, RunOptions{Engine: eng})
	require.NoError(t, err)
	require.False(t, first.Complete())

	cfg.Resume = true
	eng = abcEngine()
	second, err := Run(context.Background(), cfg, RunOptions{Engine: eng})
	require.NoError(t, err)

	assert.True(t, second.Complete())
	assert.Equal(t, 2, second.Resumed)
	assert.Equal(t, 1, eng.DistCalls())
	assert.Equal(t, 3, second.Rows())
}

func TestRun_ResumeWithChangedParameters(t *testing.T) {
	dir := t.TempDir()
	input := writeFasta(t, dir, "genomes.fasta", "A", "B")
	cfg := testConfig(t, input)

	_, err := Run(context.Background(), cfg, RunOptions{Engine: mash.NewMockEngine()})
	require.NoError(t, err)

	cfg.Resume = true
	cfg.KmerSize = 15
	eng := mash.NewMockEngine()
	result, err := Run(context.Background(), cfg, RunOptions{Engine: eng})
	require.NoError(t, err)

	assert.Equal(t, 0, result.Resumed)
	assert.Equal(t, 2, eng.DistCalls())
}

func TestRun_SketchCacheAcrossTags(t *testing.T) {
	dir := t.TempDir()
	input := writeFasta(t, dir, "genomes.fasta", "A", "B", "C")
	cfg := testConfig(t, input)
	cfg.SketchCache = filepath.Join(dir, "cache")

	_, err := Run(context.Background(), cfg, RunOptions{Engine: abcEngine()})
	require.NoError(t, err)

	cfg.OutputTag = "again"
	eng := abcEngine()
	result, err := Run(context.Background(), cfg, RunOptions{Engine: eng})
	require.NoError(t, err)

	assert.Equal(t, 3, result.CacheHits)
	assert.Equal(t, 1, eng.SketchCalls(), "only the reference is sketched")
}

func TestRun_Cleanup(t *testing.T) {
	dir := t.TempDir()
	input := writeFasta(t, dir, "genomes.fasta", "A", "B")
	cfg := testConfig(t, input)
	cfg.Cleanup = true

	result, err := Run(context.Background(), cfg, RunOptions{Engine: mash.NewMockEngine()})
	require.NoError(t, err)

	entries, err := os.ReadDir(result.Layout.Root)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, config.ResultsDir, entries[0].Name())
	assert.FileExists(t, result.MatrixPath)
}

func TestRun_SQLiteExport(t *testing.T) {
	dir := t.TempDir()
	input := writeFasta(t, dir, "genomes.fasta", "A", "B", "C")
	cfg := testConfig(t, input)
	cfg.SQLiteExport = true

	result, err := Run(context.Background(), cfg, RunOptions{Engine: abcEngine()})
	require.NoError(t, err)

	d, err := export.ReadDistance(context.Background(), result.SQLitePath, "B", "C")
	require.NoError(t, err)
	assert.Equal(t, 0.3, d)
}

func TestRun_CommaDelimiter(t *testing.T) {
	dir := t.TempDir()
	input := writeFasta(t, dir, "genomes.fasta", "A", "B")
	cfg := testConfig(t, input)
	cfg.Delimiter = ","

	result, err := Run(context.Background(), cfg, RunOptions{Engine: abcEngine()})
	require.NoError(t, err)
	assert.Equal(t, " ,A,B\nA,0,0.1\nB,0.1,0\n", readFile(t, result.MatrixPath))
}

func TestRun_LedgerRecordsJobs(t *testing.T) {
	dir := t.TempDir()
	input := writeFasta(t, dir, "genomes.fasta", "A", "B")
	cfg := testConfig(t, input)

	result, err := Run(context.Background(), cfg, RunOptions{Engine: abcEngine()})
	require.NoError(t, err)

	st, err := store.Open(result.Layout.LedgerPath())
	require.NoError(t, err)
	defer st.Close()

	counts, err := st.CountJobs()
	require.NoError(t, err)
	assert.Equal(t, 2, counts[models.JobDone])

	run, err := st.GetLastRun()
	require.NoError(t, err)
	assert.Equal(t, result.Run.ID, run.ID)
	assert.True(t, run.Complete)
	assert.Equal(t, result.MatrixPath, run.Matrix)
}

func TestRun_MinCopiesReadMode(t *testing.T) {
	dir := t.TempDir()
	input := writeFasta(t, dir, "genomes.fasta", "C", "A", "B")
	cfg := testConfig(t, input)
	cfg.MinCopies = 2

	result, err := Run(context.Background(), cfg, RunOptions{Engine: abcEngine()})
	require.NoError(t, err)

	assert.True(t, result.Complete())
	want := " ;A;B;C\n" +
		"A;0;0.1;1\n" +
		"B;0.1;0;0.3\n" +
		"C;1;0.3;0\n"
	assert.Equal(t, want, readFile(t, result.MatrixPath))
}

// rewritingEngine passes every dist row through rewrite; a nil return drops the row.
type rewritingEngine struct {
	mash.Engine
	rewrite func(fields []string) []string
}

func (e *rewritingEngine) Dist(ctx context.Context, reference, query string, w io.Writer) error {
	var buf bytes.Buffer
	if err := e.Engine.Dist(ctx, reference, query, &buf); err != nil {
		return err
	}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		fields := e.rewrite(strings.Split(line, "\t"))
		if fields == nil {
			continue
		}
		if _, err := io.WriteString(w, strings.Join(fields, "\t")+"\n"); err != nil {
			return err
		}
	}
	return nil
}

func TestRun_UnexpectedQueryIsUnitFailure(t *testing.T) {
	dir := t.TempDir()
	input := writeFasta(t, dir, "genomes.fasta", "A", "B", "C")
	cfg := testConfig(t, input)
	eng := &rewritingEngine{Engine: abcEngine(), rewrite: func(f []string) []string {
		if f[1] == "B" {
			f[1] = "A"
		}
		return f
	}}

	result, err := Run(context.Background(), cfg, RunOptions{Engine: eng})
	require.NoError(t, err)

	assert.False(t, result.Complete())
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "B", result.Failures[0].RecordID)
	assert.ErrorIs(t, result.Failures[0].Err, ErrUnexpectedQuery)
	assert.Contains(t, result.Failures[0].Error(), `expected "B"`)
	assert.Equal(t, []string{"A", "C"}, result.Matrix.IDs)
}

func TestRun_MissingColumnClosesRun(t *testing.T) {
	dir := t.TempDir()
	input := writeFasta(t, dir, "genomes.fasta", "A", "B")
	cfg := testConfig(t, input)
	eng := &rewritingEngine{Engine: abcEngine(), rewrite: func(f []string) []string {
		if f[0] == "B" && f[1] == "A" {
			return nil
		}
		return f
	}}

	result, err := Run(context.Background(), cfg, RunOptions{Engine: eng})
	require.ErrorIs(t, err, ErrMissingColumn)
	assert.NoFileExists(t, result.Layout.MatrixPath())

	st, err := store.Open(result.Layout.LedgerPath())
	require.NoError(t, err)
	defer st.Close()

	run, err := st.GetLastRun()
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, result.Run.ID, run.ID)
	assert.False(t, run.FinishedAt.IsZero())
	assert.False(t, run.Complete)
}

func TestRun_FailedRerunRemovesStaleMatrix(t *testing.T) {
	dir := t.TempDir()
	input := writeFasta(t, dir, "genomes.fasta", "A", "B")
	cfg := testConfig(t, input)
	cfg.SQLiteExport = true

	first, err := Run(context.Background(), cfg, RunOptions{Engine: abcEngine()})
	require.NoError(t, err)
	require.FileExists(t, first.MatrixPath)
	require.FileExists(t, first.SQLitePath)

	eng := abcEngine()
	eng.FailQueries["A"] = errors.New("boom")
	eng.FailQueries["B"] = errors.New("boom")

	second, err := Run(context.Background(), cfg, RunOptions{Engine: eng})
	require.ErrorIs(t, err, ErrNoResults)
	assert.NoFileExists(t, second.Layout.MatrixPath())
	assert.NoFileExists(t, second.Layout.SQLitePath())
}

func TestParamsHash(t *testing.T) {
	cfg := config.Default()
	units := []models.Unit{{Ordinal: 1, RecordID: "A", Checksum: "x"}}

	h := ParamsHash(cfg, units)
	assert.Equal(t, h, ParamsHash(cfg, units))

	cfg.MinCopies = 3
	assert.NotEqual(t, h, ParamsHash(cfg, units))

	cfg.MinCopies = config.DefaultMinCopies
	cfg.Threads = 8
	assert.Equal(t, h, ParamsHash(cfg, units), "threads do not change results")
}
