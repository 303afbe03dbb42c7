package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/kilupskalvis/mashix/internal/config"
	"github.com/kilupskalvis/mashix/internal/export"
	"github.com/kilupskalvis/mashix/internal/fasta"
	"github.com/kilupskalvis/mashix/internal/mash"
	"github.com/kilupskalvis/mashix/internal/models"
	"github.com/kilupskalvis/mashix/internal/sketchcache"
	"github.com/kilupskalvis/mashix/internal/store"
)

// ErrNoResults is returned when every unit failed and there is nothing to aggregate.
var ErrNoResults = errors.New("no unit produced a result")

// RunOptions holds the collaborators of a pipeline run
type RunOptions struct {
	Engine   mash.Engine
	Cache    sketchcache.Cache // defaults to an FSCache at cfg.SketchCache when set
	Progress ProgressFunc
	Logger   *slog.Logger
}

// RunResult summarizes a pipeline run
type RunResult struct {
	Run        *models.Run
	Layout     *config.Layout
	MatrixPath string
	SQLitePath string
	Matrix     *models.DistanceMatrix
	Failures   []models.UnitFailure
	Skipped    int
	Resumed    int
	CacheHits  int
}

// Complete reports whether every unit contributed a row
func (r *RunResult) Complete() bool {
	return r.Run != nil && r.Run.Complete
}

// Rows returns the number of matrix rows written
func (r *RunResult) Rows() int {
	if r.Matrix == nil {
		return 0
	}
	return r.Matrix.Len()
}

// ParamsHash identifies the inputs and sketch parameters a set of results
// was produced from. Results are only reused when it matches.
func ParamsHash(cfg *config.Config, units []models.Unit) string {
	h := sha256.New()
	fmt.Fprintf(h, "k=%d|m=%d\n", cfg.KmerSize, cfg.MinCopies)
	for _, u := range units {
		fmt.Fprintf(h, "%d|%s|%s\n", u.Ordinal, u.RecordID, u.Checksum)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Run executes the whole pipeline for cfg. A run in which some units failed
// still writes the matrix of the successful ones and returns a nil error;
// callers check RunResult.Complete. Cancellation stops the job phase, skips
// aggregation and returns the context error.
func Run(ctx context.Context, cfg *config.Config, opts RunOptions) (*RunResult, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Engine == nil {
		return nil, errors.New("no distance engine configured")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := fasta.CheckInputs(cfg.Inputs); err != nil {
		return nil, err
	}

	layout, err := cfg.Layout()
	if err != nil {
		return nil, err
	}
	if err := layout.Create(); err != nil {
		return nil, err
	}
	// A matrix from an earlier run must not outlive a rerun that fails.
	if err := removeStale(layout.MatrixPath(), layout.SQLitePath()); err != nil {
		return nil, err
	}

	cache := opts.Cache
	if cache == nil && cfg.SketchCache != "" {
		fsc, err := sketchcache.NewFSCache(cfg.SketchCache)
		if err != nil {
			return nil, err
		}
		cache = fsc
	}

	ledger, err := store.New(layout.LedgerPath())
	if err != nil {
		return nil, err
	}
	defer ledger.Close()
	if err := ledger.Initialize(); err != nil {
		return nil, err
	}

	run := &models.Run{
		ID:        uuid.New().String(),
		Tag:       cfg.OutputTag,
		Inputs:    cfg.Inputs,
		StartedAt: time.Now(),
	}
	result := &RunResult{Run: run, Layout: layout}
	logger = logger.With("run", run.ShortID(), "tag", run.Tag)

	// Partition
	part, err := fasta.PartitionInputs(ctx, cfg.Inputs, layout)
	if err != nil {
		return nil, err
	}
	run.Units = len(part.Units)
	run.ParamsHash = ParamsHash(cfg, part.Units)
	logger.Info("partitioned inputs", "units", run.Units, "corpus", part.Corpus)

	resume := cfg.Resume && canResume(ledger, run.ParamsHash, logger)
	if !resume {
		if err := ledger.ClearJobs(); err != nil {
			return nil, err
		}
	}
	if err := ledger.SaveRun(run); err != nil {
		return nil, err
	}

	// Reference sketch
	refPath := layout.ReferenceSketchBase() + mash.SketchExt
	if resume && nonEmpty(refPath) {
		logger.Info("reusing reference sketch", "path", refPath)
	} else {
		refPath, err = BuildReference(ctx, opts.Engine, part.Corpus, layout.ReferenceSketchBase(),
			ReferenceProfile(cfg.KmerSize, cfg.Threads))
		if err != nil {
			return nil, err
		}
		logger.Info("built reference sketch", "path", refPath)
	}

	// Pairwise jobs
	jobs := make([]models.Job, len(part.Units))
	for i, u := range part.Units {
		jobs[i] = models.Job{
			Unit:       u,
			Reference:  refPath,
			SketchBase: layout.QuerySketchBase(u.Ordinal),
			ResultPath: layout.DistPath(u.Ordinal),
		}
	}

	pending := jobs
	var reused []models.Job
	if resume {
		pending, reused = splitResumable(ledger, jobs)
		result.Resumed = len(reused)
		logger.Info("resuming", "reused", len(reused), "pending", len(pending))
	}

	progress := opts.Progress
	if progress != nil && len(reused) > 0 {
		progress(len(reused), len(jobs))
		inner := progress
		progress = func(done, _ int) { inner(done+len(reused), len(jobs)) }
	}

	report, jobErr := RunJobs(ctx, pending, PoolOptions{
		Threads: cfg.Threads,
		Job: JobOptions{
			Engine:  opts.Engine,
			Profile: QueryProfile(cfg.KmerSize, cfg.MinCopies),
			Cache:   cache,
			Logger:  logger,
		},
		Ledger:   ledger,
		Progress: progress,
		Logger:   logger,
	})
	result.Failures = report.Failures
	result.Skipped = len(report.Skipped)
	result.CacheHits = report.CacheHits

	if jobErr != nil {
		run.Failed = len(report.Failures)
		closeRun(ledger, run, logger)
		return result, jobErr
	}

	// Aggregate
	succeeded := append(reused, report.Succeeded...)
	sortJobs(succeeded)

	agg := NewAggregator(cfg.PValue)
	for _, job := range succeeded {
		err := agg.AddFile(job.ResultPath, job.Unit)
		if err == nil {
			continue
		}
		if errors.Is(err, ErrIdentifierCollision) {
			run.Failed = len(result.Failures)
			closeRun(ledger, run, logger)
			return result, err
		}
		logger.Warn("unusable result", "unit", job.Unit.Ordinal, "path", job.ResultPath, "error", err)
		result.Failures = append(result.Failures, models.UnitFailure{
			Ordinal:  job.Unit.Ordinal,
			RecordID: job.Unit.RecordID,
			UnitPath: job.Unit.Path,
			Err:      err,
		})
		recordJob(ledger, logger, job, models.JobFailed, nil, err, time.Time{})
	}
	sort.Slice(result.Failures, func(i, j int) bool {
		return result.Failures[i].Ordinal < result.Failures[j].Ordinal
	})
	run.Failed = len(result.Failures)

	if agg.Len() == 0 {
		closeRun(ledger, run, logger)
		return result, ErrNoResults
	}

	matrix, err := agg.Matrix()
	if err != nil {
		closeRun(ledger, run, logger)
		return result, err
	}
	result.Matrix = matrix

	result.MatrixPath = layout.MatrixPath()
	if err := WriteMatrixFile(result.MatrixPath, matrix, cfg.DelimiterRune()); err != nil {
		closeRun(ledger, run, logger)
		return result, err
	}
	logger.Info("wrote matrix", "path", result.MatrixPath, "rows", matrix.Len())

	if cfg.SQLiteExport {
		result.SQLitePath = layout.SQLitePath()
		meta := map[string]string{
			"run_id":      run.ID,
			"tag":         run.Tag,
			"kmer_size":   strconv.Itoa(cfg.KmerSize),
			"min_copies":  strconv.Itoa(cfg.MinCopies),
			"p_value":     strconv.FormatFloat(cfg.PValue, 'g', -1, 64),
			"params_hash": run.ParamsHash,
		}
		if err := export.WriteSQLite(ctx, result.SQLitePath, matrix, meta); err != nil {
			closeRun(ledger, run, logger)
			return result, fmt.Errorf("sqlite export: %w", err)
		}
	}

	run.Matrix = result.MatrixPath
	run.Complete = len(result.Failures) == 0
	run.FinishedAt = time.Now()
	if err := ledger.SaveRun(run); err != nil {
		return result, err
	}

	if cfg.Cleanup {
		if err := layout.Clean(); err != nil {
			return result, fmt.Errorf("cleanup: %w", err)
		}
		logger.Debug("removed intermediate files", "root", layout.Root)
	}

	return result, nil
}

// closeRun stamps an unsuccessful run as finished in the ledger.
func closeRun(ledger *store.Store, run *models.Run, logger *slog.Logger) {
	run.FinishedAt = time.Now()
	if err := ledger.SaveRun(run); err != nil {
		logger.Warn("failed to save run", "error", err)
	}
}

// removeStale deletes output files left by an earlier run.
func removeStale(paths ...string) error {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove stale output: %w", err)
		}
	}
	return nil
}

// canResume reports whether the previous run recorded in the ledger used the
// same inputs and parameters.
func canResume(ledger *store.Store, paramsHash string, logger *slog.Logger) bool {
	last, err := ledger.GetLastRun()
	if err != nil {
		logger.Warn("failed to read previous run, starting over", "error", err)
		return false
	}
	if last == nil {
		logger.Info("no previous run to resume")
		return false
	}
	if last.ParamsHash != paramsHash {
		logger.Info("inputs or parameters changed, starting over", "previous", last.ShortID())
		return false
	}
	return true
}

// splitResumable separates jobs that already have a usable result.
func splitResumable(ledger JobLedger, jobs []models.Job) (pending, reused []models.Job) {
	for _, job := range jobs {
		rec, err := ledger.GetJob(job.Unit.Ordinal)
		if err == nil && rec != nil &&
			rec.Status == models.JobDone &&
			rec.RecordID == job.Unit.RecordID &&
			rec.Checksum == job.Unit.Checksum &&
			nonEmpty(job.ResultPath) {
			reused = append(reused, job)
			continue
		}
		pending = append(pending, job)
	}
	return pending, reused
}

func nonEmpty(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir() && info.Size() > 0
}
