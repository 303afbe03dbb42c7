package core

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kilupskalvis/mashix/internal/models"
)

// JobLedger persists job state. *store.Store satisfies it.
type JobLedger interface {
	GetJob(ordinal int) (*models.JobRecord, error)
	PutJob(rec *models.JobRecord) error
}

// ProgressFunc is called after every finished job with the number of
// finished jobs and the total. Calls are serialized and done only increases,
// so a slow observer delays the pool rather than seeing counts out of order.
type ProgressFunc func(done, total int)

// PoolOptions configures RunJobs
type PoolOptions struct {
	Threads  int
	Job      JobOptions
	Ledger   JobLedger // optional
	Progress ProgressFunc
	Logger   *slog.Logger
}

// JobsReport is the outcome of a job phase. Succeeded and Failures are
// sorted by ordinal regardless of completion order.
type JobsReport struct {
	Total     int
	Succeeded []models.Job
	Failures  []models.UnitFailure
	Skipped   []models.Job
	CacheHits int
}

// RunJobs runs one pairwise job per entry of jobs with at most opts.Threads
// in flight. A failing job never stops its siblings. When ctx is cancelled no
// further job starts, the unstarted ones are reported as skipped and the
// context error is returned with the report.
func RunJobs(ctx context.Context, jobs []models.Job, opts PoolOptions) (*JobsReport, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Job.Logger == nil {
		opts.Job.Logger = logger
	}
	threads := opts.Threads
	if threads < 1 {
		threads = 1
	}

	report := &JobsReport{Total: len(jobs)}
	var (
		mu   sync.Mutex
		done int
	)

	finish := func(job models.Job, out *JobOutcome, err error) {
		mu.Lock()
		switch {
		case err == nil:
			report.Succeeded = append(report.Succeeded, job)
			if out.CacheHit {
				report.CacheHits++
			}
		case ctx.Err() != nil:
			report.Skipped = append(report.Skipped, job)
		default:
			report.Failures = append(report.Failures, models.UnitFailure{
				Ordinal:  job.Unit.Ordinal,
				RecordID: job.Unit.RecordID,
				UnitPath: job.Unit.Path,
				Err:      err,
			})
		}
		done++
		if opts.Progress != nil {
			opts.Progress(done, len(jobs))
		}
		mu.Unlock()
	}

	// A plain group: job errors are collected, never propagated to siblings.
	var g errgroup.Group
	g.SetLimit(threads)

	for _, job := range jobs {
		if ctx.Err() != nil {
			mu.Lock()
			report.Skipped = append(report.Skipped, job)
			mu.Unlock()
			recordJob(opts.Ledger, logger, job, models.JobSkipped, nil, nil, time.Time{})
			continue
		}

		g.Go(func() error {
			if ctx.Err() != nil {
				finish(job, nil, ctx.Err())
				recordJob(opts.Ledger, logger, job, models.JobSkipped, nil, nil, time.Time{})
				return nil
			}

			started := time.Now()
			recordJob(opts.Ledger, logger, job, models.JobRunning, nil, nil, started)

			out, err := RunPairwiseJob(ctx, job, opts.Job)
			switch {
			case err == nil:
				logger.Debug("job done", "unit", job.Unit.Ordinal, "id", job.Unit.RecordID, "cache_hit", out.CacheHit)
				recordJob(opts.Ledger, logger, job, models.JobDone, out, nil, started)
			case ctx.Err() != nil:
				recordJob(opts.Ledger, logger, job, models.JobSkipped, nil, err, started)
			default:
				logger.Warn("job failed", "unit", job.Unit.Ordinal, "id", job.Unit.RecordID, "error", err)
				recordJob(opts.Ledger, logger, job, models.JobFailed, nil, err, started)
			}
			finish(job, out, err)
			return nil
		})
	}
	_ = g.Wait()

	sortJobs(report.Succeeded)
	sortJobs(report.Skipped)
	sort.Slice(report.Failures, func(i, j int) bool {
		return report.Failures[i].Ordinal < report.Failures[j].Ordinal
	})

	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

func sortJobs(jobs []models.Job) {
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Unit.Ordinal < jobs[j].Unit.Ordinal })
}

// recordJob writes the job state to the ledger. Ledger failures are logged and
// never fail the job.
func recordJob(ledger JobLedger, logger *slog.Logger, job models.Job, status models.JobStatus, out *JobOutcome, jobErr error, started time.Time) {
	if ledger == nil {
		return
	}

	rec, err := ledger.GetJob(job.Unit.Ordinal)
	if err != nil || rec == nil {
		rec = &models.JobRecord{}
	}
	rec.Ordinal = job.Unit.Ordinal
	rec.RecordID = job.Unit.RecordID
	rec.Checksum = job.Unit.Checksum
	rec.UnitPath = job.Unit.Path
	rec.ResultPath = job.ResultPath
	rec.Status = status
	rec.Error = ""
	if jobErr != nil {
		rec.Error = jobErr.Error()
	}

	switch status {
	case models.JobRunning:
		rec.Attempts++
		rec.StartedAt = started
		rec.FinishedAt = time.Time{}
		rec.CacheHit = false
	case models.JobDone, models.JobFailed:
		rec.FinishedAt = time.Now()
		if out != nil {
			rec.SketchPath = out.SketchPath
			rec.CacheHit = out.CacheHit
		}
	}

	if err := ledger.PutJob(rec); err != nil {
		logger.Warn("failed to record job", "unit", job.Unit.Ordinal, "error", err)
	}
}
