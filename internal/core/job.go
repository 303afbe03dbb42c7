package core

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/kilupskalvis/mashix/internal/mash"
	"github.com/kilupskalvis/mashix/internal/models"
	"github.com/kilupskalvis/mashix/internal/sketchcache"
)

// JobOptions holds the parameters shared by every pairwise job of a run
type JobOptions struct {
	Engine  mash.Engine
	Profile models.SketchProfile
	Cache   sketchcache.Cache // optional
	Logger  *slog.Logger
}

// JobOutcome describes a finished pairwise job
type JobOutcome struct {
	SketchPath string
	CacheHit   bool
}

// RunPairwiseJob sketches one unit and compares it against the reference,
// leaving the raw result at job.ResultPath. The result file only appears once
// the engine has succeeded, so a failed or cancelled job leaves nothing behind.
func RunPairwiseJob(ctx context.Context, job models.Job, opts JobOptions) (*JobOutcome, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	out := &JobOutcome{SketchPath: job.SketchBase + mash.SketchExt}
	if err := os.MkdirAll(filepath.Dir(job.SketchBase), 0755); err != nil {
		return nil, fmt.Errorf("failed to create sketch directory: %w", err)
	}

	// Read-mode sketches carry their input path as the entry name, so a cached
	// copy from another unit file would report the wrong query.
	cache := opts.Cache
	if opts.Profile.MinCopies > 0 {
		cache = nil
	}

	var key string
	if cache != nil {
		key = sketchcache.Key(job.Unit.Checksum, opts.Profile)
		hit, err := sketchcache.Fetch(ctx, cache, key, out.SketchPath)
		if err != nil {
			logger.Warn("sketch cache read failed", "unit", job.Unit.Ordinal, "error", err)
		}
		out.CacheHit = hit
	}

	if !out.CacheHit {
		path, err := opts.Engine.Sketch(ctx, mash.SketchRequest{
			Input:   job.Unit.Path,
			Output:  job.SketchBase,
			Profile: opts.Profile,
		})
		if err != nil {
			return nil, fmt.Errorf("query sketch: %w", err)
		}
		out.SketchPath = path

		if cache != nil {
			if err := sketchcache.Store(ctx, cache, key, path); err != nil {
				logger.Warn("sketch cache write failed", "unit", job.Unit.Ordinal, "error", err)
			}
		}
	}

	if err := writeDist(ctx, opts.Engine, job.Reference, out.SketchPath, job.ResultPath); err != nil {
		return nil, err
	}
	return out, nil
}

func writeDist(ctx context.Context, eng mash.Engine, reference, query, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create result directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".dist-*")
	if err != nil {
		return fmt.Errorf("failed to create result file: %w", err)
	}
	tmpPath := tmp.Name()

	bw := bufio.NewWriter(tmp)
	err = eng.Dist(ctx, reference, query, bw)
	if err == nil {
		err = bw.Flush()
	}
	if cerr := tmp.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("dist: %w", err)
	}

	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to finalize result file: %w", err)
	}
	return nil
}
