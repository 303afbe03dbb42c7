// Package core implements the mashix pipeline: partition the inputs, sketch
// the reference corpus, run one pairwise job per unit on a bounded pool and
// aggregate the results into a square distance matrix.
package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kilupskalvis/mashix/internal/mash"
	"github.com/kilupskalvis/mashix/internal/models"
)

// ReferenceProfile returns the profile used for the reference sketch.
// The reference keeps every k-mer, so the min-copies filter is disabled.
func ReferenceProfile(kmerSize, threads int) models.SketchProfile {
	return models.SketchProfile{KmerSize: kmerSize, MinCopies: 0, Threads: threads}
}

// QueryProfile returns the profile used for per-unit query sketches.
// Each job runs single-threaded; parallelism comes from the job pool.
func QueryProfile(kmerSize, minCopies int) models.SketchProfile {
	return models.SketchProfile{KmerSize: kmerSize, MinCopies: minCopies, Threads: 1}
}

// BuildReference sketches the merged corpus into base + ".msh" and returns
// the sketch path. It must complete before any pairwise job starts.
func BuildReference(ctx context.Context, eng mash.Engine, corpus, base string, profile models.SketchProfile) (string, error) {
	if err := os.MkdirAll(filepath.Dir(base), 0755); err != nil {
		return "", fmt.Errorf("failed to create reference directory: %w", err)
	}

	path, err := eng.Sketch(ctx, mash.SketchRequest{Input: corpus, Output: base, Profile: profile})
	if err != nil {
		return "", fmt.Errorf("reference sketch: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("reference sketch: %w", err)
	}
	if info.Size() == 0 {
		return "", fmt.Errorf("reference sketch %s: %w", path, mash.ErrEmptyOutput)
	}
	return path, nil
}
