// Package mash adapts the external MASH k-mer sketch tool to the pipeline.
// Invocations are built as argument vectors and their exit status and both
// output streams are captured, so failures are detected structurally.
package mash

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/kilupskalvis/mashix/internal/models"
)

var (
	// ErrEngineNotFound is returned when the engine executable cannot be located.
	ErrEngineNotFound = errors.New("distance engine executable not found")

	// ErrEmptyOutput is returned when the engine exits cleanly but writes nothing.
	ErrEmptyOutput = errors.New("distance engine produced no output")
)

// SketchRequest describes one sketch invocation.
type SketchRequest struct {
	Input   string
	Output  string // path without the sketch extension
	Profile models.SketchProfile
}

// Engine defines the contract for the external sketch/distance tool.
// This interface enables mocking for testing the core package.
type Engine interface {
	// Sketch builds a sketch with one entry per record of req.Input and
	// returns the path of the written sketch file.
	Sketch(ctx context.Context, req SketchRequest) (string, error)

	// Dist compares every entry of query against every entry of reference and
	// writes tab-separated rows to w:
	// reference_id, query_id, distance, p_value, shared_hashes.
	Dist(ctx context.Context, reference, query string, w io.Writer) error
}

// ExecError describes a failed engine invocation.
type ExecError struct {
	Op       string
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ExecError) Error() string {
	msg := fmt.Sprintf("mash %s exited with code %d", e.Op, e.ExitCode)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + lastLine(s)
	}
	return msg
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// Verify that *Client implements Engine at compile time
var _ Engine = (*Client)(nil)
