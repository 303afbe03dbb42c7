package mash

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
)

// SketchExt is appended by the engine to every sketch output path.
const SketchExt = ".msh"

// Client runs the mash executable.
type Client struct {
	binary string
	logger *slog.Logger
}

// NewClient resolves the mash executable. A bare name is looked up in PATH.
func NewClient(binary string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	path, err := exec.LookPath(binary)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrEngineNotFound, binary, err)
	}
	return &Client{binary: path, logger: logger}, nil
}

// Binary returns the resolved executable path
func (c *Client) Binary() string {
	return c.binary
}

// SketchArgs builds the argument vector of a sketch invocation. Without a
// min-copies filter each record becomes its own entry (-i). mash only applies
// -m in read mode, which is incompatible with -i; a filtered sketch therefore
// holds a single entry named after the input file.
func SketchArgs(req SketchRequest) []string {
	p := req.Profile
	threads := p.Threads
	if threads < 1 {
		threads = 1
	}
	args := []string{
		"sketch",
		"-o", req.Output,
		"-k", strconv.Itoa(p.KmerSize),
		"-p", strconv.Itoa(threads),
	}
	if p.MinCopies > 0 {
		return append(args, "-m", strconv.Itoa(p.MinCopies), req.Input)
	}
	return append(args, "-i", req.Input)
}

// DistArgs builds the argument vector of a dist invocation
func DistArgs(reference, query string) []string {
	return []string{"dist", "-p", "1", reference, query}
}

// Sketch runs "mash sketch" and verifies the sketch file was written.
func (c *Client) Sketch(ctx context.Context, req SketchRequest) (string, error) {
	if req.Profile.KmerSize < 1 || req.Profile.KmerSize > 32 {
		return "", fmt.Errorf("invalid kmer size %d", req.Profile.KmerSize)
	}
	if _, err := c.run(ctx, "sketch", SketchArgs(req), io.Discard); err != nil {
		return "", err
	}

	out := req.Output + SketchExt
	info, err := os.Stat(out)
	if err != nil {
		return "", fmt.Errorf("sketch %s not written: %w", out, err)
	}
	if info.Size() == 0 {
		return "", fmt.Errorf("sketch %s: %w", out, ErrEmptyOutput)
	}
	return out, nil
}

// Dist runs "mash dist" and streams its stdout to w.
func (c *Client) Dist(ctx context.Context, reference, query string, w io.Writer) error {
	n, err := c.run(ctx, "dist", DistArgs(reference, query), w)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("dist %s: %w", query, ErrEmptyOutput)
	}
	return nil
}

// run executes the binary, returning the number of stdout bytes written to w.
func (c *Client) run(ctx context.Context, op string, args []string, w io.Writer) (int64, error) {
	var stderr bytes.Buffer
	cw := &countingWriter{w: w}

	cmd := exec.CommandContext(ctx, c.binary, args...)
	cmd.Stdout = cw
	cmd.Stderr = &stderr

	c.logger.Debug("exec", "op", op, "args", args)
	err := cmd.Run()
	if err == nil {
		return cw.n, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return cw.n, fmt.Errorf("mash %s: %w", op, ctxErr)
	}

	execErr := &ExecError{Op: op, Args: args, ExitCode: -1, Stderr: stderr.String(), Err: err}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		execErr.ExitCode = exitErr.ExitCode()
	} else if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
		execErr.Err = fmt.Errorf("%w: %v", ErrEngineNotFound, err)
	}
	return cw.n, execErr
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}
