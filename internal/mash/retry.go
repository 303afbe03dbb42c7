package mash

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"time"
)

// RetryConfig configures retry behavior for transient engine failures.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	JitterFraction float64 // 0.0 to 1.0
}

// DefaultRetryConfig returns the retry defaults for a given retry count.
func DefaultRetryConfig(maxRetries int) *RetryConfig {
	return &RetryConfig{
		MaxRetries:     maxRetries,
		InitialBackoff: 250 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		JitterFraction: 0.25,
	}
}

// RetryEngine wraps an Engine with automatic retry on transient errors.
type RetryEngine struct {
	inner  Engine
	config *RetryConfig
	logger *slog.Logger
}

// NewRetryEngine creates a RetryEngine that wraps the given Engine.
func NewRetryEngine(inner Engine, cfg *RetryConfig, logger *slog.Logger) *RetryEngine {
	if cfg == nil {
		cfg = DefaultRetryConfig(1)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &RetryEngine{inner: inner, config: cfg, logger: logger}
}

// isTransient returns true for errors that are worth retrying. The engine is
// deterministic, so a clean non-zero exit or empty output will not change on
// a second attempt; a process killed by a signal or an I/O failure might.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrEngineNotFound) || errors.Is(err, ErrEmptyOutput) {
		return false
	}
	var ee *ExecError
	if errors.As(err, &ee) {
		return ee.ExitCode < 0
	}
	return true
}

// backoff computes the delay for the given attempt with jitter.
func (re *RetryEngine) backoff(attempt int) time.Duration {
	base := float64(re.config.InitialBackoff) * math.Pow(2, float64(attempt))
	if base > float64(re.config.MaxBackoff) {
		base = float64(re.config.MaxBackoff)
	}
	jitter := base * re.config.JitterFraction * (rand.Float64()*2 - 1) // +/- jitter
	d := time.Duration(base + jitter)
	if d < 0 {
		d = 0
	}
	return d
}

// sleep waits for the given duration or until the context is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// retry executes fn with retry logic. Only retries transient errors.
func (re *RetryEngine) retry(ctx context.Context, operation string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= re.config.MaxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isTransient(lastErr) {
			return lastErr
		}
		if attempt < re.config.MaxRetries {
			d := re.backoff(attempt)
			re.logger.Warn("retrying engine call", "op", operation, "attempt", attempt+1, "delay", d, "error", lastErr)
			if err := sleep(ctx, d); err != nil {
				return fmt.Errorf("%s: %w (retry cancelled)", operation, lastErr)
			}
		}
	}
	if re.config.MaxRetries == 0 {
		return lastErr
	}
	return fmt.Errorf("%s: %w (after %d retries)", operation, lastErr, re.config.MaxRetries)
}

// Sketch delegates to the wrapped engine with retry.
func (re *RetryEngine) Sketch(ctx context.Context, req SketchRequest) (out string, err error) {
	err = re.retry(ctx, "sketch "+req.Input, func() error {
		out, err = re.inner.Sketch(ctx, req)
		return err
	})
	return
}

// Dist buffers each attempt so a failed attempt never leaves partial rows in w.
func (re *RetryEngine) Dist(ctx context.Context, reference, query string, w io.Writer) error {
	var buf bytes.Buffer
	err := re.retry(ctx, "dist "+query, func() error {
		buf.Reset()
		return re.inner.Dist(ctx, reference, query, &buf)
	})
	if err != nil {
		return err
	}
	_, err = w.Write(buf.Bytes())
	return err
}
