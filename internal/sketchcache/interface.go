// Package sketchcache provides content-addressed storage for query sketches,
// so identical units sketched with identical parameters are sketched once.
package sketchcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/kilupskalvis/mashix/internal/models"
)

// ErrNotFound is returned when a requested sketch is not cached.
var ErrNotFound = errors.New("sketch not cached")

// Cache defines the contract for sketch storage.
type Cache interface {
	// Has checks whether a sketch with the given key exists.
	Has(ctx context.Context, key string) (bool, error)

	// Get returns a reader for the sketch. Returns ErrNotFound if missing.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Put stores a sketch. Storing the same key twice is a no-op.
	Put(ctx context.Context, key string, r io.Reader) error

	// Delete removes a sketch. No error if it doesn't exist.
	Delete(ctx context.Context, key string) error

	// TotalCount returns the number of cached sketches.
	TotalCount(ctx context.Context) (int, error)

	// ListKeys returns all cached keys.
	ListKeys(ctx context.Context) ([]string, error)
}

// Key derives the cache key of a unit sketched with a profile. Thread count
// does not change the sketch and is excluded.
func Key(checksum string, p models.SketchProfile) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|k=%d|m=%d", checksum, p.KmerSize, p.MinCopies)))
	return hex.EncodeToString(h[:])
}
