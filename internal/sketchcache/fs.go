package sketchcache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// validKey matches a lowercase hex-encoded SHA256 hash (64 characters).
var validKey = regexp.MustCompile(`^[0-9a-f]{64}$`)

// FSCache implements Cache using the local filesystem.
// Sketches are stored in a two-level directory structure using the first two
// characters of the key as a prefix directory.
type FSCache struct {
	root string
}

// NewFSCache creates a filesystem-backed cache rooted at the given directory.
func NewFSCache(root string) (*FSCache, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create cache root: %w", err)
	}
	return &FSCache{root: root}, nil
}

// Root returns the cache directory
func (c *FSCache) Root() string {
	return c.root
}

// Has checks whether a sketch exists.
func (c *FSCache) Has(_ context.Context, key string) (bool, error) {
	if !validKey.MatchString(key) {
		return false, nil
	}
	_, err := os.Stat(c.sketchPath(key))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat sketch %s: %w", key, err)
	}
	return true, nil
}

// Get opens a sketch for reading. Returns ErrNotFound if it does not exist.
func (c *FSCache) Get(_ context.Context, key string) (io.ReadCloser, error) {
	if !validKey.MatchString(key) {
		return nil, ErrNotFound
	}
	f, err := os.Open(c.sketchPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open sketch %s: %w", key, err)
	}
	return f, nil
}

// Put stores a sketch read from r.
// If the sketch exists this is a no-op.
func (c *FSCache) Put(_ context.Context, key string, r io.Reader) error {
	if !validKey.MatchString(key) {
		return fmt.Errorf("invalid cache key: %q", key)
	}
	path := c.sketchPath(key)

	if _, err := os.Stat(path); err == nil {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	// Write to temp file, rename; concurrent writers of one key race harmlessly
	tmpFile, err := os.CreateTemp(dir, ".sketch-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if _, err := io.Copy(tmpFile, r); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write sketch data: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename sketch: %w", err)
	}

	return nil
}

// Delete removes a sketch.
func (c *FSCache) Delete(_ context.Context, key string) error {
	if !validKey.MatchString(key) {
		return nil
	}
	os.Remove(c.sketchPath(key))
	return nil
}

// TotalCount returns the number of cached sketches.
func (c *FSCache) TotalCount(ctx context.Context) (int, error) {
	keys, err := c.ListKeys(ctx)
	return len(keys), err
}

// ListKeys returns all keys by scanning the directory tree.
func (c *FSCache) ListKeys(_ context.Context) ([]string, error) {
	var keys []string

	err := filepath.Walk(c.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || strings.HasPrefix(info.Name(), ".") {
			return nil
		}
		// Reconstruct key from path: root/ab/cd... -> abcd...
		rel, err := filepath.Rel(c.root, path)
		if err != nil {
			return nil
		}
		parts := strings.Split(rel, string(filepath.Separator))
		if len(parts) == 2 && validKey.MatchString(parts[0]+parts[1]) {
			keys = append(keys, parts[0]+parts[1])
		}
		return nil
	})

	return keys, err
}

// Clear deletes every cached sketch and returns how many were removed.
func (c *FSCache) Clear(ctx context.Context) (int, error) {
	keys, err := c.ListKeys(ctx)
	if err != nil {
		return 0, err
	}
	for _, k := range keys {
		if err := c.Delete(ctx, k); err != nil {
			return 0, err
		}
	}
	return len(keys), nil
}

// sketchPath returns the filesystem path for a sketch.
func (c *FSCache) sketchPath(key string) string {
	return filepath.Join(c.root, key[:2], key[2:])
}

// Fetch copies a cached sketch to dst. It reports false when the key is not cached.
func Fetch(ctx context.Context, c Cache, key, dst string) (bool, error) {
	rc, err := c.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer rc.Close()

	f, err := os.Create(dst)
	if err != nil {
		return false, fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		os.Remove(dst)
		return false, fmt.Errorf("copy cached sketch: %w", err)
	}
	if err := f.Close(); err != nil {
		return false, err
	}
	return true, nil
}

// Store copies the sketch at src into the cache.
func Store(ctx context.Context, c Cache, key, src string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()
	return c.Put(ctx, key, f)
}
