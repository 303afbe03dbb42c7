package sketchcache

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/kilupskalvis/mashix/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *FSCache {
	t.Helper()
	c, err := NewFSCache(t.TempDir())
	require.NoError(t, err)
	return c
}

func testKey(s string) string {
	return Key(s, models.SketchProfile{KmerSize: 21, MinCopies: 2})
}

func TestKey(t *testing.T) {
	p := models.SketchProfile{KmerSize: 21, MinCopies: 2, Threads: 1}

	k := Key("abc", p)
	assert.Len(t, k, 64)
	assert.Equal(t, k, Key("abc", p))

	p8 := p
	p8.Threads = 8
	assert.Equal(t, k, Key("abc", p8), "threads do not change the sketch")

	pk := p
	pk.KmerSize = 17
	assert.NotEqual(t, k, Key("abc", pk))
	assert.NotEqual(t, k, Key("abd", p))
}

func TestFSCache_PutAndGet(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)
	key := testKey("unit-1")

	require.NoError(t, c.Put(ctx, key, bytes.NewReader([]byte("sketch bytes"))))

	rc, err := c.Get(ctx, key)
	require.NoError(t, err)
	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, []byte("sketch bytes"), got)
}

func TestFSCache_Has(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)
	key := testKey("unit-1")

	has, err := c.Has(ctx, "nonexistent")
	require.NoError(t, err)
	assert.False(t, has)

	has, err = c.Has(ctx, key)
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, c.Put(ctx, key, bytes.NewReader([]byte("x"))))

	has, err = c.Has(ctx, key)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestFSCache_Put_Idempotent(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)
	key := testKey("unit-1")

	require.NoError(t, c.Put(ctx, key, bytes.NewReader([]byte("first"))))
	require.NoError(t, c.Put(ctx, key, bytes.NewReader([]byte("second")))) // no-op

	rc, err := c.Get(ctx, key)
	require.NoError(t, err)
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	assert.Equal(t, "first", string(got))
}

func TestFSCache_Put_InvalidKey(t *testing.T) {
	c := newTestCache(t)
	err := c.Put(context.Background(), "../escape", bytes.NewReader(nil))
	assert.Error(t, err)
}

func TestFSCache_Get_NotFound(t *testing.T) {
	c := newTestCache(t)
	_, err := c.Get(context.Background(), testKey("missing"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFSCache_DeleteAndCount(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	for _, s := range []string{"a", "b", "c"} {
		require.NoError(t, c.Put(ctx, testKey(s), bytes.NewReader([]byte(s))))
	}

	count, err := c.TotalCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	require.NoError(t, c.Delete(ctx, testKey("b")))
	require.NoError(t, c.Delete(ctx, testKey("never")))

	keys, err := c.ListKeys(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{testKey("a"), testKey("c")}, keys)

	n, err := c.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	count, err = c.TotalCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestFetchAndStore(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)
	dir := t.TempDir()
	key := testKey("unit-1")
	src := filepath.Join(dir, "src.msh")
	dst := filepath.Join(dir, "dst.msh")

	ok, err := Fetch(ctx, c, key, dst)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoFileExists(t, dst)

	require.NoError(t, os.WriteFile(src, []byte("sketch"), 0644))
	require.NoError(t, Store(ctx, c, key, src))

	ok, err = Fetch(ctx, c, key, dst)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "sketch", string(got))
}
