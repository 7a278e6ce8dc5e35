package zmake

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheKeyIgnoresSourceOrder(t *testing.T) {
	a := CacheKey("body", []string{"one.tar.gz", "two.tar.gz"})
	b := CacheKey("body", []string{"two.tar.gz", "one.tar.gz"})
	assert.Equal(t, a, b)

	assert.NotEqual(t, a, CacheKey("body2", []string{"one.tar.gz", "two.tar.gz"}))
	assert.NotEqual(t, a, CacheKey("body", []string{"one.tar.gz"}))
	assert.Len(t, a, 64)
}

func TestCacheStoreLookupExtract(t *testing.T) {
	cacheDir := t.TempDir()
	cache, err := OpenBuildCache(cacheDir, 100)
	require.NoError(t, err)

	srcDir := t.TempDir()
	writeTestFile(t, srcDir, "hello.o", "object code")
	writeTestFile(t, srcDir, "sub/util.o", "more object code")

	key := CacheKey("recipe body", []string{"hello.c"})
	_, ok := cache.Lookup(key)
	assert.False(t, ok)

	require.NoError(t, cache.Store(key, srcDir))

	entry, ok := cache.Lookup(key)
	require.True(t, ok)
	assert.Equal(t, key, entry.Key)
	assert.Greater(t, entry.Size, int64(0))

	dest := t.TempDir()
	require.NoError(t, cache.Extract(entry, dest))
	data, err := os.ReadFile(filepath.Join(dest, "hello.o"))
	require.NoError(t, err)
	assert.Equal(t, "object code", string(data))
	data, err = os.ReadFile(filepath.Join(dest, "sub/util.o"))
	require.NoError(t, err)
	assert.Equal(t, "more object code", string(data))
}

func TestCacheLookupBumpsAccess(t *testing.T) {
	cache, err := OpenBuildCache(t.TempDir(), 100)
	require.NoError(t, err)

	srcDir := t.TempDir()
	writeTestFile(t, srcDir, "a", "a")
	key := CacheKey("b", nil)
	require.NoError(t, cache.Store(key, srcDir))

	first, ok := cache.Lookup(key)
	require.True(t, ok)
	count := first.AccessCount

	second, ok := cache.Lookup(key)
	require.True(t, ok)
	assert.Equal(t, count+1, second.AccessCount)
}

func TestCacheIndexSurvivesReopen(t *testing.T) {
	cacheDir := t.TempDir()
	cache, err := OpenBuildCache(cacheDir, 100)
	require.NoError(t, err)

	srcDir := t.TempDir()
	writeTestFile(t, srcDir, "a", "a")
	key := CacheKey("persisted", nil)
	require.NoError(t, cache.Store(key, srcDir))

	reopened, err := OpenBuildCache(cacheDir, 100)
	require.NoError(t, err)
	_, ok := reopened.Lookup(key)
	assert.True(t, ok)
	assert.Equal(t, 1, reopened.Len())
}

func TestCacheMissingArchivePrunesEntry(t *testing.T) {
	cache, err := OpenBuildCache(t.TempDir(), 100)
	require.NoError(t, err)

	srcDir := t.TempDir()
	writeTestFile(t, srcDir, "a", "a")
	key := CacheKey("pruned", nil)
	require.NoError(t, cache.Store(key, srcDir))

	entry, ok := cache.Lookup(key)
	require.True(t, ok)
	require.NoError(t, os.Remove(entry.Path))

	_, ok = cache.Lookup(key)
	assert.False(t, ok)
	assert.Equal(t, 0, cache.Len())
}

func TestCacheEvictionShedsOldestEntries(t *testing.T) {
	cache, err := OpenBuildCache(t.TempDir(), 100)
	require.NoError(t, err)
	// force overflow with tiny entries
	cache.MaxSize = 4 * 1024

	payload := make([]byte, 2048)
	rand.New(rand.NewSource(42)).Read(payload) // incompressible

	var keys []string
	for _, name := range []string{"first", "second", "third", "fourth"} {
		srcDir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(srcDir, name), payload, 0o644))
		key := CacheKey(name, nil)
		keys = append(keys, key)
		require.NoError(t, cache.Store(key, srcDir))
		time.Sleep(10 * time.Millisecond) // distinct eviction timestamps
	}

	assert.LessOrEqual(t, cache.Size(), int64(float64(cache.MaxSize)*evictionWatermark))
	assert.Less(t, cache.Len(), 4)

	// the newest entry survives
	_, ok := cache.Lookup(keys[len(keys)-1])
	assert.True(t, ok)
}
