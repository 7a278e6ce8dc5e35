package zmake

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/sys/unix"
	"lukechampine.com/blake3"
)

// evictionWatermark is the fraction of MaxSize the cache shrinks to when it
// overflows.
const evictionWatermark = 0.80

// CacheEntry is one record in the cache index.
type CacheEntry struct {
	Key         string `json:"key"`
	Path        string `json:"path"`
	Size        int64  `json:"size"`
	Timestamp   int64  `json:"timestamp"`
	AccessCount int64  `json:"access_count"`
}

// BuildCache stores compressed snapshots of completed build trees, keyed by
// a digest of the recipe body and its source list.
type BuildCache struct {
	Dir     string
	MaxSize int64

	mu          sync.Mutex
	entries     []*CacheEntry
	currentSize int64
}

// OpenBuildCache loads (or initializes) the cache rooted at dir. maxMB
// bounds the total size of stored archives.
func OpenBuildCache(dir string, maxMB int64) (*BuildCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}
	bc := &BuildCache{
		Dir:     dir,
		MaxSize: maxMB * 1024 * 1024,
	}
	if err := bc.loadIndex(); err != nil {
		return nil, err
	}
	return bc, nil
}

func (bc *BuildCache) indexPath() string { return filepath.Join(bc.Dir, "index.json") }

func (bc *BuildCache) loadIndex() error {
	data, err := os.ReadFile(bc.indexPath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read cache index: %w", err)
	}
	if err := json.Unmarshal(data, &bc.entries); err != nil {
		return buildErr(ErrCacheCorruption, bc.indexPath(), fmt.Errorf("failed to parse cache index: %w", err))
	}
	for _, e := range bc.entries {
		bc.currentSize += e.Size
	}
	return nil
}

// saveIndex persists the index atomically under an advisory lock, so
// concurrent zmake invocations do not tear each other's writes.
func (bc *BuildCache) saveIndex() error {
	lockPath := filepath.Join(bc.Dir, "index.lock")
	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open cache lock: %w", err)
	}
	defer lockFile.Close()
	if err := unix.Flock(int(lockFile.Fd()), unix.LOCK_EX); err != nil {
		return fmt.Errorf("failed to lock cache index: %w", err)
	}
	defer unix.Flock(int(lockFile.Fd()), unix.LOCK_UN)

	data, err := json.MarshalIndent(bc.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache index: %w", err)
	}
	tmpPath := bc.indexPath() + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write cache index: %w", err)
	}
	return os.Rename(tmpPath, bc.indexPath())
}

// CacheKey derives the cache key for a recipe: a digest over the recipe
// body followed by the lexicographically sorted source references, so the
// key is independent of source ordering.
func CacheKey(recipeBody string, sources []string) string {
	h := blake3.New(32, nil)
	h.Write([]byte(recipeBody))
	sorted := append([]string(nil), sources...)
	sort.Strings(sorted)
	for _, s := range sorted {
		h.Write([]byte{0})
		h.Write([]byte(s))
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Lookup returns the entry for key if its backing archive still exists,
// bumping its access metadata. A missing backing file prunes the entry and
// reports a miss.
func (bc *BuildCache) Lookup(key string) (*CacheEntry, bool) {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	for i, e := range bc.entries {
		if e.Key != key {
			continue
		}
		if _, err := os.Stat(e.Path); err != nil {
			debugf("Pruning cache entry with missing archive: %s\n", e.Path)
			bc.currentSize -= e.Size
			bc.entries = append(bc.entries[:i], bc.entries[i+1:]...)
			if err := bc.saveIndex(); err != nil {
				cPrintf(colWarn, "Warning: failed to save cache index: %v\n", err)
			}
			return nil, false
		}
		e.Timestamp = time.Now().UnixNano()
		e.AccessCount++
		if err := bc.saveIndex(); err != nil {
			cPrintf(colWarn, "Warning: failed to save cache index: %v\n", err)
		}
		return e, true
	}
	return nil, false
}

// Store snapshots srcDir into the cache under key, evicting old entries if
// the cache would exceed its size limit.
func (bc *BuildCache) Store(key, srcDir string) error {
	archivePath := filepath.Join(bc.Dir, key+".tar.zst")
	if err := createTarZst(srcDir, archivePath); err != nil {
		return fmt.Errorf("failed to snapshot build tree: %w", err)
	}
	info, err := os.Stat(archivePath)
	if err != nil {
		return err
	}

	bc.mu.Lock()
	defer bc.mu.Unlock()

	// Replace any stale entry for the same key.
	for i, e := range bc.entries {
		if e.Key == key {
			bc.currentSize -= e.Size
			bc.entries = append(bc.entries[:i], bc.entries[i+1:]...)
			break
		}
	}

	bc.entries = append(bc.entries, &CacheEntry{
		Key:         key,
		Path:        archivePath,
		Size:        info.Size(),
		Timestamp:   time.Now().UnixNano(),
		AccessCount: 1,
	})
	bc.currentSize += info.Size()

	bc.evictIfNeeded()
	return bc.saveIndex()
}

// Extract expands the cached archive for entry into dest.
func (bc *BuildCache) Extract(entry *CacheEntry, dest string) error {
	if err := extractTarZst(entry.Path, dest); err != nil {
		return buildErr(ErrCacheCorruption, entry.Key, fmt.Errorf("failed to extract cached build: %w", err))
	}
	return nil
}

// evictIfNeeded removes least-recently-used entries until the cache is at or
// below the eviction watermark. Caller holds bc.mu.
func (bc *BuildCache) evictIfNeeded() {
	if bc.MaxSize <= 0 || bc.currentSize <= bc.MaxSize {
		return
	}
	target := int64(float64(bc.MaxSize) * evictionWatermark)

	sort.Slice(bc.entries, func(i, j int) bool {
		return bc.entries[i].Timestamp < bc.entries[j].Timestamp
	})
	for bc.currentSize > target && len(bc.entries) > 0 {
		victim := bc.entries[0]
		debugf("Evicting cache entry %s (%d bytes)\n", victim.Key, victim.Size)
		if err := os.Remove(victim.Path); err != nil && !os.IsNotExist(err) {
			cPrintf(colWarn, "Warning: failed to remove cached archive %s: %v\n", victim.Path, err)
		}
		bc.currentSize -= victim.Size
		bc.entries = bc.entries[1:]
	}
}

// Purge removes every cached archive and resets the index.
func (bc *BuildCache) Purge() error {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	for _, e := range bc.entries {
		if err := os.Remove(e.Path); err != nil && !os.IsNotExist(err) {
			cPrintf(colWarn, "Warning: failed to remove cached archive %s: %v\n", e.Path, err)
		}
	}
	bc.entries = nil
	bc.currentSize = 0
	return bc.saveIndex()
}

// Size reports the summed size of all cached archives.
func (bc *BuildCache) Size() int64 {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.currentSize
}

// Len reports the number of cached entries.
func (bc *BuildCache) Len() int {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return len(bc.entries)
}
