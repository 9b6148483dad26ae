// Package cache implements the read-through file cache used by
// flat-file providers. Population is atomic: content is written to a
// uniquely named temp file and renamed into place, so a partially
// written artifact is never visible under the expected name.
package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/google/uuid"
)

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// FileCache caches provider snapshots on disk, one file per key.
// Concurrent population of the same key is serialized; distinct keys
// never block each other.
type FileCache struct {
	dir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates the cache directory if needed.
func New(dir string) (*FileCache, error) {
	if dir == "" {
		return nil, fmt.Errorf("cache dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &FileCache{dir: dir, locks: map[string]*sync.Mutex{}}, nil
}

// Path returns the on-disk location for a key.
func (c *FileCache) Path(key string) string {
	return filepath.Join(c.dir, unsafeKeyChars.ReplaceAllString(key, "_"))
}

func (c *FileCache) keyLock(key string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[key]
	if !ok {
		l = &sync.Mutex{}
		c.locks[key] = l
	}
	return l
}

// Fetch returns the cached content for key, calling fill to populate it
// on a miss. fill runs at most once per key at a time.
func (c *FileCache) Fetch(ctx context.Context, key string, fill func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	lock := c.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	path := c.Path(key)
	if data, err := os.ReadFile(path); err == nil {
		return data, nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read cache %s: %w", path, err)
	}

	data, err := fill(ctx)
	if err != nil {
		return nil, err
	}

	tmp := path + "." + uuid.NewString() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return nil, fmt.Errorf("write cache temp %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("publish cache %s: %w", path, err)
	}
	return data, nil
}

// Evict removes a key's cached file, if present.
func (c *FileCache) Evict(key string) error {
	lock := c.keyLock(key)
	lock.Lock()
	defer lock.Unlock()
	err := os.Remove(c.Path(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
