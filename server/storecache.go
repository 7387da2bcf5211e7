package server

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/onnwee/flvwatch/store"
)

// storeCache keeps the encoded store in memory and refreshes it when the file is replaced.
type storeCache struct {
	path string

	mu       sync.RWMutex
	raw      []byte
	st       store.Store
	etag     string
	loadedAt time.Time
	err      error
}

func newStoreCache(path string) *storeCache {
	c := &storeCache{path: path}
	c.reload()
	return c
}

// reload re-reads the file. A missing file serves an empty store; a corrupt one keeps
// the last good copy and records the error for /readyz.
func (c *storeCache) reload() {
	st, err := store.Load(c.path)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.err = err
		slog.Warn("store cache reload failed", slog.String("component", "store_cache"), slog.Any("err", err))
		return
	}
	raw, err := store.Encode(st)
	if err != nil {
		c.err = err
		return
	}
	sum := sha256.Sum256(raw)
	c.raw, c.st, c.err = raw, st, nil
	c.etag = `"` + hex.EncodeToString(sum[:8]) + `"`
	c.loadedAt = time.Now()
}

func (c *storeCache) snapshot() (raw []byte, st store.Store, etag string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.raw, c.st, c.etag
}

func (c *storeCache) lastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// watch reloads the cache whenever the store file is created, written or renamed into
// place. The directory is watched because saves replace the file via rename.
func (c *storeCache) watch(ctx context.Context) error {
	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return err
	}
	target := filepath.Clean(c.path)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(evt.Name) == target && evt.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
					c.reload()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("store watcher error", slog.String("component", "store_cache"), slog.Any("err", err))
			}
		}
	}()
	return nil
}

// matches reports whether the client's If-None-Match covers etag.
func matches(ifNoneMatch, etag string) bool {
	return etag != "" && strings.Contains(ifNoneMatch, etag)
}
