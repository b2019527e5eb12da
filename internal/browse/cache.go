// Package browse implements the filesystem listing cache. Listings are
// ephemeral: rebuilt from disk on miss and refreshed in the background on
// hit.
package browse

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"rockboxd/internal/library"
	"rockboxd/internal/worker"
	"rockboxd/pkg/errs"
	"rockboxd/pkg/models"
)

// EntryIndexer receives freshly built listings so the file index tracks the
// cache. Implemented by the search package.
type EntryIndexer interface {
	IndexEntries([]models.TreeEntry) error
}

type entry struct {
	// built is closed once the first synchronous build finished; readers
	// that raced the insert wait on it before taking a snapshot.
	built chan struct{}
	err   error

	mu         sync.RWMutex
	entries    []models.TreeEntry
	refreshing bool
}

// Cache is the per-directory listing cache. Readers share a snapshot while a
// single background writer rebuilds it; the swap is atomic per key.
type Cache struct {
	mu         sync.Mutex
	items      map[string]*entry
	pool       *worker.Pool
	index      EntryIndexer
	logger     *logrus.Logger
	showHidden bool
}

// NewCache creates a cache. pool and index may be nil (tests).
func NewCache(pool *worker.Pool, index EntryIndexer, showHidden bool, logger *logrus.Logger) *Cache {
	if logger == nil {
		logger = logrus.New()
	}
	return &Cache{
		items:      make(map[string]*entry),
		pool:       pool,
		index:      index,
		logger:     logger,
		showHidden: showHidden,
	}
}

// Read returns the listing for an absolute directory path. On a hit the
// cached snapshot is returned and a background refresh scheduled; on a miss
// the listing is built synchronously.
func (c *Cache) Read(dir string) ([]models.TreeEntry, error) {
	c.mu.Lock()
	e, hit := c.items[dir]
	if !hit {
		e = &entry{built: make(chan struct{})}
		c.items[dir] = e
	}
	c.mu.Unlock()

	if hit {
		// A reader that arrives while the first build is still running
		// waits for it instead of seeing an empty snapshot.
		<-e.built
		if e.err != nil {
			return nil, e.err
		}
		e.mu.RLock()
		snapshot := e.entries
		e.mu.RUnlock()
		c.scheduleRefresh(dir, e)
		return snapshot, nil
	}

	entries, err := c.build(dir)
	if err != nil {
		// Do not cache failures; the next read retries. The entry leaves
		// the map before built closes so waiters see the error and later
		// reads start fresh.
		c.mu.Lock()
		delete(c.items, dir)
		c.mu.Unlock()
		e.err = err
		close(e.built)
		return nil, err
	}

	e.mu.Lock()
	e.entries = entries
	e.mu.Unlock()
	close(e.built)

	if c.index != nil {
		if err := c.index.IndexEntries(entries); err != nil {
			c.logger.WithError(err).WithField("dir", dir).Warn("Failed to index listing")
		}
	}
	return entries, nil
}

// Invalidate drops the cached listing for a directory; the next read
// rebuilds it.
func (c *Cache) Invalidate(dir string) {
	c.mu.Lock()
	delete(c.items, dir)
	c.mu.Unlock()
}

// scheduleRefresh queues a rebuild of the key unless one is in flight.
func (c *Cache) scheduleRefresh(dir string, e *entry) {
	e.mu.Lock()
	if e.refreshing {
		e.mu.Unlock()
		return
	}
	e.refreshing = true
	e.mu.Unlock()

	refresh := func() {
		entries, err := c.build(dir)

		e.mu.Lock()
		e.refreshing = false
		if err == nil {
			// Readers keep the old snapshot until this swap.
			e.entries = entries
		}
		e.mu.Unlock()

		if err != nil {
			c.logger.WithError(err).WithField("dir", dir).Debug("Background refresh failed")
			c.Invalidate(dir)
			return
		}
		if c.index != nil {
			if err := c.index.IndexEntries(entries); err != nil {
				c.logger.WithError(err).WithField("dir", dir).Warn("Failed to index listing")
			}
		}
	}
	if c.pool == nil || !c.pool.Submit(refresh) {
		go refresh()
	}
}

// build reads a directory from disk, applying the filter rules: audio files
// and directories only, hidden entries skipped unless show_hidden is set.
func (c *Cache) build(dir string) ([]models.TreeEntry, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, errs.New(errs.NotFound, "no such directory: %s", dir)
	}
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "cannot stat directory")
	}
	if !info.IsDir() {
		return nil, errs.New(errs.InvalidArgument, "not a directory: %s", dir)
	}

	dirents, err := os.ReadDir(dir)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "cannot read directory")
	}

	entries := make([]models.TreeEntry, 0, len(dirents))
	for _, d := range dirents {
		name := d.Name()
		if !c.showHidden && strings.HasPrefix(name, ".") {
			continue
		}
		full := filepath.Join(dir, name)
		if d.IsDir() {
			fi, err := d.Info()
			if err != nil {
				continue
			}
			entries = append(entries, models.TreeEntry{
				Name:      full,
				TimeWrite: fi.ModTime().Unix(),
				Attr:      models.AttrDirectory,
			})
			continue
		}
		if !library.IsAudioFile(name) {
			continue
		}
		fi, err := d.Info()
		if err != nil {
			continue
		}
		entries = append(entries, models.TreeEntry{
			Name:      full,
			TimeWrite: fi.ModTime().Unix(),
			Attr:      0,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		// Directories first, then lexicographic.
		di, dj := entries[i].IsDirectory(), entries[j].IsDirectory()
		if di != dj {
			return di
		}
		return entries[i].Name < entries[j].Name
	})
	return entries, nil
}

// Size returns the number of cached directories.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
