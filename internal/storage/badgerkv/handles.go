// Package badgerkv is the persistence adapter: a path-keyed handle cache over
// an embedded ordered key-value store (BadgerDB), exposing point
// get/put/delete, ordered range scans, and atomic multi-key group writes.
package badgerkv

import (
	"fmt"
	"os"
	"sync"

	"github.com/bobmcallan/aviary/internal/common"
	badger "github.com/dgraph-io/badger/v4"
)

// HandleCache ensures the same database path resolves to exactly one
// underlying *badger.DB within the process — required so that a queue
// mutation and its index mutation can share one transaction. Opening is
// lazy and safe against concurrent callers.
type HandleCache struct {
	mu      sync.Mutex
	handles map[string]*badger.DB
	logger  *common.Logger
}

// NewHandleCache creates an empty handle cache.
func NewHandleCache(logger *common.Logger) *HandleCache {
	return &HandleCache{
		handles: make(map[string]*badger.DB),
		logger:  logger,
	}
}

// Open returns the *badger.DB for path, opening it on first use.
func (c *HandleCache) Open(path string) (*badger.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if db, ok := c.handles[path]; ok {
		return db, nil
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create badger directory %s: %w", path, err)
	}

	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database at %s: %w", path, err)
	}

	c.handles[path] = db
	c.logger.Debug().Str("path", path).Msg("badger store opened")
	return db, nil
}

// Close closes every handle opened through this cache. Safe to call once at
// process shutdown.
func (c *HandleCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for path, db := range c.handles {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close badger database at %s: %w", path, err)
		}
	}
	c.handles = make(map[string]*badger.DB)
	return firstErr
}
