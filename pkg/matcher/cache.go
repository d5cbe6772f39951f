package matcher

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/itsneelabh/weave/pkg/advice"
	"github.com/itsneelabh/weave/pkg/hierarchy"
)

type classKey struct {
	name   string
	loader uint64
}

type entry struct {
	generation uint64
	epoch      uint64
	version    uint64
	result     Result
}

// CacheStats reports cache effectiveness.
type CacheStats struct {
	Entries int    `json:"entries"`
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
}

// Cache memoizes Match per class and loader. An entry is reused only while
// the class generation, the index epoch and the registry version are
// unchanged. The epoch covers ancestors redefined or shimmed after the entry
// was stored.
type Cache struct {
	mu      sync.RWMutex
	entries map[classKey]entry
	hits    atomic.Uint64
	misses  atomic.Uint64
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[classKey]entry)}
}

// Match returns the cached result or computes it against reg's snapshot.
func (c *Cache) Match(ctx context.Context, idx *hierarchy.Index, class *hierarchy.AnalyzedClass, reg *advice.Registry) (Result, error) {
	key := classKey{class.Name(), class.LoaderID()}
	version := reg.Version()
	epoch := idx.Epoch()

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && e.generation == class.Generation() && e.epoch == epoch && e.version == version {
		c.hits.Add(1)
		return e.result, nil
	}
	c.misses.Add(1)

	res, err := Match(ctx, idx, class, reg.Snapshot())
	if err != nil {
		return res, err
	}
	c.mu.Lock()
	c.entries[key] = entry{generation: class.Generation(), epoch: epoch, version: version, result: res}
	c.mu.Unlock()
	return res, nil
}

// Forget drops every entry of a loader.
func (c *Cache) Forget(loaderID uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if k.loader == loaderID {
			delete(c.entries, k)
		}
	}
}

// Stats returns entry count and hit/miss counters.
func (c *Cache) Stats() CacheStats {
	c.mu.RLock()
	n := len(c.entries)
	c.mu.RUnlock()
	return CacheStats{Entries: n, Hits: c.hits.Load(), Misses: c.misses.Load()}
}
