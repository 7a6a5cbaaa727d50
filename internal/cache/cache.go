// Package cache memoizes filter/search results until the next mutation.
package cache

import (
	"errors"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/mauzec/taskindex/internal/core"
	"github.com/prometheus/client_golang/prometheus"
)

var Hits = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "taskindex",
	Subsystem: "result_cache",
	Name:      "hits",
})

var Misses = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "taskindex",
	Subsystem: "result_cache",
	Name:      "misses",
})

var Invalidations = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "taskindex",
	Subsystem: "result_cache",
	Name:      "invalidations",
})

// Collectors returns the metrics of this package for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{Hits, Misses, Invalidations}
}

// Key identifies one cached read.
type Key struct {
	Filter core.FilterSpec
	Query  string
}

// ResultCache maps (filter, query) to result ids. Any mutation invalidates
// every entry; it never reasons about which entries a mutation could touch.
// With capacity 1 it holds only the last read. Not safe for concurrent use.
type ResultCache struct {
	entries *lru.Cache[Key, []string]
	dirty   bool

	recomputes uint64
}

// New builds a cache holding up to capacity results. It starts dirty.
func New(capacity int) (*ResultCache, error) {
	if capacity <= 0 {
		return nil, errors.New("cache: capacity should be > 0")
	}
	entries, err := lru.New[Key, []string](capacity)
	if err != nil {
		return nil, err
	}
	return &ResultCache{entries: entries, dirty: true}, nil
}

// GetOrCompute returns the cached ids for (f, q) when the cache is clean and
// holds them; otherwise it runs compute and stores the result.
func (c *ResultCache) GetOrCompute(f core.FilterSpec, q string, compute func() []string) []string {
	key := Key{Filter: f.Normalize(), Query: q}
	if !c.dirty {
		if ids, ok := c.entries.Get(key); ok {
			Hits.Inc()
			return ids
		}
	}
	Misses.Inc()
	c.recomputes++

	ids := compute()
	if c.dirty {
		c.entries.Purge()
		c.dirty = false
	}
	c.entries.Add(key, ids)
	return ids
}

// Invalidate marks every cached result stale.
func (c *ResultCache) Invalidate() {
	Invalidations.Inc()
	c.dirty = true
}

// Dirty reports whether the next read recomputes.
func (c *ResultCache) Dirty() bool {
	return c.dirty
}

// Recomputes counts the calls that fell through to compute.
func (c *ResultCache) Recomputes() uint64 {
	return c.recomputes
}
