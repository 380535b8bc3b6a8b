// Package cache memoizes native pipelines and bind groups across frames. Entries age by one every completed
// frame they are not used in and are released once they grow older than the cache's threshold.
package cache

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-gpu/common"
)

// Stats is a snapshot of a cache's counters since creation.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Len       int
}

type ageEntry[V any] struct {
	value V
	age   uint32
}

// ageCache is the implementation of the AgeCache interface.
type ageCache[K comparable, V any] struct {
	mu *sync.Mutex

	name      string
	threshold uint32
	entries   map[K]*ageEntry[V]
	onEvict   func(K, V)

	hits      uint64
	misses    uint64
	evictions uint64
}

// AgeCache maps keys to expensive native objects. It approximates LRU: entries are never reordered, only
// aged once per Cycle, so eviction happens at frame granularity.
type AgeCache[K comparable, V any] interface {
	// Name returns the name used in log lines and fatal errors.
	Name() string

	// Threshold returns the age past which an entry is evicted.
	Threshold() uint32

	// Get returns the cached value for key and resets its age to 0.
	//
	// Parameters:
	//   - key: the cache key
	//
	// Returns:
	//   - V: the cached value, or the zero value on a miss
	//   - bool: true on a hit
	Get(key K) (V, bool)

	// Insert returns the value cached for key, calling build and storing its result at age 0 on a miss.
	// A build error is fatal: Insert panics with a *common.FatalError.
	//
	// Parameters:
	//   - key: the cache key
	//   - build: creates the native object for key
	//
	// Returns:
	//   - V: the cached or freshly built value
	Insert(key K, build func() (V, error)) V

	// Contains reports whether key is cached without touching it.
	Contains(key K) bool

	// Cycle ages every entry by one and evicts entries whose age exceeds the threshold. It is called
	// exactly once per completed frame.
	//
	// Returns:
	//   - int: the number of evicted entries
	Cycle() int

	// Len returns the number of cached entries.
	Len() int

	// Stats returns the cache counters.
	Stats() Stats

	// Purge evicts every entry.
	Purge()
}

var _ AgeCache[string, int] = &ageCache[string, int]{}

// NewAgeCache creates an empty AgeCache.
//
// Parameters:
//   - name: the cache name used in log lines
//   - threshold: the age in cycles past which an untouched entry is evicted
//   - options: variadic list of AgeCacheOption functions
//
// Returns:
//   - AgeCache[K, V]: the cache
func NewAgeCache[K comparable, V any](name string, threshold uint32, options ...AgeCacheOption[K, V]) AgeCache[K, V] {
	c := &ageCache[K, V]{
		mu:        &sync.Mutex{},
		name:      name,
		threshold: threshold,
		entries:   make(map[K]*ageEntry[V]),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

func (c *ageCache[K, V]) Name() string {
	return c.name
}

func (c *ageCache[K, V]) Threshold() uint32 {
	return c.threshold
}

func (c *ageCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}
	c.hits++
	e.age = 0
	return e.value, true
}

func (c *ageCache[K, V]) Insert(key K, build func() (V, error)) V {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		c.hits++
		e.age = 0
		return e.value
	}

	c.misses++
	v, err := build()
	if err != nil {
		common.Fatal(fmt.Sprintf("build %s entry", c.name), err)
	}
	c.entries[key] = &ageEntry[V]{value: v}
	common.LogDebug("%s: created entry %d", c.name, len(c.entries))
	return v
}

func (c *ageCache[K, V]) Contains(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

func (c *ageCache[K, V]) Cycle() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	evicted := 0
	for key, e := range c.entries {
		e.age++
		if e.age > c.threshold {
			c.evict(key, e)
			evicted++
		}
	}
	if evicted > 0 {
		common.LogDebug("%s: evicted %d entries, %d remain", c.name, evicted, len(c.entries))
	}
	return evicted
}

// evict removes key and hands its value to the eviction callback. Caller must hold c.mu.
func (c *ageCache[K, V]) evict(key K, e *ageEntry[V]) {
	delete(c.entries, key)
	c.evictions++
	if c.onEvict != nil {
		c.onEvict(key, e.value)
	}
}

func (c *ageCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *ageCache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses, Evictions: c.evictions, Len: len(c.entries)}
}

func (c *ageCache[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, e := range c.entries {
		c.evict(key, e)
	}
}
