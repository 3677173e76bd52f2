// Package cache memoizes evaluation results in memory, keyed by the data and
// ranks that produced them.
package cache

import (
	"encoding/binary"
	"encoding/hex"
	"math"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/zeebo/blake3"
)

// DefaultMaxEntries bounds a cache created with a non-positive size.
const DefaultMaxEntries = 1024

// Cache is a fixed-size, least-recently-used map safe for concurrent use.
// A nil *Cache misses every lookup and ignores every write.
type Cache[V any] struct {
	entries *lru.Cache[string, V]
	max     int
	hits    atomic.Int64
	misses  atomic.Int64
}

// Stats counts entries and lookups since creation or the last Clear.
type Stats struct {
	Entries int   `json:"entries" toon:"entries"`
	Hits    int64 `json:"hits" toon:"hits"`
	Misses  int64 `json:"misses" toon:"misses"`
}

// New creates a cache holding at most maxEntries values.
func New[V any](maxEntries int) *Cache[V] {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	// lru.New only fails for a non-positive size.
	entries, _ := lru.New[string, V](maxEntries)
	return &Cache[V]{entries: entries, max: maxEntries}
}

// Key identifies one evaluation: the samples, weights and sorter evaluated,
// the ranks asked for, and whether a summary was included.
func Key(samples, weights []float64, sorter []int, ranks []float64, summary bool) string {
	h := blake3.New()
	var buf [8]byte
	writeFloats := func(tag byte, xs []float64) {
		h.Write([]byte{tag})
		binary.LittleEndian.PutUint64(buf[:], uint64(len(xs)))
		h.Write(buf[:])
		for _, x := range xs {
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(x))
			h.Write(buf[:])
		}
	}

	writeFloats('s', samples)
	if weights != nil {
		writeFloats('w', weights)
	}
	if sorter != nil {
		h.Write([]byte{'o'})
		binary.LittleEndian.PutUint64(buf[:], uint64(len(sorter)))
		h.Write(buf[:])
		for _, i := range sorter {
			binary.LittleEndian.PutUint64(buf[:], uint64(int64(i)))
			h.Write(buf[:])
		}
	}
	writeFloats('q', ranks)
	if summary {
		h.Write([]byte{'m'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the value stored under key and marks it recently used.
func (c *Cache[V]) Get(key string) (V, bool) {
	if c == nil {
		var zero V
		return zero, false
	}
	v, ok := c.entries.Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

// Set stores value under key, evicting the least recently used entry when
// the cache is full.
func (c *Cache[V]) Set(key string, value V) {
	if c == nil {
		return
	}
	c.entries.Add(key, value)
}

// Len returns the number of entries.
func (c *Cache[V]) Len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}

// Clear removes all entries and resets the counters.
func (c *Cache[V]) Clear() {
	if c == nil {
		return
	}
	c.entries.Purge()
	c.hits.Store(0)
	c.misses.Store(0)
}

// GetStats returns the current entry count and lookup counters.
func (c *Cache[V]) GetStats() Stats {
	if c == nil {
		return Stats{}
	}
	return Stats{Entries: c.entries.Len(), Hits: c.hits.Load(), Misses: c.misses.Load()}
}
