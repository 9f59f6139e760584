// Cache implements the TTL+LRU memoization policy of §4.B: bar-window
// payloads are stored under a composite key and served from memory within
// TTL; capacity is bounded by an LRU that evicts the least-recently-used
// entry once the configured ceiling is crossed. The LRU backing store is
// hashicorp/golang-lru/v2, the same family of dependency present (as
// github.com/hashicorp/golang-lru) across several repos in this retrieval
// pack (abdoElHodaky/tradSys, zhanxin-xu/nofx, anywhy/bbgo, among others);
// the TTL half of the policy is layered on top since the plain LRU has no
// notion of expiry.
package marketdata

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/chidi150c/qengine/internal/bar"
)

// CacheKey identifies a cached bar window (§4.B).
type CacheKey struct {
	Service  string
	Symbol   bar.Symbol
	Interval bar.Interval
	Limit    int
	StartMs  int64
	EndMs    int64
}

func (k CacheKey) String() string {
	return fmt.Sprintf("%s|%s|%s|%d|%d|%d", k.Service, k.Symbol, k.Interval, k.Limit, k.StartMs, k.EndMs)
}

type cacheEntry struct {
	bars      []bar.Bar
	expiresAt time.Time
}

// Cache is a TTL-bounded, capacity-bounded (LRU) memoization layer in front
// of an Adapter.
type Cache struct {
	store *lru.Cache[string, cacheEntry]
	ttl   time.Duration

	hits, misses int
}

// NewCache builds a cache with the given TTL and maximum entry count.
func NewCache(ttl time.Duration, maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	store, _ := lru.New[string, cacheEntry](maxEntries)
	return &Cache{store: store, ttl: ttl}
}

// Get returns the cached bars for key if present and not expired. An expired
// hit is evicted and reported as a miss, per §4.B.
func (c *Cache) Get(key CacheKey) ([]bar.Bar, bool) {
	k := key.String()
	entry, ok := c.store.Get(k)
	if !ok {
		c.misses++
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		c.store.Remove(k)
		c.misses++
		return nil, false
	}
	c.hits++
	out := make([]bar.Bar, len(entry.bars))
	copy(out, entry.bars)
	return out, true
}

// Put stores bars under key with the cache's configured TTL.
func (c *Cache) Put(key CacheKey, bars []bar.Bar) {
	cp := make([]bar.Bar, len(bars))
	copy(cp, bars)
	c.store.Add(key.String(), cacheEntry{bars: cp, expiresAt: time.Now().Add(c.ttl)})
}

// Stats reports cumulative hit/miss counts, used by tests and metrics.
func (c *Cache) Stats() (hits, misses int) { return c.hits, c.misses }

// Len reports the current number of live entries (including not-yet-expired
// and already-expired-but-not-yet-evicted ones).
func (c *Cache) Len() int { return c.store.Len() }
