package cache

import (
	"sync/atomic"
	"time"

	"github.com/broker-authz/go-core/pkg/types"
)

// HybridCache layers a local LRU (L1) over Redis (L2). L1 serves the hot
// path; L2 lets a fleet of brokers share decisions. Both levels carry the
// epoch tag, so a mutation invalidates both at once.
type HybridCache struct {
	l1        *LRU
	l2        *RedisCache
	l2Enabled bool

	hits   atomic.Uint64
	misses atomic.Uint64
	l1Hits atomic.Uint64
	l2Hits atomic.Uint64
}

// HybridConfig contains configuration for the hybrid cache
type HybridConfig struct {
	L1Capacity int
	L1TTL      time.Duration

	L2Enabled bool
	L2Config  *RedisConfig
}

// DefaultHybridConfig returns a configuration with sensible defaults
func DefaultHybridConfig() *HybridConfig {
	return &HybridConfig{
		L1Capacity: 10000,
		L1TTL:      time.Minute,
		L2Enabled:  true,
		L2Config:   DefaultRedisConfig(),
	}
}

// NewHybridCache creates a hybrid cache. If Redis is unreachable the cache
// degrades to L1 only rather than failing authorization startup.
func NewHybridCache(config *HybridConfig) (*HybridCache, error) {
	if config == nil {
		config = DefaultHybridConfig()
	}

	l1 := NewLRU(config.L1Capacity, config.L1TTL)

	var l2 *RedisCache
	l2Enabled := config.L2Enabled
	if l2Enabled {
		var err error
		l2, err = NewRedisCache(config.L2Config)
		if err != nil {
			l2Enabled = false
		}
	}

	return &HybridCache{
		l1:        l1,
		l2:        l2,
		l2Enabled: l2Enabled && l2 != nil,
	}, nil
}

// newHybridFromParts assembles a hybrid cache from existing levels; used by tests
func newHybridFromParts(l1 *LRU, l2 *RedisCache) *HybridCache {
	return &HybridCache{l1: l1, l2: l2, l2Enabled: l2 != nil}
}

// Get checks L1 first, then L2, promoting L2 hits into L1
func (c *HybridCache) Get(key string, epoch uint64) (types.Decision, bool) {
	if decision, ok := c.l1.Get(key, epoch); ok {
		c.hits.Add(1)
		c.l1Hits.Add(1)
		return decision, true
	}

	if c.l2Enabled {
		if decision, ok := c.l2.Get(key, epoch); ok {
			c.l1.Put(key, decision, epoch)
			c.hits.Add(1)
			c.l2Hits.Add(1)
			return decision, true
		}
	}

	c.misses.Add(1)
	return "", false
}

// Put writes through to both levels
func (c *HybridCache) Put(key string, decision types.Decision, epoch uint64) {
	c.l1.Put(key, decision, epoch)
	if c.l2Enabled {
		c.l2.Put(key, decision, epoch)
	}
}

// InvalidateAll clears both levels
func (c *HybridCache) InvalidateAll() {
	c.l1.InvalidateAll()
	if c.l2Enabled {
		c.l2.InvalidateAll()
	}
}

// Stats returns combined cache statistics
func (c *HybridCache) Stats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	total := hits + misses

	hitRate := float64(0)
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	size := c.l1.Stats().Size
	if c.l2Enabled {
		size += c.l2.Stats().Size
	}

	return Stats{
		Size:    size,
		Hits:    hits,
		Misses:  misses,
		HitRate: hitRate,
	}
}

// Close closes the L2 connection if present
func (c *HybridCache) Close() error {
	if c.l2Enabled {
		return c.l2.Close()
	}
	return nil
}
