// Package cache provides decision caching for the authorization core
package cache

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"

	"github.com/broker-authz/go-core/pkg/types"
)

// Cache memoizes authorization decisions keyed by the full lookup tuple.
// Every entry is tagged with the store mutation epoch it was computed under;
// a lookup with a newer epoch treats the entry as a miss and evicts it
// lazily, so no request ever observes a decision computed against ACL state
// older than the last committed mutation.
type Cache interface {
	Get(key string, epoch uint64) (types.Decision, bool)
	Put(key string, decision types.Decision, epoch uint64)
	InvalidateAll()
	Stats() Stats
	Close() error
}

// Stats contains cache statistics
type Stats struct {
	Size    int
	Hits    uint64
	Misses  uint64
	HitRate float64
}

// shardCount spreads keys over independently locked shards so concurrent
// lookups of different keys do not contend. Keys are hex digests, so the
// hash distributes evenly.
const shardCount = 16

// defaultCapacity backstops constructors called with a non-positive size.
const defaultCapacity = 10000

// LRU implements an epoch-aware, sharded LRU decision cache with TTL
// support. The TTL and capacity are size-bounding tuning knobs; epoch
// invalidation is the correctness mechanism and always applies first.
type LRU struct {
	shards [shardCount]*lruShard

	hits   atomic.Uint64
	misses atomic.Uint64
}

type lruShard struct {
	capacity int
	ttl      time.Duration

	mu    sync.Mutex
	items map[string]*list.Element
	order *list.List
}

type lruEntry struct {
	key       string
	decision  types.Decision
	epoch     uint64
	expiresAt time.Time
}

// NewLRU creates a new epoch-aware LRU decision cache. A non-positive
// capacity is clamped to a default rather than producing a cache that can
// never hold an entry. Eviction is per shard, so the bound is approximate
// when keys are skewed.
func NewLRU(capacity int, ttl time.Duration) *LRU {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	perShard := capacity / shardCount
	if perShard < 1 {
		perShard = 1
	}

	c := &LRU{}
	for i := range c.shards {
		c.shards[i] = &lruShard{
			capacity: perShard,
			ttl:      ttl,
			items:    make(map[string]*list.Element),
			order:    list.New(),
		}
	}
	return c
}

// Get retrieves the cached decision for key, computed at or after epoch.
// Entries tagged with an older epoch are evicted and reported as misses.
func (c *LRU) Get(key string, epoch uint64) (types.Decision, bool) {
	d, ok := c.shard(key).get(key, epoch)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return d, ok
}

// Put stores a decision tagged with the epoch it was computed under. A
// fresher entry for the same key is never overwritten with a staler one.
func (c *LRU) Put(key string, decision types.Decision, epoch uint64) {
	c.shard(key).put(key, decision, epoch)
}

// InvalidateAll removes every cached decision
func (c *LRU) InvalidateAll() {
	for _, s := range c.shards {
		s.mu.Lock()
		s.items = make(map[string]*list.Element)
		s.order.Init()
		s.mu.Unlock()
	}
}

// Stats returns cache statistics
func (c *LRU) Stats() Stats {
	size := 0
	for _, s := range c.shards {
		s.mu.Lock()
		size += s.order.Len()
		s.mu.Unlock()
	}

	hits := c.hits.Load()
	misses := c.misses.Load()
	total := hits + misses

	hitRate := float64(0)
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return Stats{
		Size:    size,
		Hits:    hits,
		Misses:  misses,
		HitRate: hitRate,
	}
}

// Close releases resources (no-op for the local cache)
func (c *LRU) Close() error { return nil }

// shard picks the shard for key by FNV-1a
func (c *LRU) shard(key string) *lruShard {
	h := uint32(2166136261)
	for i := 0; i < len(key); i++ {
		h ^= uint32(key[i])
		h *= 16777619
	}
	return c.shards[h%shardCount]
}

func (s *lruShard) get(key string, epoch uint64) (types.Decision, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.items[key]
	if !ok {
		return "", false
	}
	entry := elem.Value.(*lruEntry)

	if entry.epoch < epoch || time.Now().After(entry.expiresAt) {
		s.removeElement(elem)
		return "", false
	}

	s.order.MoveToFront(elem)
	return entry.decision, true
}

func (s *lruShard) put(key string, decision types.Decision, epoch uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.items[key]; ok {
		entry := elem.Value.(*lruEntry)
		if entry.epoch > epoch {
			return
		}
		entry.decision = decision
		entry.epoch = epoch
		entry.expiresAt = time.Now().Add(s.ttl)
		s.order.MoveToFront(elem)
		return
	}

	for s.order.Len() >= s.capacity {
		if !s.evictOldest() {
			break
		}
	}

	elem := s.order.PushFront(&lruEntry{
		key:       key,
		decision:  decision,
		epoch:     epoch,
		expiresAt: time.Now().Add(s.ttl),
	})
	s.items[key] = elem
}

func (s *lruShard) removeElement(elem *list.Element) {
	entry := elem.Value.(*lruEntry)
	delete(s.items, entry.key)
	s.order.Remove(elem)
}

func (s *lruShard) evictOldest() bool {
	elem := s.order.Back()
	if elem == nil {
		return false
	}
	s.removeElement(elem)
	return true
}

// Type selects the decision cache implementation
type Type string

const (
	TypeLRU    Type = "lru"
	TypeRedis  Type = "redis"
	TypeHybrid Type = "hybrid"
)
