package cache

import (
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/broker-authz/go-core/pkg/types"
)

// setupRedisTest creates a Redis decision cache backed by miniredis
func setupRedisTest(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()

	s := miniredis.RunT(t)

	port, err := strconv.Atoi(s.Port())
	require.NoError(t, err)

	cfg := DefaultRedisConfig()
	cfg.Host = s.Host()
	cfg.Port = port
	cfg.TTL = time.Minute

	client := redis.NewClient(&redis.Options{
		Addr: s.Addr(),
		// Disable CLIENT SETINFO for miniredis compatibility
		DisableIndentity: true,
	})
	c := NewRedisCacheWithClient(client, cfg)
	t.Cleanup(func() { c.Close() })
	return c, s
}

func TestRedisCache_EpochScopedKeys(t *testing.T) {
	c, _ := setupRedisTest(t)

	c.Put("k", types.DecisionAllow, 1)

	d, ok := c.Get("k", 1)
	require.True(t, ok)
	assert.Equal(t, types.DecisionAllow, d)

	// A bumped epoch makes the old entry unreachable without any flush.
	_, ok = c.Get("k", 2)
	assert.False(t, ok)
}

func TestRedisCache_TTLReclaimsOrphanedEpochs(t *testing.T) {
	c, s := setupRedisTest(t)

	c.Put("k", types.DecisionDeny, 1)
	s.FastForward(2 * time.Minute)

	_, ok := c.Get("k", 1)
	assert.False(t, ok, "entry should have expired")
}

func TestRedisCache_InvalidateAll(t *testing.T) {
	c, _ := setupRedisTest(t)

	c.Put("a", types.DecisionAllow, 1)
	c.Put("b", types.DecisionDeny, 2)

	c.InvalidateAll()

	_, ok := c.Get("a", 1)
	assert.False(t, ok)
	_, ok = c.Get("b", 2)
	assert.False(t, ok)
}

func TestRedisCache_ServerDownIsAMiss(t *testing.T) {
	c, s := setupRedisTest(t)

	c.Put("k", types.DecisionAllow, 1)
	s.Close()

	// A cache fault must degrade to a miss, never an error.
	_, ok := c.Get("k", 1)
	assert.False(t, ok)
}

func TestHybridCache_PromotesL2Hits(t *testing.T) {
	l2, _ := setupRedisTest(t)
	l1 := NewLRU(16, time.Minute)
	c := newHybridFromParts(l1, l2)

	// Seed only L2, as if another broker computed the decision.
	l2.Put("k", types.DecisionAllow, 3)

	d, ok := c.Get("k", 3)
	require.True(t, ok)
	assert.Equal(t, types.DecisionAllow, d)

	// Promotion: now present in L1 under the same epoch.
	d, ok = l1.Get("k", 3)
	require.True(t, ok)
	assert.Equal(t, types.DecisionAllow, d)
}

func TestHybridCache_EpochAppliesToBothLevels(t *testing.T) {
	l2, _ := setupRedisTest(t)
	c := newHybridFromParts(NewLRU(16, time.Minute), l2)

	c.Put("k", types.DecisionDeny, 1)

	_, ok := c.Get("k", 2)
	assert.False(t, ok, "mutation epoch must invalidate both levels")
}
