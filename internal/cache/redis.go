package cache

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/broker-authz/go-core/pkg/types"
)

// RedisConfig contains Redis connection configuration for the L2 cache
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int

	PoolSize    int
	PoolTimeout time.Duration

	// TTL bounds how long entries live. Epoch invalidation makes stale
	// entries unreachable immediately; the TTL only reclaims their space.
	TTL time.Duration

	TLS *tls.Config

	// KeyPrefix namespaces this deployment's decisions
	KeyPrefix string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	DialTimeout  time.Duration
}

// DefaultRedisConfig returns a configuration with sensible defaults
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Host:         "localhost",
		Port:         6379,
		DB:           0,
		PoolSize:     10,
		PoolTimeout:  4 * time.Second,
		TTL:          5 * time.Minute,
		KeyPrefix:    "brokeracl:decision:",
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		DialTimeout:  5 * time.Second,
	}
}

// Validate checks the configuration for validity
func (c *RedisConfig) Validate() error {
	if c.Host == "" {
		return ErrInvalidConfig("host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return ErrInvalidConfig("port must be between 1 and 65535")
	}
	if c.PoolSize <= 0 {
		return ErrInvalidConfig("pool_size must be greater than 0")
	}
	if c.TTL <= 0 {
		return ErrInvalidConfig("ttl must be greater than 0")
	}
	return nil
}

// RedisCache is a distributed L2 decision cache. The mutation epoch is part
// of every key, so a committed ACL mutation makes all previously cached
// decisions unreachable without any flush; orphaned keys age out via TTL.
type RedisCache struct {
	client redis.UniversalClient
	config *RedisConfig
	hits   atomic.Uint64
	misses atomic.Uint64
	ctx    context.Context
	cancel context.CancelFunc
}

// NewRedisCache creates a new Redis decision cache
func NewRedisCache(config *RedisConfig) (*RedisCache, error) {
	if config == nil {
		config = DefaultRedisConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	client := redis.NewClient(&redis.Options{
		Addr:         net.JoinHostPort(config.Host, strconv.Itoa(config.Port)),
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		PoolTimeout:  config.PoolTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		DialTimeout:  config.DialTimeout,
		TLSConfig:    config.TLS,
	})

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		cancel()
		client.Close()
		return nil, ErrConnectionFailed(err)
	}

	return &RedisCache{
		client: client,
		config: config,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// NewRedisCacheWithClient wraps an existing client; used by tests
func NewRedisCacheWithClient(client redis.UniversalClient, config *RedisConfig) *RedisCache {
	if config == nil {
		config = DefaultRedisConfig()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisCache{
		client: client,
		config: config,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (c *RedisCache) key(key string, epoch uint64) string {
	return fmt.Sprintf("%sv%d:%s", c.config.KeyPrefix, epoch, key)
}

// Get retrieves the decision cached for key under the given epoch. Redis
// faults are reported as misses, never as decision errors.
func (c *RedisCache) Get(key string, epoch uint64) (types.Decision, bool) {
	val, err := c.client.Get(c.ctx, c.key(key, epoch)).Result()
	if err != nil {
		c.misses.Add(1)
		return "", false
	}
	c.hits.Add(1)
	return types.Decision(val), true
}

// Put stores a decision under the epoch-scoped key
func (c *RedisCache) Put(key string, decision types.Decision, epoch uint64) {
	// Failure is non-fatal; the entry is simply recomputed next time.
	_ = c.client.Set(c.ctx, c.key(key, epoch), string(decision), c.config.TTL).Err()
}

// InvalidateAll removes every cached decision across all epochs
func (c *RedisCache) InvalidateAll() {
	iter := c.client.Scan(c.ctx, 0, c.config.KeyPrefix+"*", 100).Iterator()

	var keys []string
	for iter.Next(c.ctx) {
		keys = append(keys, iter.Val())
	}
	if len(keys) > 0 {
		c.client.Del(c.ctx, keys...)
	}
}

// Stats returns cache statistics
func (c *RedisCache) Stats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	total := hits + misses

	hitRate := float64(0)
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	size := 0
	if dbSize, err := c.client.DBSize(c.ctx).Result(); err == nil {
		size = int(dbSize)
	}

	return Stats{
		Size:    size,
		Hits:    hits,
		Misses:  misses,
		HitRate: hitRate,
	}
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	c.cancel()
	return c.client.Close()
}
