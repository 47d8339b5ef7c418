// Package config loads and validates the server configuration
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/broker-authz/go-core/internal/audit"
	"github.com/broker-authz/go-core/internal/cache"
	"github.com/broker-authz/go-core/internal/store/postgres"
	"github.com/broker-authz/go-core/pkg/types"
)

// Config is the full server configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Store      StoreConfig      `yaml:"store"`
	Cache      CacheConfig      `yaml:"cache"`
	Audit      audit.Config     `yaml:"audit"`
	Authorizer AuthorizerConfig `yaml:"authorizer"`
	Principal  PrincipalConfig  `yaml:"principal"`
	Bootstrap  BootstrapConfig  `yaml:"bootstrap"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// StoreConfig selects and configures the binding store
type StoreConfig struct {
	// Type is "memory" or "postgres"
	Type     string          `yaml:"type"`
	Postgres postgres.Config `yaml:"postgres"`
}

// CacheConfig configures the decision cache
type CacheConfig struct {
	Enabled bool       `yaml:"enabled"`
	Type    cache.Type `yaml:"type"`

	Size int           `yaml:"size"`
	TTL  time.Duration `yaml:"ttl"`

	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig configures the distributed cache tier
type RedisConfig struct {
	Host      string        `yaml:"host"`
	Port      int           `yaml:"port"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	PoolSize  int           `yaml:"poolSize"`
	TTL       time.Duration `yaml:"ttl"`
	KeyPrefix string        `yaml:"keyPrefix"`
}

// AuthorizerConfig configures the decision engine
type AuthorizerConfig struct {
	// SuperUsers in "Type:name" form bypass ACL evaluation entirely
	SuperUsers   []string      `yaml:"superUsers"`
	StoreTimeout time.Duration `yaml:"storeTimeout"`
}

// PrincipalConfig configures connection-to-principal resolution
type PrincipalConfig struct {
	// ListenerMappings pins every connection on a listener to one principal,
	// in "Type:name" form. Unlisted listeners use the authenticated identity.
	ListenerMappings map[string]string `yaml:"listenerMappings"`
}

// BootstrapConfig points at declarative ACL binding files
type BootstrapConfig struct {
	// Path is a directory of YAML binding files loaded at startup
	Path string `yaml:"path"`
	// Watch reloads the directory on change
	Watch bool `yaml:"watch"`
}

// LoggingConfig configures the structured logger
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Store: StoreConfig{
			Type:     "memory",
			Postgres: postgres.DefaultConfig(),
		},
		Cache: CacheConfig{
			Enabled: true,
			Type:    cache.TypeLRU,
			Size:    100000,
			TTL:     5 * time.Minute,
			Redis: RedisConfig{
				Host:      "localhost",
				Port:      6379,
				PoolSize:  10,
				TTL:       5 * time.Minute,
				KeyPrefix: "brokeracl:decision:",
			},
		},
		Audit: audit.DefaultConfig(),
		Authorizer: AuthorizerConfig{
			StoreTimeout: 500 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads a YAML configuration file on top of the defaults
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot start with
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}

	switch c.Store.Type {
	case "memory":
	case "postgres":
		if c.Store.Postgres.DSN == "" {
			return fmt.Errorf("store.postgres.dsn is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown store type %q", c.Store.Type)
	}

	if c.Cache.Enabled {
		switch c.Cache.Type {
		case cache.TypeLRU, cache.TypeRedis, cache.TypeHybrid:
		default:
			return fmt.Errorf("unknown cache type %q", c.Cache.Type)
		}
		if c.Cache.Size <= 0 {
			return fmt.Errorf("cache.size must be positive")
		}
	}

	if _, err := c.SuperUsers(); err != nil {
		return err
	}
	if _, err := c.ListenerPrincipals(); err != nil {
		return err
	}

	return c.Audit.Validate()
}

// SuperUsers parses the configured superuser principals
func (c *Config) SuperUsers() ([]types.Principal, error) {
	principals := make([]types.Principal, 0, len(c.Authorizer.SuperUsers))
	for _, s := range c.Authorizer.SuperUsers {
		p, err := types.ParsePrincipal(s)
		if err != nil {
			return nil, fmt.Errorf("authorizer.superUsers: %w", err)
		}
		principals = append(principals, p)
	}
	return principals, nil
}

// ListenerPrincipals parses the configured listener principal mappings
func (c *Config) ListenerPrincipals() (map[string]types.Principal, error) {
	mappings := make(map[string]types.Principal, len(c.Principal.ListenerMappings))
	for listener, s := range c.Principal.ListenerMappings {
		p, err := types.ParsePrincipal(s)
		if err != nil {
			return nil, fmt.Errorf("principal.listenerMappings[%s]: %w", listener, err)
		}
		mappings[listener] = p
	}
	return mappings, nil
}

// RedisCacheConfig translates the cache section into the Redis tier config
func (c *Config) RedisCacheConfig() *cache.RedisConfig {
	rc := cache.DefaultRedisConfig()
	rc.Host = c.Cache.Redis.Host
	rc.Port = c.Cache.Redis.Port
	rc.Password = c.Cache.Redis.Password
	rc.DB = c.Cache.Redis.DB
	if c.Cache.Redis.PoolSize > 0 {
		rc.PoolSize = c.Cache.Redis.PoolSize
	}
	if c.Cache.Redis.TTL > 0 {
		rc.TTL = c.Cache.Redis.TTL
	}
	if c.Cache.Redis.KeyPrefix != "" {
		rc.KeyPrefix = c.Cache.Redis.KeyPrefix
	}
	return rc
}
