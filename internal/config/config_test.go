package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/broker-authz/go-core/internal/cache"
	"github.com/broker-authz/go-core/pkg/types"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", `
server:
  addr: ":9090"
store:
  type: memory
cache:
  enabled: true
  type: hybrid
  size: 5000
  ttl: 2m
authorizer:
  superUsers:
    - User:admin
    - ServiceAccount:broker
  storeTimeout: 250ms
principal:
  listenerMappings:
    PLAINTEXT: User:anonymous
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, cache.TypeHybrid, cfg.Cache.Type)
	assert.Equal(t, 5000, cfg.Cache.Size)
	assert.Equal(t, 2*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 250*time.Millisecond, cfg.Authorizer.StoreTimeout)

	// Untouched sections keep their defaults
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "memory", cfg.Store.Type)

	superUsers, err := cfg.SuperUsers()
	require.NoError(t, err)
	assert.Equal(t, []types.Principal{
		{Type: "User", Name: "admin"},
		{Type: "ServiceAccount", Name: "broker"},
	}, superUsers)

	mappings, err := cfg.ListenerPrincipals()
	require.NoError(t, err)
	assert.Equal(t, types.Principal{Type: "User", Name: "anonymous"}, mappings["PLAINTEXT"])
}

func TestLoad_RejectsBadConfig(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"unknown store type", "store:\n  type: etcd\n"},
		{"postgres without dsn", "store:\n  type: postgres\n"},
		{"unknown cache type", "cache:\n  enabled: true\n  type: memcached\n"},
		{"bad superuser", "authorizer:\n  superUsers: [\"admin\"]\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "config.yaml", tc.yaml)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())
}
