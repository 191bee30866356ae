package app

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/specialistvlad/convergo/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	dir := testutil.WriteFiles(t, map[string]string{
		"convergo.yaml": `
repo_path: /srv/repo
log_level: debug
node_workers: 8
transport:
  kind: local
  command_timeout: 2m
lock:
  backend: redis
  ttl: 10m
redis:
  addr: redis:6379
`,
		"convergo.toml": `
repo_path = "/srv/repo"
item_workers = 2

[cache]
backend = "memory"
ttl = "15m"
`,
		"convergo.yml":  "unknown_setting: 1\n",
		"convergo.json": "{}",
	})

	t.Run("yaml", func(t *testing.T) {
		cfg, err := LoadConfig(filepath.Join(dir, "convergo.yaml"), nil)
		require.NoError(t, err)
		assert.Equal(t, "/srv/repo", cfg.RepoPath)
		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, 8, cfg.NodeWorkers)
		assert.Equal(t, "local", cfg.Transport.Kind)
		assert.Equal(t, 2*time.Minute, cfg.Transport.CommandTimeout)
		assert.Equal(t, 22, cfg.Transport.SSHPort, "defaults survive partial tables")
		assert.Equal(t, BackendRedis, cfg.Lock.Backend)
		assert.Equal(t, 10*time.Minute, cfg.Lock.TTL)
		assert.Equal(t, "redis:6379", cfg.Redis.Addr)
		assert.Equal(t, "convergo:", cfg.Redis.Prefix)
	})

	t.Run("toml", func(t *testing.T) {
		cfg, err := LoadConfig(filepath.Join(dir, "convergo.toml"), nil)
		require.NoError(t, err)
		assert.Equal(t, 2, cfg.ItemWorkers)
		assert.Equal(t, BackendMemory, cfg.Cache.Backend)
		assert.Equal(t, 15*time.Minute, cfg.Cache.TTL)
		assert.Equal(t, "text", cfg.LogFormat)
	})

	t.Run("environment overrides file", func(t *testing.T) {
		cfg, err := LoadConfig(filepath.Join(dir, "convergo.yaml"), []string{
			"CONVERGO_NODE_WORKERS=3",
			"CONVERGO_TRANSPORT_SSH_USER=deploy",
			"CONVERGO_LOCK_WAIT=5s",
			"CONVERGO_MAX_METADATA_ITERATIONS=50",
			"CONVERGO_TEST_LOGS=true",
			"HOME=/root",
		})
		require.NoError(t, err)
		assert.Equal(t, 3, cfg.NodeWorkers)
		assert.Equal(t, "deploy", cfg.Transport.SSHUser)
		assert.Equal(t, "local", cfg.Transport.Kind)
		assert.Equal(t, 5*time.Second, cfg.Lock.Wait)
		assert.Equal(t, 50, cfg.MaxMetadataIterations)
	})

	t.Run("no file", func(t *testing.T) {
		cfg, err := LoadConfig("", nil)
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("unknown setting", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(dir, "convergo.yml"), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown_setting")
	})

	t.Run("unsupported format", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(dir, "convergo.json"), nil)
		require.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(dir, "nope.yaml"), nil)
		require.Error(t, err)
	})
}

func TestNewConfig(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(c *Config) {}},
		{name: "empty repo path", mutate: func(c *Config) { c.RepoPath = "" }, wantErr: "repo_path is required"},
		{name: "bad log level", mutate: func(c *Config) { c.LogLevel = "loud" }, wantErr: "log_level"},
		{name: "bad log format", mutate: func(c *Config) { c.LogFormat = "xml" }, wantErr: "log_format"},
		{name: "zero node workers", mutate: func(c *Config) { c.NodeWorkers = 0 }, wantErr: "node_workers"},
		{name: "zero item workers", mutate: func(c *Config) { c.ItemWorkers = 0 }, wantErr: "item_workers"},
		{name: "zero iterations", mutate: func(c *Config) { c.MaxMetadataIterations = 0 }, wantErr: "max_metadata_iterations"},
		{name: "bad transport", mutate: func(c *Config) { c.Transport.Kind = "telnet" }, wantErr: "transport.kind"},
		{name: "bad lock backend", mutate: func(c *Config) { c.Lock.Backend = "etcd" }, wantErr: "lock.backend"},
		{name: "bad cache backend", mutate: func(c *Config) { c.Cache.Backend = "disk" }, wantErr: "cache.backend"},
		{name: "redis without address", mutate: func(c *Config) {
			c.Cache.Backend = BackendRedis
			c.Redis.Addr = ""
		}, wantErr: "redis.addr"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			got, err := NewConfig(cfg)
			if tc.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, cfg, *got)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
