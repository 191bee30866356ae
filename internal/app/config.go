package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/mitchellh/mapstructure"
	"github.com/specialistvlad/convergo/internal/converge"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. CONVERGO_LOG_LEVEL or
// CONVERGO_REDIS_ADDR.
const EnvPrefix = "CONVERGO_"

// Config holds all the necessary configuration for an App instance to run.
// It describes the tool, not the repository it converges.
type Config struct {
	RepoPath              string `mapstructure:"repo_path"`
	LogLevel              string `mapstructure:"log_level"`
	LogFormat             string `mapstructure:"log_format"`
	NodeWorkers           int    `mapstructure:"node_workers"`
	ItemWorkers           int    `mapstructure:"item_workers"`
	MaxMetadataIterations int    `mapstructure:"max_metadata_iterations"`
	HealthcheckPort       int    `mapstructure:"healthcheck_port"`
	// Revision identifies the repository state in metadata cache keys.
	Revision string `mapstructure:"revision"`

	Transport TransportConfig `mapstructure:"transport"`
	Lock      LockConfig      `mapstructure:"lock"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Redis     RedisConfig     `mapstructure:"redis"`
}

type TransportConfig struct {
	Kind           string        `mapstructure:"kind"`
	SSHUser        string        `mapstructure:"ssh_user"`
	SSHPort        int           `mapstructure:"ssh_port"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
	SSHBinary      string        `mapstructure:"ssh_binary"`
	SCPBinary      string        `mapstructure:"scp_binary"`
	Sudo           bool          `mapstructure:"sudo"`
}

type LockConfig struct {
	Backend string        `mapstructure:"backend"`
	TTL     time.Duration `mapstructure:"ttl"`
	Wait    time.Duration `mapstructure:"wait"`
}

type CacheConfig struct {
	Backend string        `mapstructure:"backend"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// Backend names shared by the lock and cache settings.
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// DefaultConfig returns the settings used when nothing overrides them.
func DefaultConfig() Config {
	return Config{
		RepoPath:              ".",
		LogLevel:              "info",
		LogFormat:             "text",
		NodeWorkers:           4,
		ItemWorkers:           converge.DefaultWorkers,
		MaxMetadataIterations: 1000,
		Transport: TransportConfig{
			Kind:           "ssh",
			SSHPort:        22,
			ConnectTimeout: 10 * time.Second,
		},
		Lock:  LockConfig{Backend: BackendNone, TTL: 30 * time.Minute},
		Cache: CacheConfig{Backend: BackendNone, TTL: time.Hour},
		Redis: RedisConfig{Addr: "localhost:6379", Prefix: "convergo:"},
	}
}

// NewConfig validates cfg and returns it.
func NewConfig(cfg Config) (*Config, error) {
	var errs []error
	if cfg.RepoPath == "" {
		errs = append(errs, errors.New("repo_path is required"))
	}
	if !oneOf(cfg.LogLevel, "debug", "info", "warn", "error") {
		errs = append(errs, fmt.Errorf("log_level %q must be one of debug, info, warn, error", cfg.LogLevel))
	}
	if !oneOf(cfg.LogFormat, "text", "json") {
		errs = append(errs, fmt.Errorf("log_format %q must be text or json", cfg.LogFormat))
	}
	if cfg.NodeWorkers < 1 {
		errs = append(errs, fmt.Errorf("node_workers must be at least 1, got %d", cfg.NodeWorkers))
	}
	if cfg.ItemWorkers < 1 {
		errs = append(errs, fmt.Errorf("item_workers must be at least 1, got %d", cfg.ItemWorkers))
	}
	if cfg.MaxMetadataIterations < 1 {
		errs = append(errs, fmt.Errorf("max_metadata_iterations must be at least 1, got %d", cfg.MaxMetadataIterations))
	}
	if !oneOf(cfg.Transport.Kind, "ssh", "local") {
		errs = append(errs, fmt.Errorf("transport.kind %q must be ssh or local", cfg.Transport.Kind))
	}
	if !oneOf(cfg.Lock.Backend, BackendNone, BackendMemory, BackendRedis) {
		errs = append(errs, fmt.Errorf("lock.backend %q must be none, memory or redis", cfg.Lock.Backend))
	}
	if !oneOf(cfg.Cache.Backend, BackendNone, BackendMemory, BackendRedis) {
		errs = append(errs, fmt.Errorf("cache.backend %q must be none, memory or redis", cfg.Cache.Backend))
	}
	if cfg.usesRedis() && cfg.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required by the redis backend"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) usesRedis() bool {
	return c.Lock.Backend == BackendRedis || c.Cache.Backend == BackendRedis
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

// LoadConfig starts from DefaultConfig, applies the settings file at path
// (YAML or TOML, optional) and then CONVERGO_* variables from environ.
func LoadConfig(path string, environ []string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		raw, err := readSettings(path)
		if err != nil {
			return Config{}, err
		}
		if err := decodeSettings(raw, &cfg, true); err != nil {
			return Config{}, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	if err := decodeSettings(envSettings(environ), &cfg, false); err != nil {
		return Config{}, fmt.Errorf("decode environment: %w", err)
	}
	return cfg, nil
}

func readSettings(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	raw := map[string]any{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("settings file %s must be .yaml, .yml or .toml", path)
	}
	return raw, nil
}

func decodeSettings(raw map[string]any, cfg *Config, strict bool) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		ErrorUnused:      strict,
		Result:           cfg,
	})
	if err != nil {
		return err
	}
	return dec.Decode(raw)
}

// settingSections are the nested tables an environment variable may address,
// e.g. CONVERGO_TRANSPORT_SSH_USER sets transport.ssh_user.
var settingSections = []string{"transport", "lock", "cache", "redis"}

func envSettings(environ []string) map[string]any {
	out := map[string]any{}
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
		nested := false
		for _, section := range settingSections {
			if field, found := strings.CutPrefix(key, section+"_"); found {
				sub, _ := out[section].(map[string]any)
				if sub == nil {
					sub = map[string]any{}
					out[section] = sub
				}
				sub[field] = value
				nested = true
				break
			}
		}
		if !nested {
			out[key] = value
		}
	}
	return out
}
