package app

import (
	"context"
	"fmt"

	backend "github.com/redis/go-redis/v9"
	"github.com/specialistvlad/convergo/internal/lock"
	"github.com/specialistvlad/convergo/internal/metacache"
	"github.com/specialistvlad/convergo/internal/transport"
)

func newTransport(cfg TransportConfig) transport.Transport {
	if cfg.Kind == "local" {
		return transport.NewLocal(nil, cfg.CommandTimeout)
	}
	return transport.NewSSH(transport.SSHConfig{
		User:           cfg.SSHUser,
		Port:           cfg.SSHPort,
		ConnectTimeout: cfg.ConnectTimeout,
		CommandTimeout: cfg.CommandTimeout,
		SSHBinary:      cfg.SSHBinary,
		SCPBinary:      cfg.SCPBinary,
		Sudo:           cfg.Sudo,
	}, nil)
}

// newRedisClient connects to redis and checks the connection with PING.
func newRedisClient(ctx context.Context, cfg RedisConfig) (*backend.Client, error) {
	client := backend.NewClient(&backend.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}

func newLocker(cfg LockConfig, client *backend.Client, prefix string) lock.Locker {
	switch cfg.Backend {
	case BackendMemory:
		return lock.NewMemory()
	case BackendRedis:
		return lock.NewRedis(client, prefix)
	}
	return lock.Nop{}
}

func newCache(cfg CacheConfig, client *backend.Client, prefix string) metacache.Cache {
	switch cfg.Backend {
	case BackendMemory:
		return metacache.NewMemory(cfg.TTL)
	case BackendRedis:
		return metacache.NewRedis(client, prefix, cfg.TTL)
	}
	return metacache.Nop{}
}
