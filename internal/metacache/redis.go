package metacache

import (
	"context"
	"fmt"
	"time"

	"github.com/specialistvlad/convergo/internal/metadata"
	backend "github.com/redis/go-redis/v9"
)

// Redis stores metadata as a hash holding the cty type and value JSON.
type Redis struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// NewRedis creates a cache on client. Keys are prefixed with prefix and
// expire after ttl when it is positive.
func NewRedis(client *backend.Client, prefix string, ttl time.Duration) *Redis {
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

func (c *Redis) key(key string) string {
	return c.prefix + "metadata:" + key
}

func (c *Redis) Get(ctx context.Context, key string) (metadata.Map, bool, error) {
	vals, err := c.client.HMGet(ctx, c.key(key), "type", "value").Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis error reading metadata cache: %w", err)
	}
	typ, ok1 := vals[0].(string)
	val, ok2 := vals[1].(string)
	if !ok1 || !ok2 {
		return nil, false, nil
	}
	m, err := metadata.Unmarshal([]byte(typ), []byte(val))
	if err != nil {
		return nil, false, err
	}
	return m, true, nil
}

func (c *Redis) Set(ctx context.Context, key string, m metadata.Map) error {
	typ, val, err := metadata.Marshal(m)
	if err != nil {
		return err
	}
	k := c.key(key)
	_, err = c.client.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
		pipe.HSet(ctx, k, "type", string(typ), "value", string(val))
		if c.ttl > 0 {
			pipe.Expire(ctx, k, c.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis error writing metadata cache: %w", err)
	}
	return nil
}
