package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"
)

// unlockScript deletes the key only if it still holds our token.
const unlockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// Redis implements Locker with SET NX PX.
type Redis struct {
	client *backend.Client
	prefix string
}

// NewRedis creates a Redis locker.
func NewRedis(client *backend.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func (l *Redis) Lock(ctx context.Context, key string, ttl, wait time.Duration) (UnlockFunc, error) {
	lockKey := l.prefix + "lock:" + key
	token := uuid.NewString()

	err := poll(ctx, key, wait, func() (bool, error) {
		ok, err := l.client.SetNX(ctx, lockKey, token, ttl).Result()
		if err != nil {
			return false, fmt.Errorf("redis error acquiring lock: %w", err)
		}
		return ok, nil
	})
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context) error {
		return l.client.Eval(ctx, unlockScript, []string{lockKey}, token).Err()
	}, nil
}
