package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"charter/internal/platform/redis"
)

const lockKey = "charter:scheduler:lease"

// releaseScript deletes the lease only when this holder still owns it, so a
// slow tick that outlives its TTL cannot release a successor's lease.
var releaseScript = goredis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker elects one replica's tick loop via SET NX with a TTL.
type RedisLocker struct {
	client *redis.Client
	holder string
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{
		client: client,
		holder: uuid.NewString(),
	}
}

func (l *RedisLocker) Acquire(ctx context.Context, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, lockKey, l.holder, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire scheduler lease: %w", err)
	}
	return ok, nil
}

func (l *RedisLocker) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client, []string{lockKey}, l.holder).Err(); err != nil && err != goredis.Nil {
		return fmt.Errorf("release scheduler lease: %w", err)
	}
	return nil
}
