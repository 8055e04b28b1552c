package storage

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	idempotencyKeyPrefix = "market:idem:"
	idempotencyKeyTTL    = 24 * time.Hour

	idempotencyPending = "pending"
	idempotencyDone    = "done"
)

// releaseIdempotencyScript deletes the key only while it is still pending,
// so a late release never frees a request that already completed.
var releaseIdempotencyScript = redis.NewScript(`
local key = KEYS[1]

local current = redis.call('GET', key)
if current == ARGV[1] then
	redis.call('DEL', key)
	return 1
end

return 0
`)

type RedisAdapter struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client, ttl: idempotencyKeyTTL}
}

// WithTTL overrides how long claimed keys are remembered.
func (r *RedisAdapter) WithTTL(ttl time.Duration) *RedisAdapter {
	if ttl > 0 {
		r.ttl = ttl
	}
	return r
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, idempotencyKeyPrefix+key, idempotencyPending, r.ttl).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisAdapter) CompleteIdempotency(ctx context.Context, key string) error {
	return r.client.Set(ctx, idempotencyKeyPrefix+key, idempotencyDone, r.ttl).Err()
}

func (r *RedisAdapter) ReleaseIdempotency(ctx context.Context, key string) error {
	return releaseIdempotencyScript.Run(ctx, r.client, []string{idempotencyKeyPrefix + key}, idempotencyPending).Err()
}
