package storage

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	idempotencyKeyPrefix = "idem:"
	idempotencyKeyTTL    = 24 * time.Hour
	idempotencyPending   = "pending"
)

// reserveScript claims KEYS[1] for ARGV[2] ms. When the key exists it returns
// the stored value, or '' while the holder is still running.
var reserveScript = redis.NewScript(`
local key = KEYS[1]
local pending = ARGV[1]
local ttl = tonumber(ARGV[2])

if redis.call('SET', key, pending, 'NX', 'PX', ttl) then
	return {1, ''}
end

local current = redis.call('GET', key)
if not current or current == pending then
	return {0, ''}
end

return {0, current}
`)

// RedisAdapter stores idempotency keys for checkout so replays across instances
// see the same result.
type RedisAdapter struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client, ttl: idempotencyKeyTTL}
}

func (r *RedisAdapter) Reserve(ctx context.Context, key string) (string, bool, error) {
	res, err := reserveScript.Run(ctx, r.client, []string{idempotencyKeyPrefix + key},
		idempotencyPending, r.ttl.Milliseconds()).Slice()
	if err != nil {
		return "", false, err
	}

	reserved, _ := res[0].(int64)
	stored, _ := res[1].(string)
	return stored, reserved == 1, nil
}

func (r *RedisAdapter) Complete(ctx context.Context, key string, result string) error {
	return r.client.Set(ctx, idempotencyKeyPrefix+key, result, r.ttl).Err()
}

func (r *RedisAdapter) Release(ctx context.Context, key string) error {
	return r.client.Del(ctx, idempotencyKeyPrefix+key).Err()
}
