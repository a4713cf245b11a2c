package cache

import (
	"context"
	"time"

	"github.com/proctorly/proctor-backend/internal/config"
	"github.com/redis/go-redis/v9"
)

// Redis caches live answer state in a per-session hash with a TTL so
// abandoned sessions age out on their own.
type Redis struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedis creates a Redis-backed session cache.
func NewRedis(rdb *redis.Client, ttl time.Duration) *Redis {
	return &Redis{rdb: rdb, ttl: ttl}
}

func (c *Redis) GetAnswers(ctx context.Context, token string) (map[string]string, error) {
	return c.rdb.HGetAll(ctx, config.CacheKey.SessionAnswersKey(token)).Result()
}

func (c *Redis) SetAnswer(ctx context.Context, token, questionID, raw string) error {
	key := config.CacheKey.SessionAnswersKey(token)
	pipe := c.rdb.Pipeline()
	pipe.HSet(ctx, key, questionID, raw)
	pipe.Expire(ctx, key, c.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (c *Redis) Delete(ctx context.Context, token string) error {
	return c.rdb.Del(ctx, config.CacheKey.SessionAnswersKey(token)).Err()
}
