package distance

import (
	"context"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisCache keeps travel minutes as plain string keys with a TTL.
type RedisCache struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisCache(rdb redis.UniversalClient, prefix string, ttl time.Duration) *RedisCache {
	if prefix == "" {
		prefix = "travel:"
	}
	return &RedisCache{rdb: rdb, prefix: prefix, ttl: ttl}
}

// NewRedisCacheURL parses a redis:// URL.
func NewRedisCacheURL(url, prefix string, ttl time.Duration) (*RedisCache, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return NewRedisCache(redis.NewClient(opt), prefix, ttl), nil
}

func (c *RedisCache) key(p Pair) string { return c.prefix + p.From + "|" + p.To }

func (c *RedisCache) GetMany(ctx context.Context, pairs []Pair) (map[Pair]float64, error) {
	out := make(map[Pair]float64, len(pairs))
	if len(pairs) == 0 {
		return out, nil
	}
	keys := make([]string, len(pairs))
	for i, p := range pairs {
		keys[i] = c.key(p)
	}
	vals, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis cache: mget: %w", err)
	}
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		x, err := strconv.ParseFloat(s, 64)
		if err != nil {
			continue
		}
		out[pairs[i]] = x
	}
	return out, nil
}

func (c *RedisCache) PutMany(ctx context.Context, minutes map[Pair]float64) error {
	if len(minutes) == 0 {
		return nil
	}
	pipe := c.rdb.Pipeline()
	for p, x := range minutes {
		pipe.Set(ctx, c.key(p), strconv.FormatFloat(x, 'g', -1, 64), c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis cache: pipeline: %w", err)
	}
	return nil
}

func (c *RedisCache) Close() error { return c.rdb.Close() }
