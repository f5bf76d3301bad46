package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	redisapp "content_blocks/internal/storage/redis"

	"github.com/redis/go-redis/v9"
)

// setIfGeneration пишет запись и добавляет ее в множество тега, только если
// поколение тега не менялось. Множество тега живет не меньше своих записей.
var setIfGeneration = redis.NewScript(`
local gen = redis.call('GET', KEYS[3]) or '0'
if gen ~= ARGV[2] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
redis.call('SADD', KEYS[2], KEYS[1])
if redis.call('PTTL', KEYS[2]) < tonumber(ARGV[3]) then
	redis.call('PEXPIRE', KEYS[2], ARGV[3])
end
return 1
`)

// RedisCache хранит запись по ключу, ключи тега в множестве tag:{tag},
// поколение тега в счетчике tag-gen:{tag}
type RedisCache struct {
	client     *redisapp.Client
	defaultTTL time.Duration
}

func NewRedisCache(client *redisapp.Client, defaultTTL time.Duration) *RedisCache {
	return &RedisCache{client: client, defaultTTL: defaultTTL}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("cache.redis.Get: %w", err)
	}

	return val, nil
}

func (c *RedisCache) Generation(ctx context.Context, tag string) (int64, error) {
	gen, err := c.client.Get(ctx, generationKey(tag)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("cache.redis.Generation: %w", err)
	}

	return gen, nil
}

func (c *RedisCache) Set(ctx context.Context, key, tag string, gen int64, value []byte, ttl time.Duration) error {
	const op = "cache.redis.Set"

	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	ms := ttl.Milliseconds()
	if ms <= 0 {
		return nil
	}

	stored, err := setIfGeneration.Run(ctx, c.client,
		[]string{key, tagKey(tag), generationKey(tag)},
		value, strconv.FormatInt(gen, 10), ms,
	).Int()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if stored == 0 {
		return ErrStale
	}

	return nil
}

func (c *RedisCache) InvalidateTag(ctx context.Context, tag string) error {
	const op = "cache.redis.InvalidateTag"

	// поколение растет до удаления, чтобы чтение, начатое раньше, не записало старое
	if err := c.client.Incr(ctx, generationKey(tag)).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	keys, err := c.client.SMembers(ctx, tagKey(tag)).Result()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	keys = append(keys, tagKey(tag))
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
