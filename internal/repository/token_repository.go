package repository

import (
	redisapp "content_blocks/internal/storage/redis"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"

	"context"
	"strings"
	"time"
)

type RedisTokenRepo struct {
	Client *redisapp.Client
}

func NewRedisTokenRepo(client *redisapp.Client) *RedisTokenRepo {
	return &RedisTokenRepo{Client: client}
}

func (r *RedisTokenRepo) SaveRefreshToken(ctx context.Context, userID, token string, exp time.Duration) error {
	return r.Client.Set(ctx, refreshTokenKey(userID, token), "1", exp).Err()
}

func (r *RedisTokenRepo) GetRefreshToken(ctx context.Context, userID, token string) (bool, error) {
	val, err := r.Client.Get(ctx, refreshTokenKey(userID, token)).Result()
	if err == redis.Nil {
		return false, nil
	}
	return val == "1", err
}

func (r *RedisTokenRepo) DeleteRefreshToken(ctx context.Context, userID, token string) error {
	return r.Client.Del(ctx, refreshTokenKey(userID, token)).Err()
}

func (r *RedisTokenRepo) DeleteAllUserTokens(ctx context.Context, userID string) error {
	keys, err := r.Client.Keys(ctx, refreshTokenKey(userID, "*")).Result()
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return r.Client.Del(ctx, keys...).Err()
}

// MemoryTokenRepo refresh токены в go-cache, когда redis не настроен
type MemoryTokenRepo struct {
	cache *cache.Cache
}

func NewMemoryTokenRepo() *MemoryTokenRepo {
	return &MemoryTokenRepo{cache: cache.New(time.Hour, 10*time.Minute)}
}

func (m *MemoryTokenRepo) SaveRefreshToken(_ context.Context, userID, token string, exp time.Duration) error {
	m.cache.Set(refreshTokenKey(userID, token), "1", exp)
	return nil
}

func (m *MemoryTokenRepo) GetRefreshToken(_ context.Context, userID, token string) (bool, error) {
	_, found := m.cache.Get(refreshTokenKey(userID, token))
	return found, nil
}

func (m *MemoryTokenRepo) DeleteRefreshToken(_ context.Context, userID, token string) error {
	m.cache.Delete(refreshTokenKey(userID, token))
	return nil
}

func (m *MemoryTokenRepo) DeleteAllUserTokens(_ context.Context, userID string) error {
	prefix := refreshTokenKey(userID, "")
	for key := range m.cache.Items() {
		if strings.HasPrefix(key, prefix) {
			m.cache.Delete(key)
		}
	}
	return nil
}

func refreshTokenKey(userID, token string) string {
	return "refresh:" + userID + ":" + token
}
