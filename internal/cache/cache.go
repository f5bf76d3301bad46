package cache

import (
	"context"
	"errors"
	"time"
)

var (
	ErrCacheMiss = errors.New("cache miss")
	// ErrStale тег был сброшен между Generation и Set, запись не сохранена
	ErrStale = errors.New("cache generation changed")
)

// RenderCache кеш готовых ответов чтения. Каждая запись привязана к тегу,
// InvalidateTag удаляет все записи тега разом и увеличивает его поколение.
type RenderCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Generation(ctx context.Context, tag string) (int64, error)
	// Set сохраняет запись, только если поколение тега все еще gen
	Set(ctx context.Context, key, tag string, gen int64, value []byte, ttl time.Duration) error
	InvalidateTag(ctx context.Context, tag string) error
}

func BlocksKey(pageKey, locale string) string {
	return "blocks:" + pageKey + ":" + locale
}

func tagKey(tag string) string {
	return "tag:" + tag
}

func generationKey(tag string) string {
	return "tag-gen:" + tag
}
