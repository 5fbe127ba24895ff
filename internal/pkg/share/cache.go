package share

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/clearaudio/gateway/app/models"
	"github.com/clearaudio/gateway/internal/pkg/env"
	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned by Cache.Get for absent keys.
var ErrCacheMiss = errors.New("share: cache miss")

// Cache is a string key/value cache with expiry.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// RedisCache adapts a go-redis client to Cache.
type RedisCache struct {
	rdb *redis.Client
}

func NewRedisCache(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb}
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	v, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	return v, err
}

func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

func cacheKey(shareID string) string {
	return "share:" + shareID
}

// cachedRecord carries the fields ShareRecord hides from public JSON.
type cachedRecord struct {
	models.ShareRecord
	ID           string `json:"id"`
	UsageEntryID string `json:"usage_entry_id"`
	UserID       string `json:"user_id"`
}

func (s *Store) cached(ctx context.Context, shareID string) (*models.ShareRecord, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, err := s.cache.Get(ctx, cacheKey(shareID))
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			log.Warnf("[Share] cache get %s: %v", shareID, err)
		}
		return nil, false
	}
	var c cachedRecord
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, false
	}
	rec := c.ShareRecord
	rec.ID = c.ID
	rec.UsageEntryID = c.UsageEntryID
	rec.UserID = c.UserID
	return &rec, true
}

func (s *Store) remember(ctx context.Context, rec *models.ShareRecord) {
	if s.cache == nil {
		return
	}
	b, err := json.Marshal(cachedRecord{
		ShareRecord:  *rec,
		ID:           rec.ID,
		UsageEntryID: rec.UsageEntryID,
		UserID:       rec.UserID,
	})
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, cacheKey(rec.ShareID), string(b), s.cacheTTL); err != nil {
		log.Warnf("[Share] cache set %s: %v", rec.ShareID, err)
	}
}

// CacheTTL reads SHARE_CACHE_TTL, one hour by default.
func CacheTTL() time.Duration {
	return env.GetEnvDuration("SHARE_CACHE_TTL", time.Hour)
}
