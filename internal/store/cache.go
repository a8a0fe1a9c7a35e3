// internal/store/cache.go
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"match-pipeline/internal/common/logger"
	"match-pipeline/internal/models"
)

const DefaultProfileTTL = 5 * time.Minute

// ProfileLoader is the read the cache sits in front of, plus the narrow
// version read used to validate a hit.
type ProfileLoader interface {
	FindProfileByUser(ctx context.Context, userID string) (*models.Profile, error)
	FindProfileVersionByUser(ctx context.Context, userID string) (models.ProfileVersion, error)
}

// ProfileCache is a cache-aside layer over FindProfileByUser. A hit is only
// served while the row's updated_at and embedding_dirty still match the cached
// copy, so an edit is visible on the next read even before the cached entry
// expires. Redis errors degrade to a database read and are never returned to
// the caller.
type ProfileCache struct {
	redis  *redis.Client
	loader ProfileLoader
	ttl    time.Duration
	logger logger.Logger
}

func NewProfileCache(rdb *redis.Client, loader ProfileLoader, ttl time.Duration, log logger.Logger) *ProfileCache {
	if ttl <= 0 {
		ttl = DefaultProfileTTL
	}
	return &ProfileCache{redis: rdb, loader: loader, ttl: ttl, logger: log}
}

func ProfileCacheKey(userID string) string {
	return "profile:user:" + userID
}

func (c *ProfileCache) FindProfileByUser(ctx context.Context, userID string) (*models.Profile, error) {
	key := ProfileCacheKey(userID)

	val, err := c.redis.Get(ctx, key).Result()
	switch {
	case err == nil:
		var profile models.Profile
		if jsonErr := json.Unmarshal([]byte(val), &profile); jsonErr != nil {
			c.logger.Warn("discarding undecodable cached profile", map[string]interface{}{"userId": userID})
			break
		}
		if c.fresh(ctx, userID, &profile) {
			return &profile, nil
		}
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("profile cache read failed", map[string]interface{}{"userId": userID, "error": err.Error()})
	}

	profile, err := c.loader.FindProfileByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(profile); err == nil {
		if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.logger.Warn("profile cache write failed", map[string]interface{}{"userId": userID, "error": err.Error()})
		}
	}
	return profile, nil
}

func (c *ProfileCache) fresh(ctx context.Context, userID string, cached *models.Profile) bool {
	current, err := c.loader.FindProfileVersionByUser(ctx, userID)
	if err != nil {
		// a deleted profile or a failed read both go through the full load,
		// which reports the error properly
		return false
	}
	if !cached.Version().Matches(current) {
		c.logger.Debug("cached profile is stale, reloading", map[string]interface{}{
			"userId":         userID,
			"cachedAt":       cached.UpdatedAt,
			"updatedAt":      current.UpdatedAt,
			"embeddingDirty": current.EmbeddingDirty,
		})
		return false
	}
	return true
}

// Invalidate drops the cached profile, typically after a re-embed.
func (c *ProfileCache) Invalidate(ctx context.Context, userID string) error {
	return c.redis.Del(ctx, ProfileCacheKey(userID)).Err()
}
