package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"viewcounter/internal/domain"
	"viewcounter/internal/repository"
	"viewcounter/pkg/logger"
	"viewcounter/pkg/redis"
)

// DefaultContentCacheTTL bounds how stale the cached post listing may be
const DefaultContentCacheTTL = 5 * time.Minute

// CacheService keeps the published post listing in Redis with the
// cache-aside pattern. Post bodies are not cached.
type CacheService struct {
	repository.PostRepository

	redis  *redis.Client
	ttl    time.Duration
	logger *logger.Logger
}

// NewCacheService wraps posts with a listing cache
func NewCacheService(posts repository.PostRepository, redisClient *redis.Client, ttl time.Duration, log *logger.Logger) *CacheService {
	if ttl <= 0 {
		ttl = DefaultContentCacheTTL
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &CacheService{
		PostRepository: posts,
		redis:          redisClient,
		ttl:            ttl,
		logger:         log.Named("content_cache"),
	}
}

// List returns the cached listing, falling back to the content source on a
// miss, a Redis error or a corrupted entry.
func (c *CacheService) List(ctx context.Context) ([]*domain.Post, error) {
	cacheKey := c.redis.KeyBuilder.KeyContent()

	cachedData, err := c.redis.Get(ctx, cacheKey)
	switch {
	case err == nil && cachedData != "":
		var posts []*domain.Post
		if marshalErr := json.Unmarshal([]byte(cachedData), &posts); marshalErr == nil {
			c.logger.Debug("Content cache hit", zap.Int("posts", len(posts)))
			return posts, nil
		} else {
			c.logger.Warn("Content cache corrupted, falling back to source", zap.Error(marshalErr))
		}
	case err != nil && !errors.Is(err, redis.Nil):
		c.logger.Warn("Content cache error, falling back to source", zap.Error(err))
	}

	posts, err := c.PostRepository.List(ctx)
	if err != nil {
		return nil, err
	}

	// fire and forget
	go c.cachePostsAsync(posts)

	return posts, nil
}

// Tags derives tags from the cached listing
func (c *CacheService) Tags(ctx context.Context) ([]string, error) {
	posts, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	return repository.CollectTags(posts), nil
}

// ListByTag filters the cached listing
func (c *CacheService) ListByTag(ctx context.Context, tag string) ([]*domain.Post, error) {
	posts, err := c.List(ctx)
	if err != nil {
		return nil, err
	}

	tagged := make([]*domain.Post, 0, len(posts))
	for _, post := range posts {
		if post.HasTag(tag) {
			tagged = append(tagged, post)
		}
	}
	return tagged, nil
}

// Invalidate drops the cached listing, e.g. after an import
func (c *CacheService) Invalidate(ctx context.Context) error {
	if err := c.redis.Delete(ctx, c.redis.KeyBuilder.KeyContent()); err != nil {
		c.logger.Error("Failed to invalidate content cache", zap.Error(err))
		return err
	}
	c.logger.Debug("Content cache invalidated")
	return nil
}

// HealthCheck performs a health check on the cache system
func (c *CacheService) HealthCheck(ctx context.Context) error {
	start := time.Now()
	err := c.redis.Health(ctx)
	duration := time.Since(start)

	if err != nil {
		c.logger.Error("Cache health check failed",
			zap.Duration("duration", duration),
			zap.Error(err))
		return err
	}

	c.logger.Debug("Cache health check passed", zap.Duration("duration", duration))
	return nil
}

// cachePostsAsync stores the listing with its own deadline
func (c *CacheService) cachePostsAsync(posts []*domain.Post) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := json.Marshal(posts)
	if err != nil {
		c.logger.Error("Failed to marshal posts for caching", zap.Error(err))
		return
	}

	if err := c.redis.Set(ctx, c.redis.KeyBuilder.KeyContent(), string(data), c.ttl); err != nil {
		c.logger.Error("Failed to cache posts", zap.Error(err))
		return
	}
	c.logger.Debug("Posts cached", zap.Int("posts", len(posts)))
}
