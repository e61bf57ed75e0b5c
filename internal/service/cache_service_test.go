package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"viewcounter/internal/domain"
	"viewcounter/pkg/redis"
)

type countingPosts struct {
	fakePosts
	calls atomic.Int32
}

func (c *countingPosts) List(ctx context.Context) ([]*domain.Post, error) {
	c.calls.Add(1)
	return c.fakePosts.List(ctx)
}

func setupCache(t *testing.T) (*miniredis.Miniredis, *countingPosts, *CacheService) {
	t.Helper()

	mr := miniredis.RunT(t)
	client, err := redis.NewClient("redis://"+mr.Addr(), "", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	source := &countingPosts{fakePosts: fakePosts{posts: testPosts()}}
	return mr, source, NewCacheService(source, client, time.Minute, nil)
}

func TestCacheService_ListCachesAside(t *testing.T) {
	mr, source, cache := setupCache(t)
	ctx := context.Background()

	posts, err := cache.List(ctx)
	require.NoError(t, err)
	assert.Len(t, posts, 3)

	require.Eventually(t, func() bool {
		return mr.Exists("content:posts")
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, time.Minute, mr.TTL("content:posts"))

	posts, err = cache.List(ctx)
	require.NoError(t, err)
	require.Len(t, posts, 3)
	assert.Equal(t, "newest", posts[0].Slug)
	assert.Equal(t, []string{"go"}, posts[0].Matter.Tags)
	assert.Equal(t, int32(1), source.calls.Load())
}

func TestCacheService_CorruptedEntry(t *testing.T) {
	mr, source, cache := setupCache(t)
	require.NoError(t, mr.Set("content:posts", "{not json"))

	posts, err := cache.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, posts, 3)
	assert.Equal(t, int32(1), source.calls.Load())
}

func TestCacheService_RedisDown(t *testing.T) {
	mr, source, cache := setupCache(t)
	mr.Close()

	posts, err := cache.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, posts, 3)
	assert.Equal(t, int32(1), source.calls.Load())
	assert.Error(t, cache.HealthCheck(context.Background()))
}

func TestCacheService_TagsAndInvalidate(t *testing.T) {
	mr, _, cache := setupCache(t)
	ctx := context.Background()

	tags, err := cache.Tags(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"go"}, tags)

	require.Eventually(t, func() bool {
		return mr.Exists("content:posts")
	}, time.Second, 10*time.Millisecond)

	tagged, err := cache.ListByTag(ctx, "go")
	require.NoError(t, err)
	require.Len(t, tagged, 1)
	assert.Equal(t, "newest", tagged[0].Slug)

	require.NoError(t, cache.Invalidate(ctx))
	assert.False(t, mr.Exists("content:posts"))
	assert.NoError(t, cache.HealthCheck(ctx))
}
