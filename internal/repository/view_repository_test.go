package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "viewcounter/pkg/errors"
	"viewcounter/pkg/redis"
)

func setupViewRepository(t *testing.T, prefix string) (*miniredis.Miniredis, ViewRepository) {
	t.Helper()

	mr := miniredis.RunT(t)
	client, err := redis.NewClient("redis://"+mr.Addr(), prefix, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return mr, NewViewRepository(client, DefaultViewTTL)
}

func TestClassifyShape(t *testing.T) {
	tests := []struct {
		redisType string
		want      Shape
	}{
		{"none", ShapeAbsent},
		{"", ShapeAbsent},
		{"string", ShapeLegacy},
		{"hash", ShapeStructured},
		{"list", ShapeUnknown},
		{"zset", ShapeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.redisType, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyShape(tt.redisType))
		})
	}
}

func TestParseCount(t *testing.T) {
	tests := []struct {
		raw  string
		want int64
	}{
		{"42", 42},
		{" 7 ", 7},
		{"", 0},
		{"12.9", 12},
		{"abc", 0},
		{"NaN", 0},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, parseCount(tt.raw))
		})
	}
}

func TestViewRepository_GetUnseen(t *testing.T) {
	_, repo := setupViewRepository(t, "")

	views, err := repo.Get(context.Background(), "never-seen")
	require.NoError(t, err)
	assert.Equal(t, int64(0), views)
}

func TestViewRepository_IncrementAnonymous(t *testing.T) {
	mr, repo := setupViewRepository(t, "")
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		views, err := repo.IncrementAnonymous(ctx, "intro-to-go")
		require.NoError(t, err)
		assert.Equal(t, int64(i), views)
	}

	views, err := repo.Get(ctx, "intro-to-go")
	require.NoError(t, err)
	assert.Equal(t, int64(3), views)

	assert.Equal(t, "hash", mr.Type("views:intro-to-go"))
	assert.Equal(t, "3", mr.HGet("views:intro-to-go", FieldViews))
	assert.Equal(t, DefaultViewTTL, mr.TTL("views:intro-to-go"))
}

func TestViewRepository_RetentionWindow(t *testing.T) {
	mr, repo := setupViewRepository(t, "")
	ctx := context.Background()

	_, err := repo.IncrementAnonymous(ctx, "rolling")
	require.NoError(t, err)

	mr.FastForward(23 * time.Hour)
	assert.Equal(t, time.Hour, mr.TTL("views:rolling"))

	views, err := repo.IncrementAnonymous(ctx, "rolling")
	require.NoError(t, err)
	assert.Equal(t, int64(2), views)
	assert.Equal(t, DefaultViewTTL, mr.TTL("views:rolling"), "increment refreshes expiration")

	mr.FastForward(DefaultViewTTL + time.Second)

	views, err = repo.Get(ctx, "rolling")
	require.NoError(t, err)
	assert.Equal(t, int64(0), views)
	assert.False(t, mr.Exists("views:rolling"))
}

func TestViewRepository_IncrementWithSession(t *testing.T) {
	mr, repo := setupViewRepository(t, "")
	ctx := context.Background()

	views, incremented, err := repo.IncrementWithSession(ctx, "intro-to-go", "abc")
	require.NoError(t, err)
	assert.True(t, incremented)
	assert.Equal(t, int64(1), views)

	views, incremented, err = repo.IncrementWithSession(ctx, "intro-to-go", "abc")
	require.NoError(t, err)
	assert.False(t, incremented)
	assert.Equal(t, int64(1), views)

	assert.Equal(t, "1", mr.HGet("views:intro-to-go", "session:abc"))
}

func TestViewRepository_IncrementWithSession_FailedIncrementKeepsExpiry(t *testing.T) {
	mr, repo := setupViewRepository(t, "")
	mr.HSet("views:broken", "views", "abc")
	require.Equal(t, time.Duration(0), mr.TTL("views:broken"))

	_, incremented, err := repo.IncrementWithSession(context.Background(), "broken", "abc")
	require.Error(t, err)
	assert.False(t, incremented)

	assert.Equal(t, "1", mr.HGet("views:broken", "session:abc"))
	assert.Equal(t, DefaultViewTTL, mr.TTL("views:broken"))

	mr.FastForward(DefaultViewTTL + time.Second)
	assert.False(t, mr.Exists("views:broken"))
}

func TestViewRepository_DistinctSessions(t *testing.T) {
	_, repo := setupViewRepository(t, "")
	ctx := context.Background()

	tokens := []string{"a", "b", "a", "c", "a", "b", "d"}
	counted := 0
	for _, token := range tokens {
		_, incremented, err := repo.IncrementWithSession(ctx, "post", token)
		require.NoError(t, err)
		if incremented {
			counted++
		}
	}

	views, err := repo.Get(ctx, "post")
	require.NoError(t, err)
	assert.Equal(t, 4, counted)
	assert.Equal(t, int64(4), views)
}

func TestViewRepository_ConcurrentSameSession(t *testing.T) {
	_, repo := setupViewRepository(t, "")
	ctx := context.Background()

	const callers = 25
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		winners  int
		failures []error
	)

	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			_, incremented, err := repo.IncrementWithSession(ctx, "hot-post", "same-token")
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, err)
				return
			}
			if incremented {
				winners++
			}
		}()
	}
	wg.Wait()

	require.Empty(t, failures)
	assert.Equal(t, 1, winners)

	views, err := repo.Get(ctx, "hot-post")
	require.NoError(t, err)
	assert.Equal(t, int64(1), views)
}

func TestViewRepository_EmptySessionToken(t *testing.T) {
	_, repo := setupViewRepository(t, "")

	_, _, err := repo.IncrementWithSession(context.Background(), "post", "")
	assert.True(t, apperrors.IsKind(err, apperrors.ErrorTypeValidation))
}

func TestViewRepository_LegacyRecords(t *testing.T) {
	t.Run("read leaves legacy in place", func(t *testing.T) {
		mr, repo := setupViewRepository(t, "")
		require.NoError(t, mr.Set("views:old-post", "41"))

		views, err := repo.Get(context.Background(), "old-post")
		require.NoError(t, err)
		assert.Equal(t, int64(41), views)
		assert.Equal(t, "string", mr.Type("views:old-post"))
	})

	t.Run("anonymous increment migrates", func(t *testing.T) {
		mr, repo := setupViewRepository(t, "")
		require.NoError(t, mr.Set("views:old-post", "41"))

		views, err := repo.IncrementAnonymous(context.Background(), "old-post")
		require.NoError(t, err)
		assert.Equal(t, int64(42), views)
		assert.Equal(t, "hash", mr.Type("views:old-post"))
	})

	t.Run("session increment migrates", func(t *testing.T) {
		mr, repo := setupViewRepository(t, "")
		require.NoError(t, mr.Set("views:old-post", "9"))

		views, incremented, err := repo.IncrementWithSession(context.Background(), "old-post", "s1")
		require.NoError(t, err)
		assert.True(t, incremented)
		assert.Equal(t, int64(10), views)
	})

	t.Run("large counts are stored exactly", func(t *testing.T) {
		mr, repo := setupViewRepository(t, "")
		require.NoError(t, mr.Set("views:old-post", "123456789012345"))
		ctx := context.Background()

		recovered, err := repo.MigrateLegacy(ctx, "old-post")
		require.NoError(t, err)
		assert.Equal(t, int64(123456789012345), recovered)
		assert.Equal(t, "123456789012345", mr.HGet("views:old-post", "views"))

		views, err := repo.IncrementAnonymous(ctx, "old-post")
		require.NoError(t, err)
		assert.Equal(t, int64(123456789012346), views)
	})

	t.Run("leading zeros are normalized", func(t *testing.T) {
		mr, repo := setupViewRepository(t, "")
		require.NoError(t, mr.Set("views:old-post", "007"))

		views, err := repo.IncrementAnonymous(context.Background(), "old-post")
		require.NoError(t, err)
		assert.Equal(t, int64(8), views)
		assert.Equal(t, "8", mr.HGet("views:old-post", "views"))
	})

	t.Run("zero scalar is dropped", func(t *testing.T) {
		mr, repo := setupViewRepository(t, "")
		require.NoError(t, mr.Set("views:empty", "0"))

		recovered, err := repo.MigrateLegacy(context.Background(), "empty")
		require.NoError(t, err)
		assert.Equal(t, int64(0), recovered)
		assert.False(t, mr.Exists("views:empty"))

		views, err := repo.IncrementAnonymous(context.Background(), "empty")
		require.NoError(t, err)
		assert.Equal(t, int64(1), views)
	})

	t.Run("migration is idempotent", func(t *testing.T) {
		mr, repo := setupViewRepository(t, "")
		require.NoError(t, mr.Set("views:old-post", "5"))
		ctx := context.Background()

		recovered, err := repo.MigrateLegacy(ctx, "old-post")
		require.NoError(t, err)
		assert.Equal(t, int64(5), recovered)

		recovered, err = repo.MigrateLegacy(ctx, "old-post")
		require.NoError(t, err)
		assert.Equal(t, int64(0), recovered)

		views, err := repo.Get(ctx, "old-post")
		require.NoError(t, err)
		assert.Equal(t, int64(5), views)
	})

	t.Run("concurrent migration does not double count", func(t *testing.T) {
		mr, repo := setupViewRepository(t, "")
		require.NoError(t, mr.Set("views:old-post", "100"))
		ctx := context.Background()

		const callers = 10
		var wg sync.WaitGroup
		wg.Add(callers)
		for i := 0; i < callers; i++ {
			go func(i int) {
				defer wg.Done()
				_, _, err := repo.IncrementWithSession(ctx, "old-post", fmt.Sprintf("s-%d", i))
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		views, err := repo.Get(ctx, "old-post")
		require.NoError(t, err)
		assert.Equal(t, int64(100+callers), views)
	})
}

func TestViewRepository_UnknownShape(t *testing.T) {
	mr, repo := setupViewRepository(t, "")
	ctx := context.Background()
	_, err := mr.Lpush("views:weird", "x")
	require.NoError(t, err)

	_, err = repo.Get(ctx, "weird")
	assert.True(t, apperrors.IsKind(err, apperrors.ErrorTypeShapeMismatch))

	_, err = repo.IncrementAnonymous(ctx, "weird")
	assert.True(t, apperrors.IsKind(err, apperrors.ErrorTypeShapeMismatch))

	_, _, err = repo.IncrementWithSession(ctx, "weird", "abc")
	assert.True(t, apperrors.IsKind(err, apperrors.ErrorTypeShapeMismatch))
}

func TestViewRepository_GetMultiple(t *testing.T) {
	mr, repo := setupViewRepository(t, "")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := repo.IncrementAnonymous(ctx, "structured")
		require.NoError(t, err)
	}
	require.NoError(t, mr.Set("views:legacy", "12"))
	_, err := mr.Lpush("views:weird", "x")
	require.NoError(t, err)

	got, err := repo.GetMultiple(ctx, []string{"structured", "legacy", "absent", "weird"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{
		"structured": 3,
		"legacy":     12,
		"absent":     0,
		"weird":      0,
	}, got)

	got, err = repo.GetMultiple(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestViewRepository_TotalAndPopular(t *testing.T) {
	mr, repo := setupViewRepository(t, "")
	ctx := context.Background()

	popular, err := repo.PopularPosts(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, popular, "empty store yields empty list")

	seed := map[string]int{"a": 5, "b": 1, "c": 3, "d": 8}
	for slug, n := range seed {
		for i := 0; i < n; i++ {
			_, err := repo.IncrementAnonymous(ctx, slug)
			require.NoError(t, err)
		}
	}
	require.NoError(t, mr.Set("views:legacy", "4"))

	total, err := repo.TotalViews(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(21), total)

	popular, err = repo.PopularPosts(ctx, 3)
	require.NoError(t, err)
	require.Len(t, popular, 3)
	assert.Equal(t, "d", popular[0].Slug)
	assert.Equal(t, int64(8), popular[0].Views)
	assert.Equal(t, "a", popular[1].Slug)
	assert.Equal(t, int64(4), popular[2].Views)
	for i := 1; i < len(popular); i++ {
		assert.GreaterOrEqual(t, popular[i-1].Views, popular[i].Views)
	}

	popular, err = repo.PopularPosts(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, popular)

	mr.FlushAll()
	popular, err = repo.PopularPosts(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, popular)
}

func TestViewRepository_MigrateAllLegacy(t *testing.T) {
	mr, repo := setupViewRepository(t, "")
	ctx := context.Background()

	require.NoError(t, mr.Set("views:one", "3"))
	require.NoError(t, mr.Set("views:two", "7"))
	_, err := repo.IncrementAnonymous(ctx, "three")
	require.NoError(t, err)
	require.NoError(t, mr.Set("unrelated", "1"))

	migrated, err := repo.MigrateAllLegacy(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, migrated)

	assert.Equal(t, "hash", mr.Type("views:one"))
	assert.Equal(t, "7", mr.HGet("views:two", FieldViews))
	assert.Equal(t, "string", mr.Type("unrelated"))
}

func TestViewRepository_KeyPrefix(t *testing.T) {
	mr, repo := setupViewRepository(t, "blog")
	ctx := context.Background()

	_, err := repo.IncrementAnonymous(ctx, "nested/post")
	require.NoError(t, err)
	assert.True(t, mr.Exists("blog:views:nested/post"))

	all, err := repo.ListCounts(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "nested/post", all[0].Slug)
}

func TestViewRepository_StoreUnavailable(t *testing.T) {
	mr, repo := setupViewRepository(t, "")
	ctx := context.Background()

	_, err := repo.IncrementAnonymous(ctx, "post")
	require.NoError(t, err)

	mr.Close()

	_, err = repo.Get(ctx, "post")
	assert.True(t, apperrors.IsKind(err, apperrors.ErrorTypeStoreUnavailable))

	_, err = repo.IncrementAnonymous(ctx, "post")
	assert.True(t, apperrors.IsKind(err, apperrors.ErrorTypeStoreUnavailable))

	got, err := repo.GetMultiple(ctx, []string{"post", "other"})
	assert.True(t, apperrors.IsKind(err, apperrors.ErrorTypeStoreUnavailable))
	assert.Equal(t, map[string]int64{"post": 0, "other": 0}, got)

	_, err = repo.PopularPosts(ctx, 10)
	assert.True(t, apperrors.IsKind(err, apperrors.ErrorTypeStoreUnavailable))
}
