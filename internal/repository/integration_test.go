//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"

	"viewcounter/internal/domain"
	"viewcounter/internal/migrations"
	"viewcounter/pkg/database"
	"viewcounter/pkg/redis"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("blog"),
		tcpostgres.WithUsername("blog"),
		tcpostgres.WithPassword("blog"),
		tc.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tc.TerminateContainer(container) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

func TestPostgresDB_HealthRequiresPostsTable(t *testing.T) {
	ctx := context.Background()
	dsn := startPostgres(t)

	db, err := database.NewPostgresDB(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	assert.ErrorIs(t, db.Health(ctx), database.ErrPostsTableMissing)

	m, err := migrations.New(dsn, nil)
	require.NoError(t, err)
	require.NoError(t, m.Up())
	require.NoError(t, m.Close())

	assert.NoError(t, db.Health(ctx))
}

func TestPgPostRepository_Integration(t *testing.T) {
	ctx := context.Background()
	dsn := startPostgres(t)

	m, err := migrations.New(dsn, nil)
	require.NoError(t, err)
	require.NoError(t, m.Up())
	require.NoError(t, m.Close())

	db, err := database.NewPostgresDB(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	repo := NewPgPostRepository(db)

	seed := []*domain.Post{
		{Slug: "intro-to-go", Matter: domain.PostMatter{Title: "Intro", Date: "2024-03-01", Tags: []string{"go"}}},
		{Slug: "series/part-1", Matter: domain.PostMatter{Title: "Part 1", Date: "2024-05-01", Tags: []string{"go", "series"}}},
		{Slug: "wip", Matter: domain.PostMatter{Title: "WIP", Date: "2025-01-01", Draft: true}},
	}
	for _, p := range seed {
		require.NoError(t, repo.Upsert(ctx, p))
	}

	posts, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "series/part-1", posts[0].Slug)

	post, err := repo.Get(ctx, "intro-to-go")
	require.NoError(t, err)
	require.NotNil(t, post)
	assert.Equal(t, []string{"go"}, post.Matter.Tags)

	post, err = repo.Get(ctx, "wip")
	require.NoError(t, err)
	assert.Nil(t, post)

	tags, err := repo.Tags(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"go", "series"}, tags)

	tagged, err := repo.ListByTag(ctx, "series")
	require.NoError(t, err)
	require.Len(t, tagged, 1)

	seed[0].Matter.Title = "Intro to Go"
	require.NoError(t, repo.Upsert(ctx, seed[0]))
	post, err = repo.Get(ctx, "intro-to-go")
	require.NoError(t, err)
	assert.Equal(t, "Intro to Go", post.Matter.Title)
}

func TestViewRepository_RealRedis(t *testing.T) {
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = tc.TerminateContainer(container) })

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	client, err := redis.NewClient(uri, "it", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	repo := NewViewRepository(client, time.Minute)

	// legacy scalar written by the previous layout
	pipe := client.Pipeline()
	pipe.Set(ctx, "it:views:legacy", "41", 0)
	_, err = pipe.Exec(ctx)
	require.NoError(t, err)

	views, incremented, err := repo.IncrementWithSession(ctx, "legacy", "token-1")
	require.NoError(t, err)
	assert.True(t, incremented)
	assert.Equal(t, int64(42), views)

	shape, err := client.Type(ctx, "it:views:legacy")
	require.NoError(t, err)
	assert.Equal(t, "hash", shape)

	ttl, err := client.TTL(ctx, "it:views:legacy")
	require.NoError(t, err)
	assert.InDelta(t, time.Minute.Seconds(), ttl.Seconds(), 2)

	// counts past 14 digits must not round-trip through Lua number formatting
	require.NoError(t, client.Set(ctx, "it:views:big", "123456789012345", 0))
	recovered, err := repo.MigrateLegacy(ctx, "big")
	require.NoError(t, err)
	assert.Equal(t, int64(123456789012345), recovered)

	stored, err := client.HGet(ctx, "it:views:big", FieldViews)
	require.NoError(t, err)
	assert.Equal(t, "123456789012345", stored)

	views, err = repo.IncrementAnonymous(ctx, "big")
	require.NoError(t, err)
	assert.Equal(t, int64(123456789012346), views)
}
