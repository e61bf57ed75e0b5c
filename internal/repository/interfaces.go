package repository

import (
	"context"

	"viewcounter/internal/domain"
)

// ViewRepository defines the counter record operations. Errors carry a
// pkg/errors.AppError kind (store_unavailable, shape_mismatch, validation).
type ViewRepository interface {
	// Get returns the current count, 0 when no record exists
	Get(ctx context.Context, slug string) (int64, error)

	// IncrementAnonymous adds one view on every call
	IncrementAnonymous(ctx context.Context, slug string) (int64, error)

	// IncrementWithSession adds one view the first time token is seen for slug
	IncrementWithSession(ctx context.Context, slug, token string) (views int64, incremented bool, err error)

	// GetMultiple reads many counts in one round trip
	GetMultiple(ctx context.Context, slugs []string) (map[string]int64, error)

	// ListCounts enumerates every record
	ListCounts(ctx context.Context) ([]domain.PostViews, error)

	// TotalViews sums every record
	TotalViews(ctx context.Context) (int64, error)

	// PopularPosts returns the top records by views
	PopularPosts(ctx context.Context, limit int) ([]domain.PostViews, error)

	// MigrateLegacy converts one legacy scalar record
	MigrateLegacy(ctx context.Context, slug string) (int64, error)

	// MigrateAllLegacy converts every legacy scalar record
	MigrateAllLegacy(ctx context.Context) (int, error)
}

// PostRepository defines read access to content metadata
type PostRepository interface {
	// List returns published posts, newest first
	List(ctx context.Context) ([]*domain.Post, error)

	// Get returns the post for slug, or nil when it does not exist
	Get(ctx context.Context, slug string) (*domain.Post, error)

	// Tags returns every tag in use, sorted
	Tags(ctx context.Context) ([]string, error)

	// ListByTag returns published posts carrying tag, newest first
	ListByTag(ctx context.Context, tag string) ([]*domain.Post, error)
}

// PostWriter persists posts into a content store
type PostWriter interface {
	// Upsert inserts or replaces a post by slug
	Upsert(ctx context.Context, post *domain.Post) error
}

// PostStore is a content source that can also be written to
type PostStore interface {
	PostRepository
	PostWriter
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Views ViewRepository
	Posts PostRepository
}
