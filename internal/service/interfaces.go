package service

import (
	"context"

	"viewcounter/internal/domain"
)

// ViewService defines the counter operations exposed to callers. Every method
// is total: store failures are logged and replaced by a zero default.
type ViewService interface {
	// Get returns the current count, 0 on any failure
	Get(ctx context.Context, slug string) int64

	// IncrementAnonymous adds one view on every call
	IncrementAnonymous(ctx context.Context, slug string) int64

	// IncrementWithSession adds one view the first time token is seen for slug
	IncrementWithSession(ctx context.Context, slug, token string) (views int64, incremented bool)

	// GetMultiple returns a count for every slug
	GetMultiple(ctx context.Context, slugs []string) map[string]int64

	// GetTotalViews sums every counter record
	GetTotalViews(ctx context.Context) int64

	// GetPopularPosts returns at most limit records ordered by views descending
	GetPopularPosts(ctx context.Context, limit int) []domain.PostViews
}

// IngressService decides whether a visit may increment a counter
type IngressService interface {
	// RecordView counts a visit unless the client is automated
	RecordView(ctx context.Context, slug, userAgent, sessionToken string) domain.ViewResult
}

// StatsService builds aggregate stats for display
type StatsService interface {
	// GetStats never fails; Degraded is set when a step fell back
	GetStats(ctx context.Context) *domain.ViewStats
}

// Services aggregates all service interfaces
type Services struct {
	Views   ViewService
	Ingress IngressService
	Stats   StatsService
}
