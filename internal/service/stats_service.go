package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"viewcounter/internal/domain"
	"viewcounter/internal/repository"
	apperrors "viewcounter/pkg/errors"
	"viewcounter/pkg/logger"
)

// Stats defaults
const (
	DefaultPopularTimeout = 10 * time.Second
	DefaultTotalTimeout   = 8 * time.Second
	DefaultPopularLimit   = 10
	DefaultRecentLimit    = 10
)

// ViewRanker is the error-returning side of the counter store the
// aggregator needs to tell a failed step from an empty one.
type ViewRanker interface {
	PopularPosts(ctx context.Context, limit int) ([]domain.PostViews, error)
	TotalViews(ctx context.Context) (int64, error)
}

// StatsOptions bounds the aggregation
type StatsOptions struct {
	PopularTimeout time.Duration
	TotalTimeout   time.Duration
	PopularLimit   int
	RecentLimit    int
}

func (o StatsOptions) withDefaults() StatsOptions {
	if o.PopularTimeout <= 0 {
		o.PopularTimeout = DefaultPopularTimeout
	}
	if o.TotalTimeout <= 0 {
		o.TotalTimeout = DefaultTotalTimeout
	}
	if o.PopularLimit <= 0 {
		o.PopularLimit = DefaultPopularLimit
	}
	if o.RecentLimit <= 0 {
		o.RecentLimit = DefaultRecentLimit
	}
	return o
}

// statsService joins counters with content metadata
type statsService struct {
	ranker ViewRanker
	views  ViewService
	posts  repository.PostRepository
	opts   StatsOptions
	logger *logger.Logger
}

// NewStatsService creates a new stats service
func NewStatsService(ranker ViewRanker, views ViewService, posts repository.PostRepository, opts StatsOptions, log *logger.Logger) StatsService {
	if log == nil {
		log = logger.NewNop()
	}
	return &statsService{
		ranker: ranker,
		views:  views,
		posts:  posts,
		opts:   opts.withDefaults(),
		logger: log.Named("stats"),
	}
}

// GetStats builds the aggregate stats. The popular and total steps run
// concurrently under their own timeouts. A failed popular step yields an
// empty list, a failed total step yields the sum of the popular list. When
// content cannot be listed or both steps fail, zero stats with the most
// recent posts are returned.
func (s *statsService) GetStats(ctx context.Context) (stats *domain.ViewStats) {
	posts, err := s.posts.List(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list content for stats")
		return s.fallback(nil)
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Recovered panic while building stats", zap.Any("panic", r))
			stats = s.fallback(posts)
		}
	}()

	var (
		popular    []domain.PostViews
		popularErr error
		total      int64
		totalErr   error
	)

	var g errgroup.Group
	g.Go(func() error {
		popular, popularErr = runStep(ctx, "popular posts", s.opts.PopularTimeout,
			func(ctx context.Context) ([]domain.PostViews, error) {
				return s.ranker.PopularPosts(ctx, s.opts.PopularLimit)
			})
		return nil
	})
	g.Go(func() error {
		total, totalErr = runStep(ctx, "total views", s.opts.TotalTimeout, s.ranker.TotalViews)
		return nil
	})
	_ = g.Wait()

	if popularErr != nil && totalErr != nil {
		s.logger.WithError(errors.Join(popularErr, totalErr)).Error("Both counter steps failed, serving fallback stats")
		return s.fallback(posts)
	}

	degraded := false
	if popularErr != nil {
		s.logStepFailure(popularErr, "Popular posts step failed, using empty list")
		popular = []domain.PostViews{}
		degraded = true
	}
	if totalErr != nil {
		s.logStepFailure(totalErr, "Total views step failed, summing popular list")
		total = sumViews(popular)
		degraded = true
	}

	bySlug := make(map[string]*domain.Post, len(posts))
	for _, post := range posts {
		bySlug[post.Slug] = post
	}

	popularStats := make([]domain.PostStat, 0, len(popular))
	for _, pv := range popular {
		post, ok := bySlug[pv.Slug]
		if !ok {
			// counted but no longer published
			continue
		}
		popularStats = append(popularStats, toPostStat(post, pv.Views))
	}

	recent := recentPosts(posts, s.opts.RecentLimit)
	slugs := make([]string, len(recent))
	for i, post := range recent {
		slugs[i] = post.Slug
	}
	counts, err := runStep(ctx, "recent views", s.opts.TotalTimeout,
		func(ctx context.Context) (map[string]int64, error) {
			return s.views.GetMultiple(ctx, slugs), nil
		})
	if err != nil {
		s.logStepFailure(err, "Recent views step failed, reporting zero views")
		degraded = true
	}

	recentStats := make([]domain.PostStat, len(recent))
	for i, post := range recent {
		recentStats[i] = toPostStat(post, counts[post.Slug])
	}

	return &domain.ViewStats{
		TotalViews:   total,
		TotalPosts:   len(posts),
		AverageViews: averageViews(total, len(posts)),
		PopularPosts: popularStats,
		RecentPosts:  recentStats,
		Degraded:     degraded,
	}
}

// fallback lists the most recent posts with views left at 0 so the
// degraded path does not touch the counter store.
func (s *statsService) fallback(posts []*domain.Post) *domain.ViewStats {
	recent := recentPosts(posts, s.opts.RecentLimit)
	recentStats := make([]domain.PostStat, len(recent))
	for i, post := range recent {
		recentStats[i] = toPostStat(post, 0)
	}

	return &domain.ViewStats{
		TotalPosts:   len(posts),
		PopularPosts: []domain.PostStat{},
		RecentPosts:  recentStats,
		Degraded:     true,
	}
}

func (s *statsService) logStepFailure(err error, msg string) {
	s.logger.WithError(err).Warn(msg, zap.String("error_type", string(apperrors.KindOf(err))))
}

// runStep runs fn under its own timeout. It returns a timeout error once the
// deadline passes even if fn does not honor ctx, and turns a panic in fn into
// an internal error.
func runStep[T any](ctx context.Context, step string, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		val T
		err error
	}

	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: apperrors.NewInternalError(step+" panicked", fmt.Errorf("%v", r))}
			}
		}()
		val, err := fn(ctx)
		done <- result{val: val, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil && errors.Is(res.err, context.DeadlineExceeded) {
			return res.val, apperrors.NewTimeoutError(step, res.err)
		}
		return res.val, res.err
	case <-ctx.Done():
		var zero T
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, apperrors.NewTimeoutError(step, ctx.Err())
		}
		return zero, ctx.Err()
	}
}

func recentPosts(posts []*domain.Post, limit int) []*domain.Post {
	sorted := make([]*domain.Post, len(posts))
	copy(sorted, posts)
	repository.SortByDate(sorted)

	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}

func toPostStat(post *domain.Post, views int64) domain.PostStat {
	title := post.Matter.Title
	if title == "" {
		title = post.Slug
	}
	return domain.PostStat{
		Slug:        post.Slug,
		Title:       title,
		Views:       views,
		Date:        post.Matter.Date,
		Description: post.Matter.Description,
		Tags:        post.Matter.Tags,
	}
}

func sumViews(popular []domain.PostViews) int64 {
	var sum int64
	for _, pv := range popular {
		sum += pv.Views
	}
	return sum
}

func averageViews(total int64, posts int) int64 {
	if posts == 0 {
		return 0
	}
	return int64(math.Round(float64(total) / float64(posts)))
}
