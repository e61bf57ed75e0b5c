package service

import (
	"context"

	"go.uber.org/zap"

	"viewcounter/internal/domain"
	"viewcounter/internal/repository"
	apperrors "viewcounter/pkg/errors"
	"viewcounter/pkg/logger"
)

// viewService turns repository errors into logged zero defaults
type viewService struct {
	repo   repository.ViewRepository
	logger *logger.Logger
}

// NewViewService creates a new view service
func NewViewService(repo repository.ViewRepository, log *logger.Logger) ViewService {
	if log == nil {
		log = logger.NewNop()
	}
	return &viewService{
		repo:   repo,
		logger: log.Named("views"),
	}
}

// Get returns the current count of slug
func (s *viewService) Get(ctx context.Context, slug string) int64 {
	views, err := s.repo.Get(ctx, slug)
	if err != nil {
		s.logFailure(err, "Failed to get views", slug)
		return 0
	}
	return views
}

// IncrementAnonymous counts a visit without deduplication
func (s *viewService) IncrementAnonymous(ctx context.Context, slug string) int64 {
	views, err := s.repo.IncrementAnonymous(ctx, slug)
	if err != nil {
		s.logFailure(err, "Failed to increment views", slug)
		return 0
	}
	return views
}

// IncrementWithSession counts a visit once per session token
func (s *viewService) IncrementWithSession(ctx context.Context, slug, token string) (int64, bool) {
	views, incremented, err := s.repo.IncrementWithSession(ctx, slug, token)
	if err != nil {
		s.logFailure(err, "Failed to increment views with session", slug)
		return 0, false
	}
	return views, incremented
}

// GetMultiple returns a count for every slug; unreadable entries are 0
func (s *viewService) GetMultiple(ctx context.Context, slugs []string) map[string]int64 {
	counts, err := s.repo.GetMultiple(ctx, slugs)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to read some view counts",
			zap.Int("slugs", len(slugs)),
			zap.String("error_type", string(apperrors.KindOf(err))),
		)
	}

	if counts == nil {
		counts = make(map[string]int64, len(slugs))
	}
	for _, slug := range slugs {
		if _, ok := counts[slug]; !ok {
			counts[slug] = 0
		}
	}
	return counts
}

// GetTotalViews sums every counter record
func (s *viewService) GetTotalViews(ctx context.Context) int64 {
	total, err := s.repo.TotalViews(ctx)
	if err != nil {
		s.logFailure(err, "Failed to get total views", "")
		return 0
	}
	return total
}

// GetPopularPosts returns the top records by views
func (s *viewService) GetPopularPosts(ctx context.Context, limit int) []domain.PostViews {
	popular, err := s.repo.PopularPosts(ctx, limit)
	if err != nil {
		s.logFailure(err, "Failed to get popular posts", "")
		return []domain.PostViews{}
	}
	return popular
}

func (s *viewService) logFailure(err error, msg, slug string) {
	fields := []zap.Field{zap.String("error_type", string(apperrors.KindOf(err)))}
	if slug != "" {
		fields = append(fields, zap.String("slug", slug))
	}
	s.logger.WithError(err).Error(msg, fields...)
}
