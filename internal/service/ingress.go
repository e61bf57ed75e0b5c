package service

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"viewcounter/internal/domain"
	"viewcounter/pkg/logger"
)

// botPattern matches crawlers and link-preview fetchers
var botPattern = regexp.MustCompile(`(?i)(bot|crawler|spider|scraper|facebookexternalhit|twitterbot|linkedinbot|pinterest)`)

// unknownUserAgent stands in for a missing User-Agent header
const unknownUserAgent = "unknown"

// BotDetector classifies client identity strings
type BotDetector struct {
	pattern *regexp.Regexp
}

// NewBotDetector creates a detector with the built-in pattern set
func NewBotDetector() *BotDetector {
	return &BotDetector{pattern: botPattern}
}

// IsBot reports whether userAgent identifies an automated client.
// An empty user agent is not treated as a bot.
func (d *BotDetector) IsBot(userAgent string) bool {
	userAgent = strings.TrimSpace(userAgent)
	if userAgent == "" {
		userAgent = unknownUserAgent
	}
	return d.pattern.MatchString(userAgent)
}

// ingressService applies the bot filter and picks the increment path
type ingressService struct {
	views  ViewService
	bots   *BotDetector
	logger *logger.Logger
}

// NewIngressService creates a new ingress service
func NewIngressService(views ViewService, bots *BotDetector, log *logger.Logger) IngressService {
	if bots == nil {
		bots = NewBotDetector()
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &ingressService{
		views:  views,
		bots:   bots,
		logger: log.Named("ingress"),
	}
}

// RecordView counts a visit to slug. Bots only read. With a session token
// the visit is deduplicated; without one it always increments.
func (s *ingressService) RecordView(ctx context.Context, slug, userAgent, sessionToken string) domain.ViewResult {
	if s.bots.IsBot(userAgent) {
		s.logger.Debug("Bot visit not counted", zap.String("slug", slug), zap.String("user_agent", userAgent))
		return domain.ViewResult{
			Slug:        slug,
			Views:       s.views.Get(ctx, slug),
			Incremented: false,
		}
	}

	if sessionToken != "" {
		views, incremented := s.views.IncrementWithSession(ctx, slug, sessionToken)
		return domain.ViewResult{
			Slug:        slug,
			Views:       views,
			Incremented: incremented,
		}
	}

	views := s.views.IncrementAnonymous(ctx, slug)
	return domain.ViewResult{
		Slug:        slug,
		Views:       views,
		Incremented: views > 0,
	}
}
