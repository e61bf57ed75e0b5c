package handler

import (
	"encoding/json"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"viewcounter/internal/domain"
	"viewcounter/internal/middleware"
	"viewcounter/internal/service"
	apperrors "viewcounter/pkg/errors"
	"viewcounter/pkg/logger"
)

// Cache-Control values for the public view endpoints
const (
	CacheControlRead          = "public, s-maxage=60, stale-while-revalidate=300"
	CacheControlWrite         = "no-cache, no-store, must-revalidate"
	CacheControlStats         = "public, s-maxage=300, stale-while-revalidate=600"
	CacheControlStatsDegraded = "public, s-maxage=60, stale-while-revalidate=60"
)

// maxBatchSlugs caps GET /api/views?slugs=
const maxBatchSlugs = 100

var slugPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._~-]*(/[A-Za-z0-9._~-]+)*$`)

// ViewHandler handles view counting HTTP requests
type ViewHandler struct {
	views             service.ViewService
	ingress           service.IngressService
	stats             service.StatsService
	sessionCookieName string
	logger            *logger.Logger
}

// NewViewHandler creates a new view handler
func NewViewHandler(views service.ViewService, ingress service.IngressService, stats service.StatsService, sessionCookieName string, log *logger.Logger) *ViewHandler {
	if sessionCookieName == "" {
		sessionCookieName = middleware.DefaultSessionCookieName
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &ViewHandler{
		views:             views,
		ingress:           ingress,
		stats:             stats,
		sessionCookieName: sessionCookieName,
		logger:            log.Named("view_handler"),
	}
}

// RegisterRoutes registers view routes under /views. "stats" is reserved:
// it can be read but never counted as a post.
func (h *ViewHandler) RegisterRoutes(r chi.Router) {
	r.Route("/views", func(r chi.Router) {
		r.Get("/", h.GetMultiple)
		r.Get("/stats", h.GetStats)
		r.Post("/stats", h.readOnly)
		r.Get("/*", h.GetViews)
		r.Post("/*", h.RecordView)
	})
}

// readOnly rejects writes to read-only endpoints that would otherwise fall
// through to the slug wildcard.
func (h *ViewHandler) readOnly(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", http.MethodGet)
	h.respondError(w, r, apperrors.NewMethodNotAllowedError(r.Method, http.MethodGet))
}

// GetViews handles GET /api/views/{slug...}
func (h *ViewHandler) GetViews(w http.ResponseWriter, r *http.Request) {
	slug, ok := h.slugParam(w, r)
	if !ok {
		return
	}

	views := h.views.Get(r.Context(), slug)

	w.Header().Set("Cache-Control", CacheControlRead)
	h.respondJSON(w, http.StatusOK, domain.ViewCount{Slug: slug, Views: views})
}

// RecordView handles POST /api/views/{slug...}
func (h *ViewHandler) RecordView(w http.ResponseWriter, r *http.Request) {
	slug, ok := h.slugParam(w, r)
	if !ok {
		return
	}

	token := middleware.SessionToken(r, h.sessionCookieName)
	result := h.ingress.RecordView(r.Context(), slug, r.UserAgent(), token)

	h.logger.WithFields(map[string]interface{}{
		"slug":        slug,
		"incremented": result.Incremented,
		"has_session": token != "",
	}).Debug("View recorded")

	w.Header().Set("Cache-Control", CacheControlWrite)
	h.respondJSON(w, http.StatusOK, result)
}

// GetMultiple handles GET /api/views?slugs=a,b
func (h *ViewHandler) GetMultiple(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("slugs")
	if strings.TrimSpace(raw) == "" {
		h.respondError(w, r, apperrors.NewValidationError("slugs query parameter is required", nil))
		return
	}

	slugs := make([]string, 0)
	seen := make(map[string]struct{})
	for _, part := range strings.Split(raw, ",") {
		slug := strings.Trim(strings.TrimSpace(part), "/")
		if slug == "" {
			continue
		}
		if !validSlug(slug) {
			h.respondError(w, r, apperrors.NewValidationError("invalid slug", map[string]interface{}{"slug": slug}))
			return
		}
		if _, dup := seen[slug]; dup {
			continue
		}
		seen[slug] = struct{}{}
		slugs = append(slugs, slug)
	}

	if len(slugs) > maxBatchSlugs {
		h.respondError(w, r, apperrors.NewValidationError("too many slugs", map[string]interface{}{
			"max":   maxBatchSlugs,
			"count": len(slugs),
		}))
		return
	}

	w.Header().Set("Cache-Control", CacheControlRead)
	h.respondJSON(w, http.StatusOK, h.views.GetMultiple(r.Context(), slugs))
}

// GetStats handles GET /api/views/stats
func (h *ViewHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := h.stats.GetStats(r.Context())

	if stats.Degraded {
		w.Header().Set("Cache-Control", CacheControlStatsDegraded)
	} else {
		w.Header().Set("Cache-Control", CacheControlStats)
	}
	h.respondJSON(w, http.StatusOK, stats)
}

// slugParam extracts and validates the wildcard slug, writing a 400 on failure
func (h *ViewHandler) slugParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := chi.URLParam(r, "*")
	slug, err := url.PathUnescape(raw)
	if err != nil {
		slug = raw
	}
	slug = strings.Trim(slug, "/")

	if !validSlug(slug) {
		h.respondError(w, r, apperrors.NewValidationError("invalid slug", map[string]interface{}{"slug": slug}))
		return "", false
	}
	return slug, true
}

// validSlug accepts nested content paths without traversal segments
func validSlug(slug string) bool {
	if slug == "" || len(slug) > 200 || !slugPattern.MatchString(slug) {
		return false
	}
	for _, segment := range strings.Split(slug, "/") {
		if segment == "." || segment == ".." {
			return false
		}
	}
	return !strings.Contains(slug, "..")
}

func (h *ViewHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.WithError(err).Error("Failed to encode response")
	}
}

func (h *ViewHandler) respondError(w http.ResponseWriter, r *http.Request, appErr *apperrors.AppError) {
	writeError(w, r, appErr, h.logger)
}

// writeError sends the standard error envelope
func writeError(w http.ResponseWriter, r *http.Request, appErr *apperrors.AppError, log *logger.Logger) {
	var response apperrors.ErrorResponse
	response.Error.Type = appErr.Type
	response.Error.Message = appErr.Message
	response.Error.Details = appErr.Details
	response.Error.RequestID = middleware.GetRequestID(r.Context())
	response.Error.Timestamp = time.Now().UTC().Format(time.RFC3339)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", CacheControlWrite)
	w.WriteHeader(appErr.StatusCode)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.WithError(err).Error("Failed to encode error response")
	}
}
