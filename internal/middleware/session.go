package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"viewcounter/pkg/logger"
)

// Session cookie defaults
const (
	DefaultSessionCookieName = "sessionId"
	DefaultSessionMaxAge     = 30 * 24 * time.Hour
)

// SessionConfig holds the session cookie settings
type SessionConfig struct {
	CookieName string
	MaxAge     time.Duration
	Secure     bool
}

// DefaultSessionConfig returns a 30-day, HTTPS-only session cookie
func DefaultSessionConfig() *SessionConfig {
	return &SessionConfig{
		CookieName: DefaultSessionCookieName,
		MaxAge:     DefaultSessionMaxAge,
		Secure:     true,
	}
}

// Session issues one opaque token per browser on first contact. A request
// that already carries the cookie is passed through untouched.
func Session(config *SessionConfig, log *logger.Logger) func(http.Handler) http.Handler {
	if config == nil {
		config = DefaultSessionConfig()
	}
	if config.CookieName == "" {
		config.CookieName = DefaultSessionCookieName
	}
	if config.MaxAge <= 0 {
		config.MaxAge = DefaultSessionMaxAge
	}
	if log == nil {
		log = logger.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if SessionToken(r, config.CookieName) == "" {
				http.SetCookie(w, &http.Cookie{
					Name:     config.CookieName,
					Value:    uuid.NewString(),
					Path:     "/",
					MaxAge:   int(config.MaxAge / time.Second),
					HttpOnly: true,
					Secure:   config.Secure,
					SameSite: http.SameSiteLaxMode,
				})
				log.Debug("Issued session cookie")
			}

			next.ServeHTTP(w, r)
		})
	}
}

// SessionToken reads the session token from the request cookie, or "".
// A token issued on this same response is not visible here.
func SessionToken(r *http.Request, cookieName string) string {
	cookie, err := r.Cookie(cookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}
