package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Content sources
const (
	ContentSourceFiles    = "files"
	ContentSourcePostgres = "postgres"
)

// Config holds all configuration values for the application
type Config struct {
	Port           string
	Environment    string
	LogLevel       string
	AllowedOrigins []string

	RedisURL       string
	RedisKeyPrefix string
	ViewTTL        time.Duration

	SessionCookieName string
	SessionMaxAge     time.Duration
	CookieSecure      bool

	ContentSource string
	ContentDir    string
	DatabaseURL   string

	// ContentCacheTTL of 0 disables the Redis post listing cache
	ContentCacheTTL time.Duration

	StatsPopularTimeout time.Duration
	StatsTotalTimeout   time.Duration
	StatsPopularLimit   int
	StatsRecentLimit    int
}

// Load loads configuration from environment variables. Malformed durations
// and integers are reported rather than silently replaced.
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	p := &parser{}

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		Environment:    getEnv("ENVIRONMENT", "production"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		AllowedOrigins: parseOrigins(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),

		RedisURL:       getEnv("REDIS_URL", ""),
		RedisKeyPrefix: getEnv("REDIS_KEY_PREFIX", ""),
		ViewTTL:        p.duration("VIEW_TTL", 24*time.Hour),

		SessionCookieName: getEnv("SESSION_COOKIE_NAME", "sessionId"),
		SessionMaxAge:     p.duration("SESSION_MAX_AGE", 30*24*time.Hour),
		CookieSecure:      getBoolEnv("COOKIE_SECURE", true),

		ContentSource:   strings.ToLower(getEnv("CONTENT_SOURCE", ContentSourceFiles)),
		ContentDir:      getEnv("CONTENT_DIR", "content/posts"),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		ContentCacheTTL: p.duration("CONTENT_CACHE_TTL", 5*time.Minute),

		StatsPopularTimeout: p.duration("STATS_POPULAR_TIMEOUT", 10*time.Second),
		StatsTotalTimeout:   p.duration("STATS_TOTAL_TIMEOUT", 8*time.Second),
		StatsPopularLimit:   p.integer("STATS_POPULAR_LIMIT", 10),
		StatsRecentLimit:    p.integer("STATS_RECENT_LIMIT", 10),
	}

	if p.err != nil {
		return nil, p.err
	}
	return cfg, nil
}

// Validate checks that the configuration can start the server
func (c *Config) Validate() error {
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	durations := map[string]time.Duration{
		"VIEW_TTL":              c.ViewTTL,
		"SESSION_MAX_AGE":       c.SessionMaxAge,
		"STATS_POPULAR_TIMEOUT": c.StatsPopularTimeout,
		"STATS_TOTAL_TIMEOUT":   c.StatsTotalTimeout,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}

	if c.ContentCacheTTL < 0 {
		return fmt.Errorf("CONTENT_CACHE_TTL must not be negative")
	}

	if c.StatsPopularLimit <= 0 || c.StatsRecentLimit <= 0 {
		return fmt.Errorf("stats limits must be positive")
	}

	switch c.ContentSource {
	case ContentSourceFiles:
		if c.ContentDir == "" {
			return fmt.Errorf("CONTENT_DIR is required for the files content source")
		}
	case ContentSourcePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres content source")
		}
	default:
		return fmt.Errorf("unknown CONTENT_SOURCE %q", c.ContentSource)
	}

	return nil
}

// IsDevelopment reports whether the server runs locally
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "local"
}

// getEnv gets an environment variable with a fallback value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// parseOrigins parses comma-separated origins into a slice
func parseOrigins(origins string) []string {
	if origins == "" {
		return []string{}
	}

	parts := strings.Split(origins, ",")
	result := make([]string, 0, len(parts))

	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// getBoolEnv gets a boolean environment variable with a fallback value
func getBoolEnv(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

// parser keeps the first parse error across typed lookups
type parser struct {
	err error
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		// bare integers are seconds
		if secs, convErr := strconv.Atoi(value); convErr == nil {
			return time.Duration(secs) * time.Second
		}
		p.fail(fmt.Errorf("invalid %s %q: %w", key, value, err))
		return fallback
	}
	return d
}

func (p *parser) integer(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		p.fail(fmt.Errorf("invalid %s %q: %w", key, value, err))
		return fallback
	}
	return n
}

func (p *parser) fail(err error) {
	if p.err == nil {
		p.err = err
	}
}
