package container

import (
	"context"
	"fmt"

	"viewcounter/internal/config"
	"viewcounter/internal/repository"
	"viewcounter/internal/service"
	"viewcounter/pkg/database"
	"viewcounter/pkg/logger"
	"viewcounter/pkg/redis"
)

// Container holds all application dependencies
type Container struct {
	Config       *config.Config
	Logger       *logger.Logger
	RedisClient  *redis.Client
	DB           *database.PostgresDB
	Repositories *repository.Repositories
	Services     *service.Services
	ContentCache *service.CacheService
}

// New creates a new dependency injection container. The Redis client is
// required; a Postgres pool is opened only for the postgres content source.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Container, error) {
	redisClient, err := redis.NewClient(cfg.RedisURL, cfg.RedisKeyPrefix, log.Named("redis").Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Redis client: %w", err)
	}
	log.WithField("key_prefix", redisClient.KeyBuilder.GetPrefix()).Info("Redis client initialized successfully")

	var db *database.PostgresDB
	if cfg.ContentSource == config.ContentSourcePostgres {
		db, err = database.NewPostgresDB(ctx, cfg.DatabaseURL)
		if err != nil {
			_ = redisClient.Close()
			return nil, fmt.Errorf("failed to connect to content database: %w", err)
		}
		log.Info("Using Postgres content source")
	}

	return NewWithClients(cfg, log, redisClient, db)
}

// NewWithClients builds the container around existing clients. db may be nil,
// in which case content is read from cfg.ContentDir.
func NewWithClients(cfg *config.Config, log *logger.Logger, redisClient *redis.Client, db *database.PostgresDB) (*Container, error) {
	if redisClient == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	c := &Container{
		Config:      cfg,
		Logger:      log,
		RedisClient: redisClient,
		DB:          db,
	}

	var posts repository.PostRepository
	if db != nil {
		posts = repository.NewPgPostRepository(db)
	} else {
		posts = repository.NewFilePostRepository(cfg.ContentDir, log)
	}
	c.wire(posts)

	return c, nil
}

// wire builds repositories and services on top of the given content source
func (c *Container) wire(posts repository.PostRepository) {
	cfg := c.Config

	if cfg.ContentCacheTTL > 0 {
		c.ContentCache = service.NewCacheService(posts, c.RedisClient, cfg.ContentCacheTTL, c.Logger)
		posts = c.ContentCache
	}

	viewRepo := repository.NewViewRepository(c.RedisClient, cfg.ViewTTL)
	c.Repositories = &repository.Repositories{
		Views: viewRepo,
		Posts: posts,
	}

	views := service.NewViewService(viewRepo, c.Logger)
	c.Services = &service.Services{
		Views:   views,
		Ingress: service.NewIngressService(views, service.NewBotDetector(), c.Logger),
		Stats: service.NewStatsService(viewRepo, views, posts, service.StatsOptions{
			PopularTimeout: cfg.StatsPopularTimeout,
			TotalTimeout:   cfg.StatsTotalTimeout,
			PopularLimit:   cfg.StatsPopularLimit,
			RecentLimit:    cfg.StatsRecentLimit,
		}, c.Logger),
	}
}

// GetViewService returns the view service
func (c *Container) GetViewService() service.ViewService {
	return c.Services.Views
}

// GetIngressService returns the ingress service
func (c *Container) GetIngressService() service.IngressService {
	return c.Services.Ingress
}

// GetStatsService returns the stats service
func (c *Container) GetStatsService() service.StatsService {
	return c.Services.Stats
}

// GetPostRepository returns the content source
func (c *Container) GetPostRepository() repository.PostRepository {
	return c.Repositories.Posts
}

// GetLogger returns the logger
func (c *Container) GetLogger() *logger.Logger {
	return c.Logger
}

// GetConfig returns the configuration
func (c *Container) GetConfig() *config.Config {
	return c.Config
}

// GetRedisClient returns the Redis client
func (c *Container) GetRedisClient() *redis.Client {
	return c.RedisClient
}

// HasDatabase returns true if a Postgres pool is open
func (c *Container) HasDatabase() bool {
	return c.DB != nil
}

// Close releases the Redis client and the Postgres pool
func (c *Container) Close() error {
	if c.DB != nil {
		c.DB.Close()
	}
	return c.RedisClient.Close()
}
