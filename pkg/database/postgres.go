package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrPostsTableMissing is returned by Health when the database is reachable
// but the posts schema has not been applied yet.
var ErrPostsTableMissing = errors.New("posts table does not exist; run `migrate up`")

// applicationName tags server-side sessions so slow post listings can be
// traced back to this service in pg_stat_activity.
const applicationName = "viewcounter-posts"

// PostsPoolOptions sizes the pool that serves post listings. Posts are read
// once per cache miss and written only by the import command.
type PostsPoolOptions struct {
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	ConnectTimeout   time.Duration
	StatementTimeout time.Duration
}

// DefaultPostsPoolOptions returns the pool settings used by the server and the CLI.
func DefaultPostsPoolOptions() PostsPoolOptions {
	return PostsPoolOptions{
		MaxConns:         4,
		MinConns:         1,
		MaxConnLifetime:  time.Hour,
		MaxConnIdleTime:  10 * time.Minute,
		ConnectTimeout:   5 * time.Second,
		StatementTimeout: 3 * time.Second,
	}
}

// PostgresDB holds the pgx pool backing the posts content source
type PostgresDB struct {
	Pool *pgxpool.Pool
}

// NewPostgresDB opens the posts pool with DefaultPostsPoolOptions and
// verifies the server is reachable.
func NewPostgresDB(ctx context.Context, databaseURL string) (*PostgresDB, error) {
	config, err := postsPoolConfig(databaseURL, DefaultPostsPoolOptions())
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create posts pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresDB{Pool: pool}, nil
}

func postsPoolConfig(databaseURL string, opts PostsPoolOptions) (*pgxpool.Config, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	config.MaxConns = opts.MaxConns
	config.MinConns = opts.MinConns
	config.MaxConnLifetime = opts.MaxConnLifetime
	config.MaxConnIdleTime = opts.MaxConnIdleTime
	config.HealthCheckPeriod = time.Minute
	config.ConnConfig.ConnectTimeout = opts.ConnectTimeout

	params := config.ConnConfig.RuntimeParams
	if _, ok := params["application_name"]; !ok {
		params["application_name"] = applicationName
	}
	if opts.StatementTimeout > 0 {
		params["statement_timeout"] = fmt.Sprintf("%d", opts.StatementTimeout.Milliseconds())
	}

	return config, nil
}

// Close closes the database connection pool
func (db *PostgresDB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}

// Health reports whether the posts table can be queried. A reachable server
// without the schema is unhealthy.
func (db *PostgresDB) Health(ctx context.Context) error {
	var exists bool
	if err := db.Pool.QueryRow(ctx, `SELECT to_regclass('posts') IS NOT NULL`).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrPostsTableMissing
	}
	return nil
}
