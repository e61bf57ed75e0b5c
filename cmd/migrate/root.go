package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"viewcounter/pkg/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	DatabaseURL string
	RedisURL    string
	KeyPrefix   string
	LogLevel    string
}

// NewRootCommand creates the root command for the operator CLI.
// Flag defaults come from the same environment variables the server reads.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "migrate",
		Short:         "Operator tasks for the view counter",
		Long:          "Apply the posts schema, import markdown content and convert legacy view counters.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.DatabaseURL, "database-url", os.Getenv("DATABASE_URL"), "Postgres connection URL")
	cmd.PersistentFlags().StringVar(&opts.RedisURL, "redis-url", os.Getenv("REDIS_URL"), "Redis connection URL")
	cmd.PersistentFlags().StringVar(&opts.KeyPrefix, "key-prefix", os.Getenv("REDIS_KEY_PREFIX"), "Redis key namespace")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", envOr("LOG_LEVEL", "info"), "log level")

	cmd.AddCommand(NewUpCommand(opts))
	cmd.AddCommand(NewDownCommand(opts))
	cmd.AddCommand(NewVersionCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewLegacyViewsCommand(opts))

	return cmd
}

func (o *RootOptions) logger() (*logger.Logger, error) {
	return logger.New(o.LogLevel)
}

func (o *RootOptions) requireDatabase() error {
	if o.DatabaseURL == "" {
		return fmt.Errorf("--database-url or DATABASE_URL is required")
	}
	return nil
}

func (o *RootOptions) requireRedis() error {
	if o.RedisURL == "" {
		return fmt.Errorf("--redis-url or REDIS_URL is required")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
