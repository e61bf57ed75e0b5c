package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"viewcounter/internal/migrations"
	"viewcounter/internal/repository"
	"viewcounter/internal/service"
	"viewcounter/pkg/database"
	"viewcounter/pkg/redis"
)

// NewUpCommand creates the up command.
func NewUpCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending posts schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(opts, func(m *migrations.Migrator) error {
				if err := m.Up(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied")
				return nil
			})
		},
	}
}

// NewDownCommand creates the down command.
func NewDownCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "down",
		Short: "Roll back the latest posts schema migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(opts, func(m *migrations.Migrator) error {
				if err := m.Down(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Rolled back one migration")
				return nil
			})
		},
	}
}

// NewVersionCommand creates the version command.
func NewVersionCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the current posts schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(opts, func(m *migrations.Migrator) error {
				version, dirty, err := m.Version()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version=%d dirty=%t\n", version, dirty)
				return nil
			})
		},
	}
}

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	ContentDir string
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import markdown posts into the posts table",
		Long: `Import markdown posts into the posts table.

Every published post under --content-dir is upserted by slug. Drafts are
skipped. When a Redis URL is configured the cached post listing is dropped
so the server picks up the new content.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return importPosts(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ContentDir, "content-dir", envOr("CONTENT_DIR", "content/posts"), "markdown content directory")

	return cmd
}

func importPosts(ctx context.Context, opts *ImportOptions, cmd *cobra.Command) error {
	if err := opts.requireDatabase(); err != nil {
		return err
	}
	log, err := opts.logger()
	if err != nil {
		return err
	}

	posts, err := repository.NewFilePostRepository(opts.ContentDir, log).List(ctx)
	if err != nil {
		return fmt.Errorf("failed to read content: %w", err)
	}

	db, err := database.NewPostgresDB(ctx, opts.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	store := repository.NewPgPostRepository(db)
	for _, post := range posts {
		if err := store.Upsert(ctx, post); err != nil {
			return fmt.Errorf("failed to import %s: %w", post.Slug, err)
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d posts\n", len(posts))

	if opts.RedisURL == "" {
		return nil
	}
	client, err := redis.NewClient(opts.RedisURL, opts.KeyPrefix, log.Logger)
	if err != nil {
		log.WithError(err).Warn("Skipping content cache invalidation")
		return nil
	}
	defer client.Close()

	return service.NewCacheService(store, client, 0, log).Invalidate(ctx)
}

// NewLegacyViewsCommand creates the legacy-views command.
func NewLegacyViewsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "legacy-views",
		Short: "Convert legacy scalar view counters into structured records",
		Long: `Convert legacy scalar view counters into structured records.

Counters written before session deduplication are plain integers. They are
migrated lazily on the next increment; this command converts all of them
at once without touching expiry. Running it twice is harmless.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return migrateLegacyViews(cmd.Context(), opts, cmd)
		},
	}
}

func migrateLegacyViews(ctx context.Context, opts *RootOptions, cmd *cobra.Command) error {
	if err := opts.requireRedis(); err != nil {
		return err
	}
	log, err := opts.logger()
	if err != nil {
		return err
	}

	client, err := redis.NewClient(opts.RedisURL, opts.KeyPrefix, log.Logger)
	if err != nil {
		return err
	}
	defer client.Close()

	migrated, err := repository.NewViewRepository(client, 0).MigrateAllLegacy(ctx)
	if err != nil {
		return fmt.Errorf("legacy migration stopped after %d records: %w", migrated, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Migrated %d legacy records\n", migrated)
	return nil
}

func withMigrator(opts *RootOptions, fn func(m *migrations.Migrator) error) error {
	if err := opts.requireDatabase(); err != nil {
		return err
	}
	log, err := opts.logger()
	if err != nil {
		return err
	}

	m, err := migrations.New(opts.DatabaseURL, log)
	if err != nil {
		return err
	}
	defer m.Close()

	return fn(m)
}
