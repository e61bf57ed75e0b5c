package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"viewcounter/internal/domain"
	"viewcounter/pkg/database"
)

const postColumns = `slug, title, published_on, description, tags, author, image, draft, content, reading_time`

// pgPostRepository reads posts from the posts table
type pgPostRepository struct {
	db *database.PostgresDB
}

// NewPgPostRepository creates a Postgres-backed post repository
func NewPgPostRepository(db *database.PostgresDB) PostStore {
	return &pgPostRepository{
		db: db,
	}
}

// List returns published posts, newest first
func (r *pgPostRepository) List(ctx context.Context) ([]*domain.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE NOT draft`

	posts, err := r.query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}

	// published_on is free-form front matter text, so order in Go
	SortByDate(posts)
	return posts, nil
}

// Get returns the published post for slug, or nil when it does not exist
func (r *pgPostRepository) Get(ctx context.Context, slug string) (*domain.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE slug = $1 AND NOT draft`

	post, err := scanPost(r.db.Pool.QueryRow(ctx, query, slug))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get post %s: %w", slug, err)
	}
	return post, nil
}

// Tags returns every tag of published posts, sorted
func (r *pgPostRepository) Tags(ctx context.Context) ([]string, error) {
	query := `
		SELECT DISTINCT tag
		FROM posts, unnest(tags) AS tag
		WHERE NOT draft
		ORDER BY tag
	`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}

	tags, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan tags: %w", err)
	}
	return tags, nil
}

// ListByTag returns published posts carrying tag, newest first
func (r *pgPostRepository) ListByTag(ctx context.Context, tag string) ([]*domain.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE NOT draft AND $1 = ANY(tags)`

	posts, err := r.query(ctx, query, tag)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts by tag %s: %w", tag, err)
	}

	SortByDate(posts)
	return posts, nil
}

// Upsert inserts or replaces a post by slug
func (r *pgPostRepository) Upsert(ctx context.Context, post *domain.Post) error {
	query := `
		INSERT INTO posts (` + postColumns + `, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (slug) DO UPDATE SET
			title = EXCLUDED.title,
			published_on = EXCLUDED.published_on,
			description = EXCLUDED.description,
			tags = EXCLUDED.tags,
			author = EXCLUDED.author,
			image = EXCLUDED.image,
			draft = EXCLUDED.draft,
			content = EXCLUDED.content,
			reading_time = EXCLUDED.reading_time,
			updated_at = NOW()
	`

	tags := post.Matter.Tags
	if tags == nil {
		tags = []string{}
	}

	_, err := r.db.Pool.Exec(ctx, query,
		post.Slug,
		post.Matter.Title,
		post.Matter.Date,
		post.Matter.Description,
		tags,
		post.Matter.Author,
		post.Matter.Image,
		post.Matter.Draft,
		post.Content,
		post.ReadingTime,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert post %s: %w", post.Slug, err)
	}
	return nil
}

func (r *pgPostRepository) query(ctx context.Context, query string, args ...any) ([]*domain.Post, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []*domain.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return posts, nil
}

func scanPost(row pgx.Row) (*domain.Post, error) {
	post := &domain.Post{}
	err := row.Scan(
		&post.Slug,
		&post.Matter.Title,
		&post.Matter.Date,
		&post.Matter.Description,
		&post.Matter.Tags,
		&post.Matter.Author,
		&post.Matter.Image,
		&post.Matter.Draft,
		&post.Content,
		&post.ReadingTime,
	)
	if err != nil {
		return nil, err
	}
	return post, nil
}
