package repository

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"viewcounter/internal/content"
	"viewcounter/internal/domain"
	"viewcounter/pkg/logger"
)

var postExtensions = []string{".mdx", ".md"}

// filePostRepository reads posts from markdown files under a directory
type filePostRepository struct {
	dir    string
	logger *logger.Logger
}

// NewFilePostRepository creates a post repository rooted at dir.
// A missing directory yields an empty listing.
func NewFilePostRepository(dir string, log *logger.Logger) PostRepository {
	if log == nil {
		log = logger.NewNop()
	}
	return &filePostRepository{
		dir:    dir,
		logger: log.Named("posts"),
	}
}

// List returns every published post, newest first. Files that fail to parse
// are logged and skipped.
func (r *filePostRepository) List(ctx context.Context) ([]*domain.Post, error) {
	slugs, err := r.slugs(ctx)
	if err != nil {
		return nil, err
	}

	posts := make([]*domain.Post, 0, len(slugs))
	for _, slug := range slugs {
		post, err := r.read(slug)
		if err != nil {
			r.logger.Warn("Skipping unreadable post", zap.String("slug", slug), zap.Error(err))
			continue
		}
		if post == nil || post.Matter.Draft {
			continue
		}
		posts = append(posts, post)
	}

	SortByDate(posts)
	return posts, nil
}

// Get returns the published post for slug, or nil when absent or a draft.
func (r *filePostRepository) Get(ctx context.Context, slug string) (*domain.Post, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !validContentPath(slug) {
		return nil, nil
	}

	post, err := r.read(slug)
	if err != nil {
		return nil, err
	}
	if post == nil || post.Matter.Draft {
		return nil, nil
	}
	return post, nil
}

// Tags returns the sorted set of tags across published posts
func (r *filePostRepository) Tags(ctx context.Context) ([]string, error) {
	posts, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	return CollectTags(posts), nil
}

// ListByTag returns published posts carrying tag, newest first
func (r *filePostRepository) ListByTag(ctx context.Context, tag string) ([]*domain.Post, error) {
	posts, err := r.List(ctx)
	if err != nil {
		return nil, err
	}

	tagged := make([]*domain.Post, 0, len(posts))
	for _, post := range posts {
		if post.HasTag(tag) {
			tagged = append(tagged, post)
		}
	}
	return tagged, nil
}

// slugs walks the content directory. "a/b/index.mdx" maps to slug "a/b",
// any other file to its path without extension.
func (r *filePostRepository) slugs(ctx context.Context) ([]string, error) {
	var slugs []string
	seen := make(map[string]bool)

	err := filepath.WalkDir(r.dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && p == r.dir {
				return filepath.SkipDir
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !hasPostExtension(d.Name()) {
			return nil
		}

		rel, err := filepath.Rel(r.dir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		slug := strings.TrimSuffix(rel, path.Ext(rel))
		if dir, base := path.Split(slug); base == "index" && dir != "" {
			slug = strings.TrimSuffix(dir, "/")
		}

		if !seen[slug] {
			seen[slug] = true
			slugs = append(slugs, slug)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return slugs, nil
}

// read loads slug trying slug/index.mdx, slug/index.md, slug.mdx, slug.md.
// It returns nil, nil when no file exists.
func (r *filePostRepository) read(slug string) (*domain.Post, error) {
	base := filepath.Join(r.dir, filepath.FromSlash(slug))

	candidates := make([]string, 0, len(postExtensions)*2)
	for _, ext := range postExtensions {
		candidates = append(candidates, filepath.Join(base, "index"+ext))
	}
	for _, ext := range postExtensions {
		candidates = append(candidates, base+ext)
	}

	for _, file := range candidates {
		raw, err := os.ReadFile(file)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return content.Parse(slug, raw)
	}
	return nil, nil
}

func hasPostExtension(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range postExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// validContentPath rejects slugs that would escape the content directory.
func validContentPath(slug string) bool {
	if slug == "" || strings.HasPrefix(slug, "/") || strings.Contains(slug, "\\") {
		return false
	}
	for _, seg := range strings.Split(slug, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return false
		}
	}
	return true
}

// SortByDate orders posts newest first; undated posts go last.
func SortByDate(posts []*domain.Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		return posts[i].PublishedAt().After(posts[j].PublishedAt())
	})
}

// CollectTags returns the sorted, de-duplicated tags of posts.
func CollectTags(posts []*domain.Post) []string {
	set := make(map[string]struct{})
	for _, post := range posts {
		for _, tag := range post.Matter.Tags {
			set[tag] = struct{}{}
		}
	}

	tags := make([]string, 0, len(set))
	for tag := range set {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}
