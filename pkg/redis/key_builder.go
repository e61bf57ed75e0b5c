package redis

import (
	"fmt"
	"strings"
)

// Key namespaces
const (
	// KeyViews holds one counter record per content slug.
	KeyViews = "views:%s"

	// KeyContentPosts caches the published post listing.
	KeyContentPosts = "content:posts"
)

// KeyBuilder builds Redis keys under an optional deployment namespace.
type KeyBuilder struct {
	prefix string // empty means keys are used as-is
}

// NewKeyBuilder creates a key builder. An empty prefix keeps the bare
// "views:<slug>" layout so records written before namespacing stay readable.
func NewKeyBuilder(prefix string) *KeyBuilder {
	return &KeyBuilder{prefix: strings.TrimSuffix(strings.TrimSpace(prefix), ":")}
}

// BuildKey constructs a Redis key with the namespace prefix
func (kb *KeyBuilder) BuildKey(key string) string {
	if kb.prefix == "" {
		return key
	}
	return fmt.Sprintf("%s:%s", kb.prefix, key)
}

// GetPrefix returns the current namespace prefix
func (kb *KeyBuilder) GetPrefix() string {
	return kb.prefix
}

// KeyViews returns the counter record key for slug.
func (kb *KeyBuilder) KeyViews(slug string) string {
	return kb.BuildKey(fmt.Sprintf(KeyViews, slug))
}

// KeyContent returns the post listing cache key.
func (kb *KeyBuilder) KeyContent() string {
	return kb.BuildKey(KeyContentPosts)
}

// ViewsPattern matches every counter record key.
func (kb *KeyBuilder) ViewsPattern() string {
	return kb.BuildKey(fmt.Sprintf(KeyViews, "*"))
}

// SlugFromViewsKey strips the namespace and "views:" from key.
// ok is false when key is not a counter record key.
func (kb *KeyBuilder) SlugFromViewsKey(key string) (slug string, ok bool) {
	prefix := kb.BuildKey(fmt.Sprintf(KeyViews, ""))
	if !strings.HasPrefix(key, prefix) || len(key) == len(prefix) {
		return "", false
	}
	return key[len(prefix):], true
}
