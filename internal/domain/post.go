package domain

import "time"

// DateLayout is the front matter date format.
const DateLayout = "2006-01-02"

// PostMatter is the front matter of a post.
type PostMatter struct {
	Title       string   `json:"title" yaml:"title"`
	Date        string   `json:"date" yaml:"date"`
	Description string   `json:"description" yaml:"description"`
	Tags        []string `json:"tags,omitempty" yaml:"tags"`
	Author      string   `json:"author,omitempty" yaml:"author"`
	Image       string   `json:"image,omitempty" yaml:"image"`
	Draft       bool     `json:"draft,omitempty" yaml:"draft"`
}

// Post is a content item as supplied by a content source.
type Post struct {
	Slug        string     `json:"slug"`
	Matter      PostMatter `json:"frontMatter"`
	Content     string     `json:"-"`
	ReadingTime string     `json:"readingTime"`
}

// PublishedAt parses the front matter date; the zero time sorts last.
func (p *Post) PublishedAt() time.Time {
	for _, layout := range []string{DateLayout, time.RFC3339, "2006-01-02 15:04"} {
		if t, err := time.Parse(layout, p.Matter.Date); err == nil {
			return t
		}
	}
	return time.Time{}
}

// HasTag reports whether the post is tagged with tag.
func (p *Post) HasTag(tag string) bool {
	for _, t := range p.Matter.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
