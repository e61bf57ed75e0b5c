package content

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	raw := []byte(`---
title: Intro to Go
date: 2024-03-01
tags:
  - go
  - backend
author: jane
---

import Chart from '../components/Chart'

Go is a **small** language with
a big standard library.

## Next

More text.
`)

	post, err := Parse("intro-to-go", raw)
	require.NoError(t, err)

	assert.Equal(t, "intro-to-go", post.Slug)
	assert.Equal(t, "Intro to Go", post.Matter.Title)
	assert.Equal(t, "2024-03-01", post.Matter.Date)
	assert.Equal(t, []string{"go", "backend"}, post.Matter.Tags)
	assert.Equal(t, "jane", post.Matter.Author)
	assert.False(t, post.Matter.Draft)
	assert.Equal(t, "Go is a small language with a big standard library.", post.Matter.Description)
	assert.Equal(t, "1 min read", post.ReadingTime)
	assert.NotContains(t, post.Content, "title:")
	assert.Equal(t, 2024, post.PublishedAt().Year())
}

func TestParse_ExplicitDescription(t *testing.T) {
	raw := []byte("---\r\ntitle: T\r\ndescription: Given\r\ndraft: true\r\n---\r\nBody text.\r\n")

	post, err := Parse("t", raw)
	require.NoError(t, err)
	assert.Equal(t, "Given", post.Matter.Description)
	assert.True(t, post.Matter.Draft)
	assert.Equal(t, "Body text.\n", post.Content)
}

func TestParse_InvalidFrontMatter(t *testing.T) {
	_, err := Parse("broken", []byte("---\ntitle: [unclosed\n---\nbody"))
	assert.Error(t, err)
}

func TestSplitFrontMatter(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantMatter string
		wantBody   string
	}{
		{
			name:     "no front matter",
			raw:      "# Heading\n\ntext",
			wantBody: "# Heading\n\ntext",
		},
		{
			name:       "front matter only",
			raw:        "---\ntitle: x\n---",
			wantMatter: "title: x\n",
		},
		{
			name:     "unterminated",
			raw:      "---\ntitle: x\nbody",
			wantBody: "---\ntitle: x\nbody",
		},
		{
			name:     "horizontal rule is not a fence",
			raw:      "----\ntext",
			wantBody: "----\ntext",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matter, body := splitFrontMatter([]byte(tt.raw))
			assert.Equal(t, tt.wantMatter, string(matter))
			assert.Equal(t, tt.wantBody, string(body))
		})
	}
}

func TestReadingTime(t *testing.T) {
	tests := []struct {
		name  string
		words int
		want  string
	}{
		{"empty", 0, "1 min read"},
		{"short", 50, "1 min read"},
		{"exactly one minute", 200, "1 min read"},
		{"just over", 201, "2 min read"},
		{"long", 1000, "5 min read"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := strings.Repeat("word ", tt.words)
			assert.Equal(t, tt.want, ReadingTime([]byte(body)))
		})
	}
}

func TestFirstParagraph_Truncates(t *testing.T) {
	long := strings.Repeat("a", maxDescriptionLength+40)
	got := firstParagraph([]byte(long))

	assert.True(t, strings.HasSuffix(got, "…"))
	assert.Equal(t, maxDescriptionLength+1, len([]rune(got)))
}
