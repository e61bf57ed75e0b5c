// Package content parses markdown posts with YAML front matter.
package content

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"

	"viewcounter/internal/domain"
)

const (
	wordsPerMinute       = 200
	maxDescriptionLength = 160
)

var (
	fence = []byte("---")

	markdownEngine = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
	)
)

// Parse splits raw into front matter and body and builds a Post.
// A post without front matter gets an empty PostMatter.
func Parse(slug string, raw []byte) (*domain.Post, error) {
	matterRaw, body := splitFrontMatter(raw)

	var matter domain.PostMatter
	if len(matterRaw) > 0 {
		if err := yaml.Unmarshal(matterRaw, &matter); err != nil {
			return nil, fmt.Errorf("failed to parse front matter of %s: %w", slug, err)
		}
	}

	if strings.TrimSpace(matter.Description) == "" {
		matter.Description = firstParagraph(body)
	}

	return &domain.Post{
		Slug:        slug,
		Matter:      matter,
		Content:     string(body),
		ReadingTime: ReadingTime(body),
	}, nil
}

// splitFrontMatter returns the YAML between the leading "---" fences and the
// remaining body. Without an opening fence the whole input is body.
func splitFrontMatter(raw []byte) (matter, body []byte) {
	raw = bytes.TrimPrefix(raw, []byte("\ufeff"))
	raw = bytes.ReplaceAll(raw, []byte("\r\n"), []byte("\n"))

	if !bytes.HasPrefix(raw, fence) {
		return nil, raw
	}

	firstLineEnd := bytes.IndexByte(raw, '\n')
	if firstLineEnd < 0 || len(bytes.TrimSpace(raw[:firstLineEnd])) != len(fence) {
		return nil, raw
	}

	rest := raw[firstLineEnd+1:]
	for offset := 0; offset <= len(rest); {
		lineEnd := bytes.IndexByte(rest[offset:], '\n')
		var line []byte
		if lineEnd < 0 {
			line = rest[offset:]
		} else {
			line = rest[offset : offset+lineEnd]
		}

		if bytes.Equal(bytes.TrimSpace(line), fence) {
			if lineEnd < 0 {
				return rest[:offset], nil
			}
			return rest[:offset], rest[offset+lineEnd+1:]
		}

		if lineEnd < 0 {
			break
		}
		offset += lineEnd + 1
	}

	// unterminated front matter is treated as body
	return nil, raw
}

// firstParagraph extracts the plain text of the first prose paragraph.
// MDX import/export lines are skipped.
func firstParagraph(body []byte) string {
	doc := markdownEngine.Parser().Parse(text.NewReader(body))

	var found string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || n.Kind() != ast.KindParagraph {
			return ast.WalkContinue, nil
		}

		para := strings.TrimSpace(plainText(n, body))
		if para == "" || strings.HasPrefix(para, "import ") || strings.HasPrefix(para, "export ") {
			return ast.WalkSkipChildren, nil
		}

		found = para
		return ast.WalkStop, nil
	})

	return truncate(found, maxDescriptionLength)
}

// plainText concatenates the text segments under n.
func plainText(n ast.Node, source []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := c.(type) {
		case *ast.Text:
			sb.Write(node.Segment.Value(source))
			if node.SoftLineBreak() || node.HardLineBreak() {
				sb.WriteByte(' ')
			}
		case *ast.String:
			sb.Write(node.Value)
		}
		return ast.WalkContinue, nil
	})
	return sb.String()
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:limit])) + "…"
}

// ReadingTime estimates reading time of a markdown body at 200 words per
// minute, never less than one minute.
func ReadingTime(body []byte) string {
	words := len(strings.Fields(string(body)))
	minutes := (words + wordsPerMinute - 1) / wordsPerMinute
	if minutes < 1 {
		minutes = 1
	}
	return fmt.Sprintf("%d min read", minutes)
}
