package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBotDetector_IsBot(t *testing.T) {
	tests := []struct {
		name      string
		userAgent string
		want      bool
	}{
		{"googlebot", "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)", true},
		{"bingbot", "Mozilla/5.0 (compatible; bingbot/2.0)", true},
		{"crawler", "SomeCrawler/1.0", true},
		{"spider", "Baiduspider", true},
		{"scraper", "my-scraper", true},
		{"facebook preview", "facebookexternalhit/1.1", true},
		{"twitter preview", "Twitterbot/1.0", true},
		{"linkedin preview", "LinkedInBot/1.0", true},
		{"pinterest", "Pinterest/0.2", true},
		{"uppercase", "GOOGLEBOT", true},
		{"chrome", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36", false},
		{"curl", "curl/8.4.0", false},
		{"empty", "", false},
		{"blank", "   ", false},
	}

	d := NewBotDetector()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.IsBot(tt.userAgent))
		})
	}
}

const browserUA = "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_0) AppleWebKit/605.1.15 Safari/605.1.15"

func TestIngressService_RecordView(t *testing.T) {
	_, _, views, _ := setupViewService(t)
	ingress := NewIngressService(views, nil, nil)
	ctx := context.Background()

	t.Run("anonymous always increments", func(t *testing.T) {
		first := ingress.RecordView(ctx, "anon", browserUA, "")
		second := ingress.RecordView(ctx, "anon", browserUA, "")

		assert.True(t, first.Incremented)
		assert.True(t, second.Incremented)
		assert.Equal(t, int64(2), second.Views)
		assert.Equal(t, "anon", second.Slug)
	})

	t.Run("session counts once", func(t *testing.T) {
		first := ingress.RecordView(ctx, "session", browserUA, "token")
		repeat := ingress.RecordView(ctx, "session", browserUA, "token")
		other := ingress.RecordView(ctx, "session", browserUA, "other-token")

		assert.True(t, first.Incremented)
		assert.False(t, repeat.Incremented)
		assert.Equal(t, first.Views, repeat.Views)
		assert.True(t, other.Incremented)
		assert.Equal(t, int64(2), other.Views)
	})

	t.Run("bots never increment", func(t *testing.T) {
		ingress.RecordView(ctx, "bots", browserUA, "")
		before := views.Get(ctx, "bots")

		for _, ua := range []string{"Googlebot/2.1", "facebookexternalhit/1.1", "Twitterbot/1.0"} {
			res := ingress.RecordView(ctx, "bots", ua, "")
			assert.False(t, res.Incremented)
			assert.Equal(t, before, res.Views)

			res = ingress.RecordView(ctx, "bots", ua, "session")
			assert.False(t, res.Incremented)
		}

		assert.Equal(t, before, views.Get(ctx, "bots"))
	})
}

func TestIngressService_StoreDown(t *testing.T) {
	mr, _, views, _ := setupViewService(t)
	ingress := NewIngressService(views, nil, nil)
	mr.Close()

	res := ingress.RecordView(context.Background(), "post", browserUA, "")
	assert.False(t, res.Incremented)
	assert.Equal(t, int64(0), res.Views)
}
