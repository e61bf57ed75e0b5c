package domain

// PostViews pairs a content slug with its current view count.
type PostViews struct {
	Slug  string `json:"slug"`
	Views int64  `json:"views"`
}

// ViewCount is the body of a read.
type ViewCount struct {
	Slug  string `json:"slug"`
	Views int64  `json:"views"`
}

// ViewResult is the outcome of an increment request.
// Incremented is false for bots and for sessions already counted.
type ViewResult struct {
	Slug        string `json:"slug"`
	Views       int64  `json:"views"`
	Incremented bool   `json:"incremented"`
}

// PostStat is one row of the popular or recent list.
type PostStat struct {
	Slug        string   `json:"slug"`
	Title       string   `json:"title"`
	Views       int64    `json:"views"`
	Date        string   `json:"date"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// ViewStats is recomputed per request and never stored.
type ViewStats struct {
	TotalViews   int64      `json:"totalViews"`
	TotalPosts   int        `json:"totalPosts"`
	AverageViews int64      `json:"averageViews"`
	PopularPosts []PostStat `json:"popularPosts"`
	RecentPosts  []PostStat `json:"recentPosts"`

	// Degraded is set when any step fell back to a default.
	Degraded bool `json:"-"`
}
