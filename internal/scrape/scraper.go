// Package scrape fetches treatment-center pages for extraction. A Chain
// tries a plain HTTP fetch first and falls back to the Jina reader when the
// site blocks bots.
package scrape

import (
	"context"

	"github.com/sells-group/program-extract/internal/model"
)

// Result holds a fetched page with the scraper that produced it.
type Result struct {
	Page   model.Page
	Source string // e.g. "local_http", "jina"
}

// Scraper fetches a single URL.
type Scraper interface {
	Scrape(ctx context.Context, url string) (*Result, error)
	Name() string
	Supports(url string) bool
}
