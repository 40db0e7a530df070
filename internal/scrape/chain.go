package scrape

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Chain tries scrapers in order and returns the first success.
type Chain struct {
	PathMatcher *PathMatcher
	scrapers    []Scraper
}

// NewChain creates a Chain with the given path matcher and scrapers.
func NewChain(matcher *PathMatcher, scrapers ...Scraper) *Chain {
	if matcher == nil {
		matcher = NewPathMatcher(nil)
	}
	return &Chain{PathMatcher: matcher, scrapers: scrapers}
}

// Scrape tries each scraper in order for a single URL.
func (c *Chain) Scrape(ctx context.Context, targetURL string) (*Result, error) {
	if pattern, excluded := c.PathMatcher.Match(targetURL); excluded {
		if pattern == "" {
			return nil, eris.Errorf("scrape: url excluded, cannot parse: %s", targetURL)
		}
		return nil, eris.Errorf("scrape: url excluded by %q: %s", pattern, targetURL)
	}

	var lastErr error
	for _, s := range c.scrapers {
		if !s.Supports(targetURL) {
			continue
		}
		result, err := s.Scrape(ctx, targetURL)
		if err == nil && result != nil {
			return result, nil
		}
		if err != nil {
			zap.L().Debug("scrape: scraper failed, trying next",
				zap.String("scraper", s.Name()),
				zap.String("url", targetURL),
				zap.Error(err),
			)
			lastErr = err
		}
	}
	if lastErr != nil {
		return nil, eris.Wrap(lastErr, "scrape: all scrapers failed")
	}
	return nil, eris.Errorf("scrape: no suitable scraper for url: %s", targetURL)
}

// Outcome is the result of scraping one URL in a batch.
type Outcome struct {
	URL    string
	Result *Result
	Err    error
}

// ScrapeAll fetches urls with at most maxConcurrent in flight. Outcomes are
// returned in input order; a failed URL carries its error.
func (c *Chain) ScrapeAll(ctx context.Context, urls []string, maxConcurrent int) []Outcome {
	out := make([]Outcome, len(urls))
	var mu sync.Mutex

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(max(maxConcurrent, 1))
	for i, u := range urls {
		g.Go(func() error {
			res, err := c.Scrape(gCtx, u)
			if err != nil {
				zap.L().Debug("scrape: chain failed for url", zap.String("url", u), zap.Error(err))
			}
			mu.Lock()
			out[i] = Outcome{URL: u, Result: res, Err: err}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}
