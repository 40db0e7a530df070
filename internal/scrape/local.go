package scrape

import (
	"context"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/program-extract/internal/model"
)

const maxBodyBytes = 2 << 20

// LocalOptions configures a LocalScraper.
type LocalOptions struct {
	Timeout   time.Duration
	UserAgent string
	Limiter   *DomainLimiter
}

// LocalScraper fetches raw HTML via net/http and rejects blocked pages.
type LocalScraper struct {
	client    *http.Client
	userAgent string
	limiter   *DomainLimiter
}

// NewLocalScraper creates a LocalScraper.
func NewLocalScraper(opts LocalOptions) *LocalScraper {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "Mozilla/5.0 (compatible; ProgramExtract/1.0)"
	}
	return &LocalScraper{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				DialContext:         (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
				MaxIdleConnsPerHost: 4,
			},
		},
		userAgent: opts.UserAgent,
		limiter:   opts.Limiter,
	}
}

func (l *LocalScraper) Name() string           { return "local_http" }
func (l *LocalScraper) Supports(_ string) bool { return true }

// Scrape fetches targetURL and returns its HTML.
func (l *LocalScraper) Scrape(ctx context.Context, targetURL string) (*Result, error) {
	if err := l.limiter.Wait(ctx, targetURL); err != nil {
		return nil, eris.Wrap(err, "local_http: rate limit wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "local_http: create request")
	}
	req.Header.Set("User-Agent", l.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "local_http: fetch")
	}
	defer func() { _ = resp.Body.Close() }()
	l.limiter.Observe(targetURL, resp.StatusCode)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, eris.Wrap(err, "local_http: read body")
	}

	if blocked, blockType := DetectBlock(resp, body); blocked {
		return nil, eris.Errorf("local_http: blocked (%s)", blockType)
	}
	if resp.StatusCode >= 400 {
		return nil, eris.Errorf("local_http: status %d", resp.StatusCode)
	}
	if len(strings.TrimSpace(string(body))) < 100 {
		return nil, eris.New("local_http: empty page")
	}

	page := model.Page{
		URL:        targetURL,
		Title:      extractTitle(body),
		StatusCode: resp.StatusCode,
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") {
		page.Text = string(body)
	} else {
		page.HTML = string(body)
	}
	return &Result{Page: page, Source: "local_http"}, nil
}

var titleRe = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)

// extractTitle pulls the <title> so callers can log the page without a parse.
func extractTitle(body []byte) string {
	m := titleRe.FindSubmatch(body)
	if len(m) > 1 {
		return strings.Join(strings.Fields(string(m[1])), " ")
	}
	return ""
}
