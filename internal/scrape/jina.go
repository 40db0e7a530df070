package scrape

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/program-extract/internal/model"
	"github.com/sells-group/program-extract/internal/resilience"
	"github.com/sells-group/program-extract/pkg/jina"
)

// JinaAdapter wraps a Jina reader client as a Scraper behind a breaker.
type JinaAdapter struct {
	client  jina.Client
	breaker *resilience.Breaker
}

// NewJinaAdapter opens its breaker after 3 consecutive failures and probes
// again after a minute.
func NewJinaAdapter(client jina.Client) *JinaAdapter {
	return &JinaAdapter{
		client:  client,
		breaker: resilience.NewBreaker("jina", 3, time.Minute),
	}
}

func (j *JinaAdapter) Name() string { return "jina" }

// Supports returns false while the breaker is open.
func (j *JinaAdapter) Supports(_ string) bool {
	return j.breaker.State() != resilience.BreakerOpen
}

// Scrape fetches a URL through the reader.
func (j *JinaAdapter) Scrape(ctx context.Context, targetURL string) (*Result, error) {
	var resp *jina.ReadResponse
	err := j.breaker.Execute(ctx, func(ctx context.Context) error {
		r, err := j.client.Read(ctx, targetURL)
		if err != nil {
			return err
		}
		if needsFallback(r) {
			return eris.New("jina: response needs fallback")
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	page := model.Page{
		URL:        targetURL,
		Title:      resp.Data.Title,
		HTML:       resp.Data.HTML,
		StatusCode: 200,
	}
	if page.HTML == "" {
		page.Text = resp.Data.Content
	}
	return &Result{Page: page, Source: "jina"}, nil
}

var challengeSignatures = []string{
	"checking your browser",
	"enable javascript",
	"please enable cookies",
	"access denied",
	"403 forbidden",
	"just a moment",
	"attention required",
}

// needsFallback reports whether a reader response is empty or a challenge page.
func needsFallback(resp *jina.ReadResponse) bool {
	if resp == nil || (resp.Code != 0 && resp.Code != 200) {
		return true
	}
	content := strings.TrimSpace(resp.Data.HTML)
	if content == "" {
		content = strings.TrimSpace(resp.Data.Content)
	}
	if len(content) < 100 {
		return true
	}
	lower := strings.ToLower(content)
	for _, sig := range challengeSignatures {
		if strings.Contains(lower, sig) && len(content) < 1000 {
			return true
		}
	}
	return false
}
