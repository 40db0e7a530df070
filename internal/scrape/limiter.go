package scrape

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/program-extract/internal/model"
)

// adaptiveLimiter speeds up 20% per success up to 2x its initial rate and
// halves on 429 down to a quarter of it.
type adaptiveLimiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	initial rate.Limit
	current rate.Limit
}

func newAdaptiveLimiter(r rate.Limit, burst int) *adaptiveLimiter {
	return &adaptiveLimiter{limiter: rate.NewLimiter(r, burst), initial: r, current: r}
}

func (a *adaptiveLimiter) onSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.current = min(a.current*1.2, a.initial*2)
	a.limiter.SetLimit(a.current)
}

func (a *adaptiveLimiter) onRateLimit(domain string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.current = max(a.current*0.5, a.initial/4)
	a.limiter.SetLimit(a.current)
	zap.L().Warn("scrape: reducing rate after 429",
		zap.String("domain", domain),
		zap.Float64("rate", float64(a.current)),
	)
}

// DomainLimiter hands out one adaptive limiter per domain so a batch over
// many centers stays polite to each site.
type DomainLimiter struct {
	mu       sync.Mutex
	rps      rate.Limit
	burst    int
	limiters map[string]*adaptiveLimiter
}

// NewDomainLimiter allows rps requests per second per domain. rps <= 0
// disables limiting.
func NewDomainLimiter(rps float64, burst int) *DomainLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &DomainLimiter{rps: rate.Limit(rps), burst: burst, limiters: make(map[string]*adaptiveLimiter)}
}

func (d *DomainLimiter) get(rawURL string) (*adaptiveLimiter, string) {
	if d == nil || d.rps <= 0 {
		return nil, ""
	}
	domain := model.DomainOf(rawURL)
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.limiters[domain]
	if !ok {
		l = newAdaptiveLimiter(d.rps, d.burst)
		d.limiters[domain] = l
	}
	return l, domain
}

// Wait blocks until rawURL's domain may be fetched.
func (d *DomainLimiter) Wait(ctx context.Context, rawURL string) error {
	l, _ := d.get(rawURL)
	if l == nil {
		return nil
	}
	return l.limiter.Wait(ctx)
}

// Observe adapts the domain's rate to a response status.
func (d *DomainLimiter) Observe(rawURL string, status int) {
	l, domain := d.get(rawURL)
	if l == nil {
		return
	}
	switch {
	case status == 429:
		l.onRateLimit(domain)
	case status > 0 && status < 400:
		l.onSuccess()
	}
}

// Limit returns the current rate for rawURL's domain.
func (d *DomainLimiter) Limit(rawURL string) rate.Limit {
	l, _ := d.get(rawURL)
	if l == nil {
		return rate.Inf
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}
