// Package learning records every extraction attempt, aggregates how each
// strategy performs per field and per domain, and turns that history into
// strategy recommendations for the next extraction. State lives in an
// injected Store and is saved after every mutation.
package learning

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/program-extract/internal/metrics"
	"github.com/sells-group/program-extract/internal/model"
	"github.com/sells-group/program-extract/internal/pattern"
	"github.com/sells-group/program-extract/internal/resilience"
)

// ErrHistoryNotFound is returned by ProvideFeedback for an unknown key.
var ErrHistoryNotFound = eris.New("learning: history entry not found")

const (
	maxPatternsPerKey    = 50
	maxLocationsPerField = 10
)

// Save outcomes reported to metrics.
const (
	SaveOK        = "ok"
	SaveOverwrote = "overwrote"
	SaveFailed    = "failed"
)

// Config tunes the engine.
type Config struct {
	// HistoryLimit bounds the history log; oldest entries go first.
	HistoryLimit int
	// SimilarityThreshold is the minimum site similarity for FindSimilarSites.
	SimilarityThreshold float64
	// LocationConfidence is the confidence above which a hit location is remembered.
	LocationConfidence float64
	// SuccessConfidence is the confidence at which an attempt counts as a success.
	SuccessConfidence float64
	// SaveAttempts bounds the store retries per save.
	SaveAttempts int
}

// DefaultConfig returns the default tuning.
func DefaultConfig() Config {
	return Config{
		HistoryLimit:        1000,
		SimilarityThreshold: 0.7,
		LocationConfidence:  0.7,
		SuccessConfidence:   0.5,
		SaveAttempts:        3,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = d.HistoryLimit
	}
	if c.SimilarityThreshold <= 0 {
		c.SimilarityThreshold = d.SimilarityThreshold
	}
	if c.LocationConfidence <= 0 {
		c.LocationConfidence = d.LocationConfidence
	}
	if c.SuccessConfidence <= 0 {
		c.SuccessConfidence = d.SuccessConfidence
	}
	if c.SaveAttempts <= 0 {
		c.SaveAttempts = d.SaveAttempts
	}
	return c
}

// Attempt is one strategy's result for one field, as reported to the engine.
type Attempt struct {
	URL        string
	Field      string
	Strategy   string
	Value      any
	Confidence float64
	Context    model.ExtractionContext
}

// Engine owns the learning state. It is safe for concurrent use; each
// mutation is saved before the call returns.
type Engine struct {
	mu       sync.Mutex
	store    Store
	cfg      Config
	state    *model.LearningSnapshot
	patterns *pattern.Engine
	priority func(string) int
	retry    resilience.RetryConfig
	metrics  *metrics.Metrics
	now      func() time.Time
	newKey   func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithPatternEngine persists learned patterns with the rest of the state and
// seeds it from corrections.
func WithPatternEngine(p *pattern.Engine) Option {
	return func(e *Engine) { e.patterns = p }
}

// WithPriority sets the strategy priority used to break ranking ties.
func WithPriority(p func(string) int) Option {
	return func(e *Engine) { e.priority = p }
}

// WithMetrics counts store saves by outcome.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithRetry overrides the store retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(e *Engine) { e.retry = cfg }
}

// New creates an engine over store with an empty state; call Load to read
// the persisted state. A nil store keeps everything in memory.
func New(store Store, cfg Config, opts ...Option) *Engine {
	cfg = cfg.withDefaults()
	e := &Engine{
		store:    store,
		cfg:      cfg,
		state:    model.NewLearningSnapshot(),
		priority: func(string) int { return 0 },
		retry:    resilience.StoreRetryConfig(cfg.SaveAttempts),
		now:      time.Now,
		newKey:   uuid.NewString,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Load replaces the in-memory state with the stored one. On failure the
// engine keeps working on an empty state and the error is returned for
// logging only.
func (e *Engine) Load(ctx context.Context) error {
	if e.store == nil {
		return nil
	}
	snap, err := resilience.DoVal(ctx, e.retry, e.store.Load)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil || snap == nil {
		e.state = model.NewLearningSnapshot()
		if err == nil {
			return nil
		}
		zap.L().Warn("learning: load failed, starting empty", zap.Error(err))
		return eris.Wrap(err, "learning: load")
	}
	snap.Normalize()
	e.state = snap
	if e.patterns != nil {
		e.patterns.Import(snap.Patterns)
	}
	zap.L().Debug("learning: state loaded",
		zap.Int64("revision", snap.Revision),
		zap.Int("history", len(snap.History)),
		zap.Int("domains", len(snap.SiteProfiles)),
	)
	return nil
}

// Revision returns the revision of the last successful load or save.
func (e *Engine) Revision() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Revision
}

// persist saves the state. Failures are logged and the in-memory state is
// kept, so extraction is never blocked by storage.
func (e *Engine) persist(ctx context.Context) {
	if e.store == nil {
		return
	}
	if e.patterns != nil {
		e.state.Patterns = e.patterns.Export()
	}
	e.state.Timestamp = e.now()

	status, err := resilience.DoVal(ctx, e.retry, func(ctx context.Context) (model.SaveStatus, error) {
		return e.store.Save(ctx, e.state)
	})
	if err != nil {
		e.metrics.ObserveSave(SaveFailed)
		zap.L().Warn("learning: save failed, update kept in memory only", zap.Error(err))
		return
	}
	if status.Overwrote {
		e.metrics.ObserveSave(SaveOverwrote)
		zap.L().Warn("learning: another session saved since our last load; its updates were overwritten",
			zap.Int64("base_revision", e.state.Revision),
			zap.Int64("revision", status.Revision),
		)
	} else {
		e.metrics.ObserveSave(SaveOK)
	}
	e.state.Revision = status.Revision
}

// RecordExtraction logs one attempt, updates the aggregates and saves. It
// returns the history key used for feedback.
func (e *Engine) RecordExtraction(ctx context.Context, a Attempt) string {
	keys := e.RecordExtractions(ctx, []Attempt{a})
	return keys[0]
}

// RecordExtractions records a batch of attempts with a single save.
func (e *Engine) RecordExtractions(ctx context.Context, attempts []Attempt) []string {
	if len(attempts) == 0 {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	keys := make([]string, len(attempts))
	touched := make(map[string]bool)
	for i, a := range attempts {
		keys[i] = e.record(a, now)
		touched[a.Field] = true
	}
	for field := range touched {
		e.rankFieldStrategies(field)
	}
	e.pruneHistory()
	e.persist(ctx)
	return keys
}

func (e *Engine) record(a Attempt, now time.Time) string {
	domain := a.Context.Domain
	if domain == "" {
		domain = model.DomainOf(a.URL)
	}
	if a.Context.Domain == "" {
		a.Context.Domain = domain
	}
	a.Context.OtherData = nil
	success := a.Confidence >= e.cfg.SuccessConfidence

	key := e.newKey()
	e.state.History = append(e.state.History, model.HistoryEntry{
		Key:        key,
		Timestamp:  now,
		URL:        a.URL,
		Domain:     domain,
		Field:      a.Field,
		Strategy:   a.Strategy,
		Value:      a.Value,
		Confidence: a.Confidence,
		Context:    a.Context,
	})

	perf := e.performance(a.Field, a.Strategy)
	perf.Attempts++
	if success {
		perf.Successes++
	} else {
		perf.Failures++
	}
	perf.AvgConfidence += (a.Confidence - perf.AvgConfidence) / float64(perf.Attempts)
	if a.Context.Pattern != "" {
		recordPattern(perf, a.Context.Pattern, a.Confidence, now)
	}

	if domain != "" {
		e.updateProfile(domain, a, success, now)
	}
	return key
}

func (e *Engine) performance(field, strategy string) *model.PatternPerformance {
	k := model.PerformanceKey(field, strategy)
	p, ok := e.state.PatternPerformance[k]
	if !ok {
		p = &model.PatternPerformance{Field: field, Strategy: strategy, Patterns: make(map[string]*model.PatternUsage)}
		e.state.PatternPerformance[k] = p
	}
	if p.Patterns == nil {
		p.Patterns = make(map[string]*model.PatternUsage)
	}
	return p
}

func recordPattern(perf *model.PatternPerformance, pat string, conf float64, now time.Time) {
	u, ok := perf.Patterns[pat]
	if !ok {
		if len(perf.Patterns) >= maxPatternsPerKey {
			evictLeastUsed(perf.Patterns)
		}
		u = &model.PatternUsage{}
		perf.Patterns[pat] = u
	}
	u.Uses++
	u.AvgConfidence += (conf - u.AvgConfidence) / float64(u.Uses)
	u.LastUsed = now
}

func evictLeastUsed(m map[string]*model.PatternUsage) {
	var victim string
	var worst *model.PatternUsage
	for k, u := range m {
		if worst == nil || u.Uses < worst.Uses ||
			(u.Uses == worst.Uses && (u.LastUsed.Before(worst.LastUsed) || (u.LastUsed.Equal(worst.LastUsed) && k < victim))) {
			victim, worst = k, u
		}
	}
	delete(m, victim)
}

func (e *Engine) updateProfile(domain string, a Attempt, success bool, now time.Time) {
	prof, ok := e.state.SiteProfiles[domain]
	if !ok {
		prof = model.NewSiteProfile(domain, now)
		e.state.SiteProfiles[domain] = prof
	}

	st := &prof.ExtractionStats
	st.Total++
	if success {
		st.Successful++
	}
	st.AvgConfidence += (a.Confidence - st.AvgConfidence) / float64(st.Total)
	st.LastExtraction = now

	if success {
		k := model.PerformanceKey(a.Field, a.Strategy)
		ss, ok := prof.SuccessfulStrategies[k]
		if !ok {
			ss = &model.StrategyStat{Field: a.Field, Strategy: a.Strategy}
			prof.SuccessfulStrategies[k] = ss
		}
		ss.Count++
		ss.AvgConfidence += (a.Confidence - ss.AvgConfidence) / float64(ss.Count)
	}

	if a.Confidence > e.cfg.LocationConfidence && a.Context.Location != "" {
		prof.FieldLocations[a.Field] = rememberLocation(prof.FieldLocations[a.Field], a.Context, now)
	}
}

// rememberLocation counts a hit location and keeps the list ordered by
// count, then recency.
func rememberLocation(locs []model.FieldLocation, ctx model.ExtractionContext, now time.Time) []model.FieldLocation {
	found := false
	for i := range locs {
		if locs[i].Location == ctx.Location {
			locs[i].Count++
			locs[i].LastSeen = now
			found = true
			break
		}
	}
	if !found {
		locs = append(locs, model.FieldLocation{Location: ctx.Location, Section: ctx.Section, Count: 1, LastSeen: now})
	}
	sort.SliceStable(locs, func(i, j int) bool {
		if locs[i].Count != locs[j].Count {
			return locs[i].Count > locs[j].Count
		}
		return locs[i].LastSeen.After(locs[j].LastSeen)
	})
	if len(locs) > maxLocationsPerField {
		locs = locs[:maxLocationsPerField]
	}
	return locs
}

// rankFieldStrategies refreshes the cross-domain strategy order for field,
// ranked by smoothed success rate times average confidence.
func (e *Engine) rankFieldStrategies(field string) {
	var perfs []*model.PatternPerformance
	for _, p := range e.state.PatternPerformance {
		if p.Field == field {
			perfs = append(perfs, p)
		}
	}
	sort.Slice(perfs, func(i, j int) bool {
		si, sj := performanceScore(perfs[i]), performanceScore(perfs[j])
		if si != sj {
			return si > sj
		}
		return e.lessByPriority(perfs[i].Strategy, perfs[j].Strategy)
	})
	names := make([]string, len(perfs))
	for i, p := range perfs {
		names[i] = p.Strategy
	}
	e.state.FieldStrategies[field] = names
}

func performanceScore(p *model.PatternPerformance) float64 {
	rate := float64(p.Successes) / float64(p.Successes+p.Failures+1)
	return rate * p.AvgConfidence
}

func (e *Engine) lessByPriority(a, b string) bool {
	pa, pb := e.priority(a), e.priority(b)
	if pa != pb {
		return pa < pb
	}
	return a < b
}

// pruneHistory drops the oldest entries beyond the limit.
func (e *Engine) pruneHistory() {
	h := e.state.History
	if len(h) <= e.cfg.HistoryLimit {
		return
	}
	sort.SliceStable(h, func(i, j int) bool { return h[i].Timestamp.Before(h[j].Timestamp) })
	drop := len(h) - e.cfg.HistoryLimit
	e.state.History = append([]model.HistoryEntry(nil), h[drop:]...)
}

// HistoryFilter selects history entries.
type HistoryFilter struct {
	Domain string
	Field  string
	// Limit keeps the newest entries; 0 means all.
	Limit int
}

// History returns a copy of the matching entries, oldest first.
func (e *Engine) History(f HistoryFilter) []model.HistoryEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []model.HistoryEntry
	for _, h := range e.state.History {
		if f.Domain != "" && h.Domain != f.Domain {
			continue
		}
		if f.Field != "" && h.Field != f.Field {
			continue
		}
		out = append(out, h)
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out
}

// Performance returns a copy of the aggregate for (field, strategy).
func (e *Engine) Performance(field, strategy string) (model.PatternPerformance, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.state.PatternPerformance[model.PerformanceKey(field, strategy)]
	if !ok {
		return model.PatternPerformance{}, false
	}
	out := *p
	out.Patterns = nil
	return out, true
}

// Profile returns the site profile's aggregate stats for domain.
func (e *Engine) Profile(domain string) (model.ExtractionStats, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.state.SiteProfiles[domain]
	if !ok {
		return model.ExtractionStats{}, false
	}
	return p.ExtractionStats, true
}
