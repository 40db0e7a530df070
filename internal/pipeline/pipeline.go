// Package pipeline runs one extraction: parse pages, ask the learning engine
// how to extract each field on this domain, run the strategies, filter the
// results, score them and feed the outcome back into learning.
package pipeline

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/program-extract/internal/antipattern"
	"github.com/sells-group/program-extract/internal/confidence"
	"github.com/sells-group/program-extract/internal/extract"
	"github.com/sells-group/program-extract/internal/learning"
	"github.com/sells-group/program-extract/internal/metrics"
	"github.com/sells-group/program-extract/internal/model"
	"github.com/sells-group/program-extract/internal/pattern"
)

// ErrNoPages is returned when Run has nothing to parse.
var ErrNoPages = eris.New("pipeline: no usable pages")

// learnedPatternLimit bounds the patterns handed to each field's cascade.
const learnedPatternLimit = 5

// Config tunes a run.
type Config struct {
	FastMode            bool
	FastModeThreshold   float64
	MaxConcurrentFields int
	AIEnhance           bool
}

// Enhancer fills fields the strategies missed.
type Enhancer interface {
	Enhance(ctx context.Context, pageURL, text string, fields []*model.Field) ([]model.CandidateResult, error)
}

// Phase records the timing and outcome of one step of a run.
type Phase struct {
	Name       string `json:"name"`
	DurationMs int64  `json:"duration_ms"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
}

// Phase statuses.
const (
	PhaseComplete = "complete"
	PhaseFailed   = "failed"
	PhaseSkipped  = "skipped"
)

// Result is the output of one run.
type Result struct {
	URL               string                        `json:"url"`
	Domain            string                        `json:"domain"`
	Fields            map[string]model.MergedResult `json:"fields"`
	Issues            []model.Issue                 `json:"issues"`
	Excluded          []string                      `json:"excluded,omitempty"`
	Confidence        float64                       `json:"confidence"`
	QualityConfidence float64                       `json:"quality_confidence"`
	Completeness      float64                       `json:"completeness"`
	// HistoryKeys maps each field to the history key of its winning
	// strategy's attempt, for use with feedback.
	HistoryKeys   map[string]string `json:"history_keys"`
	PagesAnalyzed int               `json:"pages_analyzed"`
	AIEnhanced    bool              `json:"ai_enhanced"`
	Phases        []Phase           `json:"phases"`
	DurationMs    int64             `json:"duration_ms"`
}

// Pipeline wires the extraction components together.
type Pipeline struct {
	cfg       Config
	fields    *model.FieldRegistry
	extractor *extract.Extractor
	scorer    *confidence.Scorer
	filter    *antipattern.Filter
	learning  *learning.Engine
	patterns  *pattern.Engine
	enhancer  Enhancer
	metrics   *metrics.Metrics
	now       func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithPatternEngine shares the adaptive pattern engine with the pipeline.
// It should be the same engine the learning engine persists.
func WithPatternEngine(p *pattern.Engine) Option {
	return func(pl *Pipeline) { pl.patterns = p }
}

// WithEnhancer enables AI enhancement when Config.AIEnhance is set.
func WithEnhancer(e Enhancer) Option {
	return func(pl *Pipeline) { pl.enhancer = e }
}

// WithMetrics records run metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(pl *Pipeline) { pl.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(pl *Pipeline) { pl.now = now }
}

// New creates a Pipeline.
func New(
	cfg Config,
	fields *model.FieldRegistry,
	ext *extract.Extractor,
	scorer *confidence.Scorer,
	filter *antipattern.Filter,
	learn *learning.Engine,
	opts ...Option,
) *Pipeline {
	p := &Pipeline{
		cfg:       cfg,
		fields:    fields,
		extractor: ext,
		scorer:    scorer,
		filter:    filter,
		learning:  learn,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Learning returns the learning engine behind the pipeline.
func (p *Pipeline) Learning() *learning.Engine {
	return p.learning
}

// Run extracts every registered field from pages, which are treated as one
// site. The first page names the run.
func (p *Pipeline) Run(ctx context.Context, pages ...model.Page) (*Result, error) {
	if len(pages) == 0 {
		return nil, ErrNoPages
	}
	start := p.now()
	res := &Result{
		URL:         pages[0].URL,
		Domain:      pages[0].Domain(),
		HistoryKeys: make(map[string]string),
	}
	log := zap.L().With(zap.String("domain", res.Domain), zap.String("url", res.URL))
	log.Info("pipeline: starting extraction", zap.Int("pages", len(pages)))

	trackPhase := func(name string, fn func() error) error {
		t0 := p.now()
		err := fn()
		ph := Phase{Name: name, DurationMs: p.now().Sub(t0).Milliseconds(), Status: PhaseComplete}
		if err != nil {
			ph.Status = PhaseFailed
			ph.Error = err.Error()
			log.Error("pipeline: phase failed",
				zap.String("phase", name),
				zap.Int64("duration_ms", ph.DurationMs),
				zap.Error(err),
			)
		} else {
			log.Debug("pipeline: phase complete",
				zap.String("phase", name),
				zap.Int64("duration_ms", ph.DurationMs),
			)
		}
		res.Phases = append(res.Phases, ph)
		return err
	}
	fail := func(err error) (*Result, error) {
		p.metrics.ObserveRun("error", p.now().Sub(start), 0)
		return nil, err
	}

	// ===== Phase 1: parse =====
	var docs []*extract.Document
	if err := trackPhase("1_parse", func() error {
		for _, pg := range pages {
			doc, err := extract.NewDocument(pg)
			if err != nil {
				log.Warn("pipeline: skipping unparseable page", zap.String("page", pg.URL), zap.Error(err))
				continue
			}
			docs = append(docs, doc)
		}
		if len(docs) == 0 {
			return ErrNoPages
		}
		return nil
	}); err != nil {
		return fail(err)
	}
	res.PagesAnalyzed = len(docs)

	// ===== Phase 2: plan from learned strategy =====
	plans := make(map[string]learning.Recommendation, p.fields.Len())
	_ = trackPhase("2_plan", func() error {
		for _, f := range p.fields.Fields() {
			plans[f.ID] = p.learning.GetOptimizedStrategy(f.ID, res.Domain)
		}
		return nil
	})

	// ===== Phase 3: extract =====
	candidates := make(map[string][]model.CandidateResult, p.fields.Len())
	hasStructured := false
	if err := trackPhase("3_extract", func() error {
		for _, doc := range docs {
			hasStructured = hasStructured || doc.HasStructuredData()
			out, err := p.extractor.ExtractAll(ctx, doc, p.optionsFor(doc, plans), p.cfg.MaxConcurrentFields)
			if err != nil {
				return eris.Wrapf(err, "pipeline: extract %s", doc.URL)
			}
			for id, fr := range out {
				candidates[id] = append(candidates[id], fr.Candidates...)
			}
		}
		return nil
	}); err != nil {
		return fail(err)
	}
	merged := p.merge(candidates)

	// ===== Phase 4: AI enhancement =====
	if p.cfg.AIEnhance && p.enhancer != nil {
		_ = trackPhase("4_enhance", func() error {
			n, err := p.enhance(ctx, docs, candidates, merged)
			if err != nil {
				// Enhancement is optional; the rule-based result stands.
				log.Warn("pipeline: enhancement failed", zap.Error(err))
				return nil
			}
			res.AIEnhanced = n > 0
			p.metrics.ObserveEnhanced(n)
			return nil
		})
	}

	// ===== Phase 5: filter =====
	var filtered antipattern.Result
	_ = trackPhase("5_filter", func() error {
		found := make(map[string]model.MergedResult, len(merged))
		for id, fr := range merged {
			if fr.Found {
				found[id] = fr.Merged
			}
		}
		filtered = p.filter.FilterExtractedData(found)
		return nil
	})
	res.Fields = filtered.Fields
	res.Issues = filtered.Issues
	res.Excluded = filtered.Excluded

	// ===== Phase 6: score =====
	_ = trackPhase("6_score", func() error {
		meta := model.RunMetadata{
			PagesAnalyzed:     len(docs),
			HasStructuredData: hasStructured,
			AIEnhanced:        res.AIEnhanced,
			Duration:          p.now().Sub(start),
		}
		res.Confidence = p.scorer.Overall(res.Fields, meta)
		res.QualityConfidence = p.filter.OverallConfidence(res.Fields, res.Issues)
		res.Completeness = p.filter.Completeness(res.Fields)
		return nil
	})

	// ===== Phase 7: learn =====
	_ = trackPhase("7_learn", func() error {
		if p.patterns != nil {
			p.teachPatterns(docs[0].Fingerprint, res.Fields)
		}
		p.recordAttempts(ctx, res, candidates)
		return nil
	})

	duration := p.now().Sub(start)
	res.DurationMs = duration.Milliseconds()
	p.observe(res, duration)

	log.Info("pipeline: extraction complete",
		zap.Int("fields", len(res.Fields)),
		zap.Int("issues", len(res.Issues)),
		zap.Float64("confidence", res.Confidence),
		zap.Float64("quality_confidence", res.QualityConfidence),
		zap.Int64("duration_ms", res.DurationMs),
	)
	return res, nil
}

// optionsFor builds per-field cascade options from the learned plan and the
// patterns predicted for this page's layout.
func (p *Pipeline) optionsFor(doc *extract.Document, plans map[string]learning.Recommendation) extract.OptionsFunc {
	return func(field string) extract.Options {
		plan := plans[field]
		opts := extract.Options{
			FastMode:           p.cfg.FastMode,
			FastModeThreshold:  p.cfg.FastModeThreshold,
			Order:              plan.StrategyNames(),
			PreferredLocations: plan.Locations,
		}
		if p.patterns != nil {
			pred := p.patterns.PredictStrategy(field, doc.Fingerprint)
			if len(pred.Patterns) > learnedPatternLimit {
				pred.Patterns = pred.Patterns[:learnedPatternLimit]
			}
			opts.LearnedPatterns = pred.Patterns
		}
		return opts
	}
}

// merge combines every page's candidates per field and re-runs the sibling
// consistency pass on the combined values.
func (p *Pipeline) merge(candidates map[string][]model.CandidateResult) map[string]extract.FieldResult {
	out := make(map[string]extract.FieldResult, p.fields.Len())
	for _, f := range p.fields.Fields() {
		cands := candidates[f.ID]
		m, ok := p.extractor.MergeResults(f, cands)
		out[f.ID] = extract.FieldResult{Merged: m, Candidates: cands, Found: ok}
	}
	extract.ApplySiblingConsistency(out)
	return out
}

// enhance asks the enhancer for missing fields and merges its answers. It
// returns the number of fields it filled.
func (p *Pipeline) enhance(ctx context.Context, docs []*extract.Document, candidates map[string][]model.CandidateResult, merged map[string]extract.FieldResult) (int, error) {
	var missing []*model.Field
	for _, f := range p.fields.Fields() {
		if !merged[f.ID].Found {
			missing = append(missing, f)
		}
	}
	if len(missing) == 0 {
		return 0, nil
	}

	texts := make([]string, 0, len(docs))
	for _, d := range docs {
		if d.Text != "" {
			texts = append(texts, d.Text)
		}
	}
	extra, err := p.enhancer.Enhance(ctx, docs[0].URL, strings.Join(texts, "\n\n"), missing)
	if err != nil {
		return 0, err
	}

	filled := 0
	for _, c := range extra {
		candidates[c.Field] = append(candidates[c.Field], c)
	}
	for _, f := range missing {
		cands := candidates[f.ID]
		m, ok := p.extractor.MergeResults(f, cands)
		if ok {
			filled++
		}
		merged[f.ID] = extract.FieldResult{Merged: m, Candidates: cands, Found: ok}
	}
	return filled, nil
}

// teachPatterns folds surviving values into the pattern engine.
func (p *Pipeline) teachPatterns(fp pattern.SiteFingerprint, fields map[string]model.MergedResult) {
	for _, id := range sortedFieldIDs(fields) {
		mr := fields[id]
		if mr.IsMulti() {
			for _, it := range mr.Items {
				p.patterns.Learn(id, it.Value, it.Context, it.Confidence)
			}
		} else {
			p.patterns.Learn(id, mr.String(), mr.Context, mr.Confidence)
		}
		p.patterns.RecordSite(fp, id)
	}
}

// recordAttempts logs each strategy's best answer per field in one batch
// and keeps the history key of the strategy that won each field.
func (p *Pipeline) recordAttempts(ctx context.Context, res *Result, candidates map[string][]model.CandidateResult) {
	var attempts []learning.Attempt
	for _, f := range p.fields.Fields() {
		attempts = append(attempts, strategyAttempts(f, res.URL, candidates[f.ID])...)
	}
	keys := p.learning.RecordExtractions(ctx, attempts)
	for i, a := range attempts {
		won, ok := res.Fields[a.Field]
		if !ok {
			continue
		}
		if _, seen := res.HistoryKeys[a.Field]; !seen || a.Strategy == won.Strategy {
			res.HistoryKeys[a.Field] = keys[i]
		}
	}
}

// strategyAttempts groups candidates by strategy. Single fields report the
// strategy's best candidate; multi fields report every value the strategy
// found at its mean confidence.
func strategyAttempts(f *model.Field, pageURL string, cands []model.CandidateResult) []learning.Attempt {
	byStrategy := make(map[string][]model.CandidateResult)
	var order []string
	for _, c := range cands {
		if _, ok := byStrategy[c.Strategy]; !ok {
			order = append(order, c.Strategy)
		}
		byStrategy[c.Strategy] = append(byStrategy[c.Strategy], c)
	}

	out := make([]learning.Attempt, 0, len(order))
	for _, s := range order {
		group := byStrategy[s]
		best := group[0]
		for _, c := range group[1:] {
			if c.Confidence > best.Confidence {
				best = c
			}
		}
		a := learning.Attempt{
			URL:        pageURL,
			Field:      f.ID,
			Strategy:   s,
			Value:      best.Value,
			Confidence: best.Confidence,
			Context:    best.Context,
		}
		if best.Context.URL != "" {
			a.URL = best.Context.URL
		}
		if f.IsMulti() {
			vals := make([]string, 0, len(group))
			sum := 0.0
			seen := make(map[string]bool)
			for _, c := range group {
				key := extract.Normalize(f, c.Value)
				if seen[key] {
					continue
				}
				seen[key] = true
				vals = append(vals, c.Value)
				sum += c.Confidence
			}
			a.Value = vals
			a.Confidence = sum / float64(len(vals))
		}
		out = append(out, a)
	}
	return out
}

func (p *Pipeline) observe(res *Result, d time.Duration) {
	if p.metrics == nil {
		return
	}
	p.metrics.ObserveRun("ok", d, res.Confidence)
	for _, f := range p.fields.Fields() {
		mr, ok := res.Fields[f.ID]
		p.metrics.ObserveField(f.ID, mr.Strategy, ok)
	}
	for _, is := range res.Issues {
		p.metrics.ObserveIssue(string(is.Severity), is.Category)
	}
}

func sortedFieldIDs(m map[string]model.MergedResult) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
