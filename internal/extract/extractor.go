// Package extract runs an ordered cascade of extraction strategies over a
// parsed page and merges their answers into one value per field.
package extract

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/program-extract/internal/confidence"
	"github.com/sells-group/program-extract/internal/model"
	"github.com/sells-group/program-extract/internal/pattern"
)

// DefaultFastModeThreshold is the confidence that stops the cascade in fast mode.
const DefaultFastModeThreshold = 0.9

// Options tune extraction of one field.
type Options struct {
	// FastMode skips lower-priority strategies once a candidate reaches
	// FastModeThreshold.
	FastMode          bool
	FastModeThreshold float64
	// Order lists strategies to try first, typically learned for the domain.
	Order []string
	// PreferredLocations are page locations where the field was found before.
	PreferredLocations []string
	// LearnedPatterns are run by the pattern-matching strategy.
	LearnedPatterns []pattern.ScoredPattern
	// Siblings are already-extracted field values used for cross-validation.
	Siblings map[string]any
}

// FieldResult is the outcome of extracting one field.
type FieldResult struct {
	Merged model.MergedResult
	// Candidates holds each strategy's best answer (one per value for
	// multi-value fields).
	Candidates []model.CandidateResult
	Found      bool
}

// Extractor runs strategies and merges their results.
type Extractor struct {
	fields     *model.FieldRegistry
	scorer     *confidence.Scorer
	strategies []Strategy
	priority   map[string]int
}

// New creates an Extractor. When enabled is empty all default strategies run.
func New(fields *model.FieldRegistry, scorer *confidence.Scorer, enabled ...string) *Extractor {
	return NewWithStrategies(fields, scorer, filterStrategies(DefaultStrategies(), enabled))
}

// NewWithStrategies creates an Extractor over a custom strategy list.
func NewWithStrategies(fields *model.FieldRegistry, scorer *confidence.Scorer, strategies []Strategy) *Extractor {
	sorted := append([]Strategy(nil), strategies...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })
	prio := make(map[string]int, len(sorted))
	for _, s := range sorted {
		prio[s.Name] = s.Priority
	}
	return &Extractor{fields: fields, scorer: scorer, strategies: sorted, priority: prio}
}

func filterStrategies(all []Strategy, enabled []string) []Strategy {
	if len(enabled) == 0 {
		return all
	}
	want := make(map[string]bool, len(enabled))
	for _, n := range enabled {
		want[n] = true
	}
	var out []Strategy
	for _, s := range all {
		if want[s.Name] {
			out = append(out, s)
		}
	}
	return out
}

// Strategies returns the strategies in priority order.
func (e *Extractor) Strategies() []Strategy {
	return e.strategies
}

// Priority returns a strategy's priority; unknown strategies sort last.
func (e *Extractor) Priority(name string) int {
	if p, ok := e.priority[name]; ok {
		return p
	}
	return len(e.priority) + 1
}

// runOrder puts preferred strategies first, the rest by priority.
func (e *Extractor) runOrder(preferred []string) []Strategy {
	if len(preferred) == 0 {
		return e.strategies
	}
	byName := make(map[string]Strategy, len(e.strategies))
	for _, s := range e.strategies {
		byName[s.Name] = s
	}
	out := make([]Strategy, 0, len(e.strategies))
	used := make(map[string]bool)
	for _, n := range preferred {
		if s, ok := byName[n]; ok && !used[n] {
			out = append(out, s)
			used[n] = true
		}
	}
	for _, s := range e.strategies {
		if !used[s.Name] {
			out = append(out, s)
		}
	}
	return out
}

// ExtractField runs the cascade for one field. It never fails: strategy
// errors and panics are logged and treated as no result.
func (e *Extractor) ExtractField(ctx context.Context, f *model.Field, doc *Document, opts Options) FieldResult {
	threshold := opts.FastModeThreshold
	if threshold <= 0 {
		threshold = DefaultFastModeThreshold
	}
	preferred := make(map[string]bool, len(opts.PreferredLocations))
	for _, l := range opts.PreferredLocations {
		preferred[l] = true
	}

	var all []model.CandidateResult
	for _, s := range e.runOrder(opts.Order) {
		if ctx.Err() != nil {
			break
		}
		cands := e.runStrategy(s, f, doc, &opts)
		for i := range cands {
			c := &cands[i]
			c.Context.OtherData = opts.Siblings
			if preferred[c.Context.Location] {
				c.Context.IsRepeated = true
			}
			c.Confidence = e.scorer.Refine(f.ID, c.Confidence, c.Value, c.Context)
		}
		best := selectBest(f, cands)
		all = append(all, best...)

		if opts.FastMode && maxConfidence(best) >= threshold {
			zap.L().Debug("extract: fast mode short-circuit",
				zap.String("field", f.ID),
				zap.String("strategy", s.Name),
			)
			break
		}
	}

	merged, ok := e.MergeResults(f, all)
	return FieldResult{Merged: merged, Candidates: all, Found: ok}
}

func (e *Extractor) runStrategy(s Strategy, f *model.Field, doc *Document, opts *Options) (out []model.CandidateResult) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Warn("extract: strategy panicked",
				zap.String("strategy", s.Name),
				zap.String("field", f.ID),
				zap.String("panic", fmt.Sprint(r)),
			)
			out = nil
		}
	}()
	cands, err := s.Run(f, doc, opts)
	if err != nil {
		zap.L().Warn("extract: strategy failed",
			zap.String("strategy", s.Name),
			zap.String("field", f.ID),
			zap.Error(err),
		)
		return nil
	}
	return cands
}

// selectBest keeps the highest-confidence candidate, or for multi-value
// fields the highest per normalized value, in first-seen order.
func selectBest(f *model.Field, cands []model.CandidateResult) []model.CandidateResult {
	if len(cands) == 0 {
		return nil
	}
	if !f.IsMulti() {
		best := cands[0]
		for _, c := range cands[1:] {
			if c.Confidence > best.Confidence {
				best = c
			}
		}
		return []model.CandidateResult{best}
	}
	idx := make(map[string]int)
	var out []model.CandidateResult
	for _, c := range cands {
		key := Normalize(f, c.Value)
		if i, ok := idx[key]; ok {
			if c.Confidence > out[i].Confidence {
				out[i] = c
			}
			continue
		}
		idx[key] = len(out)
		out = append(out, c)
	}
	return out
}

func maxConfidence(cands []model.CandidateResult) float64 {
	m := 0.0
	for _, c := range cands {
		if c.Confidence > m {
			m = c.Confidence
		}
	}
	return m
}

// OptionsFunc supplies per-field options to ExtractAll.
type OptionsFunc func(field string) Options

// ExtractAll extracts every registered field, running up to concurrency
// fields at once, then applies the sibling consistency pass.
func (e *Extractor) ExtractAll(ctx context.Context, doc *Document, optsFor OptionsFunc, concurrency int) (map[string]FieldResult, error) {
	if concurrency <= 0 {
		concurrency = 1
	}
	var (
		mu  sync.Mutex
		out = make(map[string]FieldResult, e.fields.Len())
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, f := range e.fields.Fields() {
		g.Go(func() error {
			var opts Options
			if optsFor != nil {
				opts = optsFor(f.ID)
			}
			res := e.ExtractField(gctx, f, doc, opts)
			mu.Lock()
			out[f.ID] = res
			mu.Unlock()
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	ApplySiblingConsistency(out)
	return out, nil
}

// ApplySiblingConsistency re-checks phone and address against each other
// once both are known and adjusts their merged confidence.
func ApplySiblingConsistency(results map[string]FieldResult) {
	siblings := make(map[string]any)
	for id, r := range results {
		if r.Found && !r.Merged.IsMulti() {
			siblings[id] = r.Merged.String()
		}
	}
	for _, id := range []string{"phone", "address"} {
		r, ok := results[id]
		if !ok || !r.Found {
			continue
		}
		switch confidence.CheckConsistency(id, r.Merged.String(), siblings) {
		case confidence.Consistent:
			r.Merged.Confidence = model.ClampMerged(r.Merged.Confidence * 1.05)
		case confidence.Inconsistent:
			r.Merged.Confidence = model.ClampMerged(r.Merged.Confidence * 0.8)
		default:
			continue
		}
		r.Merged.Context.OtherData = siblings
		results[id] = r
	}
}
