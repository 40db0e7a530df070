package pattern

import (
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/program-extract/internal/model"
)

// Clue types gathered from the context of learned examples.
const (
	ClueSection = "section"
	ClueHeader  = "header"
	ClueKeyword = "keyword"
)

// successThreshold is the confidence above which a sample counts as a success.
const successThreshold = 0.5

type entry struct {
	pattern       AdaptivePattern
	successes     int
	failures      int
	uses          int
	avgConfidence float64
	lastUsed      time.Time
}

func (e *entry) score() float64 {
	rate := float64(e.successes) / float64(e.successes+e.failures+1)
	return rate * e.avgConfidence
}

// ScoredPattern is a learned pattern with its ranking statistics.
type ScoredPattern struct {
	Pattern       AdaptivePattern
	Score         float64
	SuccessRate   float64
	AvgConfidence float64
	Uses          int
}

// Prediction is the engine's suggestion for extracting a field on a site.
type Prediction struct {
	Patterns     []ScoredPattern
	ContextHints map[string][]string
	Confidence   float64
}

type siteRecord struct {
	fingerprint SiteFingerprint
	fields      map[string]bool
}

// Engine stores learned patterns per field. It is safe for concurrent use.
type Engine struct {
	mu     sync.RWMutex
	fields map[string]map[string]*entry
	clues  map[string]map[string]map[string]int
	sites  map[string]*siteRecord
	now    func() time.Time
}

// NewEngine creates an empty pattern engine.
func NewEngine() *Engine {
	return &Engine{
		fields: make(map[string]map[string]*entry),
		clues:  make(map[string]map[string]map[string]int),
		sites:  make(map[string]*siteRecord),
		now:    time.Now,
	}
}

func (e *Engine) fieldSet(field string) map[string]*entry {
	set, ok := e.fields[field]
	if !ok {
		set = make(map[string]*entry)
		e.fields[field] = set
	}
	return set
}

// Learn builds a pattern from text and folds confidence into its running
// tally. Empty text only registers the field.
func (e *Engine) Learn(field, text string, ctx model.ExtractionContext, confidence float64) AdaptivePattern {
	e.mu.Lock()
	defer e.mu.Unlock()

	set := e.fieldSet(field)
	p := NewAdaptivePattern(text)
	if p.Source == "" {
		return p
	}

	en, ok := set[p.Source]
	if !ok {
		en = &entry{pattern: p}
		set[p.Source] = en
	}
	en.uses++
	if confidence > successThreshold {
		en.successes++
	} else {
		en.failures++
	}
	en.avgConfidence += (confidence - en.avgConfidence) / float64(en.uses)
	en.lastUsed = e.now()

	e.addClues(field, ctx)
	return en.pattern
}

func (e *Engine) addClues(field string, ctx model.ExtractionContext) {
	byType, ok := e.clues[field]
	if !ok {
		byType = make(map[string]map[string]int)
		e.clues[field] = byType
	}
	add := func(kind, value string) {
		if value == "" {
			return
		}
		m, ok := byType[kind]
		if !ok {
			m = make(map[string]int)
			byType[kind] = m
		}
		m[value]++
	}
	add(ClueSection, string(ctx.Section))
	add(ClueHeader, strings.ToLower(strings.TrimSpace(ctx.Header)))
	kws := Keywords(ctx.SurroundingText)
	if len(kws) > 5 {
		kws = kws[:5]
	}
	for _, kw := range kws {
		add(ClueKeyword, kw)
	}
}

// BestPatterns returns the top limit patterns for field ranked by
// successRate × avgConfidence, with successRate Laplace-smoothed.
func (e *Engine) BestPatterns(field string, limit int) []ScoredPattern {
	e.mu.Lock()
	set := e.fieldSet(field)
	out := make([]ScoredPattern, 0, len(set))
	for _, en := range set {
		out = append(out, ScoredPattern{
			Pattern:       en.pattern,
			Score:         en.score(),
			SuccessRate:   float64(en.successes) / float64(en.successes+en.failures+1),
			AvgConfidence: en.avgConfidence,
			Uses:          en.uses,
		})
	}
	e.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Uses != out[j].Uses {
			return out[i].Uses > out[j].Uses
		}
		return out[i].Pattern.Source < out[j].Pattern.Source
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// RecordSite remembers the structure of a site where field was extracted.
func (e *Engine) RecordSite(fp SiteFingerprint, field string) {
	if fp.Domain == "" {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.sites[fp.Domain]
	if !ok {
		rec = &siteRecord{fields: make(map[string]bool)}
		e.sites[fp.Domain] = rec
	}
	rec.fingerprint = fp
	if field != "" {
		rec.fields[field] = true
	}
}

// PredictStrategy suggests patterns and context hints for field on the site
// described by fp. Confidence is the best similarity to any known site.
func (e *Engine) PredictStrategy(field string, fp SiteFingerprint) Prediction {
	pred := Prediction{
		Patterns:     e.BestPatterns(field, 5),
		ContextHints: make(map[string][]string),
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	for kind, counts := range e.clues[field] {
		pred.ContextHints[kind] = topKeys(counts, 3)
	}
	for _, rec := range e.sites {
		if s := Similarity(fp, rec.fingerprint); s > pred.Confidence {
			pred.Confidence = s
		}
	}

	zap.L().Debug("pattern: prediction",
		zap.String("field", field),
		zap.String("domain", fp.Domain),
		zap.Int("patterns", len(pred.Patterns)),
		zap.Float64("confidence", pred.Confidence),
	)
	return pred
}

func topKeys(counts map[string]int, n int) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > n {
		keys = keys[:n]
	}
	return keys
}

// Export returns the learned patterns in persisted form, sorted by field and source.
func (e *Engine) Export() []model.LearnedPattern {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []model.LearnedPattern
	for field, set := range e.fields {
		for src, en := range set {
			out = append(out, model.LearnedPattern{
				Field:         field,
				Source:        src,
				Successes:     en.successes,
				Failures:      en.failures,
				Uses:          en.uses,
				AvgConfidence: en.avgConfidence,
				LastUsed:      en.lastUsed,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Field != out[j].Field {
			return out[i].Field < out[j].Field
		}
		return out[i].Source < out[j].Source
	})
	return out
}

// Import replaces the learned patterns with a persisted set.
func (e *Engine) Import(patterns []model.LearnedPattern) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.fields = make(map[string]map[string]*entry)
	for _, lp := range patterns {
		p := NewAdaptivePattern(lp.Source)
		if p.Source == "" {
			continue
		}
		e.fieldSet(lp.Field)[p.Source] = &entry{
			pattern:       p,
			successes:     lp.Successes,
			failures:      lp.Failures,
			uses:          lp.Uses,
			avgConfidence: lp.AvgConfidence,
			lastUsed:      lp.LastUsed,
		}
	}
}
