// Package confidence turns independent signals about an extracted value into
// one bounded confidence score.
package confidence

import (
	"time"

	"github.com/sells-group/program-extract/internal/model"
)

// Factor weights for the base confidence.
const (
	weightSource       = 0.25
	weightPattern      = 0.20
	weightContext      = 0.20
	weightCrossValid   = 0.15
	weightCompleteness = 0.10
	weightAuthority    = 0.10
)

// Bounds for a single value.
const (
	MinScore = 0.1
	MaxScore = 0.99
)

// Context modifiers.
const (
	modNegated     = 0.3
	modConditional = 0.7
	modExternal    = 0.5
	modFuture      = 0.2
	modStructured  = 1.15
	modRepeated    = 1.1
	modProminent   = 1.1
)

var sectionModifiers = map[model.Section]float64{
	model.SectionHeader:     1.2,
	model.SectionMain:       1.1,
	model.SectionFooter:     0.8,
	model.SectionSidebar:    0.7,
	model.SectionNavigation: 0.6,
}

// Factors are the six normalized signals behind a score.
type Factors struct {
	SourceReliability float64 `json:"source_reliability"`
	PatternStrength   float64 `json:"pattern_strength"`
	ContextRelevance  float64 `json:"context_relevance"`
	CrossValidation   float64 `json:"cross_validation"`
	DataCompleteness  float64 `json:"data_completeness"`
	SiteAuthority     float64 `json:"site_authority"`
}

// Base is the weighted sum of the factors.
func (f Factors) Base() float64 {
	return f.SourceReliability*weightSource +
		f.PatternStrength*weightPattern +
		f.ContextRelevance*weightContext +
		f.CrossValidation*weightCrossValid +
		f.DataCompleteness*weightCompleteness +
		f.SiteAuthority*weightAuthority
}

// Scorer scores (field, value, context) triples.
type Scorer struct {
	fields *model.FieldRegistry
}

// NewScorer creates a Scorer over a field registry.
func NewScorer(fields *model.FieldRegistry) *Scorer {
	return &Scorer{fields: fields}
}

// Factors computes the six signals for a triple.
func (s *Scorer) Factors(field, value string, ctx model.ExtractionContext) Factors {
	f := s.fields.ByID(field)
	return Factors{
		SourceReliability: SourceReliability(ctx.Source),
		PatternStrength:   PatternStrength(ctx.Pattern, value),
		ContextRelevance:  ContextRelevance(f, ctx.SurroundingText),
		CrossValidation:   CrossValidation(f, value, ctx.OtherData),
		DataCompleteness:  DataCompleteness(f, value),
		SiteAuthority:     SiteAuthority(ctx.URL, ctx.Domain),
	}
}

// Score is the full six-factor confidence, importance-scaled and adjusted by
// context modifiers, clamped to [0.1, 0.99].
func (s *Scorer) Score(field, value string, ctx model.ExtractionContext) float64 {
	base := s.Factors(field, value, ctx).Base()
	base *= 0.5 + s.fields.Importance(field)*0.5
	return clamp(base * ContextModifier(ctx))
}

// ContextModifier is the product of all flag and section modifiers.
func ContextModifier(ctx model.ExtractionContext) float64 {
	m := negativeModifier(ctx) * boostModifier(ctx)
	if sm, ok := sectionModifiers[ctx.Section]; ok {
		m *= sm
	}
	return m
}

func boostModifier(ctx model.ExtractionContext) float64 {
	m := 1.0
	if ctx.IsStructured {
		m *= modStructured
	}
	if ctx.IsRepeated {
		m *= modRepeated
	}
	if ctx.IsProminent {
		m *= modProminent
	}
	return m
}

func negativeModifier(ctx model.ExtractionContext) float64 {
	m := 1.0
	if ctx.IsNegated {
		m *= modNegated
	}
	if ctx.IsConditional {
		m *= modConditional
	}
	if ctx.IsExternal {
		m *= modExternal
	}
	if ctx.IsFuture {
		m *= modFuture
	}
	return m
}

// Refine adjusts a strategy-supplied confidence with cross-validation and the
// flag modifiers. Section multipliers are left out because the strategy
// already weighed where it found the value. A raw confidence of 0 means the
// strategy had no opinion and the full Score is used instead.
func (s *Scorer) Refine(field string, raw float64, value string, ctx model.ExtractionContext) float64 {
	if raw <= 0 {
		return s.Score(field, value, ctx)
	}
	c := raw
	switch Validate(s.fields.ByID(field), value) {
	case Unknown:
		c *= 0.9
	case Invalid:
		c *= 0.5
	}
	switch CheckConsistency(field, value, ctx.OtherData) {
	case Consistent:
		c *= 1.05
	case Inconsistent:
		c *= 0.8
	}
	return clamp(c * negativeModifier(ctx) * boostModifier(ctx))
}

func clamp(c float64) float64 {
	if c < MinScore {
		return MinScore
	}
	if c > MaxScore {
		return MaxScore
	}
	return c
}

// slowRun is the duration above which the quality modifier is reduced.
const slowRun = 30 * time.Second

// Overall aggregates per-field confidences into a document-level score:
// importance-weighted mean × completeness modifier × quality modifier,
// clamped to [0.1, 0.95].
func (s *Scorer) Overall(results map[string]model.MergedResult, meta model.RunMetadata) float64 {
	var weighted, weights float64
	present := 0
	for id, mr := range results {
		if len(mr.Values()) == 0 {
			continue
		}
		present++
		w := s.fields.Importance(id)
		weighted += mr.Confidence * w
		weights += w
	}
	if weights == 0 {
		return model.MinConfidence
	}
	mean := weighted / weights

	total := s.fields.Len()
	if total == 0 {
		total = present
	}
	completeness := min(1, float64(present)/float64(total))

	return model.ClampMerged(mean * (0.5 + completeness*0.5) * QualityModifier(meta))
}

// QualityModifier rewards broader, richer runs and penalizes slow ones.
func QualityModifier(meta model.RunMetadata) float64 {
	q := 1.0
	q += min(0.1, 0.02*float64(meta.PagesAnalyzed))
	if meta.HasStructuredData {
		q += 0.05
	}
	if meta.AIEnhanced {
		q += 0.05
	}
	if meta.Duration > slowRun {
		q -= 0.1
	}
	return q
}
