package learning

import (
	"fmt"
	"sort"

	"github.com/sells-group/program-extract/internal/model"
)

// Recommendation bases, from most to least specific.
const (
	BasisDomain  = "domain"
	BasisSimilar = "similar"
	BasisGlobal  = "global"
	BasisNone    = "none"
)

// RankedStrategy is one strategy in a recommendation.
type RankedStrategy struct {
	Strategy      string  `json:"strategy"`
	Count         int     `json:"count"`
	AvgConfidence float64 `json:"avg_confidence"`
}

// PatternStat is one literal pattern in a recommendation.
type PatternStat struct {
	Pattern       string  `json:"pattern"`
	Strategy      string  `json:"strategy"`
	Uses          int     `json:"uses"`
	AvgConfidence float64 `json:"avg_confidence"`
}

// Recommendation is the suggested approach for a field on a domain.
type Recommendation struct {
	Field      string           `json:"field"`
	Domain     string           `json:"domain"`
	Basis      string           `json:"basis"`
	Strategies []RankedStrategy `json:"strategies"`
	Patterns   []PatternStat    `json:"patterns"`
	Locations  []string         `json:"locations"`
	Confidence float64          `json:"confidence"`
}

// StrategyNames returns the ranked strategy names.
func (r Recommendation) StrategyNames() []string {
	out := make([]string, len(r.Strategies))
	for i, s := range r.Strategies {
		out[i] = s.Strategy
	}
	return out
}

// GetOptimizedStrategy recommends strategies, patterns and page locations for
// field on domain. Evidence from the domain itself wins; a domain with none
// borrows from similar sites, then from the cross-domain ranking. It does
// not mutate state, so repeated calls return the same answer.
func (e *Engine) GetOptimizedStrategy(field, domain string) Recommendation {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec := Recommendation{Field: field, Domain: domain, Basis: BasisNone}
	prof := e.state.SiteProfiles[domain]

	if prof != nil {
		rec.Strategies = e.rankStats(collectStats(field, prof, 1))
		if len(rec.Strategies) > 0 {
			rec.Basis = BasisDomain
		}
		for i, l := range prof.FieldLocations[field] {
			if i == 3 {
				break
			}
			rec.Locations = append(rec.Locations, l.Location)
		}
	}

	if len(rec.Strategies) == 0 {
		merged := make(map[string]*RankedStrategy)
		for _, s := range e.similarLocked(domain) {
			for name, st := range collectStats(field, e.state.SiteProfiles[s.Domain], 1) {
				m, ok := merged[name]
				if !ok {
					m = &RankedStrategy{Strategy: name}
					merged[name] = m
				}
				total := m.Count + st.Count
				m.AvgConfidence = (m.AvgConfidence*float64(m.Count) + st.AvgConfidence*float64(st.Count)) / float64(total)
				m.Count = total
			}
		}
		rec.Strategies = e.rankStats(merged)
		if len(rec.Strategies) > 0 {
			rec.Basis = BasisSimilar
		}
	}

	if len(rec.Strategies) == 0 {
		for _, name := range e.state.FieldStrategies[field] {
			p := e.state.PatternPerformance[model.PerformanceKey(field, name)]
			if p == nil || p.Successes == 0 {
				continue
			}
			rec.Strategies = append(rec.Strategies, RankedStrategy{Strategy: name, Count: p.Successes, AvgConfidence: p.AvgConfidence})
		}
		if len(rec.Strategies) > 0 {
			rec.Basis = BasisGlobal
		}
	}

	rec.Patterns = e.bestPatterns(field, 5)
	if len(rec.Strategies) > 0 {
		rec.Confidence = rec.Strategies[0].AvgConfidence
	}
	return rec
}

func collectStats(field string, prof *model.SiteProfile, minCount int) map[string]*RankedStrategy {
	out := make(map[string]*RankedStrategy)
	if prof == nil {
		return out
	}
	for _, st := range prof.SuccessfulStrategies {
		if st.Field != field || st.Count < minCount {
			continue
		}
		out[st.Strategy] = &RankedStrategy{Strategy: st.Strategy, Count: st.Count, AvgConfidence: st.AvgConfidence}
	}
	return out
}

// rankStats orders by average confidence, then count, then priority and name.
func (e *Engine) rankStats(stats map[string]*RankedStrategy) []RankedStrategy {
	out := make([]RankedStrategy, 0, len(stats))
	for _, s := range stats {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AvgConfidence != out[j].AvgConfidence {
			return out[i].AvgConfidence > out[j].AvgConfidence
		}
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return e.lessByPriority(out[i].Strategy, out[j].Strategy)
	})
	if len(out) == 0 {
		return nil
	}
	return out
}

// bestPatterns ranks literal patterns for field across all strategies.
func (e *Engine) bestPatterns(field string, limit int) []PatternStat {
	var out []PatternStat
	for _, p := range e.state.PatternPerformance {
		if p.Field != field {
			continue
		}
		for pat, u := range p.Patterns {
			out = append(out, PatternStat{Pattern: pat, Strategy: p.Strategy, Uses: u.Uses, AvgConfidence: u.AvgConfidence})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AvgConfidence != out[j].AvgConfidence {
			return out[i].AvgConfidence > out[j].AvgConfidence
		}
		if out[i].Uses != out[j].Uses {
			return out[i].Uses > out[j].Uses
		}
		if out[i].Pattern != out[j].Pattern {
			return out[i].Pattern < out[j].Pattern
		}
		return out[i].Strategy < out[j].Strategy
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// SimilarSite is a known domain that resembles another.
type SimilarSite struct {
	Domain      string  `json:"domain"`
	Similarity  float64 `json:"similarity"`
	SuccessRate float64 `json:"success_rate"`
}

// FindSimilarSites returns known domains whose profile resembles domain's at
// or above the similarity threshold, most similar first.
func (e *Engine) FindSimilarSites(domain string) []SimilarSite {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.similarLocked(domain)
}

func (e *Engine) similarLocked(domain string) []SimilarSite {
	prof, ok := e.state.SiteProfiles[domain]
	if !ok {
		return nil
	}
	var out []SimilarSite
	for d, other := range e.state.SiteProfiles {
		if d == domain {
			continue
		}
		sim := ProfileSimilarity(prof, other)
		if sim < e.cfg.SimilarityThreshold {
			continue
		}
		out = append(out, SimilarSite{Domain: d, Similarity: sim, SuccessRate: other.ExtractionStats.SuccessRate()})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].Domain < out[j].Domain
	})
	return out
}

// ProfileSimilarity averages the Jaccard overlap of the two profiles'
// successful (field, strategy) keys and of their fields with known
// locations. A component both profiles know nothing about is left out of
// the average; two empty profiles score 0.
func ProfileSimilarity(a, b *model.SiteProfile) float64 {
	var parts []float64
	if j, ok := jaccard(keys(a.SuccessfulStrategies), keys(b.SuccessfulStrategies)); ok {
		parts = append(parts, j)
	}
	if j, ok := jaccard(keys(a.FieldLocations), keys(b.FieldLocations)); ok {
		parts = append(parts, j)
	}
	if len(parts) == 0 {
		return 0
	}
	sum := 0.0
	for _, p := range parts {
		sum += p
	}
	return sum / float64(len(parts))
}

func keys[V any](m map[string]V) map[string]bool {
	out := make(map[string]bool, len(m))
	for k := range m {
		out[k] = true
	}
	return out
}

func jaccard(a, b map[string]bool) (float64, bool) {
	union := len(a)
	inter := 0
	for k := range b {
		if a[k] {
			inter++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0, false
	}
	return float64(inter) / float64(union), true
}

// Warning types.
const (
	WarningHighFailureRate      = "high-failure-rate"
	WarningFrequentCorrections  = "frequent-corrections"
	highFailureRate             = 0.5
	frequentCorrectionThreshold = 3
)

// Warning flags an unreliable strategy or a frequently corrected field.
type Warning struct {
	Type     string  `json:"type"`
	Field    string  `json:"field"`
	Strategy string  `json:"strategy,omitempty"`
	Rate     float64 `json:"rate,omitempty"`
	Count    int     `json:"count"`
	// CorrectionTypes is the histogram of correction analysis types.
	CorrectionTypes map[string]int `json:"correction_types,omitempty"`
	// DomainCount is how many of the corrections came from the queried domain.
	DomainCount int    `json:"domain_count,omitempty"`
	Message     string `json:"message"`
}

// GetFieldWarnings flags strategies that fail more often than they succeed
// for field and reports a field corrected more than three times.
func (e *Engine) GetFieldWarnings(field, domain string) []Warning {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []Warning
	for _, p := range e.state.PatternPerformance {
		if p.Field != field {
			continue
		}
		rate := min(float64(p.Failures)/float64(max(p.Attempts, 1)), 1)
		if rate <= highFailureRate {
			continue
		}
		out = append(out, Warning{
			Type:     WarningHighFailureRate,
			Field:    field,
			Strategy: p.Strategy,
			Rate:     rate,
			Count:    p.Attempts,
			Message:  fmt.Sprintf("%s fails %.0f%% of %d attempts for %s", p.Strategy, rate*100, p.Attempts, field),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rate != out[j].Rate {
			return out[i].Rate > out[j].Rate
		}
		return e.lessByPriority(out[i].Strategy, out[j].Strategy)
	})

	if corr := e.state.Corrections[field]; len(corr) > frequentCorrectionThreshold {
		w := Warning{
			Type:            WarningFrequentCorrections,
			Field:           field,
			Count:           len(corr),
			CorrectionTypes: make(map[string]int),
		}
		for _, c := range corr {
			w.CorrectionTypes[c.Analysis.Type]++
			if domain != "" && c.Domain == domain {
				w.DomainCount++
			}
		}
		w.Message = fmt.Sprintf("%s was corrected %d times", field, len(corr))
		out = append(out, w)
	}
	return out
}
