package extract

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"

	"github.com/sells-group/program-extract/internal/confidence"
	"github.com/sells-group/program-extract/internal/model"
)

// Normalize returns the dedupe key for a value: digits only for phone-like
// fields, case-folded and space-collapsed text otherwise.
func Normalize(f *model.Field, value string) string {
	if f != nil && (f.ID == "phone" || f.ID == "capacity") {
		if d := confidence.Digits(value); d != "" {
			return d
		}
	}
	// A Caser keeps state, so each call gets its own.
	return strings.Join(strings.Fields(cases.Fold().String(value)), " ")
}

// agreementBonus rewards values reported by several strategies.
func agreementBonus(sources int) float64 {
	return min(0.2, 0.05*float64(sources))
}

// MergeResults combines strategy candidates into one result. Single-value
// fields keep the highest confidence, ties going to the higher-priority
// strategy. Multi-value fields are deduplicated by normalized value; each
// item scores the mean of its strategies plus an agreement bonus.
func (e *Extractor) MergeResults(f *model.Field, results []model.CandidateResult) (model.MergedResult, bool) {
	if len(results) == 0 {
		return model.MergedResult{Field: f.ID}, false
	}
	if f.IsMulti() {
		m := e.mergeMulti(f, results)
		return m, len(m.Items) > 0
	}
	return e.mergeSingle(f, results), true
}

func (e *Extractor) mergeSingle(f *model.Field, results []model.CandidateResult) model.MergedResult {
	best := results[0]
	for _, r := range results[1:] {
		if r.Confidence > best.Confidence ||
			(r.Confidence == best.Confidence && e.Priority(r.Strategy) < e.Priority(best.Strategy)) {
			best = r
		}
	}
	key := Normalize(f, best.Value)
	var agreeing []string
	for _, r := range results {
		if Normalize(f, r.Value) == key {
			agreeing = appendUnique(agreeing, r.Strategy)
		}
	}
	e.sortByPriority(agreeing)
	return model.MergedResult{
		Field:      f.ID,
		Value:      best.Value,
		Confidence: model.ClampMerged(best.Confidence),
		Strategy:   best.Strategy,
		Strategies: agreeing,
		Context:    best.Context,
	}
}

type itemAcc struct {
	literal     string
	perStrategy map[string]float64
	order       []string
	best        model.CandidateResult
	seen        int
}

func (e *Extractor) mergeMulti(f *model.Field, results []model.CandidateResult) model.MergedResult {
	accs := make(map[string]*itemAcc)
	var keys []string
	for _, r := range results {
		key := Normalize(f, r.Value)
		if key == "" {
			continue
		}
		a, ok := accs[key]
		if !ok {
			a = &itemAcc{literal: r.Value, perStrategy: make(map[string]float64), best: r}
			accs[key] = a
			keys = append(keys, key)
		}
		a.seen++
		if prev, ok := a.perStrategy[r.Strategy]; !ok || r.Confidence > prev {
			if !ok {
				a.order = append(a.order, r.Strategy)
			}
			a.perStrategy[r.Strategy] = r.Confidence
		}
		if r.Confidence > a.best.Confidence ||
			(r.Confidence == a.best.Confidence && e.Priority(r.Strategy) < e.Priority(a.best.Strategy)) {
			a.best = r
		}
	}

	merged := model.MergedResult{Field: f.ID, Items: make([]model.MergedItem, 0, len(keys))}
	var all []string
	var top model.MergedItem
	for _, key := range keys {
		a := accs[key]
		sum := 0.0
		for _, c := range a.perStrategy {
			sum += c
		}
		n := len(a.perStrategy)
		conf := model.ClampMerged(sum/float64(n) + agreementBonus(n))

		strategies := append([]string(nil), a.order...)
		e.sortByPriority(strategies)
		ctx := a.best.Context
		ctx.Source = strings.Join(strategies, ",")
		if a.seen > 1 {
			ctx.IsRepeated = true
		}
		item := model.MergedItem{Value: a.literal, Confidence: conf, Strategies: strategies, Context: ctx}
		merged.Items = append(merged.Items, item)
		for _, s := range strategies {
			all = appendUnique(all, s)
		}
		if item.Confidence > top.Confidence {
			top = item
		}
	}
	if len(merged.Items) == 0 {
		return model.MergedResult{Field: f.ID}
	}

	e.sortByPriority(all)
	vals := make([]string, len(merged.Items))
	for i, it := range merged.Items {
		vals[i] = it.Value
	}
	merged.Value = vals
	merged.Confidence = model.ItemsConfidence(merged.Items)
	merged.Strategies = all
	if len(top.Strategies) > 0 {
		merged.Strategy = top.Strategies[0]
	}
	merged.Context = top.Context
	return merged
}

func (e *Extractor) sortByPriority(names []string) {
	sort.SliceStable(names, func(i, j int) bool {
		return e.Priority(names[i]) < e.Priority(names[j])
	})
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
