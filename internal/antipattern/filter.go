// Package antipattern suppresses or down-weights extracted values whose
// context shows they are not actually offered by the program.
package antipattern

import (
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/program-extract/internal/model"
)

// DefaultRequiredFields are the fields counted for completeness.
var DefaultRequiredFields = []string{"name", "address", "phone", "levelsOfCare", "insurance"}

// Policy tunes the filter.
type Policy struct {
	// FailClosed excludes values that carry no surrounding text. The default
	// treats missing context as no negative signal.
	FailClosed     bool
	RequiredFields []string
}

// Filter applies the misleading-pattern taxonomy, zone detection and red flags.
type Filter struct {
	policy Policy
	now    func() time.Time
}

// New creates a Filter.
func New(p Policy) *Filter {
	if len(p.RequiredFields) == 0 {
		p.RequiredFields = DefaultRequiredFields
	}
	return &Filter{policy: p, now: time.Now}
}

// Result is the filtered field map and the issues raised while filtering.
type Result struct {
	Fields   map[string]model.MergedResult
	Issues   []model.Issue
	Excluded []string
}

// verdict is the outcome for one value.
type verdict struct {
	exclude  bool
	modifier float64
	issues   []model.Issue
}

// FilterExtractedData filters every field. Multi-value fields are filtered
// item by item using each item's own context; a field with no surviving
// items is dropped.
func (f *Filter) FilterExtractedData(data map[string]model.MergedResult) Result {
	res := Result{Fields: make(map[string]model.MergedResult, len(data))}
	now := f.now()

	for _, id := range sortedKeys(data) {
		mr := data[id]
		if mr.IsMulti() {
			kept := make([]model.MergedItem, 0, len(mr.Items))
			for _, it := range mr.Items {
				v := f.check(id, it.Value, it.Context, now)
				res.Issues = append(res.Issues, v.issues...)
				if v.exclude {
					continue
				}
				it.Confidence = model.ClampMerged(it.Confidence * v.modifier)
				kept = append(kept, it)
			}
			if len(kept) == 0 {
				res.Excluded = append(res.Excluded, id)
				continue
			}
			mr.Items = kept
			vals := make([]string, len(kept))
			for i, it := range kept {
				vals[i] = it.Value
			}
			mr.Value = vals
			mr.Confidence = model.ItemsConfidence(kept)
			res.Fields[id] = mr
			continue
		}

		v := f.check(id, mr.String(), mr.Context, now)
		res.Issues = append(res.Issues, v.issues...)
		if v.exclude {
			res.Excluded = append(res.Excluded, id)
			continue
		}
		mr.Confidence = model.ClampMerged(mr.Confidence * v.modifier)
		res.Fields[id] = mr
	}

	if len(res.Excluded) > 0 {
		zap.L().Debug("antipattern: excluded fields", zap.Strings("fields", res.Excluded))
	}
	return res
}

func (f *Filter) check(field, value string, ctx model.ExtractionContext, now time.Time) verdict {
	v := verdict{modifier: 1}
	text := strings.TrimSpace(ctx.SurroundingText)

	if text == "" && f.policy.FailClosed {
		v.exclude = true
		v.issues = append(v.issues, model.Issue{
			Field:    field,
			Value:    value,
			Category: "missing_context",
			Action:   string(ActionExclude),
			Severity: model.SeverityLow,
			Message:  "value has no surrounding text to verify it",
		})
		return v
	}

	switch zone := DetectZone(ctx.Header, text); zone {
	case ZoneExclusions, ZoneReferral:
		v.exclude = true
		v.issues = append(v.issues, model.Issue{
			Field:    field,
			Value:    value,
			Category: zone,
			Action:   string(ActionExclude),
			Severity: model.SeverityMedium,
			Message:  "value found in a " + zone + " zone",
		})
		return v
	case ZoneLimitations:
		v.issues = append(v.issues, model.Issue{
			Field:    field,
			Value:    value,
			Category: zone,
			Action:   string(ActionFlag),
			Severity: model.SeverityMedium,
			Message:  "value found in a limitations zone",
		})
	}

	for _, c := range Categories {
		if !c.MatchesValue(value, text) {
			continue
		}
		switch c.Action {
		case ActionExclude:
			v.exclude = true
			v.issues = append(v.issues, model.Issue{
				Field:    field,
				Value:    value,
				Category: c.Name,
				Action:   string(c.Action),
				Severity: model.SeverityMedium,
				Message:  "value excluded: " + strings.ReplaceAll(c.Name, "_", " "),
			})
			return v
		case ActionFlag:
			v.issues = append(v.issues, model.Issue{
				Field:    field,
				Value:    value,
				Category: c.Name,
				Action:   string(c.Action),
				Severity: model.SeverityLow,
				Message:  "value flagged: " + strings.ReplaceAll(c.Name, "_", " "),
			})
		case ActionReduce:
			v.modifier *= c.Modifier
		}
	}

	v.issues = append(v.issues, redFlagIssues(field, value, text, now)...)
	return v
}

// severityFactor is the multiplicative penalty per issue.
var severityFactor = map[model.Severity]float64{
	model.SeverityHigh:   0.5,
	model.SeverityMedium: 0.8,
	model.SeverityLow:    0.9,
}

// OverallConfidence is the quality score of a filtered result: 0.8 deflated
// multiplicatively per issue, times required-field completeness, floored at 0.1.
func (f *Filter) OverallConfidence(data map[string]model.MergedResult, issues []model.Issue) float64 {
	c := 0.8
	for _, is := range issues {
		if m, ok := severityFactor[is.Severity]; ok {
			c *= m
		}
	}
	c *= f.Completeness(data)
	if c < model.MinConfidence {
		return model.MinConfidence
	}
	return c
}

// Completeness is the fraction of required fields present with a value.
func (f *Filter) Completeness(data map[string]model.MergedResult) float64 {
	present := 0
	for _, id := range f.policy.RequiredFields {
		if mr, ok := data[id]; ok && len(mr.Values()) > 0 {
			present++
		}
	}
	return float64(present) / float64(len(f.policy.RequiredFields))
}

func sortedKeys(m map[string]model.MergedResult) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
