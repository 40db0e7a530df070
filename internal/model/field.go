package model

import (
	"regexp"
	"sort"
)

// Cardinality describes how many values a field holds.
type Cardinality string

const (
	Single Cardinality = "single"
	Multi  Cardinality = "multi"
)

// Term is one canonical vocabulary entry for a multi-value field.
type Term struct {
	Canonical string   `json:"canonical" yaml:"canonical"`
	Aliases   []string `json:"aliases,omitempty" yaml:"aliases,omitempty"`
}

// Field is a named data point to extract from a treatment-center page.
type Field struct {
	ID          string      `json:"id" yaml:"id"`
	Cardinality Cardinality `json:"cardinality" yaml:"cardinality"`
	Importance  float64     `json:"importance" yaml:"importance"`
	Keywords    []string    `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	Vocabulary  []Term      `json:"vocabulary,omitempty" yaml:"vocabulary,omitempty"`

	termRes []termMatcher
}

type termMatcher struct {
	canonical string
	re        *regexp.Regexp
}

// IsMulti reports whether the field holds a list of values.
func (f *Field) IsMulti() bool {
	return f.Cardinality == Multi
}

// TermSpan is one vocabulary hit inside a text.
type TermSpan struct {
	Canonical string
	Start     int
	End       int
}

// MatchTerms finds vocabulary terms in text. Longer aliases claim their span
// first so "intensive outpatient" is not also reported as "outpatient".
func (f *Field) MatchTerms(text string) []TermSpan {
	if len(f.termRes) == 0 || text == "" {
		return nil
	}
	taken := make([]bool, len(text))
	var spans []TermSpan
	for _, tm := range f.termRes {
		for _, loc := range tm.re.FindAllStringIndex(text, -1) {
			free := true
			for i := loc[0]; i < loc[1]; i++ {
				if taken[i] {
					free = false
					break
				}
			}
			if !free {
				continue
			}
			for i := loc[0]; i < loc[1]; i++ {
				taken[i] = true
			}
			spans = append(spans, TermSpan{Canonical: tm.canonical, Start: loc[0], End: loc[1]})
		}
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })
	return spans
}

// compile builds the alias matchers, longest alias first.
func (f *Field) compile() {
	type alias struct {
		canonical string
		text      string
	}
	var all []alias
	for _, t := range f.Vocabulary {
		all = append(all, alias{t.Canonical, t.Canonical})
		for _, a := range t.Aliases {
			all = append(all, alias{t.Canonical, a})
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return len(all[i].text) > len(all[j].text) })
	f.termRes = f.termRes[:0]
	for _, a := range all {
		re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(a.text) + `\b`)
		if err != nil {
			continue
		}
		f.termRes = append(f.termRes, termMatcher{canonical: a.canonical, re: re})
	}
}

// FieldRegistry is an indexed, ordered collection of fields.
type FieldRegistry struct {
	fields []*Field
	byID   map[string]*Field
}

// NewFieldRegistry indexes fields and pre-compiles vocabulary matchers.
func NewFieldRegistry(fields []Field) *FieldRegistry {
	r := &FieldRegistry{byID: make(map[string]*Field, len(fields))}
	for i := range fields {
		f := fields[i]
		if f.Cardinality == "" {
			f.Cardinality = Single
		}
		if f.Importance <= 0 || f.Importance > 1 {
			f.Importance = 0.5
		}
		f.compile()
		r.fields = append(r.fields, &f)
		r.byID[f.ID] = &f
	}
	return r
}

// ByID returns the field with the given id, or nil if not found.
func (r *FieldRegistry) ByID(id string) *Field {
	if r == nil {
		return nil
	}
	return r.byID[id]
}

// Fields returns all fields in registration order.
func (r *FieldRegistry) Fields() []*Field {
	return r.fields
}

// Importance returns the field weight, 0.5 for unknown fields.
func (r *FieldRegistry) Importance(id string) float64 {
	if f := r.ByID(id); f != nil {
		return f.Importance
	}
	return 0.5
}

// Len returns the number of registered fields.
func (r *FieldRegistry) Len() int {
	return len(r.fields)
}
