package model

import "strings"

// Section is the page region a value was found in.
type Section string

const (
	SectionHeader     Section = "header"
	SectionMain       Section = "main"
	SectionFooter     Section = "footer"
	SectionSidebar    Section = "sidebar"
	SectionNavigation Section = "navigation"
)

// ExtractionContext describes the surroundings of one candidate value.
type ExtractionContext struct {
	Source          string         `json:"source"`
	Pattern         string         `json:"pattern,omitempty"`
	SurroundingText string         `json:"surrounding_text,omitempty"`
	Header          string         `json:"header,omitempty"`
	Location        string         `json:"location,omitempty"`
	Section         Section        `json:"section,omitempty"`
	URL             string         `json:"url,omitempty"`
	Domain          string         `json:"domain,omitempty"`
	IsNegated       bool           `json:"is_negated,omitempty"`
	IsConditional   bool           `json:"is_conditional,omitempty"`
	IsExternal      bool           `json:"is_external,omitempty"`
	IsFuture        bool           `json:"is_future,omitempty"`
	IsStructured    bool           `json:"is_structured_data,omitempty"`
	IsRepeated      bool           `json:"is_repeated,omitempty"`
	IsProminent     bool           `json:"is_prominent,omitempty"`
	OtherData       map[string]any `json:"-"`
}

// CandidateResult is one strategy's answer for one field on one page.
type CandidateResult struct {
	Field      string            `json:"field"`
	Value      string            `json:"value"`
	Confidence float64           `json:"confidence"`
	Strategy   string            `json:"strategy"`
	Context    ExtractionContext `json:"context"`
}

// MergedItem is one deduplicated value of a multi-value field.
type MergedItem struct {
	Value      string            `json:"value"`
	Confidence float64           `json:"confidence"`
	Strategies []string          `json:"strategies"`
	Context    ExtractionContext `json:"context"`
}

// MergedResult is the final value of a field after strategy merging.
type MergedResult struct {
	Field      string            `json:"field"`
	Value      any               `json:"value"`
	Confidence float64           `json:"confidence"`
	Strategy   string            `json:"strategy"`
	Strategies []string          `json:"strategies,omitempty"`
	Items      []MergedItem      `json:"items,omitempty"`
	Context    ExtractionContext `json:"context"`
}

// IsMulti reports whether the result carries a list of items.
func (m MergedResult) IsMulti() bool {
	return m.Items != nil
}

// Values returns the result's values as a list.
func (m MergedResult) Values() []string {
	if m.Items != nil {
		out := make([]string, len(m.Items))
		for i, it := range m.Items {
			out[i] = it.Value
		}
		return out
	}
	if s, ok := m.Value.(string); ok && s != "" {
		return []string{s}
	}
	return nil
}

// String renders the value for logs and tables.
func (m MergedResult) String() string {
	return strings.Join(m.Values(), "; ")
}

// Confidence bounds for merged results.
const (
	MinConfidence       = 0.1
	MaxMergedConfidence = 0.95
)

// ClampMerged bounds c to the merged-result range.
func ClampMerged(c float64) float64 {
	if c < MinConfidence {
		return MinConfidence
	}
	if c > MaxMergedConfidence {
		return MaxMergedConfidence
	}
	return c
}

// ItemsConfidence is the field-level confidence of a multi-value result:
// the mean of its item confidences, clamped to the merged range.
func ItemsConfidence(items []MergedItem) float64 {
	if len(items) == 0 {
		return MinConfidence
	}
	sum := 0.0
	for _, it := range items {
		sum += it.Confidence
	}
	return ClampMerged(sum / float64(len(items)))
}

// Severity grades an issue raised by the anti-pattern filter.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Issue is a problem found with an extracted value.
type Issue struct {
	Field    string   `json:"field"`
	Value    string   `json:"value,omitempty"`
	Category string   `json:"category"`
	Action   string   `json:"action,omitempty"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}
