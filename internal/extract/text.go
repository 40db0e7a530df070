package extract

import (
	"regexp"
	"strings"
)

// Span is a slice of a larger text with its offset.
type Span struct {
	Text  string
	Start int
}

var (
	sentenceEndRe = regexp.MustCompile(`[.!?]+(?:\s+|$)|\n+`)
	clauseBreakRe = regexp.MustCompile(`(?i);\s*|,?\s+\b((?:but|however|although|though|whereas|while|except|excluding|other\s+than|with\s+the\s+exception\s+of|not\s+including)\b)`)
	abbrevRe      = regexp.MustCompile(`(?i)\b(?:dr|mr|mrs|ms|st|ave|blvd|rd|ste|inc|llc|no|vs|etc)\.$`)
)

// Sentences splits text on sentence punctuation, keeping common
// abbreviations (Dr., St., Suite numbers) inside their sentence.
func Sentences(text string) []Span {
	var out []Span
	start := 0
	for _, loc := range sentenceEndRe.FindAllStringIndex(text, -1) {
		candidate := text[start:loc[1]]
		if abbrevRe.MatchString(strings.TrimSpace(candidate)) {
			continue
		}
		out = appendSpan(out, text, start, loc[1])
		start = loc[1]
	}
	out = appendSpan(out, text, start, len(text))
	return out
}

// Clauses splits text into sentences and then on ";" and clause
// connectives so that a negation binds only to its own clause. A connective
// stays at the head of the clause it introduces, which keeps "except
// Medicaid" negated. Commas alone never split a clause.
func Clauses(text string) []Span {
	var out []Span
	for _, s := range Sentences(text) {
		start := 0
		for _, loc := range clauseBreakRe.FindAllStringSubmatchIndex(s.Text, -1) {
			out = appendSpan(out, text, s.Start+start, s.Start+loc[0])
			start = loc[1]
			if loc[2] >= 0 {
				start = loc[2]
			}
		}
		out = appendSpan(out, text, s.Start+start, s.Start+len(s.Text))
	}
	return out
}

func appendSpan(out []Span, text string, start, end int) []Span {
	seg := text[start:end]
	trimmed := strings.TrimSpace(seg)
	if trimmed == "" {
		return out
	}
	lead := strings.Index(seg, trimmed)
	return append(out, Span{Text: trimmed, Start: start + lead})
}

// SpanAt returns the span containing offset, or a zero Span.
func SpanAt(spans []Span, offset int) Span {
	for _, s := range spans {
		if offset >= s.Start && offset < s.Start+len(s.Text) {
			return s
		}
	}
	return Span{}
}

// KeywordHits counts the field keywords present in text.
func KeywordHits(keywords []string, text string) int {
	lower := strings.ToLower(text)
	n := 0
	for _, kw := range keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			n++
		}
	}
	return n
}
