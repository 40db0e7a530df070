// Package pattern learns reusable text matchers from extracted examples and
// ranks them by how well they have performed.
package pattern

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Features is the structural summary of an example string.
type Features struct {
	HasDigits     bool     `json:"has_digits"`
	HasParens     bool     `json:"has_parens"`
	HasSeparators bool     `json:"has_separators"`
	Keywords      []string `json:"keywords,omitempty"`
}

// AdaptivePattern is an immutable matcher synthesized from one example.
type AdaptivePattern struct {
	Source   string
	Features Features
	Variants []string
	matcher  *regexp.Regexp
}

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "our": true, "are": true,
	"you": true, "your": true, "from": true, "that": true, "this": true, "all": true,
	"has": true, "have": true, "was": true, "were": true, "will": true, "can": true,
	"not": true, "but": true, "who": true, "into": true, "its": true, "any": true,
}

var (
	digitRunRe  = regexp.MustCompile(`[0-9]+`)
	separatorRe = regexp.MustCompile(`[,;|/•·]|\s&\s|\band\b`)
)

// NewAdaptivePattern analyzes text and builds its matcher. It never fails:
// empty or odd input yields a pattern with no variants that matches nothing.
func NewAdaptivePattern(text string) AdaptivePattern {
	text = strings.TrimSpace(text)
	p := AdaptivePattern{Source: text}
	if text == "" {
		return p
	}
	p.Features = analyze(text)
	p.Variants = variants(text, p.Features)
	if len(p.Variants) > 0 {
		re, err := regexp.Compile(`(?i)(?:` + strings.Join(p.Variants, "|") + `)`)
		if err == nil {
			p.matcher = re
		}
	}
	return p
}

func analyze(text string) Features {
	var f Features
	for _, r := range text {
		if unicode.IsDigit(r) {
			f.HasDigits = true
		}
		if r == '(' || r == ')' {
			f.HasParens = true
		}
	}
	f.HasSeparators = separatorRe.MatchString(strings.ToLower(text))
	f.Keywords = Keywords(text)
	return f
}

// Keywords returns the lowercased word tokens of text with stop words and
// short tokens removed, in first-seen order.
func Keywords(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	}) {
		if len(w) < 3 || stopWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

func variants(text string, f Features) []string {
	literal := regexp.QuoteMeta(text)

	words := strings.Fields(text)
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	flexible := strings.Join(quoted, `\s+`)

	out := []string{literal}
	add := func(v string) {
		for _, existing := range out {
			if existing == v {
				return
			}
		}
		out = append(out, v)
	}
	add(flexible)
	if f.HasParens {
		v := strings.ReplaceAll(flexible, `\(`, `\(?`)
		add(strings.ReplaceAll(v, `\)`, `\)?`))
	}
	if f.HasDigits {
		add(digitRunRe.ReplaceAllStringFunc(flexible, func(run string) string {
			return `\d{` + strconv.Itoa(len(run)) + `}`
		}))
	}
	return out
}

// MatchString reports whether text contains a match of any variant.
func (p AdaptivePattern) MatchString(text string) bool {
	if p.matcher == nil {
		return false
	}
	return p.matcher.MatchString(text)
}

// FindAllIndex returns the spans of all matches in text.
func (p AdaptivePattern) FindAllIndex(text string) [][]int {
	if p.matcher == nil {
		return nil
	}
	return p.matcher.FindAllStringIndex(text, -1)
}

// String returns the combined regular expression, or "" when there is none.
func (p AdaptivePattern) String() string {
	if p.matcher == nil {
		return ""
	}
	return p.matcher.String()
}
