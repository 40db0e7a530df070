package extract

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/sells-group/program-extract/internal/confidence"
)

// valueMatch is one field value found in text.
type valueMatch struct {
	Value   string
	Start   int
	End     int
	Pattern string
	Base    float64
}

type fieldPattern struct {
	re     *regexp.Regexp
	base   float64
	format func(m []string) string
}

const streetSuffix = `(?:St|Street|Ave|Avenue|Rd|Road|Blvd|Boulevard|Dr|Drive|Ln|Lane|Way|Ct|Court|Pl|Place|Pkwy|Parkway|Hwy|Highway|Cir|Circle|Ter|Terrace|Trl|Trail)`

const streetExpr = `\b\d{1,6}\s+(?:[NSEW]\.?\s+)?[A-Za-z0-9.]+(?:\s+[A-Za-z0-9.]+){0,4}\s+` + streetSuffix + `\b\.?(?:,?\s*(?:Suite|Ste\.?|Unit|#)\s*[\w-]+)?`

// fieldPatterns is the per-field regex library for single-value fields.
var fieldPatterns = map[string][]fieldPattern{
	"phone": {{
		re:   regexp.MustCompile(`(?:\+?1[-.\s]?)?\(?\b([2-9]\d{2})\)?[-.\s]?(\d{3})[-.\s]?(\d{4})\b`),
		base: 0.80,
		format: func(m []string) string {
			return m[1] + "-" + m[2] + "-" + m[3]
		},
	}},
	"email": {{
		re:     regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9\-]+(?:\.[a-z0-9\-]+)*\.[a-z]{2,}\b`),
		base:   0.80,
		format: func(m []string) string { return strings.ToLower(m[0]) },
	}},
	"website": {{
		re:     regexp.MustCompile(`(?i)\b(?:https?://|www\.)[a-z0-9\-]+(?:\.[a-z0-9\-]+)*\.[a-z]{2,}\b`),
		base:   0.70,
		format: func(m []string) string { return NormalizeWebsite(m[0]) },
	}},
	"address": {
		{
			re:     regexp.MustCompile(`(?i)` + streetExpr + `,?\s+[A-Za-z .]{2,40},\s*(?:[A-Z]{2}|[A-Za-z]{4,14})\.?\s+\d{5}(?:-\d{4})?\b`),
			base:   0.85,
			format: func(m []string) string { return normalizeSpace(m[0]) },
		},
		{
			re:     regexp.MustCompile(`(?i)` + streetExpr),
			base:   0.60,
			format: func(m []string) string { return normalizeSpace(m[0]) },
		},
	},
	"capacity": {{
		re:   regexp.MustCompile(`(?i)\b(\d{1,4})[-\s]?(beds?|clients|residents|patients)\b`),
		base: 0.75,
		format: func(m []string) string {
			unit := strings.ToLower(m[2])
			if unit == "bed" {
				unit = "beds"
			}
			return m[1] + " " + unit
		},
	}},
	"name": {{
		re:     regexp.MustCompile(`\b(?:[Ww]elcome to|WELCOME TO|[Aa]bout)\s+((?:[A-Z][\w&'.-]*)(?:\s+(?:of|at|for|and|&|[A-Z][\w&'.-]*)){0,6})`),
		base:   0.70,
		format: formatName,
	}},
}

var nameConnectors = map[string]bool{"of": true, "at": true, "for": true, "and": true, "&": true}

func formatName(m []string) string {
	words := strings.Fields(m[1])
	for len(words) > 0 && nameConnectors[strings.ToLower(words[len(words)-1])] {
		words = words[:len(words)-1]
	}
	return strings.TrimRight(strings.Join(words, " "), ".,;:!'")
}

// findValues runs the field's regex library over text. When more than one
// pattern matches the same span the first listed wins.
func findValues(fieldID, text string) []valueMatch {
	var out []valueMatch
	taken := make([]bool, len(text))
	for _, fp := range fieldPatterns[fieldID] {
		for _, loc := range fp.re.FindAllStringSubmatchIndex(text, -1) {
			if overlaps(taken, loc[0], loc[1]) {
				continue
			}
			m := make([]string, len(loc)/2)
			for i := range m {
				if loc[2*i] >= 0 {
					m[i] = text[loc[2*i]:loc[2*i+1]]
				}
			}
			v := fp.format(m)
			if v == "" {
				continue
			}
			for i := loc[0]; i < loc[1]; i++ {
				taken[i] = true
			}
			out = append(out, valueMatch{Value: v, Start: loc[0], End: loc[1], Pattern: fp.re.String(), Base: fp.base})
		}
	}
	return out
}

func overlaps(taken []bool, start, end int) bool {
	for i := start; i < end; i++ {
		if taken[i] {
			return true
		}
	}
	return false
}

// hasFinder reports whether the field has a regex library.
func hasFinder(fieldID string) bool {
	_, ok := fieldPatterns[fieldID]
	return ok
}

// FormatPhone renders a phone number as 305-555-1234, or "" when the
// digits do not form a North American number.
func FormatPhone(s string) string {
	d := confidence.Digits(s)
	if len(d) == 11 && d[0] == '1' {
		d = d[1:]
	}
	if len(d) != 10 {
		return ""
	}
	return d[:3] + "-" + d[3:6] + "-" + d[6:]
}

// NormalizeWebsite lowercases a site URL down to scheme and host.
func NormalizeWebsite(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Scheme + "://" + u.Host)
}
