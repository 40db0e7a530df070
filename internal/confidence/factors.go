package confidence

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/sells-group/program-extract/internal/model"
)

// Strategy names known to the source reliability table.
const (
	SourceStructuredData = "structured-data"
	SourceSemanticHTML   = "semantic-html"
	SourcePattern        = "pattern-matching"
	SourceContextual     = "contextual-inference"
	SourceFuzzy          = "fuzzy-matching"
	SourceVisual         = "visual-structure"
	SourceTable          = "table-extraction"
	SourceAI             = "ai-enhancement"
)

var sourceReliabilityTable = map[string]float64{
	SourceStructuredData: 0.95,
	SourceSemanticHTML:   0.85,
	SourcePattern:        0.80,
	SourceTable:          0.75,
	SourceContextual:     0.70,
	SourceAI:             0.65,
	SourceVisual:         0.60,
	SourceFuzzy:          0.50,
}

// SourceReliability looks up a strategy's reliability. A composite source
// ("a,b") scores its best part plus 0.05.
func SourceReliability(source string) float64 {
	parts := strings.Split(source, ",")
	best, known := 0.0, 0
	for _, p := range parts {
		if r, ok := sourceReliabilityTable[strings.TrimSpace(p)]; ok {
			known++
			if r > best {
				best = r
			}
		}
	}
	switch {
	case known == 0:
		return 0.5
	case len(parts) > 1:
		return min(1, best+0.05)
	default:
		return best
	}
}

var (
	regexTokenRe = regexp.MustCompile(`\\[dbswDSW]|\[[^\]]*\]|\{\d+(?:,\d*)?\}`)
	wildcardRe   = regexp.MustCompile(`\.\*|\.\+`)
)

// PatternStrength averages specificity, coverage and reliability of the
// pattern that produced value. An empty pattern is neutral.
func PatternStrength(pattern, value string) float64 {
	if pattern == "" {
		return 0.5
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		// Not a regular expression; treat as a literal.
		re = regexp.MustCompile(`(?i)` + regexp.QuoteMeta(pattern))
	}

	specificity := min(1, 0.3+0.1*float64(len(regexTokenRe.FindAllString(pattern, -1)))+float64(len(pattern))/100)

	coverage := 0.3
	if value != "" {
		if loc := re.FindStringIndex(value); loc != nil {
			coverage = float64(loc[1]-loc[0]) / float64(len(value))
		}
	}

	reliability := 1.0
	if err != nil {
		reliability = 0.8
	}
	if wildcardRe.MatchString(pattern) {
		reliability -= 0.3
	}

	return (specificity + coverage + reliability) / 3
}

// ContextRelevance is the fraction of field keywords present in text plus a
// proximity bonus when two distinct keywords sit close together.
func ContextRelevance(f *model.Field, text string) float64 {
	if f == nil || len(f.Keywords) == 0 || text == "" {
		return 0.5
	}
	lower := strings.ToLower(text)
	var positions []int
	for _, kw := range f.Keywords {
		if i := strings.Index(lower, strings.ToLower(kw)); i >= 0 {
			positions = append(positions, i)
		}
	}
	score := float64(len(positions)) / float64(len(f.Keywords))

	if len(positions) >= 2 {
		closest := -1
		for i := 0; i < len(positions); i++ {
			for j := i + 1; j < len(positions); j++ {
				d := positions[i] - positions[j]
				if d < 0 {
					d = -d
				}
				if closest < 0 || d < closest {
					closest = d
				}
			}
		}
		switch {
		case closest <= 50:
			score += 0.2
		case closest <= 100:
			score += 0.1
		}
	}
	return min(1, score)
}

// CrossValidation blends syntactic validity (0.7) with sibling consistency (0.3).
func CrossValidation(f *model.Field, value string, others map[string]any) float64 {
	var validity float64
	switch Validate(f, value) {
	case Valid:
		validity = 1
	case Unknown:
		validity = 0.7
	default:
		validity = 0.2
	}
	id := ""
	if f != nil {
		id = f.ID
	}
	var consistency float64
	switch CheckConsistency(id, value, others) {
	case Consistent:
		consistency = 1
	case Inconsistent:
		consistency = 0
	default:
		consistency = 0.5
	}
	return 0.7*validity + 0.3*consistency
}

var cityRe = regexp.MustCompile(`(?i)^[a-z .'\-]+$`)

// DataCompleteness is a field-specific estimate of how complete value is.
func DataCompleteness(f *model.Field, value string) float64 {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if f == nil {
		return 0.8
	}
	switch f.ID {
	case "address":
		parts := 0
		if streetRe.MatchString(value) {
			parts++
		}
		if hasCity(value) {
			parts++
		}
		if StateOf(value) != "" {
			parts++
		}
		if zipRe.MatchString(value) {
			parts++
		}
		return float64(parts) / 4
	case "phone":
		switch len(Digits(value)) {
		case 10, 11:
			return 1
		case 7:
			return 0.5
		default:
			return 0.3
		}
	case "email":
		if emailRe.MatchString(value) {
			return 1
		}
		return 0.3
	case "name":
		if len(strings.Fields(value)) >= 2 {
			return 1
		}
		return 0.7
	}
	if len(f.Vocabulary) > 0 {
		if Validate(f, value) == Valid {
			return 1
		}
		return 0.7
	}
	return 0.8
}

func hasCity(address string) bool {
	parts := strings.Split(address, ",")
	if len(parts) < 2 {
		return false
	}
	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		if p == "" || !cityRe.MatchString(p) {
			continue
		}
		if len(p) == 2 && strings.ToUpper(p) == p {
			continue
		}
		return true
	}
	return false
}

// SiteAuthority is a weak authority proxy from the page URL or domain.
func SiteAuthority(rawURL, domain string) float64 {
	if rawURL == "" && domain == "" {
		return 0.5
	}
	score := 0.5
	host := domain
	if rawURL != "" {
		raw := rawURL
		if !strings.Contains(raw, "://") {
			raw = "http://" + raw
		}
		if u, err := url.Parse(raw); err == nil {
			if u.Scheme == "https" {
				score += 0.2
			}
			host = u.Hostname()
		}
	}
	host = strings.TrimPrefix(strings.ToLower(host), "www.")

	switch {
	case strings.HasSuffix(host, ".org"), strings.HasSuffix(host, ".gov"), strings.HasSuffix(host, ".edu"):
		score += 0.2
	case strings.HasSuffix(host, ".com"):
		score += 0.1
	}
	if strings.Contains(host, "-") {
		score -= 0.1
	}
	if strings.Count(host, ".") > 1 {
		score -= 0.1
	}
	return max(0, min(1, score))
}
