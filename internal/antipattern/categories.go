package antipattern

import (
	"regexp"
	"strings"
)

// Action is what the filter does with a value that matches a category.
type Action string

const (
	ActionExclude Action = "exclude"
	ActionFlag    Action = "flag"
	ActionReduce  Action = "reduce_confidence"
)

// Category names.
const (
	CategoryReferrals   = "referrals"
	CategoryNotOffered  = "not_offered"
	CategoryExternal    = "external_services"
	CategoryFuture      = "future_plans"
	CategoryCompetitor  = "competitor_mentions"
	CategoryConditional = "conditional"
)

// Category is one class of misleading context.
type Category struct {
	Name     string
	Action   Action
	Modifier float64
	Patterns []*regexp.Regexp
	// Leading patterns only match at the head of a clause.
	Leading []*regexp.Regexp
}

// Categories is the fixed misleading-pattern taxonomy, checked in order.
var Categories = []Category{
	{
		Name:   CategoryReferrals,
		Action: ActionExclude,
		Patterns: compile(
			`\brefer(?:s|red|ring)?\s+(?:\w+\s+){0,3}(?:to|out)\b`,
			`\breferrals?\s+(?:to|for)\b`,
			`\bwe\s+(?:can\s+|will\s+)?(?:connect|link)\s+(?:you|clients|patients)\s+(?:to|with)\b`,
			`\bthrough\s+(?:one\s+of\s+)?our\s+(?:partner|affiliate)`,
		),
	},
	{
		Name:   CategoryNotOffered,
		Action: ActionExclude,
		Patterns: compile(
			`\b(?:do|does|did|can|will|are|is)\s+not\s+(?:currently\s+)?(?:offer|provide|accept|treat|take|have|support|admit|bill)\b`,
			`\b(?:don't|doesn't|cannot|can't|won't|aren't|isn't)\s+(?:currently\s+)?(?:offer|provide|accept|treat|take|admit|bill)\b`,
			`\bno\s+longer\s+(?:offer|provide|accept|take|treat)`,
			`\bnot\s+(?:currently\s+)?(?:offered|available|accepted|covered|in-network|provided)\b`,
			`\bunable\s+to\s+(?:offer|provide|accept|treat)\b`,
		),
		Leading: compile(
			`^(?:except|excluding|other\s+than|with\s+the\s+exception\s+of)\b`,
			`^(?:but\s+)?not\s+including\b`,
			`^but\s+not\b`,
		),
	},
	{
		Name:     CategoryExternal,
		Action:   ActionReduce,
		Modifier: 0.5,
		Patterns: compile(
			`\b(?:off-?site|third[- ]party|outside\s+provider)`,
			`\bat\s+(?:a|an|our)\s+(?:partner|affiliate|affiliated|sister)\s+(?:facility|program|location|hospital)`,
			`\bcontracted\s+(?:with|through)\b`,
		),
	},
	{
		Name:     CategoryFuture,
		Action:   ActionReduce,
		Modifier: 0.3,
		Patterns: compile(
			`\bcoming\s+soon\b`,
			`\b(?:plan|plans|planning|hope|hoping|intend|intends)\s+to\s+(?:soon\s+)?(?:offer|open|provide|add|launch|begin|expand)`,
			`\bwill\s+(?:soon\s+)?(?:be\s+)?(?:offering|opening|adding|launching)\b`,
			`\bin\s+the\s+(?:near\s+)?future\b`,
			`\bunder\s+construction\b`,
		),
	},
	{
		Name:   CategoryCompetitor,
		Action: ActionFlag,
		Patterns: compile(
			`\b(?:unlike|compared\s+to|versus|vs\.?)\s+(?:other|competing|many|most)\b`,
			`\bother\s+(?:treatment\s+)?(?:centers|facilities|programs|rehabs)\s+(?:may|might|often|only)\b`,
		),
	},
	{
		Name:     CategoryConditional,
		Action:   ActionReduce,
		Modifier: 0.7,
		Patterns: compile(
			`\bif\s+(?:clinically\s+|medically\s+)?(?:appropriate|necessary|indicated|eligible|approved|available)\b`,
			`\bif\s+(?:your|the)\s+(?:insurance|plan|policy)\b`,
			`\b(?:subject\s+to|depending\s+on|pending)\b`,
			`\bcase[- ]by[- ]case\b`,
			`\b(?:upon|on)\s+request\b`,
			`\bmay\s+(?:be\s+)?(?:available|offered|accepted|covered)\b`,
		),
	},
}

func compile(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(`(?i)` + e)
	}
	return out
}

// Matches reports whether any of the category's patterns match text,
// treating text as a clause for the leading patterns.
func (c Category) Matches(text string) bool {
	return c.MatchesValue("", text)
}

// MatchesValue checks the patterns against the value and its clause
// together and the leading patterns against the clause alone.
func (c Category) MatchesValue(value, clause string) bool {
	clause = strings.TrimSpace(clause)
	combined := strings.TrimSpace(value + " " + clause)
	for _, re := range c.Patterns {
		if re.MatchString(combined) {
			return true
		}
	}
	for _, re := range c.Leading {
		if re.MatchString(clause) {
			return true
		}
	}
	return false
}

// Flags is the context classification consumed by the extractor and scorer.
type Flags struct {
	Negated     bool
	Referral    bool
	External    bool
	Future      bool
	Conditional bool
	Competitor  bool
	Categories  []string
}

// Any reports whether any negative signal was found.
func (f Flags) Any() bool {
	return len(f.Categories) > 0
}

// Classify maps text onto category flags.
func Classify(text string) Flags {
	var f Flags
	if text == "" {
		return f
	}
	for _, c := range Categories {
		if !c.Matches(text) {
			continue
		}
		f.Categories = append(f.Categories, c.Name)
		switch c.Name {
		case CategoryReferrals:
			f.Referral = true
		case CategoryNotOffered:
			f.Negated = true
		case CategoryExternal:
			f.External = true
		case CategoryFuture:
			f.Future = true
		case CategoryCompetitor:
			f.Competitor = true
		case CategoryConditional:
			f.Conditional = true
		}
	}
	return f
}

// Zone names for negative page regions.
const (
	ZoneExclusions  = "exclusions"
	ZoneLimitations = "limitations"
	ZoneReferral    = "referralContext"
)

type zone struct {
	name   string
	header *regexp.Regexp
	text   *regexp.Regexp
}

var zones = []zone{
	{
		name:   ZoneExclusions,
		header: regexp.MustCompile(`(?i)\b(?:exclusions?|not\s+covered|services\s+not\s+(?:offered|provided)|what\s+we\s+(?:do\s+not|don't)\s+(?:treat|offer))\b`),
		text:   regexp.MustCompile(`(?i)(?:\bexclusions?\s*:|\bwe\s+(?:do\s+not|don't)\s+(?:treat|admit)\b|\bnot\s+(?:appropriate|eligible)\s+for\b)`),
	},
	{
		name:   ZoneReferral,
		header: regexp.MustCompile(`(?i)\b(?:referrals?|referral\s+partners|community\s+resources|other\s+providers)\b`),
		text:   regexp.MustCompile(`(?i)\b(?:we\s+(?:will\s+|can\s+|may\s+)?refer|referral\s+partners?|referred\s+(?:to|out))\b`),
	},
	{
		name:   ZoneLimitations,
		header: regexp.MustCompile(`(?i)\b(?:limitations?|restrictions?|admission\s+criteria)\b`),
		text:   regexp.MustCompile(`(?i)\b(?:limited\s+to|only\s+(?:accept|admit|treat|serve)s?|restricted\s+to)\b`),
	},
}

// DetectZone returns the negative zone a context belongs to, or "".
// Header matches take precedence over surrounding-text matches.
func DetectZone(header, text string) string {
	for _, z := range zones {
		if header != "" && z.header.MatchString(header) {
			return z.name
		}
	}
	for _, z := range zones {
		if text != "" && z.text.MatchString(text) {
			return z.name
		}
	}
	return ""
}
