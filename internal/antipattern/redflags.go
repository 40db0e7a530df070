package antipattern

import (
	"regexp"
	"strconv"
	"time"

	"github.com/sells-group/program-extract/internal/model"
)

// Red flag names.
const (
	FlagVague          = "vague"
	FlagConcerning     = "concerning"
	FlagOutdated       = "outdated"
	FlagUnprofessional = "unprofessional"
)

// outdatedAfterYears is how old a dated statement may be before it is flagged.
const outdatedAfterYears = 3

type redFlag struct {
	name     string
	severity model.Severity
	message  string
	patterns []*regexp.Regexp
}

var redFlags = []redFlag{
	{
		name:     FlagVague,
		severity: model.SeverityLow,
		message:  "value is vague or open-ended",
		patterns: compile(
			`\b(?:various|several|a\s+variety\s+of|among\s+others|and\s+more|and\s+much\s+more|etc\.?)(?:\W|$)`,
			`\b(?:most|many|some)\s+(?:major\s+)?(?:insurance|plans|carriers|providers|therapies)\b`,
		),
	},
	{
		name:     FlagConcerning,
		severity: model.SeverityHigh,
		message:  "value makes unsupported clinical claims",
		patterns: compile(
			`\bguarantee[sd]?\s+(?:\w+\s+)?(?:cure|recovery|results|sobriety|success)\b`,
			`\b100\s*%\s+(?:success|cure|effective|recovery)`,
			`\b(?:miracle|instant)\s+(?:cure|recovery|detox)\b`,
			`\bcures?\s+addiction\b`,
		),
	},
	{
		name:     FlagUnprofessional,
		severity: model.SeverityMedium,
		message:  "value reads as unprofessional",
		patterns: compile(
			`!{2,}`,
			`\?{2,}`,
			`\b(?:lol|omg|plz|thx|u\s+r)\b`,
		),
	},
}

var datedRes = compile(
	`(?:copyright|©|\(c\))\s*(?:(?:19|20)\d{2}\s*[-–]\s*)?((?:19|20)\d{2})\b`,
	`\b(?:as\s+of|last\s+updated|updated)\s+(?:[a-z]+\s+)?(?:\d{1,2},?\s+)?((?:19|20)\d{2})\b`,
)

// redFlagIssues runs the red-flag pass over one value. It never excludes.
func redFlagIssues(field, value, text string, now time.Time) []model.Issue {
	combined := value + " " + text
	var out []model.Issue
	for _, rf := range redFlags {
		for _, re := range rf.patterns {
			if re.MatchString(combined) {
				out = append(out, model.Issue{
					Field:    field,
					Value:    value,
					Category: rf.name,
					Action:   string(ActionFlag),
					Severity: rf.severity,
					Message:  rf.message,
				})
				break
			}
		}
	}
	if year, ok := newestYear(combined); ok && now.Year()-year > outdatedAfterYears {
		out = append(out, model.Issue{
			Field:    field,
			Value:    value,
			Category: FlagOutdated,
			Action:   string(ActionFlag),
			Severity: model.SeverityMedium,
			Message:  "value comes from content dated " + strconv.Itoa(year),
		})
	}
	return out
}

func newestYear(text string) (int, bool) {
	best, found := 0, false
	for _, re := range datedRes {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			y, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			if y > best {
				best, found = y, true
			}
		}
	}
	return best, found
}
