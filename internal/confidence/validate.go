package confidence

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/sells-group/program-extract/internal/model"
)

// Validity is the outcome of a field-specific syntax check.
type Validity int

const (
	Unknown Validity = iota
	Valid
	Invalid
)

// Consistency is the outcome of checking a value against sibling fields.
type Consistency int

const (
	Unchecked Consistency = iota
	Consistent
	Inconsistent
)

var (
	phoneShapeRe = regexp.MustCompile(`^(?:\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}$`)
	emailRe      = regexp.MustCompile(`(?i)^[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}$`)
	streetRe     = regexp.MustCompile(`(?i)\b\d{1,6}\s+(?:[nsew]\.?\s+)?[a-z0-9.]+(?:\s+[a-z0-9.]+){0,4}\s+(?:st|street|ave|avenue|rd|road|blvd|boulevard|dr|drive|ln|lane|way|ct|court|pl|place|pkwy|parkway|hwy|highway|cir|circle|ter|terrace|trl|trail)\b\.?`)
	zipRe        = regexp.MustCompile(`\b\d{5}(?:-\d{4})?\b`)
	stateAbbrRe  = regexp.MustCompile(`\b([A-Z]{2})\b(?:\s+\d{5})?`)
	digitsOnlyRe = regexp.MustCompile(`\D`)
)

// Digits strips everything but digits.
func Digits(s string) string {
	return digitsOnlyRe.ReplaceAllString(s, "")
}

// Validate runs the syntax check for field.
func Validate(f *model.Field, value string) Validity {
	value = strings.TrimSpace(value)
	if value == "" {
		return Invalid
	}
	if f == nil {
		return Unknown
	}
	switch f.ID {
	case "phone":
		d := Digits(value)
		if len(d) == 11 && d[0] == '1' {
			d = d[1:]
		}
		if len(d) != 10 {
			return Invalid
		}
		if phoneShapeRe.MatchString(value) {
			return Valid
		}
		return Unknown
	case "email":
		if emailRe.MatchString(value) {
			return Valid
		}
		return Invalid
	case "website":
		raw := value
		if !strings.Contains(raw, "://") {
			raw = "http://" + raw
		}
		u, err := url.Parse(raw)
		if err != nil || !strings.Contains(u.Hostname(), ".") {
			return Invalid
		}
		return Valid
	case "address":
		if len(value) < 5 {
			return Invalid
		}
		if streetRe.MatchString(value) || zipRe.MatchString(value) {
			return Valid
		}
		return Unknown
	case "capacity":
		if Digits(value) != "" {
			return Valid
		}
		return Invalid
	case "name":
		if len(value) < 3 || len(value) > 120 || Digits(value) == value {
			return Invalid
		}
		return Valid
	}
	if len(f.Vocabulary) > 0 {
		for _, t := range f.Vocabulary {
			if strings.EqualFold(t.Canonical, value) {
				return Valid
			}
		}
		if len(f.MatchTerms(value)) > 0 {
			return Valid
		}
	}
	return Unknown
}

// CheckConsistency compares value against already-extracted sibling fields.
// Only the phone area code against the address state is checked.
func CheckConsistency(field, value string, others map[string]any) Consistency {
	var phone, address string
	switch field {
	case "phone":
		phone = value
		address, _ = others["address"].(string)
	case "address":
		address = value
		phone, _ = others["phone"].(string)
	default:
		return Unchecked
	}
	if phone == "" || address == "" {
		return Unchecked
	}
	d := Digits(phone)
	if len(d) == 11 && d[0] == '1' {
		d = d[1:]
	}
	if len(d) != 10 {
		return Unchecked
	}
	want, ok := areaCodeStates[d[:3]]
	if !ok {
		return Unchecked
	}
	state := StateOf(address)
	if state == "" {
		return Unchecked
	}
	if state == want {
		return Consistent
	}
	return Inconsistent
}

// StateOf finds a US state abbreviation in an address, or "".
func StateOf(address string) string {
	for _, m := range stateAbbrRe.FindAllStringSubmatch(address, -1) {
		for _, st := range states {
			if st.abbr == m[1] {
				return st.abbr
			}
		}
	}
	lower := strings.ToLower(address)
	for _, st := range states {
		if strings.Contains(lower, st.name) {
			return st.abbr
		}
	}
	return ""
}

var states = []struct {
	abbr, name string
}{
	{"AZ", "arizona"}, {"CA", "california"}, {"CO", "colorado"}, {"FL", "florida"},
	{"GA", "georgia"}, {"IL", "illinois"}, {"MA", "massachusetts"}, {"MI", "michigan"},
	{"NC", "north carolina"}, {"NJ", "new jersey"}, {"NV", "nevada"}, {"NY", "new york"},
	{"OH", "ohio"}, {"OR", "oregon"}, {"PA", "pennsylvania"}, {"TN", "tennessee"},
	{"TX", "texas"}, {"UT", "utah"}, {"WA", "washington"},
}

var areaCodeStates = buildAreaCodes(map[string][]string{
	"AZ": {"480", "520", "602", "623", "928"},
	"CA": {"209", "213", "310", "323", "408", "415", "510", "562", "619", "626", "650", "661", "707", "714", "760", "805", "818", "858", "909", "916", "949", "951"},
	"CO": {"303", "719", "720", "970"},
	"FL": {"239", "305", "321", "352", "386", "407", "561", "727", "772", "786", "813", "850", "863", "904", "941", "954"},
	"GA": {"229", "404", "470", "478", "678", "706", "770", "912"},
	"IL": {"217", "309", "312", "618", "630", "708", "773", "815", "847"},
	"MA": {"413", "508", "617", "781", "978"},
	"MI": {"248", "269", "313", "517", "586", "616", "734", "810", "906"},
	"NC": {"252", "336", "704", "828", "910", "919", "980"},
	"NJ": {"201", "609", "732", "856", "908", "973"},
	"NV": {"702", "775"},
	"NY": {"212", "315", "347", "516", "518", "585", "607", "631", "646", "716", "718", "845", "914", "917"},
	"OH": {"216", "330", "419", "513", "614", "740", "937"},
	"OR": {"503", "541", "971"},
	"PA": {"215", "267", "412", "484", "570", "610", "717", "814"},
	"TN": {"423", "615", "731", "865", "901", "931"},
	"TX": {"210", "214", "254", "281", "361", "409", "512", "713", "806", "817", "832", "903", "915", "940", "972"},
	"UT": {"385", "435", "801"},
	"WA": {"206", "253", "360", "425", "509"},
})

func buildAreaCodes(byState map[string][]string) map[string]string {
	out := make(map[string]string)
	for st, codes := range byState {
		for _, c := range codes {
			out[c] = st
		}
	}
	return out
}
