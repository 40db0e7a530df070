package extract

import (
	"strconv"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/sells-group/program-extract/internal/antipattern"
	"github.com/sells-group/program-extract/internal/confidence"
	"github.com/sells-group/program-extract/internal/model"
)

// RunFunc extracts candidates for one field from a parsed page. A raw
// confidence of 0 on a candidate asks the scorer for a full score.
type RunFunc func(f *model.Field, doc *Document, opts *Options) ([]model.CandidateResult, error)

// Strategy is one extraction method, tried in priority order.
type Strategy struct {
	Name     string
	Priority int
	Run      RunFunc
}

// DefaultStrategies returns the seven built-in strategies, priority 1 to 7.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{Name: confidence.SourceStructuredData, Priority: 1, Run: structuredData},
		{Name: confidence.SourceSemanticHTML, Priority: 2, Run: semanticHTML},
		{Name: confidence.SourcePattern, Priority: 3, Run: patternMatching},
		{Name: confidence.SourceContextual, Priority: 4, Run: contextualInference},
		{Name: confidence.SourceFuzzy, Priority: 5, Run: fuzzyMatching},
		{Name: confidence.SourceVisual, Priority: 6, Run: visualStructure},
		{Name: confidence.SourceTable, Priority: 7, Run: tableExtraction},
	}
}

// newCandidate builds a candidate and classifies its surrounding text.
func newCandidate(f *model.Field, doc *Document, strategy, value string, conf float64, b Block, surrounding, pat string) model.CandidateResult {
	flags := antipattern.Classify(surrounding)
	return model.CandidateResult{
		Field:      f.ID,
		Value:      value,
		Confidence: conf,
		Strategy:   strategy,
		Context: model.ExtractionContext{
			Source:          strategy,
			Pattern:         pat,
			SurroundingText: surrounding,
			Header:          b.Header,
			Location:        b.Path,
			Section:         b.Section,
			URL:             doc.URL,
			Domain:          doc.Domain,
			IsNegated:       flags.Negated,
			IsConditional:   flags.Conditional,
			IsExternal:      flags.External || flags.Referral,
			IsFuture:        flags.Future,
			IsProminent:     b.Prominent,
		},
	}
}

// keywordConfidence scores a match by the density of field keywords around it.
func keywordConfidence(base float64, f *model.Field, text string, ceiling float64) float64 {
	return min(ceiling, base+0.05*float64(KeywordHits(f.Keywords, text)))
}

// singleFromText runs the field's regex library sentence by sentence.
func singleFromText(f *model.Field, doc *Document, strategy string, b Block, scored bool) []model.CandidateResult {
	var out []model.CandidateResult
	for _, s := range Sentences(b.Text) {
		surrounding := orRow(b, s.Text)
		for _, m := range findValues(f.ID, s.Text) {
			conf := 0.0
			if !scored {
				conf = keywordConfidence(m.Base, f, surrounding, 0.95)
			}
			out = append(out, newCandidate(f, doc, strategy, m.Value, conf, b, surrounding, m.Pattern))
		}
	}
	return out
}

// vocabFromText matches the field vocabulary clause by clause.
func vocabFromText(f *model.Field, doc *Document, strategy string, b Block, base float64) []model.CandidateResult {
	var out []model.CandidateResult
	for _, cl := range Clauses(b.Text) {
		surrounding := orRow(b, cl.Text)
		for _, ts := range f.MatchTerms(cl.Text) {
			conf := 0.0
			if base > 0 {
				conf = keywordConfidence(base, f, surrounding, 0.90)
			}
			out = append(out, newCandidate(f, doc, strategy, ts.Canonical, conf, b, surrounding, cl.Text[ts.Start:ts.End]))
		}
	}
	return out
}

// orRow widens a table cell's context to its whole row.
func orRow(b Block, text string) string {
	if b.Row != "" {
		return b.Row
	}
	return text
}

func fromBlock(f *model.Field, doc *Document, strategy string, b Block, base float64) []model.CandidateResult {
	if f.IsMulti() {
		return vocabFromText(f, doc, strategy, b, base)
	}
	return singleFromText(f, doc, strategy, b, base == 0)
}

// --- 1. structured data ---

var structuredKeys = map[string][]string{
	"name":          {"name", "legalName"},
	"address":       {"address"},
	"phone":         {"telephone"},
	"email":         {"email"},
	"website":       {"url"},
	"levelsOfCare":  {"availableService", "medicalSpecialty", "hasOfferCatalog"},
	"population":    {"audience", "availableService"},
	"modalities":    {"availableService", "medicalSpecialty"},
	"insurance":     {"paymentAccepted", "acceptedInsurance", "healthPlanNetworkId"},
	"capacity":      {"numberOfBeds", "maximumAttendeeCapacity"},
	"accreditation": {"hasCredential", "award", "memberOf"},
	"staff":         {"employee", "member"},
	"amenities":     {"amenityFeature"},
}

var orgTypeMarkers = []string{"organization", "business", "clinic", "hospital", "medical", "center", "facility", "place", "physician"}

func isOrgNode(node map[string]any) bool {
	for _, t := range jsonStrings(node["@type"]) {
		lt := strings.ToLower(t)
		for _, m := range orgTypeMarkers {
			if strings.Contains(lt, m) {
				return true
			}
		}
	}
	return false
}

// jsonStrings flattens a JSON-LD value into display strings.
func jsonStrings(v any) []string {
	switch t := v.(type) {
	case string:
		if s := strings.TrimSpace(t); s != "" {
			return []string{s}
		}
	case float64:
		return []string{strconv.FormatFloat(t, 'f', -1, 64)}
	case []any:
		var out []string
		for _, item := range t {
			out = append(out, jsonStrings(item)...)
		}
		return out
	case map[string]any:
		if typ, _ := t["@type"].(string); typ == "PostalAddress" {
			if a := postalAddress(t); a != "" {
				return []string{a}
			}
		}
		for _, k := range []string{"name", "audienceType", "jobTitle", "value", "itemListElement"} {
			if inner, ok := t[k]; ok {
				return jsonStrings(inner)
			}
		}
	}
	return nil
}

func postalAddress(m map[string]any) string {
	get := func(k string) string {
		s, _ := m[k].(string)
		return strings.TrimSpace(s)
	}
	street, city, region, zip := get("streetAddress"), get("addressLocality"), get("addressRegion"), get("postalCode")
	var parts []string
	for _, p := range []string{street, city} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	tail := strings.TrimSpace(region + " " + zip)
	if tail != "" {
		parts = append(parts, tail)
	}
	return strings.Join(parts, ", ")
}

func structuredValue(f *model.Field, raw string) []string {
	if f.IsMulti() {
		if len(f.Vocabulary) == 0 {
			return []string{raw}
		}
		var out []string
		for _, ts := range f.MatchTerms(raw) {
			out = append(out, ts.Canonical)
		}
		return out
	}
	switch f.ID {
	case "phone":
		if p := FormatPhone(raw); p != "" {
			return []string{p}
		}
		return nil
	case "website":
		if w := NormalizeWebsite(raw); w != "" {
			return []string{w}
		}
		return nil
	case "email":
		return []string{strings.TrimPrefix(strings.ToLower(raw), "mailto:")}
	}
	return []string{raw}
}

func structuredData(f *model.Field, doc *Document, _ *Options) ([]model.CandidateResult, error) {
	keys := structuredKeys[f.ID]
	if len(keys) == 0 {
		return nil, nil
	}
	var out []model.CandidateResult
	block := Block{Section: model.SectionMain, Path: "json-ld"}
	for _, node := range doc.JSONLD {
		if !isOrgNode(node) {
			continue
		}
		for _, k := range keys {
			for _, raw := range jsonStrings(node[k]) {
				for _, v := range structuredValue(f, raw) {
					c := newCandidate(f, doc, confidence.SourceStructuredData, v, 0.95, block, k+": "+raw, k)
					c.Context.IsStructured = true
					out = append(out, c)
				}
			}
		}
	}

	micro := Block{Section: model.SectionMain, Path: "microdata"}
	for _, mp := range doc.Microdata {
		for _, k := range keys {
			if mp.Name != k {
				continue
			}
			for _, v := range structuredValue(f, mp.Value) {
				c := newCandidate(f, doc, confidence.SourceStructuredData, v, 0.90, micro, k+": "+mp.Value, "itemprop="+k)
				c.Context.IsStructured = true
				out = append(out, c)
			}
		}
	}
	return out, nil
}

// --- 2. semantic html ---

func semanticHTML(f *model.Field, doc *Document, _ *Options) ([]model.CandidateResult, error) {
	var out []model.CandidateResult
	switch f.ID {
	case "phone", "email":
		scheme := "tel:"
		if f.ID == "email" {
			scheme = "mailto:"
		}
		for _, l := range doc.Links {
			if !strings.HasPrefix(strings.ToLower(l.Href), scheme) {
				continue
			}
			v := strings.TrimSpace(l.Href[len(scheme):])
			if i := strings.IndexByte(v, '?'); i >= 0 {
				v = v[:i]
			}
			if f.ID == "phone" {
				v = FormatPhone(v)
			} else {
				v = strings.ToLower(v)
			}
			if v == "" {
				continue
			}
			b := Block{Section: l.Section, Path: "a[href^=" + scheme + "]"}
			out = append(out, newCandidate(f, doc, confidence.SourceSemanticHTML, v, 0.85, b, l.Block, "a[href^="+scheme+"]"))
		}
	case "address":
		for _, b := range doc.Blocks {
			isAddr := b.Tag == "address"
			if !isAddr && !strings.Contains(b.Classes, "address") && !strings.Contains(b.Classes, "location") {
				continue
			}
			base := 0.80
			if isAddr {
				base = 0.85
			}
			for _, m := range findValues(f.ID, b.Text) {
				out = append(out, newCandidate(f, doc, confidence.SourceSemanticHTML, m.Value, min(base, m.Base+0.05), b, b.Text, "address"))
			}
		}
	case "name":
		if sn := strings.TrimSpace(doc.Meta["og:site_name"]); sn != "" {
			out = append(out, newCandidate(f, doc, confidence.SourceSemanticHTML, sn, 0.80, Block{Section: model.SectionHeader, Path: "meta[og:site_name]"}, sn, "meta[og:site_name]"))
		}
		for _, b := range doc.Blocks {
			if b.Tag == "h1" && len(strings.Fields(b.Text)) <= 8 {
				out = append(out, newCandidate(f, doc, confidence.SourceSemanticHTML, b.Text, 0.75, b, b.Text, "h1"))
				break
			}
		}
		if t := titleName(doc.Title); t != "" {
			out = append(out, newCandidate(f, doc, confidence.SourceSemanticHTML, t, 0.60, Block{Section: model.SectionHeader, Path: "title"}, doc.Title, "title"))
		}
	case "website":
		for _, raw := range []string{doc.Canonical, doc.Meta["og:url"]} {
			if w := NormalizeWebsite(raw); w != "" {
				out = append(out, newCandidate(f, doc, confidence.SourceSemanticHTML, w, 0.70, Block{Section: model.SectionHeader, Path: "link[canonical]"}, raw, "link[rel=canonical]"))
				break
			}
		}
	default:
		if !f.IsMulti() {
			return nil, nil
		}
		for _, b := range doc.Blocks {
			if classMatchesField(f, b.Classes) {
				out = append(out, vocabFromText(f, doc, confidence.SourceSemanticHTML, b, 0.80)...)
			}
		}
	}
	return out, nil
}

func classMatchesField(f *model.Field, classes string) bool {
	if classes == "" {
		return false
	}
	if strings.Contains(classes, strings.ToLower(f.ID)) {
		return true
	}
	for _, kw := range f.Keywords {
		if len(kw) >= 5 && !strings.Contains(kw, " ") && strings.Contains(classes, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func titleName(title string) string {
	for _, sep := range []string{" | ", " - ", " – ", " — ", ": "} {
		if i := strings.Index(title, sep); i > 0 {
			title = title[:i]
		}
	}
	title = strings.TrimSpace(title)
	if title == "" || strings.EqualFold(title, "home") {
		return ""
	}
	return title
}

// --- 3. pattern matching ---

func patternMatching(f *model.Field, doc *Document, opts *Options) ([]model.CandidateResult, error) {
	var out []model.CandidateResult
	for _, b := range doc.Blocks {
		if f.IsMulti() {
			out = append(out, vocabFromText(f, doc, confidence.SourcePattern, b, 0.70)...)
		} else if hasFinder(f.ID) {
			out = append(out, singleFromText(f, doc, confidence.SourcePattern, b, false)...)
		}
	}
	if opts != nil {
		out = append(out, learnedMatches(f, doc, opts)...)
	}
	return out, nil
}

// learnedMatches runs previously learned patterns for the field.
func learnedMatches(f *model.Field, doc *Document, opts *Options) []model.CandidateResult {
	var out []model.CandidateResult
	for _, sp := range opts.LearnedPatterns {
		conf := 0.6 + 0.3*sp.Score
		for _, b := range doc.Blocks {
			for _, loc := range sp.Pattern.FindAllIndex(b.Text) {
				literal := b.Text[loc[0]:loc[1]]
				surrounding := SpanAt(Clauses(b.Text), loc[0]).Text
				if surrounding == "" {
					surrounding = b.Text
				}
				for _, v := range learnedValue(f, literal) {
					out = append(out, newCandidate(f, doc, confidence.SourcePattern, v, conf, b, surrounding, sp.Pattern.Source))
				}
			}
		}
	}
	return out
}

func learnedValue(f *model.Field, literal string) []string {
	if f.IsMulti() && len(f.Vocabulary) > 0 {
		var out []string
		for _, ts := range f.MatchTerms(literal) {
			out = append(out, ts.Canonical)
		}
		return out
	}
	if f.ID == "phone" {
		if p := FormatPhone(literal); p != "" {
			return []string{p}
		}
		return nil
	}
	return []string{strings.TrimSpace(literal)}
}

// --- 4. contextual inference ---

func contextualInference(f *model.Field, doc *Document, _ *Options) ([]model.CandidateResult, error) {
	if !f.IsMulti() && !hasFinder(f.ID) {
		return nil, nil
	}
	relevant := make(map[string]bool)
	for _, b := range doc.Blocks {
		if isHeading(b) && KeywordHits(f.Keywords, b.Text) > 0 {
			relevant[b.Text] = true
		}
	}
	var out []model.CandidateResult
	for _, b := range doc.Blocks {
		if isHeading(b) || !relevant[b.Header] {
			continue
		}
		if f.IsMulti() && len(f.Vocabulary) == 0 {
			if b.Tag == "li" {
				out = append(out, newCandidate(f, doc, confidence.SourceContextual, b.Text, 0, b, b.Text, "heading:"+b.Header))
			}
			continue
		}
		out = append(out, fromBlock(f, doc, confidence.SourceContextual, b, 0)...)
	}
	return out, nil
}

func isHeading(b Block) bool {
	switch b.Tag {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		return b.Text == b.Header
	}
	return false
}

// --- 5. fuzzy matching ---

const fuzzyMinRatio = 0.8

func fuzzyMatching(f *model.Field, doc *Document, _ *Options) ([]model.CandidateResult, error) {
	if !f.IsMulti() || len(f.Vocabulary) == 0 {
		return nil, nil
	}
	var out []model.CandidateResult
	for _, b := range doc.Blocks {
		for _, cl := range Clauses(b.Text) {
			exact := make(map[string]bool)
			masked := []byte(strings.ToLower(cl.Text))
			for _, ts := range f.MatchTerms(cl.Text) {
				exact[ts.Canonical] = true
				for i := ts.Start; i < ts.End; i++ {
					masked[i] = ' '
				}
			}
			grams := ngrams(string(masked), 4)
			if len(grams) == 0 {
				continue
			}
			for _, t := range f.Vocabulary {
				if exact[t.Canonical] {
					continue
				}
				if hit, ok := fuzzyTerm(t, grams); ok {
					out = append(out, newCandidate(f, doc, confidence.SourceFuzzy, t.Canonical, 0, b, orRow(b, cl.Text), hit))
				}
			}
		}
	}
	return out, nil
}

func fuzzyTerm(t model.Term, grams []string) (string, bool) {
	for _, alias := range append([]string{t.Canonical}, t.Aliases...) {
		a := strings.ToLower(alias)
		if len(a) < 5 {
			continue
		}
		for _, m := range fuzzy.Find(a, grams) {
			if m.Str[0] != a[0] {
				continue
			}
			if float64(len(a))/float64(len(m.Str)) >= fuzzyMinRatio {
				return m.Str, true
			}
		}
	}
	return "", false
}

// ngrams returns all word n-grams of text up to n words long.
func ngrams(text string, n int) []string {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return r == ' ' || r == ',' || r == '.' || r == ':' || r == '(' || r == ')'
	})
	var out []string
	for i := range words {
		for j := i + 1; j <= len(words) && j-i <= n; j++ {
			out = append(out, strings.Join(words[i:j], " "))
		}
	}
	return out
}

// --- 6. visual structure ---

var nameNouns = []string{"recovery", "treatment", "center", "centre", "rehab", "health", "behavioral", "wellness", "house", "institute", "clinic", "hospital", "detox", "ranch", "retreat"}

func visualStructure(f *model.Field, doc *Document, _ *Options) ([]model.CandidateResult, error) {
	var out []model.CandidateResult
	for _, b := range doc.Blocks {
		if !b.Prominent {
			continue
		}
		if f.ID == "name" {
			if looksLikeName(b.Text) {
				c := newCandidate(f, doc, confidence.SourceVisual, b.Text, 0, b, b.Text, b.Tag)
				out = append(out, c)
			}
			continue
		}
		out = append(out, fromBlock(f, doc, confidence.SourceVisual, b, 0)...)
	}
	return out, nil
}

func looksLikeName(text string) bool {
	words := strings.Fields(text)
	if len(words) < 2 || len(words) > 8 || strings.ContainsAny(text, "?!") {
		return false
	}
	lower := strings.ToLower(text)
	for _, n := range nameNouns {
		if strings.Contains(lower, n) {
			return true
		}
	}
	return false
}

// --- 7. table extraction ---

func tableExtraction(f *model.Field, doc *Document, _ *Options) ([]model.CandidateResult, error) {
	var out []model.CandidateResult
	for ti, t := range doc.Tables {
		loc := "table[" + strconv.Itoa(ti) + "]"
		tableRelevant := KeywordHits(f.Keywords, t.Header) > 0
		cols := make(map[int]bool)
		for ci, c := range t.Columns {
			if KeywordHits(f.Keywords, c) > 0 || strings.EqualFold(c, f.ID) {
				cols[ci] = true
			}
		}
		for ri, row := range t.Rows {
			rowText := strings.Join(row, " | ")
			b := Block{Text: rowText, Tag: "tr", Section: model.SectionMain, Header: t.Header, Path: loc + ">tr[" + strconv.Itoa(ri) + "]"}
			var cells []string
			switch {
			case len(cols) > 0:
				for ci := range row {
					if cols[ci] {
						cells = append(cells, row[ci])
					}
				}
			case len(row) == 2 && KeywordHits(f.Keywords, row[0]) > 0:
				cells = append(cells, row[1])
			case tableRelevant:
				cells = row
			}
			for _, cell := range cells {
				out = append(out, tableCell(f, doc, b, cell)...)
			}
		}
	}
	return out, nil
}

func tableCell(f *model.Field, doc *Document, b Block, cell string) []model.CandidateResult {
	if cell == "" {
		return nil
	}
	cb := b
	cb.Text = cell
	if f.IsMulti() {
		if len(f.Vocabulary) == 0 {
			return []model.CandidateResult{newCandidate(f, doc, confidence.SourceTable, cell, 0.75, b, b.Text, "td")}
		}
		var out []model.CandidateResult
		for _, ts := range f.MatchTerms(cell) {
			out = append(out, newCandidate(f, doc, confidence.SourceTable, ts.Canonical, 0.75, b, b.Text, "td"))
		}
		return out
	}
	if hasFinder(f.ID) {
		var out []model.CandidateResult
		for _, m := range findValues(f.ID, cell) {
			out = append(out, newCandidate(f, doc, confidence.SourceTable, m.Value, 0.75, b, b.Text, m.Pattern))
		}
		return out
	}
	return []model.CandidateResult{newCandidate(f, doc, confidence.SourceTable, cell, 0.75, cb, b.Text, "td")}
}
