package extract

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/sells-group/program-extract/internal/model"
	"github.com/sells-group/program-extract/internal/pattern"
)

// Block is one run of visible text with its layout context.
type Block struct {
	Text      string
	Tag       string
	Section   model.Section
	Header    string
	Path      string
	Classes   string
	Prominent bool
	// Row is the full row text for table cells.
	Row string
}

// Table is a parsed <table>.
type Table struct {
	Header  string
	Columns []string
	Rows    [][]string
}

// Link is an anchor with an href.
type Link struct {
	Href    string
	Text    string
	Section model.Section
	Block   string
}

// Microprop is one microdata itemprop value.
type Microprop struct {
	Name  string
	Value string
}

// Document is the parsed form of a page shared by all strategies.
type Document struct {
	URL         string
	Domain      string
	Title       string
	Text        string
	Blocks      []Block
	Tables      []Table
	Links       []Link
	JSONLD      []map[string]any
	Microdata   []Microprop
	Meta        map[string]string
	Canonical   string
	Fingerprint pattern.SiteFingerprint
}

// HasStructuredData reports whether the page carried JSON-LD or microdata.
func (d *Document) HasStructuredData() bool {
	return len(d.JSONLD) > 0 || len(d.Microdata) > 0
}

// NewDocument parses a page, preferring HTML over plain text.
func NewDocument(p model.Page) (*Document, error) {
	if strings.TrimSpace(p.HTML) != "" {
		return ParseHTML(p.URL, p.HTML)
	}
	return FromText(p.URL, p.Text), nil
}

var blockTags = map[atom.Atom]bool{
	atom.P: true, atom.Li: true, atom.H1: true, atom.H2: true, atom.H3: true,
	atom.H4: true, atom.H5: true, atom.H6: true, atom.Address: true, atom.Dd: true,
	atom.Dt: true, atom.Blockquote: true, atom.Figcaption: true, atom.Td: true,
	atom.Th: true, atom.Caption: true, atom.Div: true, atom.Section: true,
	atom.Article: true, atom.Header: true, atom.Footer: true, atom.Nav: true,
	atom.Aside: true, atom.Main: true, atom.Ul: true, atom.Ol: true, atom.Table: true,
	atom.Tr: true, atom.Form: true, atom.Label: true,
}

var headingTags = map[atom.Atom]bool{
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
}

var (
	sectionClassRe   = regexp.MustCompile(`(?i)(?:^|\s)(?:site-|page-|main-)?(header|footer|sidebar|nav|navbar|menu|masthead)(?:\s|$)`)
	prominentClassRe = regexp.MustCompile(`(?i)(?:^|\s)(?:hero|banner|callout|highlight|jumbotron|cta)(?:[-_][a-z0-9]+)*(?:\s|$)`)
	spaceRe          = regexp.MustCompile(`\s+`)
)

type parser struct {
	doc    *Document
	header string
	navs   []model.Section
	text   strings.Builder
}

type frame struct {
	tag       string
	classes   string
	section   model.Section
	prominent bool
}

// ParseHTML builds a Document from raw HTML. Malformed JSON-LD is skipped.
func ParseHTML(rawURL, src string) (*Document, error) {
	root, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return nil, eris.Wrap(err, "extract: parse html")
	}
	p := &parser{doc: newDocument(rawURL)}
	p.walk(root, nil, false)
	p.doc.Text = strings.TrimSpace(p.text.String())
	p.doc.Fingerprint = pattern.NewFingerprint(rawURL, detectCMS(p.doc.Meta, src), p.navPattern())
	return p.doc, nil
}

func newDocument(rawURL string) *Document {
	return &Document{
		URL:    rawURL,
		Domain: model.DomainOf(rawURL),
		Meta:   make(map[string]string),
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// walk visits the tree. Inside a leaf block (inLeaf) text is already
// captured, so only links and microdata are collected.
func (p *parser) walk(n *html.Node, stack []frame, inLeaf bool) {
	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.Script:
			if strings.EqualFold(attr(n, "type"), "application/ld+json") && n.FirstChild != nil {
				p.addJSONLD(n.FirstChild.Data)
			}
			return
		case atom.Style, atom.Noscript, atom.Template, atom.Svg:
			return
		case atom.Title:
			p.doc.Title = normalizeSpace(textOf(n))
			return
		case atom.Meta:
			p.addMeta(n)
		case atom.Link:
			if strings.EqualFold(attr(n, "rel"), "canonical") {
				p.doc.Canonical = attr(n, "href")
			}
		}

		fr := p.frameFor(n, stack)
		stack = append(stack, fr)

		if prop := attr(n, "itemprop"); prop != "" {
			p.addMicroprop(n, prop)
		}
		if n.DataAtom == atom.Nav || fr.section == model.SectionNavigation {
			if len(stack) < 2 || stack[len(stack)-2].section != model.SectionNavigation {
				p.navs = append(p.navs, enclosingSection(stack[:len(stack)-1]))
			}
		}
		if n.DataAtom == atom.A {
			if href := attr(n, "href"); href != "" {
				p.doc.Links = append(p.doc.Links, Link{
					Href:    href,
					Text:    normalizeSpace(textOf(n)),
					Section: fr.section,
					Block:   normalizeSpace(textOf(blockAncestor(n))),
				})
			}
		}
		if n.DataAtom == atom.Table {
			p.addTable(n)
		}
		if !inLeaf && blockTags[n.DataAtom] && !hasBlockChild(n) {
			p.addBlock(normalizeSpace(textOf(n)), n, stack)
			inLeaf = true
		}
	}
	if n.Type == html.TextNode && len(stack) > 0 && !inLeaf {
		p.addBlock(normalizeSpace(n.Data), nil, stack)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		p.walk(c, stack, inLeaf)
	}
}

func (p *parser) frameFor(n *html.Node, stack []frame) frame {
	fr := frame{tag: n.Data, classes: strings.TrimSpace(attr(n, "class") + " " + attr(n, "id"))}
	if len(stack) > 0 {
		parent := stack[len(stack)-1]
		fr.section = parent.section
		fr.prominent = parent.prominent
	}
	switch n.DataAtom {
	case atom.Header:
		if fr.section == "" || fr.section == model.SectionMain {
			fr.section = model.SectionHeader
		}
	case atom.Footer:
		fr.section = model.SectionFooter
	case atom.Nav:
		fr.section = model.SectionNavigation
	case atom.Aside:
		fr.section = model.SectionSidebar
	case atom.Main, atom.Article:
		fr.section = model.SectionMain
	}
	if m := sectionClassRe.FindStringSubmatch(fr.classes); m != nil && n.DataAtom != atom.Body && n.DataAtom != atom.Html {
		switch strings.ToLower(m[1]) {
		case "header", "masthead":
			fr.section = model.SectionHeader
		case "footer":
			fr.section = model.SectionFooter
		case "sidebar":
			fr.section = model.SectionSidebar
		case "nav", "navbar", "menu":
			fr.section = model.SectionNavigation
		}
	}
	if prominentClassRe.MatchString(fr.classes) {
		fr.prominent = true
	}
	return fr
}

func enclosingSection(stack []frame) model.Section {
	if len(stack) == 0 {
		return model.SectionMain
	}
	if s := stack[len(stack)-1].section; s != "" {
		return s
	}
	return model.SectionMain
}

func hasBlockChild(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (blockTags[c.DataAtom] || hasBlockChild(c)) {
			return true
		}
	}
	return false
}

func blockAncestor(n *html.Node) *html.Node {
	for a := n.Parent; a != nil; a = a.Parent {
		if a.Type == html.ElementNode && blockTags[a.DataAtom] {
			return a
		}
	}
	return n
}

func (p *parser) addBlock(text string, n *html.Node, stack []frame) {
	if text == "" {
		return
	}
	var tag atom.Atom
	if n != nil {
		tag = n.DataAtom
	}
	fr := stack[len(stack)-1]
	b := Block{
		Text:      text,
		Tag:       fr.tag,
		Section:   enclosingSection(stack),
		Header:    p.header,
		Path:      pathOf(stack),
		Classes:   classesOf(stack),
		Prominent: fr.prominent || tag == atom.H1 || tag == atom.H2 || tag == atom.H3,
	}
	if headingTags[tag] {
		p.header = text
		b.Header = text
	}
	if (tag == atom.Td || tag == atom.Th) && n.Parent != nil {
		b.Row = rowText(n.Parent)
	}
	p.doc.Blocks = append(p.doc.Blocks, b)
	p.text.WriteString(text)
	p.text.WriteString("\n")
}

func pathOf(stack []frame) string {
	start := 0
	if len(stack) > 4 {
		start = len(stack) - 4
	}
	parts := make([]string, 0, 4)
	for _, fr := range stack[start:] {
		s := fr.tag
		if c := strings.Fields(fr.classes); len(c) > 0 {
			s += "." + c[0]
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, ">")
}

func classesOf(stack []frame) string {
	var parts []string
	for _, fr := range stack {
		if fr.classes != "" {
			parts = append(parts, fr.classes)
		}
	}
	return strings.ToLower(strings.Join(parts, " "))
}

func textOf(n *html.Node) string {
	var sb strings.Builder
	var rec func(*html.Node)
	rec = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript, atom.Template:
				return
			case atom.Br:
				sb.WriteString(" ")
			}
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			rec(c)
		}
	}
	rec(n)
	return sb.String()
}

func normalizeSpace(s string) string {
	s = spaceRe.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	// Collapse the gap the text walk leaves before punctuation.
	for _, p := range []string{" ,", " .", " ;", " :", " !", " ?"} {
		s = strings.ReplaceAll(s, p, p[1:])
	}
	return s
}

func (p *parser) addMeta(n *html.Node) {
	content := attr(n, "content")
	if content == "" {
		return
	}
	if name := attr(n, "name"); name != "" {
		p.doc.Meta[strings.ToLower(name)] = content
	}
	if prop := attr(n, "property"); prop != "" {
		p.doc.Meta[strings.ToLower(prop)] = content
	}
}

func (p *parser) addMicroprop(n *html.Node, prop string) {
	val := attr(n, "content")
	if val == "" && (n.DataAtom == atom.A || n.DataAtom == atom.Link) {
		val = attr(n, "href")
	}
	if val == "" {
		val = normalizeSpace(textOf(n))
	}
	if val == "" {
		return
	}
	p.doc.Microdata = append(p.doc.Microdata, Microprop{Name: prop, Value: val})
}

func (p *parser) addJSONLD(raw string) {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		zap.L().Debug("extract: skipping malformed json-ld",
			zap.String("url", p.doc.URL),
			zap.Error(err),
		)
		return
	}
	p.doc.JSONLD = append(p.doc.JSONLD, flattenJSONLD(v)...)
}

// flattenJSONLD expands arrays and @graph containers into a list of nodes.
func flattenJSONLD(v any) []map[string]any {
	switch t := v.(type) {
	case []any:
		var out []map[string]any
		for _, item := range t {
			out = append(out, flattenJSONLD(item)...)
		}
		return out
	case map[string]any:
		out := []map[string]any{t}
		if g, ok := t["@graph"]; ok {
			out = append(out, flattenJSONLD(g)...)
		}
		return out
	}
	return nil
}

func (p *parser) addTable(n *html.Node) {
	var t Table
	t.Header = p.header
	var rows [][]string
	var headerRow []string
	var rec func(*html.Node)
	rec = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Tr {
			var cells []string
			allTh := true
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type != html.ElementNode {
					continue
				}
				if c.DataAtom == atom.Th || c.DataAtom == atom.Td {
					cells = append(cells, normalizeSpace(textOf(c)))
					if c.DataAtom != atom.Th {
						allTh = false
					}
				}
			}
			if len(cells) == 0 {
				return
			}
			if allTh && headerRow == nil && len(rows) == 0 {
				headerRow = cells
			} else {
				rows = append(rows, cells)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.DataAtom == atom.Table {
				continue
			}
			rec(c)
		}
	}
	rec(n)
	if caption := findChild(n, atom.Caption); caption != nil {
		t.Header = normalizeSpace(textOf(caption))
	}
	t.Columns = headerRow
	t.Rows = rows
	if len(t.Columns) > 0 || len(t.Rows) > 0 {
		p.doc.Tables = append(p.doc.Tables, t)
	}
}

func rowText(tr *html.Node) string {
	var cells []string
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (c.DataAtom == atom.Td || c.DataAtom == atom.Th) {
			cells = append(cells, normalizeSpace(textOf(c)))
		}
	}
	return strings.Join(cells, " | ")
}

func findChild(n *html.Node, a atom.Atom) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == a {
			return c
		}
	}
	return nil
}

func (p *parser) navPattern() string {
	if len(p.navs) == 0 {
		return "none"
	}
	switch p.navs[0] {
	case model.SectionHeader, model.SectionNavigation:
		return "top"
	case model.SectionSidebar:
		return "side"
	case model.SectionFooter:
		return "footer"
	}
	return "inline"
}

var cmsMarkers = []struct {
	marker string
	cms    string
}{
	{"wp-content", "wordpress"},
	{"cdn.shopify.com", "shopify"},
	{"static.squarespace.com", "squarespace"},
	{"wixstatic.com", "wix"},
	{"/sites/default/files", "drupal"},
	{"webflow.com", "webflow"},
}

func detectCMS(meta map[string]string, src string) string {
	if g := strings.Fields(strings.ToLower(meta["generator"])); len(g) > 0 {
		return g[0]
	}
	for _, m := range cmsMarkers {
		if strings.Contains(src, m.marker) {
			return m.cms
		}
	}
	return ""
}

var paragraphRe = regexp.MustCompile(`\n\s*\n`)

// FromText builds a Document from plain text. Short title-case lines, or
// lines ending in a colon, are treated as headings for the lines that follow.
func FromText(rawURL, text string) *Document {
	d := newDocument(rawURL)
	d.Text = strings.TrimSpace(text)
	d.Fingerprint = pattern.NewFingerprint(rawURL, "", "none")

	header := ""
	idx := 0
	for _, para := range paragraphRe.Split(text, -1) {
		for _, line := range strings.Split(para, "\n") {
			line = normalizeSpace(line)
			if line == "" {
				continue
			}
			if isPlainHeading(line) {
				header = strings.TrimSuffix(line, ":")
				d.Blocks = append(d.Blocks, Block{
					Text: header, Tag: "h2", Section: model.SectionMain, Header: header,
					Path: "text>h2", Prominent: true,
				})
				continue
			}
			d.Blocks = append(d.Blocks, Block{
				Text: line, Tag: "p", Section: model.SectionMain, Header: header,
				Path: "text>p[" + strconv.Itoa(idx) + "]",
			})
			idx++
		}
	}
	return d
}

func isPlainHeading(line string) bool {
	words := strings.Fields(line)
	if len(words) == 0 || len(words) > 6 || strings.ContainsAny(line, ".!?,()@") {
		return false
	}
	if strings.HasSuffix(line, ":") {
		return true
	}
	for _, w := range words {
		if len(w) > 3 && !unicode.IsUpper([]rune(w)[0]) {
			return false
		}
	}
	return unicode.IsUpper([]rune(words[0])[0]) && !strings.ContainsAny(line, "0123456789")
}
