package scrape

import (
	"net/url"
	"path"
	"strings"
)

// DefaultExcludePaths are the sections of a treatment-center site that
// discuss addiction and mental health in general terms (articles, news,
// archives) or carry no program facts at all. Facts pulled from them read
// like offers the center never made.
var DefaultExcludePaths = []string{
	"/blog/*",
	"/news/*",
	"/articles/*",
	"/podcast/*",
	"/events/*",
	"/careers/*",
	"/jobs/*",
	"/alumni/*",
	"/tag/*",
	"/category/*",
	"/author/*",
	"/feed/*",
	"/wp-admin/*",
	"/wp-json/*",
	"*.pdf",
	"*.jpg",
	"*.png",
}

type pathRule struct {
	pattern string
	// ext matches the file extension at any depth ("*.pdf").
	ext string
	// dir matches the directory and everything below it ("/blog/*").
	dir string
}

func parseRule(pattern string) pathRule {
	p := strings.ToLower(strings.TrimSpace(pattern))
	r := pathRule{pattern: p}
	switch {
	case strings.HasPrefix(p, "*.") && !strings.ContainsAny(p[2:], "/*?["):
		r.ext = p[1:]
	case strings.HasSuffix(p, "/*"):
		r.dir = strings.TrimSuffix(p, "/*")
	}
	return r
}

func (r pathRule) match(urlPath string) bool {
	if r.ext != "" {
		return strings.HasSuffix(urlPath, r.ext)
	}
	if ok, _ := path.Match(r.pattern, urlPath); ok {
		return true
	}
	return r.dir != "" && (urlPath == r.dir || strings.HasPrefix(urlPath, r.dir+"/"))
}

// PathMatcher decides which site pages are not worth fetching. Patterns are
// globs on the URL path, case-insensitive: "/blog/*" covers the whole
// section including "/blog", and "*.pdf" covers the extension at any depth.
type PathMatcher struct {
	rules []pathRule
}

// NewPathMatcher builds a matcher, using DefaultExcludePaths when patterns
// is empty.
func NewPathMatcher(patterns []string) *PathMatcher {
	if len(patterns) == 0 {
		patterns = DefaultExcludePaths
	}
	m := &PathMatcher{rules: make([]pathRule, 0, len(patterns))}
	for _, p := range patterns {
		if strings.TrimSpace(p) == "" {
			continue
		}
		m.rules = append(m.rules, parseRule(p))
	}
	return m
}

// Patterns returns the normalized patterns.
func (m *PathMatcher) Patterns() []string {
	out := make([]string, len(m.rules))
	for i, r := range m.rules {
		out[i] = r.pattern
	}
	return out
}

// Match returns the pattern that excludes rawURL. An unparseable URL is
// excluded with an empty pattern.
func (m *PathMatcher) Match(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", true
	}
	p := strings.ToLower(u.Path)
	for _, r := range m.rules {
		if r.match(p) {
			return r.pattern, true
		}
	}
	return "", false
}

// IsExcluded reports whether rawURL should be skipped.
func (m *PathMatcher) IsExcluded(rawURL string) bool {
	_, ok := m.Match(rawURL)
	return ok
}
