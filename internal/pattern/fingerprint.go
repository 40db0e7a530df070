package pattern

import (
	"net/url"
	"strings"
)

// SiteFingerprint is a lightweight structural summary of a site.
type SiteFingerprint struct {
	Domain     string   `json:"domain"`
	CMS        string   `json:"cms,omitempty"`
	NavPattern string   `json:"nav_pattern,omitempty"`
	URLPath    []string `json:"url_path,omitempty"`
}

// NewFingerprint builds a fingerprint from a page URL and detected layout hints.
func NewFingerprint(rawURL, cms, navPattern string) SiteFingerprint {
	fp := SiteFingerprint{CMS: strings.ToLower(cms), NavPattern: strings.ToLower(navPattern)}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fp
	}
	fp.Domain = strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	for _, seg := range strings.Split(u.Path, "/") {
		if seg != "" {
			fp.URLPath = append(fp.URLPath, strings.ToLower(seg))
		}
	}
	return fp
}

// Similarity blends CMS match (0.3), navigation match (0.2) and URL
// structure overlap (0.5).
func Similarity(a, b SiteFingerprint) float64 {
	score := 0.0
	if a.CMS != "" && a.CMS == b.CMS {
		score += 0.3
	}
	if a.NavPattern != "" && a.NavPattern == b.NavPattern {
		score += 0.2
	}
	score += 0.5 * pathOverlap(a.URLPath, b.URLPath)
	return score
}

// pathOverlap is the fraction of equal segments up to the shorter path's length.
func pathOverlap(a, b []string) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		if len(a) == 0 && len(b) == 0 {
			return 1
		}
		return 0
	}
	same := 0
	for i := 0; i < n; i++ {
		if a[i] == b[i] {
			same++
		}
	}
	return float64(same) / float64(n)
}
