package model

import (
	"net/url"
	"strings"
	"time"
)

// Page is a fetched document handed to the engine by the crawler.
type Page struct {
	URL        string `json:"url"`
	Title      string `json:"title,omitempty"`
	HTML       string `json:"html,omitempty"`
	Text       string `json:"text,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
}

// Domain returns the lowercased host of the page URL without a www. prefix.
func (p Page) Domain() string {
	return DomainOf(p.URL)
}

// DomainOf extracts the registrable-looking host from a URL or bare host.
func DomainOf(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}

// RunMetadata describes an extraction run for document-level scoring.
type RunMetadata struct {
	PagesAnalyzed     int           `json:"pages_analyzed"`
	HasStructuredData bool          `json:"has_structured_data"`
	AIEnhanced        bool          `json:"ai_enhanced"`
	Duration          time.Duration `json:"duration"`
}
