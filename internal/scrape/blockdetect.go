package scrape

import (
	"net/http"
	"strings"
)

// BlockType describes the kind of block detected.
type BlockType string

const (
	BlockNone        BlockType = ""
	BlockCloudflare  BlockType = "cloudflare"
	BlockCaptcha     BlockType = "captcha"
	BlockJSShell     BlockType = "js_shell"
	BlockRateLimited BlockType = "rate_limited"
)

var (
	challengeMarkers = []string{"checking your browser", "cf-browser-verification", "just a moment..."}
	captchaMarkers   = []string{"captcha", "recaptcha", "hcaptcha"}
)

// DetectBlock checks a response for anti-bot protection. A blocked page is
// worth retrying through the reader; its body is never extracted.
func DetectBlock(resp *http.Response, body []byte) (bool, BlockType) {
	if resp == nil {
		return false, BlockNone
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return true, BlockRateLimited
	}
	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusServiceUnavailable {
		if resp.Header.Get("cf-ray") != "" || resp.Header.Get("cf-cache-status") != "" ||
			strings.EqualFold(resp.Header.Get("server"), "cloudflare") {
			return true, BlockCloudflare
		}
	}

	lower := strings.ToLower(string(body))
	for _, m := range challengeMarkers {
		if strings.Contains(lower, m) {
			return true, BlockCloudflare
		}
	}
	if strings.Contains(lower, "cloudflare") && strings.Contains(lower, "challenge") {
		return true, BlockCloudflare
	}
	for _, m := range captchaMarkers {
		if strings.Contains(lower, m) {
			return true, BlockCaptcha
		}
	}

	// Small shells that only render with JavaScript.
	if len(body) < 2000 {
		if strings.Contains(lower, "<noscript") && strings.Contains(lower, "javascript") {
			return true, BlockJSShell
		}
		if strings.Contains(lower, `http-equiv="refresh"`) {
			return true, BlockJSShell
		}
	}
	return false, BlockNone
}
