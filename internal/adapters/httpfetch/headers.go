// Package httpfetch provides the two HTTP-level fetch strategies: a
// cookie-keeping session with a full browser header profile and retries, and
// a lightweight client that rotates its identity on every request.
package httpfetch

import (
	"fmt"
	"net/http"
)

// UserAgents is the identity pool rotated by the Rotating strategy.
var UserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/121.0",
}

// DefaultUserAgent is sent by the session client.
var DefaultUserAgent = UserAgents[0]

// browserHeaders mimics a top-level navigation from Chrome. Accept-Encoding is
// left to the transport so responses are decompressed transparently.
var browserHeaders = map[string]string{
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7",
	"Accept-Language":           "en-US,en;q=0.9",
	"DNT":                       "1",
	"Upgrade-Insecure-Requests": "1",
	"Sec-Fetch-Dest":            "document",
	"Sec-Fetch-Mode":            "navigate",
	"Sec-Fetch-Site":            "none",
	"Sec-Fetch-User":            "?1",
	"Cache-Control":             "max-age=0",
	"sec-ch-ua":                 `"Not_A Brand";v="8", "Chromium";v="120", "Google Chrome";v="120"`,
	"sec-ch-ua-mobile":          "?0",
	"sec-ch-ua-platform":        `"Windows"`,
}

// mediaHeaders mimics the request a video element issues for its source.
var mediaHeaders = map[string]string{
	"Accept":             "*/*",
	"Accept-Language":    "en-US,en;q=0.9",
	"DNT":                "1",
	"Sec-Fetch-Dest":     "video",
	"Sec-Fetch-Mode":     "no-cors",
	"Sec-Fetch-Site":     "cross-site",
	"sec-ch-ua":          `"Not_A Brand";v="8", "Chromium";v="120", "Google Chrome";v="120"`,
	"sec-ch-ua-mobile":   "?0",
	"sec-ch-ua-platform": `"Windows"`,
}

func applyBrowserHeaders(h http.Header, userAgent, referer string) {
	applyHeaders(h, browserHeaders, userAgent, referer)
}

func applyMediaHeaders(h http.Header, userAgent, referer string) {
	applyHeaders(h, mediaHeaders, userAgent, referer)
}

func applyHeaders(h http.Header, profile map[string]string, userAgent, referer string) {
	for k, v := range profile {
		h.Set(k, v)
	}
	h.Set("User-Agent", userAgent)
	if referer != "" {
		h.Set("Referer", referer)
	}
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d for %s", e.Code, e.URL)
}

// retryable reports whether a status is worth another attempt: bot
// challenges, rate limiting and server errors.
func (e *StatusError) retryable() bool {
	switch {
	case e.Code == http.StatusForbidden, e.Code == http.StatusTooManyRequests:
		return true
	case e.Code >= 500:
		return true
	}
	return false
}
