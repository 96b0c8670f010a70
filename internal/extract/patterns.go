package extract

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	// videoExtensions are the file extensions treated as direct video files.
	videoExtensions = []string{".mp4", ".webm", ".mov", ".avi", ".mkv", ".flv"}

	// jsonVideoExtensions is the narrower set used for JSON values and meta content.
	jsonVideoExtensions = []string{".mp4", ".webm", ".mov"}

	// iframeHostMarkers are substrings identifying embeddable video players.
	iframeHostMarkers = []string{"youtube", "youtu.be", "vimeo", "kickstarter", "loom", "wistia", "video"}

	// scriptKeywords gate which inline scripts are scanned.
	scriptKeywords = []string{"mp4", "webm", "video", "youtube", "vimeo"}

	openGraphVideoProperties = map[string]bool{
		"og:video":            true,
		"og:video:url":        true,
		"og:video:secure_url": true,
	}
)

var scriptPatterns = []*regexp.Regexp{
	regexp.MustCompile(`https?://[^\s"'<>]+\.(?:mp4|webm|mov|avi|mkv|flv)[^\s"'<>]*`),
	regexp.MustCompile(`https?://(?:www\.)?(?:youtube\.com|youtu\.be|vimeo\.com|kickstarter\.com)/[^\s"'<>]*`),
	regexp.MustCompile(`"(https?://[^\s"'<>]+\.(?:mp4|webm|mov|avi|mkv|flv)[^\s"'<>]*)"`),
	regexp.MustCompile(`'(https?://[^\s"'<>]+\.(?:mp4|webm|mov|avi|mkv|flv)[^\s"'<>]*)'`),
}

func containsAny(s string, substrs []string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// hasVideoPathSuffix reports whether the path of rawURL ends in a video file
// extension.
func hasVideoPathSuffix(rawURL string) bool {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	p = strings.ToLower(p)
	for _, ext := range videoExtensions {
		if strings.HasSuffix(p, ext) {
			return true
		}
	}
	return false
}

// resolve joins ref against base. Values that do not parse are returned as
// given so nothing is silently dropped.
func resolve(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if base == nil {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}
