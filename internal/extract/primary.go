package extract

import (
	"html"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"campaignvideo/internal/core/domain"
)

const (
	projectMarker    = `window.current_project = "`
	projectDelimiter = `";`
	unknownVideoID   = "unknown"
)

// The embedded payload escapes quotes inconsistently, so it is searched with
// targeted patterns rather than decoded as JSON.
var (
	videoIDPattern = regexp.MustCompile(`"video":\s*\{\s*"id"\s*:\s*(\d+)`)
	highURLPattern = regexp.MustCompile(`"high"\s*:\s*"(https://[^"]+\.mp4)"`)
	baseURLPattern = regexp.MustCompile(`"base"\s*:\s*"(https://[^"]+\.mp4)"`)
)

// Primary returns only the campaign's own video from the embedded project payload.
type Primary struct{}

// Extract returns at most one reference, preferring the high quality rendition.
func (Primary) Extract(doc *goquery.Document, _ string) []domain.VideoReference {
	payload, ok := projectPayload(doc)
	if !ok {
		return nil
	}

	videoID := unknownVideoID
	if m := videoIDPattern.FindStringSubmatch(payload); m != nil {
		videoID = m[1]
	}

	for _, q := range []struct {
		label   string
		pattern *regexp.Regexp
	}{
		{"high", highURLPattern},
		{"base", baseURLPattern},
	} {
		if m := q.pattern.FindStringSubmatch(payload); m != nil {
			return []domain.VideoReference{{
				Provenance: domain.ProvenanceScript,
				URL:        strings.TrimSpace(m[1]),
				Quality:    q.label,
				ExternalID: videoID,
			}}
		}
	}
	return nil
}

// projectPayload returns the entity-decoded payload of the first script that
// carries a complete project marker.
func projectPayload(doc *goquery.Document) (string, bool) {
	var (
		payload string
		found   bool
	)
	doc.Find("script").EachWithBreak(func(_ int, script *goquery.Selection) bool {
		text := script.Text()
		start := strings.Index(text, projectMarker)
		if start == -1 {
			return true
		}
		start += len(projectMarker)
		end := strings.Index(text[start:], projectDelimiter)
		if end == -1 {
			return true
		}
		payload = html.UnescapeString(text[start : start+end])
		found = true
		return false
	})
	return payload, found
}
