// Package extract locates video references inside a fetched campaign page.
//
// Two policies are provided. Comprehensive scans every encoding a page can
// carry a video in and returns all distinct URLs. Primary reads only the
// embedded project payload and returns the campaign's own video, which avoids
// the recommended and related videos comprehensive mode also picks up.
package extract

import (
	"fmt"
	"strings"

	"campaignvideo/internal/core/domain"
	"campaignvideo/internal/core/ports"
)

// New returns the extractor for mode ("primary" or "comprehensive").
func New(mode string) (ports.Extractor, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "primary", "":
		return Primary{}, nil
	case "comprehensive":
		return Comprehensive{}, nil
	default:
		return nil, fmt.Errorf("unknown extraction mode %q", mode)
	}
}

// Dedupe trims each URL, drops empty ones and keeps the first reference for
// every distinct URL. URLs are compared as exact strings.
func Dedupe(refs []domain.VideoReference) []domain.VideoReference {
	out := make([]domain.VideoReference, 0, len(refs))
	seen := make(map[string]bool, len(refs))
	for _, ref := range refs {
		ref.URL = strings.TrimSpace(ref.URL)
		if ref.URL == "" || seen[ref.URL] {
			continue
		}
		seen[ref.URL] = true
		out = append(out, ref)
	}
	return out
}
