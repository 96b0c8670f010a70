package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const maxSafeNameLen = 60

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// Title returns the project title: the first h1, else the title element,
// else "project_<id>".
func Title(doc *goquery.Document, itemID string) string {
	for _, selector := range []string{"h1", "title"} {
		if s := doc.Find(selector).First(); s.Length() > 0 {
			if text := strippedText(s); text != "" {
				return text
			}
		}
	}
	return fmt.Sprintf("project_%s", itemID)
}

// SafeName makes title usable as a file or directory name.
func SafeName(title string) string {
	name := unsafeNameChars.ReplaceAllString(title, "_")
	if len(name) > maxSafeNameLen {
		name = name[:maxSafeNameLen]
	}
	return name
}

// strippedText concatenates every text node under s with surrounding
// whitespace removed from each.
func strippedText(s *goquery.Selection) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(strings.TrimSpace(n.Data))
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range s.Nodes {
		walk(n)
	}
	return b.String()
}
