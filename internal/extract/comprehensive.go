package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"campaignvideo/internal/core/domain"
)

// Comprehensive collects every video reference found in the document.
type Comprehensive struct{}

// Extract scans the document in a fixed order and deduplicates the result.
func (Comprehensive) Extract(doc *goquery.Document, baseURL string) []domain.VideoReference {
	base, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		base = nil
	}

	c := &collector{base: base}
	c.videoTags(doc)
	c.iframes(doc)
	c.directLinks(doc)
	c.attributes(doc)
	c.scripts(doc)
	c.jsonLD(doc)
	c.jsonData(doc)
	c.openGraph(doc)
	c.metaTags(doc)

	return Dedupe(c.refs)
}

type collector struct {
	base *url.URL
	refs []domain.VideoReference
}

func (c *collector) add(p domain.Provenance, u string) {
	c.refs = append(c.refs, domain.VideoReference{Provenance: p, URL: u})
}

func (c *collector) videoTags(doc *goquery.Document) {
	doc.Find("video").Each(func(_ int, video *goquery.Selection) {
		if src := video.AttrOr("src", ""); src != "" {
			c.add(domain.ProvenanceVideoTag, resolve(c.base, src))
		}
		video.Find("source").Each(func(_ int, source *goquery.Selection) {
			if src := source.AttrOr("src", ""); src != "" {
				c.add(domain.ProvenanceSourceTag, resolve(c.base, src))
			}
		})
	})
}

func (c *collector) iframes(doc *goquery.Document) {
	doc.Find("iframe").Each(func(_ int, iframe *goquery.Selection) {
		src := iframe.AttrOr("src", "")
		if src == "" {
			return
		}
		full := resolve(c.base, src)
		if containsAny(strings.ToLower(full), iframeHostMarkers) {
			c.add(domain.ProvenanceIframe, full)
		}
	})
}

func (c *collector) directLinks(doc *goquery.Document) {
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		full := resolve(c.base, a.AttrOr("href", ""))
		if hasVideoPathSuffix(full) {
			c.add(domain.ProvenanceDirectLink, full)
		}
	})
}

func (c *collector) attributes(doc *goquery.Document) {
	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		for _, node := range s.Nodes {
			for _, attr := range node.Attr {
				value := attr.Val
				if strings.TrimSpace(value) == "" || strings.HasPrefix(value, "data:") {
					continue
				}
				if containsAny(strings.ToLower(value), videoExtensions) {
					c.add(domain.ProvenanceDataAttribute, resolve(c.base, value))
				}
			}
		}
	})
}

func (c *collector) scripts(doc *goquery.Document) {
	doc.Find("script").Each(func(_ int, script *goquery.Selection) {
		text := script.Text()
		if text == "" || !containsAny(strings.ToLower(text), scriptKeywords) {
			return
		}
		for _, re := range scriptPatterns {
			for _, m := range re.FindAllStringSubmatch(text, -1) {
				u := m[0]
				if len(m) > 1 {
					u = m[1]
				}
				c.add(domain.ProvenanceScript, u)
			}
		}
	})
}

func (c *collector) jsonLD(doc *goquery.Document) {
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, script *goquery.Selection) {
		for _, u := range jsonLDContentURLs(script.Text()) {
			c.add(domain.ProvenanceJSONLD, u)
		}
	})
}

func (c *collector) jsonData(doc *goquery.Document) {
	doc.Find(`script[type="application/json"]`).Each(func(_ int, script *goquery.Selection) {
		// Malformed blocks are skipped.
		_ = walkJSONStrings(script.Text(), func(value string) {
			if strings.HasPrefix(value, "http") && containsAny(strings.ToLower(value), jsonVideoExtensions) {
				c.add(domain.ProvenanceJSONData, value)
			}
		})
	})
}

func (c *collector) openGraph(doc *goquery.Document) {
	doc.Find("meta[property]").Each(func(_ int, meta *goquery.Selection) {
		content := meta.AttrOr("content", "")
		if content != "" && openGraphVideoProperties[meta.AttrOr("property", "")] {
			c.add(domain.ProvenanceOpenGraph, content)
		}
	})
}

func (c *collector) metaTags(doc *goquery.Document) {
	doc.Find("meta").Each(func(_ int, meta *goquery.Selection) {
		content := meta.AttrOr("content", "")
		if strings.HasPrefix(content, "http") && containsAny(strings.ToLower(content), jsonVideoExtensions) {
			c.add(domain.ProvenanceMetaTag, content)
		}
	})
}
