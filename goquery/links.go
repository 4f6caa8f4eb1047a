package goquery

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ExtractLinks harvests anchor targets from HTML, resolved against
// the base URL. Fragments, mailto and javascript pseudo-links are
// dropped; duplicates are collapsed preserving first-seen order.
func ExtractLinks(rawHTML, baseURL string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var links []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") ||
			strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "javascript:") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		resolved := base.ResolveReference(ref)
		resolved.Fragment = ""
		link := resolved.String()
		if !seen[link] {
			seen[link] = true
			links = append(links, link)
		}
	})
	return links, nil
}

// CountLinks returns the number of distinct outgoing links, used by
// the sparse-page heuristic.
func CountLinks(rawHTML, baseURL string) int {
	links, err := ExtractLinks(rawHTML, baseURL)
	if err != nil {
		return 0
	}
	return len(links)
}
