package crawl

import (
	"net/url"
	"regexp"
	"strings"
)

var markdownLinkRe = regexp.MustCompile(`\[[^\]]*\]\(([^)\s]+)\)`)

// MarkdownLinks extracts link targets from markdown text, resolved
// against the base URL. Anchors and non-http schemes are dropped.
func MarkdownLinks(md, baseURL string) []string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var links []string
	for _, m := range markdownLinkRe.FindAllStringSubmatch(md, -1) {
		target := strings.TrimSpace(m[1])
		if target == "" || strings.HasPrefix(target, "#") || strings.HasPrefix(target, "mailto:") {
			continue
		}
		ref, err := url.Parse(target)
		if err != nil {
			continue
		}
		resolved := base.ResolveReference(ref)
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			continue
		}
		resolved.Fragment = ""
		link := resolved.String()
		if !seen[link] {
			seen[link] = true
			links = append(links, link)
		}
	}
	return links
}
