package crawl

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/iannuttall/librarian"
)

var (
	manifestLinkRe = regexp.MustCompile(`^\s*[-*]\s*\[[^\]]*\]\(([^)\s]+)\)`)
	manifestBareRe = regexp.MustCompile(`^\s*[-*]\s+(\S+)\s*$`)
)

// discover seeds the crawl queue on first ingest: llms.txt manifests
// first, then robots.txt sitemap directives and sitemap.xml. When
// nothing is discovered the root URL alone is enqueued at depth 0.
func (c *Crawler) discover(ctx context.Context, source *librarian.Source, scope *librarian.ScopeRules) []*librarian.CrawlPage {
	seeds := c.discoverURLs(ctx, source, scope)
	if len(seeds) == 0 {
		seeds = []string{source.RootURL}
	}

	pages := make([]*librarian.CrawlPage, 0, len(seeds))
	for _, u := range seeds {
		pages = append(pages, &librarian.CrawlPage{
			SourceID:      source.ID,
			URL:           u,
			NormalizedURL: librarian.NormalizeURL(u),
			Depth:         0,
		})
	}
	return pages
}

func (c *Crawler) discoverURLs(ctx context.Context, source *librarian.Source, scope *librarian.ScopeRules) []string {
	if c.Prober == nil {
		return nil
	}

	rootBase := strings.TrimSuffix(source.RootURL, "/")
	domainBase := rootBase
	if u, err := url.Parse(source.RootURL); err == nil {
		domainBase = u.Scheme + "://" + u.Host
	}

	// Manifest files list curated page URLs.
	for _, probe := range dedupe([]string{
		rootBase + "/llms.txt",
		rootBase + "/llms-full.txt",
		domainBase + "/llms.txt",
		domainBase + "/llms-full.txt",
	}) {
		body, err := c.Prober.FetchText(ctx, probe)
		if err != nil {
			continue
		}
		if urls := filterScope(ParseManifest(body, probe), scope); len(urls) > 0 {
			return urls
		}
	}

	// Sitemaps from robots.txt directives, then the conventional
	// location.
	var sitemaps []string
	for _, probe := range dedupe([]string{rootBase + "/robots.txt", domainBase + "/robots.txt"}) {
		body, err := c.Prober.FetchText(ctx, probe)
		if err != nil {
			continue
		}
		sitemaps = append(sitemaps, ParseRobotsSitemaps(body)...)
	}
	sitemaps = append(sitemaps, domainBase+"/sitemap.xml")

	var urls []string
	for _, sitemap := range dedupe(sitemaps) {
		found, err := c.Prober.SitemapURLs(ctx, sitemap)
		if err != nil {
			continue
		}
		urls = append(urls, found...)
	}
	return filterScope(dedupe(urls), scope)
}

// ParseManifest extracts URLs from an llms.txt-style manifest: list
// items of the form "- [title](url)" or "- url", resolved against the
// manifest location. Overlong URLs are dropped.
func ParseManifest(body, manifestURL string) []string {
	base, err := url.Parse(manifestURL)
	if err != nil {
		return nil
	}

	var urls []string
	for _, line := range strings.Split(body, "\n") {
		var target string
		if m := manifestLinkRe.FindStringSubmatch(line); m != nil {
			target = m[1]
		} else if m := manifestBareRe.FindStringSubmatch(line); m != nil {
			target = m[1]
		}
		if target == "" || strings.HasPrefix(target, "#") {
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
		if link := resolved.String(); len(link) <= librarian.MaxURLLength {
			urls = append(urls, link)
		}
	}
	return dedupe(urls)
}

// ParseRobotsSitemaps extracts Sitemap: directives from a robots.txt
// body.
func ParseRobotsSitemaps(body string) []string {
	var sitemaps []string
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(strings.ToLower(line), "sitemap:") {
			if u := strings.TrimSpace(line[len("sitemap:"):]); u != "" {
				sitemaps = append(sitemaps, u)
			}
		}
	}
	return sitemaps
}

// filterScope keeps URLs on the root host under the root path.
func filterScope(urls []string, scope *librarian.ScopeRules) []string {
	var kept []string
	for _, u := range urls {
		normalized := librarian.NormalizeURL(u)
		if scope.InScope(normalized) && scope.UnderRootPath(normalized) {
			kept = append(kept, u)
		}
	}
	return kept
}

func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	var out []string
	for _, item := range items {
		if !seen[item] {
			seen[item] = true
			out = append(out, item)
		}
	}
	return out
}
