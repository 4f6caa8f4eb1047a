package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/iannuttall/librarian"
)

// Compile-time interface verification.
var _ librarian.Prober = (*Probe)(nil)

// Probe issues the lightweight requests that seed a crawl. Sitemap
// indexes are followed recursively up to three levels.
type Probe struct {
	client         *http.Client
	probeTimeout   time.Duration
	sitemapTimeout time.Duration
}

// NewProbe creates a Probe. A nil client uses a default one.
func NewProbe(client *http.Client) *Probe {
	if client == nil {
		client = &http.Client{}
	}
	return &Probe{
		client:         client,
		probeTimeout:   DefaultProbeTimeout,
		sitemapTimeout: DefaultSitemapTimeout,
	}
}

// FetchText returns the body of a URL when it answers 200 with a
// textual payload.
func (p *Probe) FetchText(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgents[0])

	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", librarian.Errorf(librarian.ENOTFOUND, "HTTP %d for %s", resp.StatusCode, url)
	}
	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "image/") || strings.Contains(contentType, "application/octet-stream") {
		return "", librarian.Errorf(librarian.ENOTFOUND, "non-text response for %s", url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// SitemapURLs expands a sitemap or sitemap index into page URLs.
func (p *Probe) SitemapURLs(ctx context.Context, sitemapURL string) ([]string, error) {
	seen := make(map[string]bool)
	return p.walkSitemap(ctx, sitemapURL, seen, 0)
}

// walkSitemap parses one sitemap document, recursing into index
// entries up to depth 3.
func (p *Probe) walkSitemap(ctx context.Context, sitemapURL string, seen map[string]bool, depth int) ([]string, error) {
	if depth > 3 || seen[sitemapURL] {
		return nil, nil
	}
	seen[sitemapURL] = true

	fetchCtx, cancel := context.WithTimeout(ctx, p.sitemapTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, sitemapURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgents[0])

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d for %s", resp.StatusCode, sitemapURL)
	}

	doc := etree.NewDocument()
	if _, err := doc.ReadFrom(io.LimitReader(resp.Body, maxBodyBytes)); err != nil {
		return nil, fmt.Errorf("parsing sitemap XML: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("empty sitemap XML")
	}

	// A sitemap index points at further sitemaps.
	if root.Tag == "sitemapindex" {
		var all []string
		for _, sm := range root.SelectElements("sitemap") {
			loc := sm.SelectElement("loc")
			if loc == nil {
				continue
			}
			child := strings.TrimSpace(loc.Text())
			if child == "" {
				continue
			}
			urls, err := p.walkSitemap(ctx, child, seen, depth+1)
			if err != nil {
				continue
			}
			all = append(all, urls...)
		}
		return all, nil
	}

	var urls []string
	for _, urlEl := range root.SelectElements("url") {
		loc := urlEl.SelectElement("loc")
		if loc == nil {
			continue
		}
		if u := strings.TrimSpace(loc.Text()); u != "" {
			urls = append(urls, u)
		}
	}
	return urls, nil
}
