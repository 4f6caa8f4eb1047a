// Package http provides the crawler's network surface: a page
// fetcher that negotiates markdown before falling back to HTML, and
// the discovery probes for manifests, robots.txt and sitemaps.
package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/iannuttall/librarian"
)

// Timeouts per request class.
const (
	// DefaultFetchTimeout bounds a page fetch.
	DefaultFetchTimeout = 20 * time.Second

	// DefaultProbeTimeout bounds a manifest or robots probe.
	DefaultProbeTimeout = 15 * time.Second

	// DefaultSitemapTimeout bounds a sitemap fetch.
	DefaultSitemapTimeout = 30 * time.Second

	// maxBodyBytes caps a fetched page body.
	maxBodyBytes = 10 << 20
)

// userAgents is a short rotation of realistic browser agents.
var userAgents = []string{
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64; rv:127.0) Gecko/20100101 Firefox/127.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
}

// Compile-time interface verification.
var _ librarian.PageFetcher = (*Fetcher)(nil)

// Fetcher retrieves pages over HTTP. Each fetch first negotiates for
// markdown; servers that don't offer it are re-requested for HTML.
// Fetcher is safe for concurrent use.
type Fetcher struct {
	client  *http.Client
	timeout time.Duration
	counter atomic.Int64
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithTimeout sets the per-fetch timeout.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) { f.timeout = d }
}

// WithClient replaces the HTTP client (e.g. to route through a
// proxy).
func WithClient(client *http.Client) Option {
	return func(f *Fetcher) { f.client = client }
}

// NewFetcher creates a page fetcher.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{timeout: DefaultFetchTimeout}
	for _, opt := range opts {
		opt(f)
	}
	if f.client == nil {
		f.client = &http.Client{}
	}
	return f
}

// UserAgent returns the next agent in the rotation.
func (f *Fetcher) UserAgent() string {
	n := f.counter.Add(1)
	return userAgents[int(n)%len(userAgents)]
}

// FetchPage retrieves one page, preferring a markdown representation.
func (f *Fetcher) FetchPage(ctx context.Context, url string) (*librarian.FetchedPage, error) {
	agent := f.UserAgent()

	body, contentType, err := f.get(ctx, url, agent,
		"text/markdown,text/plain;q=0.9,text/html;q=0.5,*/*;q=0.1")
	if err != nil {
		return nil, err
	}

	if isMarkdownResponse(contentType, body) {
		return &librarian.FetchedPage{URL: url, Markdown: body}, nil
	}
	if strings.Contains(contentType, "text/html") {
		return &librarian.FetchedPage{URL: url, HTML: body}, nil
	}

	// The server ignored the markdown preference; ask for HTML
	// explicitly.
	body, contentType, err = f.get(ctx, url, agent,
		"text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	if err != nil {
		return nil, err
	}
	if isMarkdownResponse(contentType, body) {
		return &librarian.FetchedPage{URL: url, Markdown: body}, nil
	}
	return &librarian.FetchedPage{URL: url, HTML: body}, nil
}

// get issues one GET with an abortable timeout and returns the body
// and content type.
func (f *Fetcher) get(ctx context.Context, url, agent, accept string) (string, string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("User-Agent", agent)
	req.Header.Set("Accept", accept)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("HTTP %d for %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", "", err
	}
	return string(body), resp.Header.Get("Content-Type"), nil
}

// isMarkdownResponse reports whether a response should be treated as
// markdown: a markdown content type, or plain text whose shape looks
// like markdown.
func isMarkdownResponse(contentType, body string) bool {
	if strings.Contains(contentType, "text/markdown") {
		return true
	}
	if strings.Contains(contentType, "text/plain") {
		return looksLikeMarkdown(body)
	}
	return false
}

// looksLikeMarkdown applies cheap shape checks: headings, fences or
// link syntax near the top of the document.
func looksLikeMarkdown(body string) bool {
	head := body
	if len(head) > 4096 {
		head = head[:4096]
	}
	if strings.Contains(head, "<html") || strings.Contains(head, "<!DOCTYPE") {
		return false
	}
	for _, line := range strings.Split(head, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") || strings.HasPrefix(trimmed, "## ") ||
			strings.HasPrefix(trimmed, "```") {
			return true
		}
	}
	return strings.Contains(head, "](")
}
