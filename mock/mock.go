// Package mock provides hand-written mocks for librarian interfaces.
// Each mock exposes function fields invoked by the corresponding
// methods.
package mock

import (
	"context"

	"github.com/iannuttall/librarian"
)

// PageFetcher is a mock librarian.PageFetcher.
type PageFetcher struct {
	FetchPageFn func(ctx context.Context, url string) (*librarian.FetchedPage, error)
}

// FetchPage invokes the mock function.
func (m *PageFetcher) FetchPage(ctx context.Context, url string) (*librarian.FetchedPage, error) {
	return m.FetchPageFn(ctx, url)
}

// Renderer is a mock librarian.Renderer.
type Renderer struct {
	RenderFn func(ctx context.Context, url, userAgent string) (string, error)
	CloseFn  func() error
}

// Render invokes the mock function.
func (m *Renderer) Render(ctx context.Context, url, userAgent string) (string, error) {
	return m.RenderFn(ctx, url, userAgent)
}

// Close invokes the mock function, defaulting to a no-op.
func (m *Renderer) Close() error {
	if m.CloseFn == nil {
		return nil
	}
	return m.CloseFn()
}

// Extractor is a mock librarian.Extractor.
type Extractor struct {
	ExtractFn func(html string) (*librarian.ExtractResult, error)
}

// Extract invokes the mock function.
func (m *Extractor) Extract(html string) (*librarian.ExtractResult, error) {
	return m.ExtractFn(html)
}

// Converter is a mock librarian.Converter.
type Converter struct {
	ConvertFn func(html string) (string, error)
}

// Convert invokes the mock function.
func (m *Converter) Convert(html string) (string, error) {
	return m.ConvertFn(html)
}

// Prober is a mock librarian.Prober.
type Prober struct {
	FetchTextFn   func(ctx context.Context, url string) (string, error)
	SitemapURLsFn func(ctx context.Context, sitemapURL string) ([]string, error)
}

// FetchText invokes the mock function.
func (m *Prober) FetchText(ctx context.Context, url string) (string, error) {
	return m.FetchTextFn(ctx, url)
}

// SitemapURLs invokes the mock function.
func (m *Prober) SitemapURLs(ctx context.Context, sitemapURL string) ([]string, error) {
	return m.SitemapURLsFn(ctx, sitemapURL)
}

// ArchiveSyncer is a mock librarian.ArchiveSyncer.
type ArchiveSyncer struct {
	SyncFn func(ctx context.Context, req librarian.SyncRequest, emit librarian.SyncEmitFunc) (*librarian.SyncResult, error)
}

// Sync invokes the mock function.
func (m *ArchiveSyncer) Sync(ctx context.Context, req librarian.SyncRequest, emit librarian.SyncEmitFunc) (*librarian.SyncResult, error) {
	return m.SyncFn(ctx, req, emit)
}

// RepoHost is a mock librarian.RepoHost.
type RepoHost struct {
	ListTagsFn      func(ctx context.Context, owner, repo string) ([]string, error)
	DefaultBranchFn func(ctx context.Context, owner, repo string) (string, error)
}

// ListTags invokes the mock function.
func (m *RepoHost) ListTags(ctx context.Context, owner, repo string) ([]string, error) {
	return m.ListTagsFn(ctx, owner, repo)
}

// DefaultBranch invokes the mock function.
func (m *RepoHost) DefaultBranch(ctx context.Context, owner, repo string) (string, error) {
	return m.DefaultBranchFn(ctx, owner, repo)
}

// Embedder is a mock librarian.Embedder.
type Embedder struct {
	EmbedFn    func(ctx context.Context, texts []string) ([][]float32, error)
	ModelURIFn func() string
}

// Embed invokes the mock function.
func (m *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return m.EmbedFn(ctx, texts)
}

// ModelURI invokes the mock function, defaulting to a fixed URI.
func (m *Embedder) ModelURI() string {
	if m.ModelURIFn == nil {
		return "mock://embedder"
	}
	return m.ModelURIFn()
}

// Expander is a mock librarian.Expander.
type Expander struct {
	ExpandFn func(ctx context.Context, q string, n int) ([]string, error)
}

// Expand invokes the mock function.
func (m *Expander) Expand(ctx context.Context, q string, n int) ([]string, error) {
	return m.ExpandFn(ctx, q, n)
}

// DomainLimiter is a mock librarian.DomainLimiter that never blocks
// unless a function is provided.
type DomainLimiter struct {
	WaitFn func(ctx context.Context, domain string) error
}

// Wait invokes the mock function, defaulting to a no-op.
func (m *DomainLimiter) Wait(ctx context.Context, domain string) error {
	if m.WaitFn == nil {
		return nil
	}
	return m.WaitFn(ctx, domain)
}
