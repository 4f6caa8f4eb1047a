package crawl_test

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/iannuttall/librarian"
	"github.com/iannuttall/librarian/crawl"
	"github.com/iannuttall/librarian/mock"
	"github.com/iannuttall/librarian/sqlite"
	"github.com/stretchr/testify/require"
)

// pad grows a page body past the minimum-size gate.
var pad = strings.Repeat("More documentation prose to satisfy the minimum body size. ", 6)

// testSite maps URLs to markdown bodies served by the mock fetcher.
type testSite map[string]string

func (s testSite) fetcher() *mock.PageFetcher {
	return &mock.PageFetcher{
		FetchPageFn: func(_ context.Context, url string) (*librarian.FetchedPage, error) {
			body, ok := s[url]
			if !ok {
				return nil, librarian.Errorf(librarian.ENOTFOUND, "no page %s", url)
			}
			return &librarian.FetchedPage{URL: url, Markdown: body}, nil
		},
	}
}

// failingProber makes discovery fall back to the root URL.
func failingProber() *mock.Prober {
	return &mock.Prober{
		FetchTextFn: func(context.Context, string) (string, error) {
			return "", librarian.Errorf(librarian.ENOTFOUND, "nothing here")
		},
		SitemapURLsFn: func(context.Context, string) ([]string, error) {
			return nil, librarian.Errorf(librarian.ENOTFOUND, "no sitemap")
		},
	}
}

func newTestCrawler(t *testing.T, site testSite) (*crawl.Crawler, *sqlite.Library) {
	t.Helper()
	lib, err := sqlite.OpenLibrary(filepath.Join(t.TempDir(), "lib.db"))
	require.NoError(t, err)
	t.Cleanup(func() { lib.Close() })

	c := &crawl.Crawler{
		Queue:       lib.Crawl,
		Fetcher:     site.fetcher(),
		Prober:      failingProber(),
		Limiter:     &mock.DomainLimiter{},
		Concurrency: 2,
		RetryDelays: []time.Duration{time.Millisecond},
	}
	return c, lib
}

func webSource(maxDepth, maxPages int) *librarian.Source {
	return &librarian.Source{
		ID:       1,
		Kind:     librarian.SourceWeb,
		Name:     "docs.example.com",
		RootURL:  "https://docs.example.com/docs",
		MaxDepth: maxDepth,
		MaxPages: maxPages,
	}
}

func TestCrawler_Run(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("crawls bfs within scope and depth", func(t *testing.T) {
		t.Parallel()

		site := testSite{
			"https://docs.example.com/docs": "# Root\n\n" + pad +
				"[a](https://docs.example.com/docs/a) [b](https://docs.example.com/docs/b) " +
				"[outside](https://other.dev/docs/x) [blog](https://docs.example.com/blog/y)",
			"https://docs.example.com/docs/a": "# A\n\n" + pad +
				"[deep](https://docs.example.com/docs/a/deep)",
			"https://docs.example.com/docs/b": "# B\n\n" + pad,
		}
		c, lib := newTestCrawler(t, site)

		var mu sync.Mutex
		var handled []string
		res, err := c.Run(ctx, webSource(1, 10), false,
			func(_ context.Context, r crawl.PageResult) error {
				mu.Lock()
				handled = append(handled, r.Page.URL)
				mu.Unlock()
				return nil
			}, nil)
		require.NoError(t, err)
		require.Equal(t, 3, res.Done)
		require.Zero(t, res.Failed)

		mu.Lock()
		require.ElementsMatch(t, []string{
			"https://docs.example.com/docs",
			"https://docs.example.com/docs/a",
			"https://docs.example.com/docs/b",
		}, handled)
		mu.Unlock()

		// depth 2 link was never enqueued
		counts, err := lib.Crawl.CountPages(ctx)
		require.NoError(t, err)
		require.Zero(t, counts[librarian.CrawlPending])
		require.Zero(t, counts[librarian.CrawlFailed])
		require.Equal(t, int64(3), counts[librarian.CrawlDone])
	})

	t.Run("short pages fail and enqueue nothing", func(t *testing.T) {
		t.Parallel()

		site := testSite{
			"https://docs.example.com/docs": "tiny [a](https://docs.example.com/docs/a)",
		}
		c, lib := newTestCrawler(t, site)

		res, err := c.Run(ctx, webSource(2, 10), false, nil, nil)
		require.NoError(t, err)
		require.Zero(t, res.Done)
		require.Equal(t, 1, res.Failed)

		counts, err := lib.Crawl.CountPages(ctx)
		require.NoError(t, err)
		require.Equal(t, int64(1), counts[librarian.CrawlFailed])
		require.Zero(t, counts[librarian.CrawlPending])
	})

	t.Run("code snippet gate", func(t *testing.T) {
		t.Parallel()

		site := testSite{
			"https://docs.example.com/docs": "# Root\n\n" + pad,
		}
		c, _ := newTestCrawler(t, site)
		c.RequireCodeSnippets = true

		res, err := c.Run(ctx, webSource(1, 10), false, nil, nil)
		require.NoError(t, err)
		require.Equal(t, 1, res.Failed)
	})

	t.Run("max pages bounds the queue", func(t *testing.T) {
		t.Parallel()

		var links []string
		site := testSite{}
		for i := 0; i < 20; i++ {
			url := "https://docs.example.com/docs/p" + string(rune('a'+i))
			links = append(links, "["+url+"]("+url+")")
			site[url] = "# P\n\n" + pad
		}
		site["https://docs.example.com/docs"] = "# Root\n\n" + pad + strings.Join(links, " ")

		c, lib := newTestCrawler(t, site)
		res, err := c.Run(ctx, webSource(1, 5), false, nil, nil)
		require.NoError(t, err)
		require.Equal(t, 5, res.Done)

		counts, err := lib.Crawl.CountPages(ctx)
		require.NoError(t, err)
		require.Equal(t, int64(5), counts[librarian.CrawlDone])
	})

	t.Run("resume re-picks reset pages without refetching done ones", func(t *testing.T) {
		t.Parallel()

		site := testSite{
			"https://docs.example.com/docs": "# Root\n\n" + pad +
				"[a](https://docs.example.com/docs/a)",
			"https://docs.example.com/docs/a": "# A\n\n" + pad,
		}
		c, lib := newTestCrawler(t, site)

		_, err := c.Run(ctx, webSource(1, 10), false, nil, nil)
		require.NoError(t, err)

		// Simulate an interrupted run by resetting one done row.
		_, err = lib.DB.ExecContext(ctx,
			"UPDATE crawl_pages SET status = 'pending' WHERE url = 'https://docs.example.com/docs/a'")
		require.NoError(t, err)

		var mu sync.Mutex
		var handled []string
		res, err := c.Run(ctx, webSource(1, 10), false,
			func(_ context.Context, r crawl.PageResult) error {
				mu.Lock()
				handled = append(handled, r.Page.URL)
				mu.Unlock()
				return nil
			}, nil)
		require.NoError(t, err)
		require.Equal(t, 1, res.Done)
		mu.Lock()
		require.Equal(t, []string{"https://docs.example.com/docs/a"}, handled)
		mu.Unlock()

		counts, err := lib.Crawl.CountPages(ctx)
		require.NoError(t, err)
		require.Zero(t, counts[librarian.CrawlPending])
		require.Zero(t, counts[librarian.CrawlFailed])
	})

	t.Run("force clears the queue and repeats discovery", func(t *testing.T) {
		t.Parallel()

		site := testSite{
			"https://docs.example.com/docs": "# Root\n\n" + pad,
		}
		c, lib := newTestCrawler(t, site)

		_, err := c.Run(ctx, webSource(1, 10), false, nil, nil)
		require.NoError(t, err)

		var fetched int
		var mu sync.Mutex
		base := site.fetcher()
		c.Fetcher = &mock.PageFetcher{
			FetchPageFn: func(ctx context.Context, url string) (*librarian.FetchedPage, error) {
				mu.Lock()
				fetched++
				mu.Unlock()
				return base.FetchPage(ctx, url)
			},
		}

		// Without force, done pages are not refetched.
		_, err = c.Run(ctx, webSource(1, 10), false, nil, nil)
		require.NoError(t, err)
		require.Zero(t, fetched)

		// With force, the queue resets and the root is fetched again.
		res, err := c.Run(ctx, webSource(1, 10), true, nil, nil)
		require.NoError(t, err)
		require.Equal(t, 1, res.Done)
		require.Equal(t, 1, fetched)

		counts, err := lib.Crawl.CountPages(ctx)
		require.NoError(t, err)
		require.Equal(t, int64(1), counts[librarian.CrawlDone])
	})

	t.Run("manifest discovery seeds the queue", func(t *testing.T) {
		t.Parallel()

		site := testSite{
			"https://docs.example.com/docs/intro": "# Intro\n\n" + pad,
			"https://docs.example.com/docs/setup": "# Setup\n\n" + pad,
		}
		c, _ := newTestCrawler(t, site)
		c.Prober = &mock.Prober{
			FetchTextFn: func(_ context.Context, url string) (string, error) {
				if url == "https://docs.example.com/docs/llms.txt" {
					return "- [Intro](https://docs.example.com/docs/intro)\n- [Setup](https://docs.example.com/docs/setup)\n", nil
				}
				return "", librarian.Errorf(librarian.ENOTFOUND, "nope")
			},
			SitemapURLsFn: func(context.Context, string) ([]string, error) {
				return nil, librarian.Errorf(librarian.ENOTFOUND, "no sitemap")
			},
		}

		res, err := c.Run(ctx, webSource(1, 10), false, nil, nil)
		require.NoError(t, err)
		require.Equal(t, 2, res.Done)
	})

	t.Run("sparse html triggers headless re-fetch", func(t *testing.T) {
		t.Parallel()

		shell := `<html><body><div id="root"></div></body></html>`
		rendered := `<html><head><title>App Docs</title></head><body><main><h1>App</h1><p>` + pad + `</p></main></body></html>`

		c, _ := newTestCrawler(t, nil)
		c.Fetcher = &mock.PageFetcher{
			FetchPageFn: func(_ context.Context, url string) (*librarian.FetchedPage, error) {
				return &librarian.FetchedPage{URL: url, HTML: shell}, nil
			},
		}
		var renderedURLs []string
		c.Renderer = &mock.Renderer{
			RenderFn: func(_ context.Context, url, _ string) (string, error) {
				renderedURLs = append(renderedURLs, url)
				return rendered, nil
			},
		}
		c.Extractor = &mock.Extractor{
			ExtractFn: func(html string) (*librarian.ExtractResult, error) {
				if strings.Contains(html, "<main>") {
					return &librarian.ExtractResult{Title: "App Docs", ContentHTML: "<h1>App</h1><p>" + pad + "</p>"}, nil
				}
				return &librarian.ExtractResult{}, nil
			},
		}
		c.Converter = &mock.Converter{
			ConvertFn: func(html string) (string, error) {
				return "# App\n\n" + pad, nil
			},
		}
		c.Concurrency = 1

		res, err := c.Run(ctx, webSource(1, 10), false, nil, nil)
		require.NoError(t, err)
		require.Equal(t, 1, res.Done)
		require.Equal(t, []string{"https://docs.example.com/docs"}, renderedURLs)
	})
}
