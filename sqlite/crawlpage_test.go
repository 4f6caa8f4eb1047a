package sqlite_test

import (
	"context"
	"testing"

	"github.com/iannuttall/librarian"
	"github.com/stretchr/testify/require"
)

func TestCrawlQueue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	page := func(url string, depth int) *librarian.CrawlPage {
		return &librarian.CrawlPage{SourceID: 1, URL: url, Depth: depth}
	}

	t.Run("enqueue deduplicates by normalized url", func(t *testing.T) {
		t.Parallel()
		lib := openTestLibrary(t)

		n, err := lib.Crawl.EnqueuePages(ctx, []*librarian.CrawlPage{
			page("https://hono.dev/docs", 0),
			page("https://hono.dev/docs/", 0),
			page("https://hono.dev/docs/guides", 1),
		})
		require.NoError(t, err)
		require.Equal(t, 2, n)
	})

	t.Run("claim follows (depth, id) order", func(t *testing.T) {
		t.Parallel()
		lib := openTestLibrary(t)

		_, err := lib.Crawl.EnqueuePages(ctx, []*librarian.CrawlPage{
			page("https://hono.dev/deep", 2),
			page("https://hono.dev/root", 0),
			page("https://hono.dev/mid-b", 1),
			page("https://hono.dev/mid-a", 1),
		})
		require.NoError(t, err)

		var order []string
		for {
			p, err := lib.Crawl.ClaimNextPage(ctx, false)
			if librarian.ErrorCode(err) == librarian.ENOTFOUND {
				break
			}
			require.NoError(t, err)
			require.Equal(t, librarian.CrawlFetching, p.Status)
			order = append(order, p.URL)
			require.NoError(t, lib.Crawl.CompletePage(ctx, p.ID, librarian.CrawlDone, ""))
		}
		require.Equal(t, []string{
			"https://hono.dev/root",
			"https://hono.dev/mid-b",
			"https://hono.dev/mid-a",
			"https://hono.dev/deep",
		}, order)
	})

	t.Run("failed pages are re-picked without duplication", func(t *testing.T) {
		t.Parallel()
		lib := openTestLibrary(t)

		_, err := lib.Crawl.EnqueuePages(ctx, []*librarian.CrawlPage{page("https://hono.dev/x", 0)})
		require.NoError(t, err)

		p, err := lib.Crawl.ClaimNextPage(ctx, false)
		require.NoError(t, err)
		require.NoError(t, lib.Crawl.CompletePage(ctx, p.ID, librarian.CrawlFailed, "boom"))

		// Not retried by default.
		_, err = lib.Crawl.ClaimNextPage(ctx, false)
		require.Equal(t, librarian.ENOTFOUND, librarian.ErrorCode(err))

		// Retried when asked, and still a single row.
		p2, err := lib.Crawl.ClaimNextPage(ctx, true)
		require.NoError(t, err)
		require.Equal(t, p.ID, p2.ID)

		counts, err := lib.Crawl.CountPages(ctx)
		require.NoError(t, err)
		require.Equal(t, int64(1), counts[librarian.CrawlFetching])
	})

	t.Run("complete rejects pages not being fetched", func(t *testing.T) {
		t.Parallel()
		lib := openTestLibrary(t)

		_, err := lib.Crawl.EnqueuePages(ctx, []*librarian.CrawlPage{page("https://hono.dev/x", 0)})
		require.NoError(t, err)

		err = lib.Crawl.CompletePage(ctx, 1, librarian.CrawlDone, "")
		require.Equal(t, librarian.ECONFLICT, librarian.ErrorCode(err))

		err = lib.Crawl.CompletePage(ctx, 1, librarian.CrawlPending, "")
		require.Equal(t, librarian.EINVALID, librarian.ErrorCode(err))
	})

	t.Run("release stuck and reset", func(t *testing.T) {
		t.Parallel()
		lib := openTestLibrary(t)

		_, err := lib.Crawl.EnqueuePages(ctx, []*librarian.CrawlPage{page("https://hono.dev/x", 0)})
		require.NoError(t, err)
		_, err = lib.Crawl.ClaimNextPage(ctx, false)
		require.NoError(t, err)

		released, err := lib.Crawl.ReleaseStuck(ctx)
		require.NoError(t, err)
		require.Equal(t, int64(1), released)

		require.NoError(t, lib.Crawl.ResetQueue(ctx))
		counts, err := lib.Crawl.CountPages(ctx)
		require.NoError(t, err)
		require.Empty(t, counts)
	})
}
