// Package crawl drives the breadth-first, resumable crawl of a
// documentation site: it seeds the persistent page queue from
// discovery, pops pages in (depth, id) order with bounded
// concurrency, runs the extraction ladder, and enqueues in-scope
// links.
package crawl

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/iannuttall/librarian"
	"github.com/iannuttall/librarian/bloom"
	"github.com/iannuttall/librarian/goquery"
	"golang.org/x/sync/errgroup"
)

// Crawl tuning defaults.
const (
	// DefaultConcurrency bounds parallel page fetches.
	DefaultConcurrency = 5

	// DefaultMinBodyChars rejects pages below this extracted size.
	DefaultMinBodyChars = 200

	// DefaultMaxDepth and DefaultMaxPages apply when the source sets
	// no bounds.
	DefaultMaxDepth = 3
	DefaultMaxPages = 500

	// sparseBodyChars and sparseMinLinks trigger the headless
	// re-fetch for client-rendered pages.
	sparseBodyChars = 400
	sparseMinLinks  = 3

	// Bloom filter sizing for enqueue deduplication.
	frontierExpectedURLs      = 10000
	frontierFalsePositiveRate = 0.01
)

// spaIndicators suggest a client-rendered shell page.
var spaIndicators = []string{
	`id="__next"`, `id="root"`, `id="app"`, `data-reactroot`,
	`window.__NUXT__`, `ng-version`, `id="___gatsby"`,
}

// PageResult is one successfully crawled page handed to the caller.
type PageResult struct {
	Page     *librarian.CrawlPage
	Title    string
	Markdown string
}

// HandleFunc receives each successful page. An error marks the page
// failed without aborting sibling workers.
type HandleFunc func(ctx context.Context, res PageResult) error

// Result summarizes one crawl run.
type Result struct {
	Done   int
	Failed int
}

// ProgressEvent reports crawl progress.
type ProgressEvent struct {
	Type      ProgressType
	Completed int
	Total     int
	URL       string
	Err       error
}

// ProgressType indicates the kind of progress event.
type ProgressType int

// Progress event kinds.
const (
	ProgressStarted ProgressType = iota
	ProgressCompleted
	ProgressFailed
	ProgressFinished
)

// ProgressFunc is a callback for reporting crawl progress.
type ProgressFunc func(event ProgressEvent)

// Crawler coordinates one web source's crawl. All dependencies are
// interfaces from the root package except the link harvester.
type Crawler struct {
	Queue     librarian.CrawlQueue
	Fetcher   librarian.PageFetcher
	Renderer  librarian.Renderer // optional; nil disables headless
	Extractor librarian.Extractor
	Fallback  librarian.Extractor // DOM-select pass when Extractor yields too little
	Converter librarian.Converter
	Limiter   librarian.DomainLimiter
	Prober    librarian.Prober
	Logger    *slog.Logger

	Concurrency         int
	MinBodyChars        int
	RequireCodeSnippets bool
	RetryDelays         []time.Duration

	// UserAgent supplies the agent string for headless rendering.
	UserAgent func() string
}

// crawlState is the shared bookkeeping of one run.
type crawlState struct {
	mu       sync.Mutex
	total    int64
	maxPages int64
	seen     *bloom.Filter
	result   Result
	done     int64
}

// Run executes the crawl for one web source. Force clears the queue
// so discovery repeats; otherwise pending and failed pages resume.
func (c *Crawler) Run(ctx context.Context, source *librarian.Source, force bool, handle HandleFunc, progress ProgressFunc) (*Result, error) {
	scope, err := librarian.NewScopeRules(source)
	if err != nil {
		return nil, err
	}

	maxDepth := source.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	maxPages := source.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}

	if force {
		if err := c.Queue.ResetQueue(ctx); err != nil {
			return nil, err
		}
	}

	counts, err := c.Queue.CountPages(ctx)
	if err != nil {
		return nil, err
	}
	var total int64
	for _, n := range counts {
		total += n
	}

	st := &crawlState{
		maxPages: int64(maxPages),
		seen:     bloom.NewFilter(frontierExpectedURLs, frontierFalsePositiveRate),
	}

	if total == 0 {
		seeds := c.discover(ctx, source, scope)
		if inserted, err := c.enqueue(ctx, st, seeds); err != nil {
			return nil, err
		} else if inserted == 0 {
			return &st.result, nil
		}
	} else {
		st.total = total
		if _, err := c.Queue.ReleaseStuck(ctx); err != nil {
			return nil, err
		}
		if _, err := c.Queue.RequeueFailed(ctx); err != nil {
			return nil, err
		}
	}

	if progress != nil {
		progress(ProgressEvent{Type: ProgressStarted, Total: int(st.total)})
	}

	concurrency := c.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < concurrency; i++ {
		g.Go(func() error {
			return c.worker(gctx, source, scope, st, maxDepth, handle, progress)
		})
	}
	err = g.Wait()

	if progress != nil {
		progress(ProgressEvent{Type: ProgressFinished, Completed: int(st.done), Total: int(st.total)})
	}
	return &st.result, err
}

// worker claims and processes pages until the queue drains.
func (c *Crawler) worker(ctx context.Context, source *librarian.Source, scope *librarian.ScopeRules, st *crawlState, maxDepth int, handle HandleFunc, progress ProgressFunc) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := c.Queue.ClaimNextPage(ctx, false)
		if librarian.ErrorCode(err) == librarian.ENOTFOUND {
			// Another worker may still discover links.
			counts, cErr := c.Queue.CountPages(ctx)
			if cErr != nil {
				return cErr
			}
			if counts[librarian.CrawlFetching] == 0 {
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}
		if err != nil {
			return err
		}

		c.processPage(ctx, source, scope, st, maxDepth, page, handle, progress)
	}
}

// processPage runs the fetch/extract/gate ladder for one claimed
// page. Failures are recorded on the page row and never abort
// siblings.
func (c *Crawler) processPage(ctx context.Context, source *librarian.Source, scope *librarian.ScopeRules, st *crawlState, maxDepth int, page *librarian.CrawlPage, handle HandleFunc, progress ProgressFunc) {
	title, markdown, html, failReason := c.fetchAndExtract(ctx, page.URL)

	if failReason == "" {
		minBody := c.MinBodyChars
		if minBody <= 0 {
			minBody = DefaultMinBodyChars
		}
		switch {
		case len(markdown) < minBody:
			failReason = "page body too short"
		case c.RequireCodeSnippets && !HasCodeSnippet(markdown):
			failReason = "no code snippets found"
		}
	}

	if failReason != "" {
		st.mu.Lock()
		st.result.Failed++
		st.mu.Unlock()
		if err := c.Queue.CompletePage(ctx, page.ID, librarian.CrawlFailed, failReason); err != nil && c.Logger != nil {
			c.Logger.Warn("complete page", "url", page.URL, "error", err)
		}
		if progress != nil {
			progress(ProgressEvent{Type: ProgressFailed, URL: page.URL, Err: librarian.Errorf(librarian.EINVALID, "%s", failReason)})
		}
		return
	}

	// Enqueue in-scope links before handing off the content.
	if page.Depth < maxDepth {
		links := goqueryLinks(html, page.URL)
		links = append(links, MarkdownLinks(markdown, page.URL)...)
		var pages []*librarian.CrawlPage
		for _, link := range links {
			normalized := librarian.NormalizeURL(link)
			if !scope.InScope(normalized) || !scope.UnderRootPath(normalized) {
				continue
			}
			pages = append(pages, &librarian.CrawlPage{
				SourceID:      source.ID,
				URL:           link,
				NormalizedURL: normalized,
				Depth:         page.Depth + 1,
			})
		}
		if _, err := c.enqueue(ctx, st, pages); err != nil && c.Logger != nil {
			c.Logger.Warn("enqueue links", "url", page.URL, "error", err)
		}
	}

	status := librarian.CrawlDone
	pageErr := ""
	if handle != nil {
		if err := handle(ctx, PageResult{Page: page, Title: title, Markdown: markdown}); err != nil {
			status = librarian.CrawlFailed
			pageErr = err.Error()
		}
	}

	st.mu.Lock()
	if status == librarian.CrawlDone {
		st.result.Done++
	} else {
		st.result.Failed++
	}
	st.done++
	done := st.done
	total := st.total
	st.mu.Unlock()

	if err := c.Queue.CompletePage(ctx, page.ID, status, pageErr); err != nil && c.Logger != nil {
		c.Logger.Warn("complete page", "url", page.URL, "error", err)
	}
	if progress != nil {
		progress(ProgressEvent{Type: ProgressCompleted, Completed: int(done), Total: int(total), URL: page.URL})
	}
}

// fetchAndExtract runs the ladder: markdown negotiation, readability
// extraction with DOM-select fallback, sparse-page headless retry,
// then sanitization. A non-empty failReason reports an unusable page.
func (c *Crawler) fetchAndExtract(ctx context.Context, pageURL string) (title, markdown, html, failReason string) {
	if c.Limiter != nil {
		if u, err := url.Parse(pageURL); err == nil {
			if err := c.Limiter.Wait(ctx, u.Host); err != nil {
				return "", "", "", "canceled"
			}
		}
	}

	delays := c.RetryDelays
	if delays == nil {
		delays = DefaultRetryDelays()
	}
	var logf LogFunc
	if c.Logger != nil {
		logf = func(format string, args ...any) { c.Logger.Debug("fetch retry", "detail", args) }
	}

	fetched, err := fetchWithRetry(ctx, c.Fetcher, pageURL, logf, delays)
	if err != nil {
		return "", "", "", "fetch failed: " + err.Error()
	}

	markdown = fetched.Markdown
	html = fetched.HTML
	if markdown == "" && html != "" {
		title, markdown = c.extractMarkdown(html)
	}

	if html != "" && c.Renderer != nil && c.isSparse(markdown, html, pageURL) {
		agent := ""
		if c.UserAgent != nil {
			agent = c.UserAgent()
		}
		if rendered, err := c.Renderer.Render(ctx, pageURL, agent); err == nil && rendered != "" {
			if t, md := c.extractMarkdown(rendered); len(md) > len(markdown) {
				html = rendered
				markdown = md
				title = t
			}
		}
	}

	markdown = SanitizeMarkdown(markdown)
	if title == "" {
		title = titleFromMarkdown(markdown, pageURL)
	}
	return title, markdown, html, ""
}

// extractMarkdown tries the readability extractor first; when it
// yields too little the DOM-select fallback runs, and the longer
// result wins.
func (c *Crawler) extractMarkdown(html string) (title, markdown string) {
	extractors := []librarian.Extractor{c.Extractor, c.Fallback}
	for _, ex := range extractors {
		if ex == nil {
			continue
		}
		res, err := ex.Extract(html)
		if err != nil || res == nil || strings.TrimSpace(res.ContentHTML) == "" {
			continue
		}
		md, err := c.Converter.Convert(res.ContentHTML)
		if err != nil {
			continue
		}
		md = strings.TrimSpace(md)
		if len(md) > len(markdown) {
			markdown = md
			if res.Title != "" {
				title = res.Title
			}
		}
		if len(markdown) >= sparseBodyChars {
			break
		}
	}
	return title, markdown
}

// isSparse reports whether a page looks client-rendered: tiny body,
// almost no links, or SPA shell markers.
func (c *Crawler) isSparse(markdown, html, pageURL string) bool {
	if len(markdown) < sparseBodyChars {
		return true
	}
	if goquery.CountLinks(html, pageURL) < sparseMinLinks {
		return true
	}
	for _, marker := range spaIndicators {
		if strings.Contains(html, marker) {
			return true
		}
	}
	return false
}

// enqueue inserts pages up to the max-page budget, using the bloom
// filter as a cheap pre-check in front of the queue's unique
// constraint.
func (c *Crawler) enqueue(ctx context.Context, st *crawlState, pages []*librarian.CrawlPage) (int, error) {
	st.mu.Lock()
	budget := st.maxPages - st.total
	var fresh []*librarian.CrawlPage
	for _, p := range pages {
		if budget <= 0 {
			break
		}
		if st.seen.Test(p.NormalizedURL) {
			continue
		}
		st.seen.Add(p.NormalizedURL)
		fresh = append(fresh, p)
		budget--
	}
	st.mu.Unlock()

	if len(fresh) == 0 {
		return 0, nil
	}
	inserted, err := c.Queue.EnqueuePages(ctx, fresh)
	if err != nil {
		return 0, err
	}
	st.mu.Lock()
	st.total += int64(inserted)
	st.mu.Unlock()
	return inserted, nil
}

// goqueryLinks harvests anchors, tolerating empty HTML (markdown-
// negotiated pages).
func goqueryLinks(html, base string) []string {
	if html == "" {
		return nil
	}
	links, err := goquery.ExtractLinks(html, base)
	if err != nil {
		return nil
	}
	return links
}

// titleFromMarkdown falls back to the first H1 or the URL path.
func titleFromMarkdown(md, pageURL string) string {
	for _, line := range strings.Split(md, "\n") {
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(line[2:])
		}
	}
	if u, err := url.Parse(pageURL); err == nil && u.Path != "" && u.Path != "/" {
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		return parts[len(parts)-1]
	}
	return pageURL
}
