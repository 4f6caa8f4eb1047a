package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/iannuttall/librarian"
	"github.com/iannuttall/librarian/chunk"
	"github.com/iannuttall/librarian/crawl"
	"github.com/iannuttall/librarian/sqlite"
)

// webVersionLabel groups crawled documents when the source declares
// no label.
const webVersionLabel = "latest"

// ingestWeb runs the crawler and upserts each successful page as a
// markdown document with a synthetic path derived from its URL.
func (o *Orchestrator) ingestWeb(ctx context.Context, source *librarian.Source, lib *sqlite.Library, opts Options, progress ProgressFunc) (*Stats, error) {
	label := source.VersionLabel
	if label == "" {
		label = webVersionLabel
	}

	// A run that starts from an empty (or force-cleared) queue visits
	// the full site, so missing documents can be deactivated
	// afterwards. Resumed runs only touch leftover pages and must not
	// deactivate the rest.
	counts, err := lib.Crawl.CountPages(ctx)
	if err != nil {
		return nil, err
	}
	fullCrawl := opts.Force
	if !fullCrawl {
		var total int64
		for _, n := range counts {
			total += n
		}
		fullCrawl = total == 0
	}

	crawler := &crawl.Crawler{
		Queue:               lib.Crawl,
		Fetcher:             o.Fetcher,
		Renderer:            o.Renderer,
		Extractor:           o.Extractor,
		Fallback:            o.Fallback,
		Converter:           o.Converter,
		Limiter:             o.Limiter,
		Prober:              o.Prober,
		Logger:              o.Logger,
		Concurrency:         o.concurrency(opts),
		MinBodyChars:        o.MinBodyChars,
		RequireCodeSnippets: o.RequireCodeSnippets,
		UserAgent:           o.UserAgent,
	}

	stats := &Stats{}
	seen := make(map[string]struct{})
	var mu sync.Mutex

	handle := func(ctx context.Context, res crawl.PageResult) error {
		path := librarian.PathFromURL(res.Page.NormalizedURL)
		doc := &librarian.Document{
			SourceID:     source.ID,
			Path:         path,
			VersionLabel: label,
			URI:          res.Page.URL,
			Title:        res.Title,
			ContentType:  librarian.ContentMarkdown,
		}
		up, err := lib.Documents.UpsertDocument(ctx, doc, res.Markdown)
		if err != nil {
			return err
		}

		mu.Lock()
		seen[path] = struct{}{}
		stats.Processed++
		mu.Unlock()

		if !up.Changed {
			mu.Lock()
			stats.Unchanged++
			mu.Unlock()
			return nil
		}

		drafts := chunk.BuildDocumentChunks(chunk.File{
			Path:        path,
			Title:       res.Title,
			Content:     res.Markdown,
			ContentType: librarian.ContentMarkdown,
			Prefix:      source.Library(),
		})
		if _, err := lib.Chunks.ReplaceChunks(ctx, up.Doc, drafts); err != nil {
			return err
		}

		mu.Lock()
		stats.Updated++
		mu.Unlock()
		return nil
	}

	var crawlProgress crawl.ProgressFunc
	if progress != nil {
		crawlProgress = func(event crawl.ProgressEvent) {
			if event.Type == crawl.ProgressCompleted {
				progress(Progress{
					Source:  source.Library(),
					Label:   label,
					Current: event.Completed,
					Total:   event.Total,
					Unit:    "pages",
				})
			}
		}
	}

	result, err := crawler.Run(ctx, source, opts.Force, handle, crawlProgress)
	if err != nil {
		return nil, err
	}
	stats.Failed += result.Failed

	if fullCrawl {
		deactivated, err := lib.Documents.DeactivateMissing(ctx, label, seen)
		if err != nil {
			return nil, err
		}
		stats.Deactivated = deactivated
	}

	if err := o.Sources.UpsertSourceVersion(ctx, &librarian.SourceVersion{
		SourceID: source.ID,
		Label:    label,
		Ref:      source.RootURL,
		SyncedAt: time.Now().UTC(),
	}); err != nil {
		return nil, err
	}

	return stats, nil
}
