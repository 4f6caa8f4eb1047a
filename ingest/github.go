package ingest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/iannuttall/librarian"
	"github.com/iannuttall/librarian/chunk"
	"github.com/iannuttall/librarian/crawl"
	"github.com/iannuttall/librarian/sqlite"
	"golang.org/x/sync/errgroup"
)

// ingestGitHub syncs each entry of the version plan sequentially,
// processing that sync's files with bounded parallelism.
func (o *Orchestrator) ingestGitHub(ctx context.Context, source *librarian.Source, lib *sqlite.Library, opts Options, progress ProgressFunc) (*Stats, error) {
	prior, err := o.Sources.FindSourceVersions(ctx, source.ID)
	if err != nil {
		return nil, err
	}

	plan := o.buildPlan(ctx, source, prior)
	priorByLabel := make(map[string]*librarian.SourceVersion, len(prior))
	for _, v := range prior {
		priorByLabel[v.Label] = v
	}

	total := &Stats{}
	var lastErr error
	for _, entry := range plan {
		stats, err := o.syncLabel(ctx, source, lib, entry, priorByLabel[entry.Label], opts, progress)
		if err != nil {
			// One label's failure never aborts the rest of the plan.
			lastErr = err
			if o.Logger != nil {
				o.Logger.Warn("sync label", "source", source.Library(), "label", entry.Label, "error", err)
			}
			total.Failed++
			continue
		}
		total.add(*stats)
	}

	if total.Processed == 0 && total.Unchanged == 0 && lastErr != nil {
		return nil, lastErr
	}
	return total, nil
}

// syncLabel runs one (label, ref) sync and applies its outcome to the
// library.
func (o *Orchestrator) syncLabel(ctx context.Context, source *librarian.Source, lib *sqlite.Library, entry planEntry, prior *librarian.SourceVersion, opts Options, progress ProgressFunc) (*Stats, error) {
	req := librarian.SyncRequest{
		Owner:    source.Owner,
		Repo:     source.Repo,
		Ref:      entry.Ref,
		Force:    opts.Force,
		BasePath: source.DocsPath,
	}
	if prior != nil {
		req.PrevSHA = prior.CommitSHA
		req.PrevEtag = prior.Etag
	}

	stats := &Stats{}
	seen := make(map[string]struct{})
	var mu sync.Mutex

	// Files stream from the extracted archive into a bounded worker
	// pool; the library database serializes writes internally.
	fileCh := make(chan librarian.LoadedFile, 16)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < o.concurrency(opts); i++ {
		g.Go(func() error {
			for file := range fileCh {
				if err := o.processFile(gctx, source, lib, entry.Label, file, stats, seen, &mu); err != nil {
					// Log and count; one bad file never aborts
					// siblings.
					mu.Lock()
					stats.Failed++
					mu.Unlock()
					if o.Logger != nil {
						o.Logger.Warn("process file", "path", file.Path, "error", err)
					}
				}
				mu.Lock()
				current := stats.Processed
				mu.Unlock()
				if progress != nil {
					progress(Progress{Source: source.Library(), Label: entry.Label, Current: current, Unit: "files"})
				}
			}
			return nil
		})
	}

	result, syncErr := o.Syncer.Sync(ctx, req, func(file librarian.LoadedFile) error {
		select {
		case fileCh <- file:
			return nil
		case <-gctx.Done():
			return gctx.Err()
		}
	})
	close(fileCh)
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if syncErr != nil {
		return nil, syncErr
	}

	if result.Status == librarian.SyncNotModified {
		label := entry.Label
		active := true
		docs, err := lib.Documents.FindDocuments(ctx, librarian.DocumentFilter{VersionLabel: &label, Active: &active})
		if err != nil {
			return nil, err
		}
		stats.Unchanged = len(docs)
		stats.Skipped = stats.Unchanged
		return stats, nil
	}

	deactivated, err := lib.Documents.DeactivateMissing(ctx, entry.Label, seen)
	if err != nil {
		return nil, err
	}
	stats.Deactivated = deactivated

	if err := o.Sources.UpsertSourceVersion(ctx, &librarian.SourceVersion{
		SourceID:  source.ID,
		Label:     entry.Label,
		Ref:       entry.Ref,
		CommitSHA: result.CommitSHA,
		Etag:      result.Etag,
		SyncedAt:  time.Now().UTC(),
	}); err != nil {
		return nil, err
	}

	// The source row tracks the declared label's sync, or the last
	// one processed.
	if source.VersionLabel == "" || source.VersionLabel == entry.Label {
		commit := result.CommitSHA
		etag := result.Etag
		if err := o.Sources.UpdateSource(ctx, source.ID, librarian.SourceUpdate{
			LastCommit: &commit,
			LastEtag:   &etag,
		}); err != nil {
			return nil, err
		}
	}

	return stats, nil
}

// processFile upserts one loaded file as a document and rebuilds its
// chunks when the content changed.
func (o *Orchestrator) processFile(ctx context.Context, source *librarian.Source, lib *sqlite.Library, label string, file librarian.LoadedFile, stats *Stats, seen map[string]struct{}, mu *sync.Mutex) error {
	contentType := librarian.ContentCode
	if chunk.IsMarkdownPath(file.Path) {
		contentType = librarian.ContentMarkdown
	}

	// Docs-only mode keeps markdown that demonstrates code.
	if source.IngestMode == librarian.ModeDocs {
		if contentType != librarian.ContentMarkdown || !crawl.HasCodeSnippet(file.Content) {
			mu.Lock()
			stats.Skipped++
			mu.Unlock()
			return nil
		}
	}

	mu.Lock()
	seen[file.Path] = struct{}{}
	stats.Processed++
	mu.Unlock()

	doc := &librarian.Document{
		SourceID:     source.ID,
		Path:         file.Path,
		VersionLabel: label,
		URI:          source.DocumentURI(file.Path, label),
		Title:        titleForFile(file),
		ContentType:  contentType,
	}
	res, err := lib.Documents.UpsertDocument(ctx, doc, file.Content)
	if err != nil {
		return err
	}

	if !res.Changed {
		mu.Lock()
		stats.Unchanged++
		mu.Unlock()
		return nil
	}

	drafts := chunk.BuildDocumentChunks(chunk.File{
		Path:        file.Path,
		Title:       doc.Title,
		Content:     file.Content,
		ContentType: contentType,
		Language:    file.Language,
		Prefix:      source.Library(),
	})
	if len(drafts) == 0 {
		// Unchunkable content still counts; prior chunks are gone
		// with the rewrite.
		mu.Lock()
		stats.Skipped++
		mu.Unlock()
	}
	if _, err := lib.Chunks.ReplaceChunks(ctx, res.Doc, drafts); err != nil {
		return err
	}

	mu.Lock()
	stats.Updated++
	mu.Unlock()
	return nil
}

// titleForFile extracts the first H1 of markdown, falling back to the
// filename.
func titleForFile(file librarian.LoadedFile) string {
	if chunk.IsMarkdownPath(file.Path) {
		for _, line := range strings.Split(file.Content, "\n") {
			if strings.HasPrefix(line, "# ") {
				return strings.TrimSpace(line[2:])
			}
		}
	}
	parts := strings.Split(file.Path, "/")
	return parts[len(parts)-1]
}
