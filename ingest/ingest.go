// Package ingest drives the pipeline per source: it plans version
// labels, calls the archive sync or the web crawler, feeds the
// chunker, writes documents and chunks, deactivates stale documents
// and records sync metadata.
package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/iannuttall/librarian"
	"github.com/iannuttall/librarian/sqlite"
)

// DefaultConcurrency bounds parallel file processing within one
// source.
const DefaultConcurrency = 5

// DefaultMaxMajorVersions bounds the tag-derived entries of a version
// plan.
const DefaultMaxMajorVersions = 3

// Stats summarizes one ingest run.
type Stats struct {
	Processed   int `json:"processed"`
	Updated     int `json:"updated"`
	Unchanged   int `json:"unchanged"`
	Skipped     int `json:"skipped"`
	Failed      int `json:"failed"`
	Deactivated int `json:"deactivated"`
}

// add merges per-label stats into the run total.
func (s *Stats) add(other Stats) {
	s.Processed += other.Processed
	s.Updated += other.Updated
	s.Unchanged += other.Unchanged
	s.Skipped += other.Skipped
	s.Failed += other.Failed
	s.Deactivated += other.Deactivated
}

// Options modify one ingest run.
type Options struct {
	// Force bypasses change detection and clears the crawl queue.
	Force bool

	// Embedder, when set, embeds missing chunks after the ingest.
	Embedder librarian.Embedder

	// Concurrency overrides the per-source worker bound.
	Concurrency int
}

// Progress reports ingest progress as current/total units (files or
// pages).
type Progress struct {
	Source  string
	Label   string
	Current int
	Total   int
	Unit    string
}

// ProgressFunc receives progress callbacks. Implementations must not
// block; callbacks are issued outside locks.
type ProgressFunc func(Progress)

// Orchestrator wires the pipeline's collaborators. Each source owns
// its library database and is processed serially with intra-source
// parallelism.
type Orchestrator struct {
	Sources librarian.SourceService
	Syncer  librarian.ArchiveSyncer
	Host    librarian.RepoHost

	// Web crawling collaborators.
	Fetcher   librarian.PageFetcher
	Renderer  librarian.Renderer
	Extractor librarian.Extractor
	Fallback  librarian.Extractor
	Converter librarian.Converter
	Limiter   librarian.DomainLimiter
	Prober    librarian.Prober
	UserAgent func() string

	Logger *slog.Logger

	Concurrency         int
	MinBodyChars        int
	RequireCodeSnippets bool
	MaxMajorVersions    int

	// OpenLibrary is overridable for tests; nil uses
	// sqlite.OpenLibrary.
	OpenLibrary func(path string) (*sqlite.Library, error)
}

// IngestSource runs the pipeline for one source. The library database
// is opened for the duration and closed on every exit path; failures
// are recorded on the source row and returned.
func (o *Orchestrator) IngestSource(ctx context.Context, source *librarian.Source, opts Options, progress ProgressFunc) (*Stats, error) {
	openLibrary := o.OpenLibrary
	if openLibrary == nil {
		openLibrary = sqlite.OpenLibrary
	}
	lib, err := openLibrary(source.DBPath)
	if err != nil {
		return nil, err
	}
	defer lib.Close()

	var stats *Stats
	switch source.Kind {
	case librarian.SourceGitHub:
		stats, err = o.ingestGitHub(ctx, source, lib, opts, progress)
	case librarian.SourceWeb:
		stats, err = o.ingestWeb(ctx, source, lib, opts, progress)
	default:
		err = librarian.Errorf(librarian.EINVALID, "unknown source kind %q", source.Kind)
	}

	now := time.Now().UTC()
	upd := librarian.SourceUpdate{LastSyncAt: &now}
	if err != nil {
		msg := librarian.ErrorMessage(err)
		if librarian.ErrorCode(err) == librarian.EINTERNAL {
			msg = err.Error()
		}
		upd.LastError = &msg
	} else {
		empty := ""
		upd.LastError = &empty
	}
	if uErr := o.Sources.UpdateSource(ctx, source.ID, upd); uErr != nil && o.Logger != nil {
		o.Logger.Warn("update source bookkeeping", "source", source.Library(), "error", uErr)
	}
	if err != nil {
		return nil, err
	}

	if opts.Embedder != nil {
		if _, eErr := EmbedMissing(ctx, lib, opts.Embedder, 0); eErr != nil && o.Logger != nil {
			o.Logger.Warn("embedding pass", "source", source.Library(), "error", eErr)
		}
	}

	return stats, nil
}

// concurrency resolves the per-source worker bound.
func (o *Orchestrator) concurrency(opts Options) int {
	if opts.Concurrency > 0 {
		return opts.Concurrency
	}
	if o.Concurrency > 0 {
		return o.Concurrency
	}
	return DefaultConcurrency
}

// RetryOnRateLimit runs fn, backing off on rate-limit errors with the
// 15s, 30s, 60s, 120s ladder (up to three retries). Seed-driven
// ingests use it so a burst of new sources survives GitHub's
// unauthenticated limits.
func RetryOnRateLimit(ctx context.Context, fn func() error) error {
	delays := []time.Duration{15 * time.Second, 30 * time.Second, 60 * time.Second, 120 * time.Second}
	var err error
	for attempt := 0; attempt <= 3; attempt++ {
		err = fn()
		if librarian.ErrorCode(err) != librarian.ERATELIMITED {
			return err
		}
		if attempt == 3 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delays[attempt]):
		}
	}
	return err
}
