// Package slog provides logging decorators for librarian interfaces.
package slog

import (
	"context"
	"log/slog"
	"time"

	"github.com/iannuttall/librarian"
)

// Ensure LoggingFetcher implements librarian.PageFetcher.
var _ librarian.PageFetcher = (*LoggingFetcher)(nil)

// LoggingFetcher wraps a PageFetcher with debug logging.
type LoggingFetcher struct {
	next   librarian.PageFetcher
	logger *slog.Logger
}

// NewLoggingFetcher creates a new LoggingFetcher.
func NewLoggingFetcher(next librarian.PageFetcher, logger *slog.Logger) *LoggingFetcher {
	return &LoggingFetcher{next: next, logger: logger}
}

// FetchPage delegates to the wrapped fetcher, logging outcome and
// timing.
func (f *LoggingFetcher) FetchPage(ctx context.Context, url string) (*librarian.FetchedPage, error) {
	begin := time.Now()
	page, err := f.next.FetchPage(ctx, url)
	if err != nil {
		f.logger.Debug("page fetch failed",
			"url", url,
			"duration", time.Since(begin),
			"error", err,
		)
		return nil, err
	}

	kind := "html"
	size := len(page.HTML)
	if page.Markdown != "" {
		kind = "markdown"
		size = len(page.Markdown)
	}
	f.logger.Debug("page fetched",
		"url", url,
		"kind", kind,
		"bytes", size,
		"duration", time.Since(begin),
	)
	return page, nil
}
