package slog

import (
	"context"
	"log/slog"
	"time"

	"github.com/iannuttall/librarian"
)

// Ensure LoggingSyncer implements librarian.ArchiveSyncer.
var _ librarian.ArchiveSyncer = (*LoggingSyncer)(nil)

// LoggingSyncer wraps an ArchiveSyncer with info logging.
type LoggingSyncer struct {
	next   librarian.ArchiveSyncer
	logger *slog.Logger
}

// NewLoggingSyncer creates a new LoggingSyncer.
func NewLoggingSyncer(next librarian.ArchiveSyncer, logger *slog.Logger) *LoggingSyncer {
	return &LoggingSyncer{next: next, logger: logger}
}

// Sync delegates to the wrapped syncer, logging the outcome.
func (s *LoggingSyncer) Sync(ctx context.Context, req librarian.SyncRequest, emit librarian.SyncEmitFunc) (*librarian.SyncResult, error) {
	begin := time.Now()
	files := 0
	wrapped := emit
	if emit != nil {
		wrapped = func(f librarian.LoadedFile) error {
			files++
			return emit(f)
		}
	}

	result, err := s.next.Sync(ctx, req, wrapped)
	if err != nil {
		s.logger.Warn("archive sync failed",
			"repo", req.Owner+"/"+req.Repo,
			"ref", req.Ref,
			"duration", time.Since(begin),
			"error", err,
		)
		return nil, err
	}

	if emit == nil {
		files = len(result.Files)
	}
	s.logger.Info("archive sync",
		"repo", req.Owner+"/"+req.Repo,
		"ref", req.Ref,
		"status", result.Status,
		"commit", result.CommitSHA,
		"files", files,
		"skipped", len(result.Skipped),
		"duration", time.Since(begin),
	)
	return result, nil
}
