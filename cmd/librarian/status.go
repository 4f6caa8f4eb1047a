package main

import (
	"fmt"
	"os"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/iannuttall/librarian"
)

// sourceStatus is one row of the status report.
type sourceStatus struct {
	ID         int64  `json:"id"`
	Library    string `json:"library"`
	Kind       string `json:"kind"`
	Documents  int64  `json:"documents"`
	Chunks     int64  `json:"chunks"`
	Embeddings int64  `json:"embeddings"`
	Pending    int64  `json:"pendingPages,omitempty"`
	Failed     int64  `json:"failedPages,omitempty"`
	LastSync   string `json:"lastSync,omitempty"`
	LastError  string `json:"lastError,omitempty"`
}

// Run executes the status command.
func (c *StatusCmd) Run(deps *Dependencies) error {
	sources, err := deps.Sources.FindSources(deps.Ctx, librarian.SourceFilter{})
	if err != nil {
		return err
	}

	var rows []sourceStatus
	for _, source := range sources {
		row := sourceStatus{
			ID:        source.ID,
			Library:   source.Library(),
			Kind:      string(source.Kind),
			LastError: source.LastError,
		}
		if source.LastSyncAt != nil {
			row.LastSync = source.LastSyncAt.Format("2006-01-02 15:04")
		}

		lib, err := deps.OpenLibrary(source.DBPath)
		if err == nil {
			active := true
			if docs, err := lib.Documents.FindDocuments(deps.Ctx, librarian.DocumentFilter{Active: &active}); err == nil {
				row.Documents = int64(len(docs))
			}
			row.Chunks, _ = lib.Chunks.CountChunks(deps.Ctx)
			row.Embeddings, _ = lib.Vectors.CountEmbeddings(deps.Ctx)
			if counts, err := lib.Crawl.CountPages(deps.Ctx); err == nil {
				row.Pending = counts[librarian.CrawlPending]
				row.Failed = counts[librarian.CrawlFailed]
			}
			lib.Close()
		}
		rows = append(rows, row)
	}

	if c.JSON {
		return emitJSON(deps, rows, map[string]any{"count": len(rows)})
	}
	if len(rows) == 0 {
		fmt.Fprintln(deps.Stdout, "No sources registered.")
		return nil
	}
	for _, row := range rows {
		fmt.Fprintf(deps.Stdout, "%d  %s (%s)  docs=%d chunks=%d embeddings=%d",
			row.ID, row.Library, row.Kind, row.Documents, row.Chunks, row.Embeddings)
		if row.Pending > 0 || row.Failed > 0 {
			fmt.Fprintf(deps.Stdout, " queue: pending=%d failed=%d", row.Pending, row.Failed)
		}
		if row.LastSync != "" {
			fmt.Fprintf(deps.Stdout, "  synced %s", row.LastSync)
		}
		if row.LastError != "" {
			fmt.Fprintf(deps.Stdout, "  error: %s", row.LastError)
		}
		fmt.Fprintln(deps.Stdout)
	}
	return nil
}

// Run executes the cleanup command.
func (c *CleanupCmd) Run(deps *Dependencies) error {
	sources, err := deps.Sources.FindSources(deps.Ctx, librarian.SourceFilter{})
	if err != nil {
		return err
	}

	for _, source := range sources {
		lib, err := deps.OpenLibrary(source.DBPath)
		if err != nil {
			fmt.Fprintf(deps.Stderr, "  %s: %s\n", source.Library(), librarian.ErrorMessage(err))
			continue
		}
		docs, blobs, err := lib.Documents.CleanupInactive(deps.Ctx)
		lib.Close()
		if err != nil {
			return err
		}
		fmt.Fprintf(deps.Stdout, "%s: removed %d documents, %d blobs\n", source.Library(), docs, blobs)
	}
	return nil
}

// Run executes the detect command.
func (c *DetectCmd) Run(deps *Dependencies) error {
	if bin, found := launcher.LookPath(); found {
		fmt.Fprintf(deps.Stdout, "headless browser: %s\n", bin)
	} else {
		fmt.Fprintln(deps.Stdout, "headless browser: not found (client-rendered sites will be crawled without rendering)")
	}

	if deps.Config.Models.Embed != "" {
		fmt.Fprintf(deps.Stdout, "embedding model: %s\n", deps.Config.Models.Embed)
	} else {
		fmt.Fprintln(deps.Stdout, "embedding model: not configured (vector search not ready; hybrid search uses text only)")
	}
	if deps.Config.GitHub.Token != "" {
		fmt.Fprintln(deps.Stdout, "github token: configured")
	} else {
		fmt.Fprintln(deps.Stdout, "github token: not set (rate limits apply)")
	}
	fmt.Fprintf(deps.Stdout, "index database: %s\n", deps.Paths.IndexDBPath)
	fmt.Fprintf(deps.Stdout, "library databases: %s\n", deps.Paths.LibraryDBDir)
	return nil
}

// Run executes the reset command.
func (c *ResetCmd) Run(deps *Dependencies) error {
	if !c.Force {
		return librarian.Errorf(librarian.EINVALID,
			"reset deletes every database; pass --force to confirm")
	}

	sources, err := deps.Sources.FindSources(deps.Ctx, librarian.SourceFilter{})
	if err != nil {
		return err
	}
	for _, source := range sources {
		for _, suffix := range []string{"", "-wal", "-shm"} {
			_ = os.Remove(source.DBPath + suffix)
		}
		if err := deps.Sources.DeleteSource(deps.Ctx, source.ID); err != nil {
			return err
		}
	}

	fmt.Fprintf(deps.Stdout, "Removed %d sources and their libraries.\n", len(sources))
	return nil
}
