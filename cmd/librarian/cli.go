package main

import (
	"context"
	"io"
	"log/slog"

	"github.com/iannuttall/librarian"
	"github.com/iannuttall/librarian/config"
	"github.com/iannuttall/librarian/ingest"
	"github.com/iannuttall/librarian/sqlite"
)

// Dependencies holds services and configuration for command
// execution.
type Dependencies struct {
	Ctx    context.Context
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger

	Config  *config.Config
	Paths   *config.Paths
	Sources librarian.SourceService
	Orch    *ingest.Orchestrator

	// Embedder is nil when no embedding model is configured.
	Embedder librarian.Embedder
	Expander librarian.Expander

	// OpenLibrary opens a per-library database.
	OpenLibrary func(path string) (*sqlite.Library, error)

	// Close tears down session resources (headless browser).
	Close func()
}

// CLI defines the command-line interface structure for Kong.
type CLI struct {
	Add     AddCmd     `cmd:"" help:"Register a documentation source (github owner/repo or website URL)"`
	Ingest  IngestCmd  `cmd:"" help:"Sync sources and rebuild their chunks"`
	Embed   EmbedCmd   `cmd:"" help:"Embed chunks that have no vector yet"`
	Search  SearchCmd  `cmd:"" help:"Search a library (word, vector or hybrid mode)"`
	Library LibraryCmd `cmd:"" help:"Find libraries by name"`
	Get     GetCmd     `cmd:"" help:"Print a document, optionally sliced by lines"`
	Status  StatusCmd  `cmd:"" help:"Show per-source document, chunk and queue counts"`
	Cleanup CleanupCmd `cmd:"" help:"Remove inactive documents and orphaned blobs"`
	Detect  DetectCmd  `cmd:"" help:"Report detected browser and model support"`
	Seed    SeedCmd    `cmd:"" help:"Add and ingest many sources from files or URLs"`
	Reset   ResetCmd   `cmd:"" help:"Delete the index and all library databases"`
	Source  SourceCmd  `cmd:"" help:"Manage sources"`
}

// AddCmd registers one source.
type AddCmd struct {
	Target   string   `arg:"" help:"owner/repo or documentation site URL"`
	Name     string   `help:"Display name (defaults to owner/repo, or the site host for URLs)"`
	Ref      string   `help:"Git ref to sync (github sources)"`
	DocsPath string   `name:"docs-path" help:"Restrict ingestion to a repo subdirectory"`
	Mode     string   `default:"docs" enum:"docs,repo" help:"Ingest mode for github sources"`
	Version  string   `help:"Version label for ingested documents"`
	Allow    []string `help:"Allowed path prefixes (web sources, repeatable)"`
	Deny     []string `help:"Denied path prefixes (web sources, repeatable)"`
	MaxDepth int      `name:"max-depth" default:"3" help:"Crawl depth bound (web sources)"`
	MaxPages int      `name:"max-pages" default:"500" help:"Crawl page bound (web sources)"`
}

// IngestCmd syncs sources.
type IngestCmd struct {
	Source      string `help:"Only this library (owner/repo or name)"`
	Embed       bool   `help:"Embed new chunks after ingesting"`
	Force       bool   `help:"Ignore change detection and crawl queues"`
	Concurrency int    `short:"c" default:"5" help:"Parallel files or pages per source"`
}

// EmbedCmd embeds chunks lacking vectors.
type EmbedCmd struct {
	Source string `help:"Only this library (owner/repo or name)"`
	Model  string `help:"Embedding model URI override"`
	Force  bool   `help:"Clear stored embeddings first"`
}

// SearchCmd searches one library.
type SearchCmd struct {
	Library string `required:"" help:"Library to search (owner/repo or name)"`
	Mode    string `default:"hybrid" enum:"word,vector,hybrid" help:"Retrieval mode"`
	Version string `help:"Restrict to a version label"`
	JSON    bool   `name:"json" help:"Emit structured JSON"`
	Query   string `arg:"" help:"Search query"`
}

// LibraryCmd finds libraries by name.
type LibraryCmd struct {
	Version string `help:"Only libraries with this version label"`
	JSON    bool   `name:"json" help:"Emit structured JSON"`
	Query   string `arg:"" optional:"" help:"Name filter"`
}

// GetCmd prints a document.
type GetCmd struct {
	Library string `required:"" help:"Library holding the document"`
	Doc     int64  `help:"Document ID"`
	Path    string `arg:"" optional:"" help:"Document path or URI"`
	Slice   string `help:"Line range a:b (1-based, inclusive)"`
}

// StatusCmd reports per-source counts.
type StatusCmd struct {
	JSON bool `name:"json" help:"Emit structured JSON"`
}

// CleanupCmd garbage-collects inactive documents.
type CleanupCmd struct{}

// DetectCmd reports environment support.
type DetectCmd struct{}

// SeedCmd batch-adds sources.
type SeedCmd struct {
	File        []string `help:"File of targets, one per line (repeatable)"`
	URL         []string `help:"Target to seed (repeatable)"`
	NoIngest    bool     `name:"no-ingest" help:"Register only, skip ingesting"`
	NoEmbed     bool     `name:"no-embed" help:"Skip the embedding pass"`
	Concurrency int      `short:"c" default:"5" help:"Parallel files or pages per source"`
}

// ResetCmd deletes everything.
type ResetCmd struct {
	Force bool `help:"Confirm deletion"`
}

// SourceCmd groups source management.
type SourceCmd struct {
	Add    AddCmd          `cmd:"" help:"Register a documentation source"`
	List   SourceListCmd   `cmd:"" help:"List registered sources"`
	Remove SourceRemoveCmd `cmd:"" help:"Remove a source and its library database"`
}

// SourceListCmd lists sources.
type SourceListCmd struct {
	JSON bool `name:"json" help:"Emit structured JSON"`
}

// SourceRemoveCmd removes one source.
type SourceRemoveCmd struct {
	ID int64 `arg:"" help:"Source ID"`
}
