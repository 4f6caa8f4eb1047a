package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/iannuttall/librarian"
	"github.com/iannuttall/librarian/config"
	"github.com/iannuttall/librarian/crawl"
	"github.com/iannuttall/librarian/gemini"
	"github.com/iannuttall/librarian/github"
	"github.com/iannuttall/librarian/goquery"
	"github.com/iannuttall/librarian/htmltomarkdown"
	lbhttp "github.com/iannuttall/librarian/http"
	"github.com/iannuttall/librarian/ingest"
	"github.com/iannuttall/librarian/openai"
	"github.com/iannuttall/librarian/rod"
	lbslog "github.com/iannuttall/librarian/slog"
	"github.com/iannuttall/librarian/sqlite"
	"github.com/iannuttall/librarian/trafilatura"
	"google.golang.org/genai"
)

func main() {
	ctx := context.Background()

	m := NewMain()
	if err := m.Run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "error: "+librarian.ErrorMessage(err))
		os.Exit(1)
	}
}

// Main represents the program.
type Main struct {
	// Paths override for tests; nil resolves from the environment.
	Paths *config.Paths

	// IndexDB is the opened index database.
	IndexDB *sqlite.DB
}

// NewMain returns a new instance of Main with defaults.
func NewMain() *Main {
	return &Main{}
}

// Close gracefully stops the program.
func (m *Main) Close() error {
	if m.IndexDB != nil {
		return m.IndexDB.Close()
	}
	return nil
}

// Run executes the CLI with the given arguments.
func (m *Main) Run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	deps := &Dependencies{
		Ctx:    ctx,
		Stdout: stdout,
		Stderr: stderr,
		Logger: newLogger(stderr),
		Close:  func() {},
	}

	cli := &CLI{}
	parser, err := kong.New(cli,
		kong.Name("librarian"),
		kong.Description("Local-first documentation indexer and search engine."),
		kong.Writers(stdout, stderr),
		kong.Exit(func(int) {}),
		kong.Bind(deps),
	)
	if err != nil {
		return fmt.Errorf("failed to create parser: %w", err)
	}

	if len(args) == 0 {
		_, _ = parser.Parse([]string{"--help"})
		return fmt.Errorf("no command specified; run 'librarian --help'")
	}

	kongCtx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	paths := m.Paths
	if paths == nil {
		paths, err = config.ResolvePaths()
		if err != nil {
			return err
		}
	}
	if err := paths.Ensure(); err != nil {
		return err
	}
	deps.Paths = paths

	cfg, err := config.Load(paths.ConfigDir)
	if err != nil {
		return err
	}
	deps.Config = cfg

	m.IndexDB = sqlite.NewIndexDB(paths.IndexDBPath)
	if err := m.IndexDB.Open(); err != nil {
		return fmt.Errorf("failed to open index database at %q: %w", paths.IndexDBPath, err)
	}
	defer m.Close()

	deps.Sources = sqlite.NewSourceService(m.IndexDB, paths.LibraryDBDir)
	deps.OpenLibrary = sqlite.OpenLibrary

	httpClient := proxyClient(cfg.Proxy.Endpoint)

	// Models are optional; their absence downgrades hybrid search and
	// disables vector mode.
	deps.Embedder = resolveEmbedder(ctx, cfg)
	deps.Expander = resolveExpander(ctx)

	// The heavier collaborators are only wired for commands that run
	// the pipeline.
	command := kongCtx.Selected().Name
	if needsOrchestrator(command) {
		fetcher := lbhttp.NewFetcher(lbhttp.WithClient(httpClient))

		orch := &ingest.Orchestrator{
			Sources: deps.Sources,
			Syncer: lbslog.NewLoggingSyncer(github.NewSyncer(
				github.WithToken(cfg.GitHub.Token),
				github.WithHTTPClient(httpClient),
			), deps.Logger),
			Host:                github.NewSyncer(github.WithToken(cfg.GitHub.Token), github.WithHTTPClient(httpClient)),
			Fetcher:             lbslog.NewLoggingFetcher(fetcher, deps.Logger),
			Extractor:           trafilatura.NewExtractor(),
			Fallback:            goquery.NewExtractor(),
			Converter:           htmltomarkdown.NewConverter(),
			Limiter:             crawl.NewDomainLimiter(2.0),
			Prober:              lbhttp.NewProbe(httpClient),
			UserAgent:           fetcher.UserAgent,
			Logger:              deps.Logger,
			Concurrency:         cfg.Crawl.Concurrency,
			MinBodyChars:        cfg.Crawl.MinBodyChars,
			RequireCodeSnippets: cfg.Crawl.RequireCodeSnippets,
			MaxMajorVersions:    cfg.Ingest.MaxMajorVersions,
		}

		if cfg.HeadlessEnabled() {
			renderer, err := rod.NewRenderer(
				rod.WithChromePath(cfg.Headless.ChromePath),
				rod.WithProxy(cfg.Headless.Proxy),
			)
			if err != nil {
				deps.Logger.Info("headless rendering disabled", "reason", librarian.ErrorMessage(err))
			} else {
				orch.Renderer = renderer
				deps.Close = func() { renderer.Close() }
			}
		}
		deps.Orch = orch
	}
	defer deps.Close()

	return kongCtx.Run(deps)
}

// needsOrchestrator reports whether a command drives the ingest
// pipeline.
func needsOrchestrator(command string) bool {
	switch command {
	case "ingest", "seed":
		return true
	}
	return false
}

// newLogger builds the session logger; LIBRARIAN_DEBUG enables debug
// output.
func newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("LIBRARIAN_DEBUG") != "" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// proxyClient builds an HTTP client honoring the configured proxy
// endpoint.
func proxyClient(endpoint string) *http.Client {
	if endpoint == "" {
		return &http.Client{}
	}
	proxyURL, err := url.Parse(endpoint)
	if err != nil {
		return &http.Client{}
	}
	return &http.Client{
		Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
	}
}

// resolveEmbedder picks the embedding backend from the configured
// model URI: openai://model, gemini://model, or none.
func resolveEmbedder(ctx context.Context, cfg *config.Config) librarian.Embedder {
	model := cfg.Models.Embed
	switch {
	case strings.HasPrefix(model, "openai://"):
		return openai.NewEmbedder(os.Getenv("OPENAI_API_KEY"), os.Getenv("OPENAI_BASE_URL"),
			strings.TrimPrefix(model, "openai://"))
	case strings.HasPrefix(model, "gemini://"):
		client, err := genaiClient(ctx)
		if err != nil {
			return nil
		}
		return gemini.NewEmbedder(client, strings.TrimPrefix(model, "gemini://"))
	}
	return nil
}

// resolveExpander enables query expansion when a Gemini key is
// available.
func resolveExpander(ctx context.Context) librarian.Expander {
	if os.Getenv("GEMINI_API_KEY") == "" {
		return nil
	}
	client, err := genaiClient(ctx)
	if err != nil {
		return nil
	}
	return gemini.NewExpander(client)
}

func genaiClient(ctx context.Context) (*genai.Client, error) {
	return genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  os.Getenv("GEMINI_API_KEY"),
		Backend: genai.BackendGeminiAPI,
	})
}
