package ingest_test

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/iannuttall/librarian"
	"github.com/iannuttall/librarian/ingest"
	"github.com/iannuttall/librarian/mock"
	"github.com/iannuttall/librarian/sqlite"
	"github.com/stretchr/testify/require"
)

// testEnv bundles an index database, a registered source and an
// orchestrator wired with mocks.
type testEnv struct {
	sources *sqlite.SourceService
	orch    *ingest.Orchestrator
	source  *librarian.Source
}

func newGitHubEnv(t *testing.T, files []librarian.LoadedFile, mode librarian.IngestMode) *testEnv {
	t.Helper()

	indexDB := sqlite.NewIndexDB(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, indexDB.Open())
	t.Cleanup(func() { indexDB.Close() })

	sources := sqlite.NewSourceService(indexDB, t.TempDir())
	source := &librarian.Source{
		Kind:       librarian.SourceGitHub,
		Name:       "honojs/website",
		Owner:      "honojs",
		Repo:       "website",
		DocsPath:   "docs",
		IngestMode: mode,
	}
	require.NoError(t, sources.CreateSource(context.Background(), source))

	syncer := &mock.ArchiveSyncer{
		SyncFn: func(_ context.Context, req librarian.SyncRequest, emit librarian.SyncEmitFunc) (*librarian.SyncResult, error) {
			if req.PrevSHA == "sha-1" && !req.Force {
				return &librarian.SyncResult{Status: librarian.SyncNotModified, CommitSHA: req.PrevSHA, Etag: req.PrevEtag}, nil
			}
			for _, f := range files {
				if err := emit(f); err != nil {
					return nil, err
				}
			}
			return &librarian.SyncResult{Status: librarian.SyncOK, CommitSHA: "sha-1", Etag: `"etag-1"`}, nil
		},
	}
	host := &mock.RepoHost{
		ListTagsFn:      func(context.Context, string, string) ([]string, error) { return nil, nil },
		DefaultBranchFn: func(context.Context, string, string) (string, error) { return "main", nil },
	}

	return &testEnv{
		sources: sources,
		source:  source,
		orch: &ingest.Orchestrator{
			Sources: sources,
			Syncer:  syncer,
			Host:    host,
		},
	}
}

func docsFiles() []librarian.LoadedFile {
	withCode := "# Getting Started\n\nInstall:\n\n```sh\nnpm install hono\n```\n" +
		strings.Repeat("More details. ", 30)
	return []librarian.LoadedFile{
		{Path: "docs/getting-started.md", Content: withCode, Hash: librarian.HashContent(withCode), Language: ""},
		{Path: "docs/plain.md", Content: "# Plain\n\nNo code here.", Hash: librarian.HashContent("# Plain\n\nNo code here.")},
	}
}

func TestOrchestrator_IngestGitHub(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("docs-only fresh sync", func(t *testing.T) {
		t.Parallel()
		env := newGitHubEnv(t, docsFiles(), librarian.ModeDocs)

		stats, err := env.orch.IngestSource(ctx, env.source, ingest.Options{}, nil)
		require.NoError(t, err)
		require.Greater(t, stats.Processed, 0)
		require.Equal(t, 1, stats.Updated)
		require.Equal(t, 1, stats.Skipped) // markdown without code

		lib, err := sqlite.OpenLibrary(env.source.DBPath)
		require.NoError(t, err)
		defer lib.Close()

		active := true
		docs, err := lib.Documents.FindDocuments(ctx, librarian.DocumentFilter{Active: &active})
		require.NoError(t, err)
		require.Len(t, docs, 1)
		require.True(t, strings.HasPrefix(docs[0].Path, "docs/"))
		require.Equal(t, "Getting Started", docs[0].Title)
		require.Equal(t, "gh://honojs/website@main/docs/getting-started.md", docs[0].URI)

		content, err := lib.Documents.DocumentContent(ctx, docs[0].ID)
		require.NoError(t, err)
		require.Contains(t, content, "```")

		// Version row recorded with the sync outcome.
		versions, err := env.sources.FindSourceVersions(ctx, env.source.ID)
		require.NoError(t, err)
		require.Len(t, versions, 1)
		require.Equal(t, "sha-1", versions[0].CommitSHA)

		// Source bookkeeping updated.
		src, err := env.sources.FindSourceByID(ctx, env.source.ID)
		require.NoError(t, err)
		require.Equal(t, "sha-1", src.LastCommit)
		require.NotNil(t, src.LastSyncAt)
		require.Empty(t, src.LastError)
	})

	t.Run("repo mode keeps code files", func(t *testing.T) {
		t.Parallel()
		files := append(docsFiles(), librarian.LoadedFile{
			Path: "docs/example.go", Content: "package docs\n\nfunc Demo() {}\n", Language: "go",
		})
		env := newGitHubEnv(t, files, librarian.ModeRepo)

		stats, err := env.orch.IngestSource(ctx, env.source, ingest.Options{}, nil)
		require.NoError(t, err)
		require.Equal(t, 3, stats.Processed)
		require.Equal(t, 3, stats.Updated)
	})

	t.Run("second run with no upstream change is idempotent", func(t *testing.T) {
		t.Parallel()
		env := newGitHubEnv(t, docsFiles(), librarian.ModeDocs)

		_, err := env.orch.IngestSource(ctx, env.source, ingest.Options{}, nil)
		require.NoError(t, err)

		stats, err := env.orch.IngestSource(ctx, env.source, ingest.Options{}, nil)
		require.NoError(t, err)
		require.Zero(t, stats.Updated)
		require.Equal(t, stats.Unchanged, stats.Skipped)
		require.Greater(t, stats.Unchanged, 0)
	})

	t.Run("vanished never-indexed path deactivates nothing", func(t *testing.T) {
		t.Parallel()
		env := newGitHubEnv(t, docsFiles(), librarian.ModeDocs)
		_, err := env.orch.IngestSource(ctx, env.source, ingest.Options{}, nil)
		require.NoError(t, err)

		// Upstream moved on: a new sync with one file gone.
		kept := docsFiles()[:1]
		env.orch.Syncer = &mock.ArchiveSyncer{
			SyncFn: func(_ context.Context, req librarian.SyncRequest, emit librarian.SyncEmitFunc) (*librarian.SyncResult, error) {
				newContent := strings.Replace(kept[0].Content, "Install", "Setup", 1)
				if err := emit(librarian.LoadedFile{Path: kept[0].Path, Content: newContent}); err != nil {
					return nil, err
				}
				return &librarian.SyncResult{Status: librarian.SyncOK, CommitSHA: "sha-2", Etag: `"etag-2"`}, nil
			},
		}

		stats, err := env.orch.IngestSource(ctx, env.source, ingest.Options{}, nil)
		require.NoError(t, err)
		require.Equal(t, 1, stats.Updated)
		require.Zero(t, stats.Deactivated) // plain.md was never active (docs filter)
	})

	t.Run("version plan follows tags", func(t *testing.T) {
		t.Parallel()
		env := newGitHubEnv(t, nil, librarian.ModeDocs)
		env.source.VersionLabel = "16.x"

		var mu sync.Mutex
		var refs []string
		env.orch.Host = &mock.RepoHost{
			ListTagsFn: func(context.Context, string, string) ([]string, error) {
				return []string{"v16.2.0", "v16.1.0", "v15.9.9"}, nil
			},
			DefaultBranchFn: func(context.Context, string, string) (string, error) { return "main", nil },
		}
		env.orch.Syncer = &mock.ArchiveSyncer{
			SyncFn: func(_ context.Context, req librarian.SyncRequest, _ librarian.SyncEmitFunc) (*librarian.SyncResult, error) {
				mu.Lock()
				refs = append(refs, req.Ref)
				mu.Unlock()
				return &librarian.SyncResult{Status: librarian.SyncOK, CommitSHA: "sha-" + req.Ref, Etag: ""}, nil
			},
		}

		_, err := env.orch.IngestSource(ctx, env.source, ingest.Options{}, nil)
		require.NoError(t, err)
		require.Equal(t, []string{"v16.2.0", "v15.9.9"}, refs)

		versions, err := env.sources.FindSourceVersions(ctx, env.source.ID)
		require.NoError(t, err)
		require.Len(t, versions, 2)
	})

	t.Run("sync failure lands in last_error", func(t *testing.T) {
		t.Parallel()
		env := newGitHubEnv(t, nil, librarian.ModeDocs)
		env.orch.Syncer = &mock.ArchiveSyncer{
			SyncFn: func(context.Context, librarian.SyncRequest, librarian.SyncEmitFunc) (*librarian.SyncResult, error) {
				return nil, librarian.Errorf(librarian.EUNAUTHORIZED, "github token invalid or expired")
			},
		}

		_, err := env.orch.IngestSource(ctx, env.source, ingest.Options{}, nil)
		require.Error(t, err)

		src, err := env.sources.FindSourceByID(ctx, env.source.ID)
		require.NoError(t, err)
		require.Contains(t, src.LastError, "token invalid")
	})
}

func TestOrchestrator_IngestWeb(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	pad := strings.Repeat("Documentation body text with plenty of detail. ", 8)

	newWebEnv := func(t *testing.T) *testEnv {
		t.Helper()
		indexDB := sqlite.NewIndexDB(filepath.Join(t.TempDir(), "index.db"))
		require.NoError(t, indexDB.Open())
		t.Cleanup(func() { indexDB.Close() })

		sources := sqlite.NewSourceService(indexDB, t.TempDir())
		source := &librarian.Source{
			Kind:     librarian.SourceWeb,
			Name:     "hono.dev",
			RootURL:  "https://hono.dev/docs/guides",
			MaxDepth: 1,
			MaxPages: 10,
		}
		require.NoError(t, sources.CreateSource(ctx, source))

		fetcher := &mock.PageFetcher{
			FetchPageFn: func(_ context.Context, url string) (*librarian.FetchedPage, error) {
				pages := map[string]string{
					"https://hono.dev/docs/guides": "# Guides\n\n" + pad +
						"[rpc](https://hono.dev/docs/guides/rpc)",
					"https://hono.dev/docs/guides/rpc": "# RPC\n\n" + pad,
				}
				body, ok := pages[url]
				if !ok {
					return nil, librarian.Errorf(librarian.ENOTFOUND, "no page %s", url)
				}
				return &librarian.FetchedPage{URL: url, Markdown: body}, nil
			},
		}
		prober := &mock.Prober{
			FetchTextFn: func(context.Context, string) (string, error) {
				return "", librarian.Errorf(librarian.ENOTFOUND, "nope")
			},
			SitemapURLsFn: func(context.Context, string) ([]string, error) {
				return nil, librarian.Errorf(librarian.ENOTFOUND, "nope")
			},
		}

		return &testEnv{
			sources: sources,
			source:  source,
			orch: &ingest.Orchestrator{
				Sources: sources,
				Fetcher: fetcher,
				Prober:  prober,
				Limiter: &mock.DomainLimiter{},
			},
		}
	}

	t.Run("crawl upserts markdown documents", func(t *testing.T) {
		t.Parallel()
		env := newWebEnv(t)

		stats, err := env.orch.IngestSource(ctx, env.source, ingest.Options{}, nil)
		require.NoError(t, err)
		require.Equal(t, 2, stats.Processed)
		require.Equal(t, 2, stats.Updated)
		require.Zero(t, stats.Failed)

		lib, err := sqlite.OpenLibrary(env.source.DBPath)
		require.NoError(t, err)
		defer lib.Close()

		docs, err := lib.Documents.FindDocuments(ctx, librarian.DocumentFilter{})
		require.NoError(t, err)
		require.Len(t, docs, 2)
		for _, d := range docs {
			require.True(t, strings.HasSuffix(d.Path, ".md"))
			require.Equal(t, "latest", d.VersionLabel)
		}

		n, err := lib.Chunks.CountChunks(ctx)
		require.NoError(t, err)
		require.Greater(t, n, int64(0))
	})

	t.Run("resumed run leaves existing documents active", func(t *testing.T) {
		t.Parallel()
		env := newWebEnv(t)

		_, err := env.orch.IngestSource(ctx, env.source, ingest.Options{}, nil)
		require.NoError(t, err)

		// A resumed run with a drained queue must not deactivate
		// anything.
		stats, err := env.orch.IngestSource(ctx, env.source, ingest.Options{}, nil)
		require.NoError(t, err)
		require.Zero(t, stats.Deactivated)

		lib, err := sqlite.OpenLibrary(env.source.DBPath)
		require.NoError(t, err)
		defer lib.Close()

		active := true
		docs, err := lib.Documents.FindDocuments(ctx, librarian.DocumentFilter{Active: &active})
		require.NoError(t, err)
		require.Len(t, docs, 2)
	})
}

func TestEmbedMissing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	lib, err := sqlite.OpenLibrary(filepath.Join(t.TempDir(), "lib.db"))
	require.NoError(t, err)
	defer lib.Close()

	doc := &librarian.Document{SourceID: 1, Path: "a.md", VersionLabel: "1.x", Title: "A"}
	res, err := lib.Documents.UpsertDocument(ctx, doc, "content")
	require.NoError(t, err)
	_, err = lib.Chunks.ReplaceChunks(ctx, res.Doc, []librarian.ChunkDraft{
		{Type: librarian.ChunkDoc, Content: "one", TokenCount: 1},
		{Type: librarian.ChunkDoc, Content: "two", TokenCount: 1},
	})
	require.NoError(t, err)

	embedder := &mock.Embedder{
		EmbedFn: func(_ context.Context, texts []string) ([][]float32, error) {
			out := make([][]float32, len(texts))
			for i, text := range texts {
				require.True(t, strings.HasPrefix(text, "search_document: "))
				out[i] = []float32{float32(len(text)), 1}
			}
			return out, nil
		},
	}

	n, err := ingest.EmbedMissing(ctx, lib, embedder, 0)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	count, err := lib.Vectors.CountEmbeddings(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), count)

	// Second pass has nothing to do.
	n, err = ingest.EmbedMissing(ctx, lib, embedder, 0)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestRetryOnRateLimit(t *testing.T) {
	t.Parallel()

	t.Run("passes through other errors", func(t *testing.T) {
		t.Parallel()
		calls := 0
		err := ingest.RetryOnRateLimit(context.Background(), func() error {
			calls++
			return librarian.Errorf(librarian.ENOTFOUND, "gone")
		})
		require.Equal(t, 1, calls)
		require.Equal(t, librarian.ENOTFOUND, librarian.ErrorCode(err))
	})

	t.Run("retries on rate limit until context cancel", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		calls := 0
		err := ingest.RetryOnRateLimit(ctx, func() error {
			calls++
			return librarian.Errorf(librarian.ERATELIMITED, "slow down")
		})
		require.Equal(t, 1, calls)
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
