package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/iannuttall/librarian"
	"github.com/iannuttall/librarian/config"
	"github.com/iannuttall/librarian/sqlite"
	"github.com/stretchr/testify/require"
)

// newTestMain pins every path under a temp dir.
func newTestMain(t *testing.T) *Main {
	t.Helper()
	base := t.TempDir()
	return &Main{
		Paths: &config.Paths{
			ConfigDir:    filepath.Join(base, "config"),
			CacheDir:     filepath.Join(base, "cache"),
			IndexDBPath:  filepath.Join(base, "cache", "index.db"),
			LibraryDBDir: filepath.Join(base, "cache", "db"),
			ModelsDir:    filepath.Join(base, "cache", "models"),
		},
	}
}

func runCLI(t *testing.T, m *Main, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := m.Run(context.Background(), args, &stdout, &stderr)
	return stdout.String(), err
}

func TestMain_AddAndList(t *testing.T) {
	t.Parallel()
	m := newTestMain(t)

	out, err := runCLI(t, m, "add", "honojs/website", "--docs-path", "docs")
	require.NoError(t, err)
	require.Contains(t, out, "honojs/website")

	out, err = runCLI(t, m, "source", "list")
	require.NoError(t, err)
	require.Contains(t, out, "github")
	require.Contains(t, out, "honojs/website")

	out, err = runCLI(t, m, "add", "https://hono.dev/docs")
	require.NoError(t, err)
	require.Contains(t, out, "web")

	_, err = runCLI(t, m, "add", "not-a-target")
	require.Error(t, err)
}

func TestMain_SearchWordScenario(t *testing.T) {
	t.Parallel()
	m := newTestMain(t)

	_, err := runCLI(t, m, "add", "demo/repo")
	require.NoError(t, err)

	// Seed the library database the way an ingest would.
	ctx := context.Background()
	indexDB := sqlite.NewIndexDB(m.Paths.IndexDBPath)
	require.NoError(t, indexDB.Open())
	sources := sqlite.NewSourceService(indexDB, m.Paths.LibraryDBDir)
	source, err := sources.FindSourceByLibrary(ctx, "demo/repo")
	require.NoError(t, err)
	require.NoError(t, indexDB.Close())

	lib, err := sqlite.OpenLibrary(source.DBPath)
	require.NoError(t, err)
	seed := func(path, label, title, content string) {
		doc := &librarian.Document{
			SourceID: source.ID, Path: path, VersionLabel: label,
			URI: source.DocumentURI(path, label), Title: title,
			ContentType: librarian.ContentMarkdown,
		}
		res, err := lib.Documents.UpsertDocument(ctx, doc, content)
		require.NoError(t, err)
		_, err = lib.Chunks.ReplaceChunks(ctx, res.Doc, []librarian.ChunkDraft{{
			Type: librarian.ChunkDoc, Content: content,
			TokenCount: librarian.ApproxTokens(content), StartLine: 1, EndLine: 3,
		}})
		require.NoError(t, err)
	}
	seed("intro.md", "1.x", "Intro", "Intro\n\nHello world")
	seed("next.md", "2.x", "Next", "Next\n\nNext release notes")
	require.NoError(t, lib.Close())

	out, err := runCLI(t, m, "search", "--library", "demo/repo", "--mode", "word",
		"--version", "1.x", "--json", "Hello")
	require.NoError(t, err)

	var payload struct {
		Items []librarian.SearchItem `json:"items"`
		Meta  map[string]any         `json:"meta"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	require.Len(t, payload.Items, 1)
	require.Equal(t, "intro.md", payload.Items[0].Path)
	require.Equal(t, "demo/repo", payload.Items[0].SourceName)

	// The other version has no hits.
	out, err = runCLI(t, m, "search", "--library", "demo/repo", "--mode", "word",
		"--version", "2.x", "--json", "Hello")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	require.Empty(t, payload.Items)

	// Unknown library is a user error.
	_, err = runCLI(t, m, "search", "--library", "missing/lib", "--mode", "word", "Hello")
	require.Error(t, err)
}

func TestMain_GetSlice(t *testing.T) {
	t.Parallel()
	m := newTestMain(t)

	_, err := runCLI(t, m, "add", "demo/slice")
	require.NoError(t, err)

	ctx := context.Background()
	indexDB := sqlite.NewIndexDB(m.Paths.IndexDBPath)
	require.NoError(t, indexDB.Open())
	sources := sqlite.NewSourceService(indexDB, m.Paths.LibraryDBDir)
	source, err := sources.FindSourceByLibrary(ctx, "demo/slice")
	require.NoError(t, err)
	require.NoError(t, indexDB.Close())

	lib, err := sqlite.OpenLibrary(source.DBPath)
	require.NoError(t, err)
	doc := &librarian.Document{
		SourceID: source.ID, Path: "file.md", VersionLabel: "1.x", Title: "File",
	}
	res, err := lib.Documents.UpsertDocument(ctx, doc, "line1\nline2\nline3\nline4")
	require.NoError(t, err)
	require.NoError(t, lib.Close())
	require.Equal(t, int64(1), res.Doc.ID)

	out, err := runCLI(t, m, "get", "--library", "demo/slice",
		"--doc", "1", "--slice", "2:3")
	require.NoError(t, err)
	require.Equal(t, "line2\nline3\n", out)

	_, err = runCLI(t, m, "get", "--library", "demo/slice", "--doc", "1", "--slice", "3:2")
	require.Error(t, err)

	_, err = runCLI(t, m, "get", "--library", "demo/slice", "--doc", "1", "--slice", "1:500")
	require.Error(t, err)
}

func TestSliceLines(t *testing.T) {
	t.Parallel()

	content := "line1\nline2\nline3\nline4"

	got, err := sliceLines(content, "2:3")
	require.NoError(t, err)
	require.Equal(t, "line2\nline3", got)

	got, err = sliceLines(content, "1:4")
	require.NoError(t, err)
	require.Equal(t, content, got)

	// End past the document clamps.
	got, err = sliceLines(content, "3:10")
	require.NoError(t, err)
	require.Equal(t, "line3\nline4", got)

	_, err = sliceLines(content, "3:2")
	require.Equal(t, librarian.EINVALID, librarian.ErrorCode(err))

	_, err = sliceLines(content, "1:500")
	require.Equal(t, librarian.EINVALID, librarian.ErrorCode(err))

	_, err = sliceLines(content, "40:50")
	require.Equal(t, librarian.EINVALID, librarian.ErrorCode(err))

	_, err = sliceLines(content, "nope")
	require.Equal(t, librarian.EINVALID, librarian.ErrorCode(err))
}

func TestSourceFromTarget(t *testing.T) {
	t.Parallel()

	t.Run("github", func(t *testing.T) {
		t.Parallel()
		source, err := sourceFromTarget(&AddCmd{Target: "honojs/website", Mode: "docs"})
		require.NoError(t, err)
		require.Equal(t, librarian.SourceGitHub, source.Kind)
		require.Equal(t, "honojs", source.Owner)
		require.Equal(t, "website", source.Repo)
	})

	t.Run("web", func(t *testing.T) {
		t.Parallel()
		source, err := sourceFromTarget(&AddCmd{Target: "https://hono.dev/docs", MaxDepth: 2, MaxPages: 10})
		require.NoError(t, err)
		require.Equal(t, librarian.SourceWeb, source.Kind)
		require.Equal(t, "hono.dev", source.Name)
		require.Equal(t, 2, source.MaxDepth)
	})

	t.Run("invalid", func(t *testing.T) {
		t.Parallel()
		_, err := sourceFromTarget(&AddCmd{Target: "plainword"})
		require.Equal(t, librarian.EINVALID, librarian.ErrorCode(err))
	})
}
