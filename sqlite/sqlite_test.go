package sqlite_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/iannuttall/librarian"
	"github.com/iannuttall/librarian/sqlite"
	"github.com/stretchr/testify/require"
)

// openTestIndex opens a fresh index database under t.TempDir.
func openTestIndex(t *testing.T) *sqlite.DB {
	t.Helper()
	db := sqlite.NewIndexDB(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, db.Open())
	t.Cleanup(func() { db.Close() })
	return db
}

// openTestLibrary opens a fresh library database under t.TempDir.
func openTestLibrary(t *testing.T) *sqlite.Library {
	t.Helper()
	lib, err := sqlite.OpenLibrary(filepath.Join(t.TempDir(), "lib.db"))
	require.NoError(t, err)
	t.Cleanup(func() { lib.Close() })
	return lib
}

// mustUpsertDoc creates a document with content and returns it.
func mustUpsertDoc(t *testing.T, lib *sqlite.Library, path, label, content string) *librarian.Document {
	t.Helper()
	doc := &librarian.Document{
		SourceID:     1,
		Path:         path,
		VersionLabel: label,
		URI:          "gh://acme/widgets@" + label + "/" + path,
		Title:        path,
		ContentType:  librarian.ContentMarkdown,
	}
	res, err := lib.Documents.UpsertDocument(context.Background(), doc, content)
	require.NoError(t, err)
	return res.Doc
}

func TestDB_Open(t *testing.T) {
	t.Parallel()

	t.Run("applies migrations once", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "lib.db")
		db := sqlite.NewLibraryDB(path)
		require.NoError(t, db.Open())

		ctx := context.Background()
		var n int
		require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM migration").Scan(&n))
		require.Greater(t, n, 0)
		require.NoError(t, db.Close())

		// Reopening must not re-apply anything.
		db = sqlite.NewLibraryDB(path)
		require.NoError(t, db.Open())
		defer db.Close()
		var n2 int
		require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM migration").Scan(&n2))
		require.Equal(t, n, n2)
	})

	t.Run("recreates a corrupt database file", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "lib.db")
		require.NoError(t, os.WriteFile(path, []byte("this is not a sqlite file"), 0o644))

		db := sqlite.NewLibraryDB(path)
		require.NoError(t, db.Open())
		defer db.Close()

		var n int
		require.NoError(t, db.QueryRowContext(context.Background(),
			"SELECT COUNT(*) FROM documents").Scan(&n))
		require.Equal(t, 0, n)
	})
}

func TestSourceService(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	newGitHubSource := func() *librarian.Source {
		return &librarian.Source{
			Kind:  librarian.SourceGitHub,
			Name:  "honojs/website",
			Owner: "honojs",
			Repo:  "website",
			Ref:   "main",
		}
	}

	t.Run("create assigns id and db path", func(t *testing.T) {
		t.Parallel()
		svc := sqlite.NewSourceService(openTestIndex(t), t.TempDir())

		src := newGitHubSource()
		require.NoError(t, svc.CreateSource(ctx, src))
		require.NotZero(t, src.ID)
		require.Contains(t, src.DBPath, "honojs-website")
		require.Equal(t, librarian.ModeDocs, src.IngestMode)
	})

	t.Run("find by library resolves owner/repo and rejects unknown", func(t *testing.T) {
		t.Parallel()
		svc := sqlite.NewSourceService(openTestIndex(t), t.TempDir())
		require.NoError(t, svc.CreateSource(ctx, newGitHubSource()))

		found, err := svc.FindSourceByLibrary(ctx, "honojs/website")
		require.NoError(t, err)
		require.Equal(t, "honojs", found.Owner)

		found, err = svc.FindSourceByLibrary(ctx, "honojs/website")
		require.NoError(t, err)
		require.Equal(t, "website", found.Repo)

		_, err = svc.FindSourceByLibrary(ctx, "nobody/nothing")
		require.Equal(t, librarian.ENOTFOUND, librarian.ErrorCode(err))
	})

	t.Run("update bookkeeping", func(t *testing.T) {
		t.Parallel()
		svc := sqlite.NewSourceService(openTestIndex(t), t.TempDir())
		src := newGitHubSource()
		require.NoError(t, svc.CreateSource(ctx, src))

		now := time.Now().UTC().Truncate(time.Second)
		commit := "abc123"
		lastErr := ""
		require.NoError(t, svc.UpdateSource(ctx, src.ID, librarian.SourceUpdate{
			LastSyncAt: &now,
			LastCommit: &commit,
			LastError:  &lastErr,
		}))

		got, err := svc.FindSourceByID(ctx, src.ID)
		require.NoError(t, err)
		require.Equal(t, "abc123", got.LastCommit)
		require.NotNil(t, got.LastSyncAt)
	})

	t.Run("version rows are replaced per label", func(t *testing.T) {
		t.Parallel()
		svc := sqlite.NewSourceService(openTestIndex(t), t.TempDir())
		src := newGitHubSource()
		require.NoError(t, svc.CreateSource(ctx, src))

		require.NoError(t, svc.UpsertSourceVersion(ctx, &librarian.SourceVersion{
			SourceID: src.ID, Label: "16.x", Ref: "v16.1.0", CommitSHA: "aaa",
		}))
		require.NoError(t, svc.UpsertSourceVersion(ctx, &librarian.SourceVersion{
			SourceID: src.ID, Label: "16.x", Ref: "v16.2.0", CommitSHA: "bbb",
		}))

		versions, err := svc.FindSourceVersions(ctx, src.ID)
		require.NoError(t, err)
		require.Len(t, versions, 1)
		require.Equal(t, "v16.2.0", versions[0].Ref)
		require.Equal(t, "bbb", versions[0].CommitSHA)
	})

	t.Run("delete cascades versions", func(t *testing.T) {
		t.Parallel()
		svc := sqlite.NewSourceService(openTestIndex(t), t.TempDir())
		src := newGitHubSource()
		require.NoError(t, svc.CreateSource(ctx, src))
		require.NoError(t, svc.UpsertSourceVersion(ctx, &librarian.SourceVersion{SourceID: src.ID, Label: "1.x"}))

		require.NoError(t, svc.DeleteSource(ctx, src.ID))
		versions, err := svc.FindSourceVersions(ctx, src.ID)
		require.NoError(t, err)
		require.Empty(t, versions)

		require.Equal(t, librarian.ENOTFOUND, librarian.ErrorCode(svc.DeleteSource(ctx, src.ID)))
	})
}
