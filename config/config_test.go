package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/iannuttall/librarian/config"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("missing file yields zero config", func(t *testing.T) {
		cfg, err := config.Load(t.TempDir())
		require.NoError(t, err)
		require.Empty(t, cfg.GitHub.Token)
		require.True(t, cfg.HeadlessEnabled())
	})

	t.Run("parses known keys", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), []byte(`
github:
  token: ghp_test
models:
  embed: hf://acme/embed-small
search:
  strongScore: 0.9
  strongGap: 0.2
headless:
  enabled: false
crawl:
  concurrency: 3
  minBodyChars: 150
ingest:
  maxMajorVersions: 2
`), 0o644))

		cfg, err := config.Load(dir)
		require.NoError(t, err)
		require.Equal(t, "ghp_test", cfg.GitHub.Token)
		require.Equal(t, "hf://acme/embed-small", cfg.Models.Embed)
		require.Equal(t, 0.9, cfg.Search.StrongScore)
		require.False(t, cfg.HeadlessEnabled())
		require.Equal(t, 3, cfg.Crawl.Concurrency)
		require.Equal(t, 2, cfg.Ingest.MaxMajorVersions)
	})

	t.Run("env token wins", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"),
			[]byte("github:\n  token: from-file\n"), 0o644))
		t.Setenv("LIBRARIAN_GITHUB_TOKEN", "from-env")

		cfg, err := config.Load(dir)
		require.NoError(t, err)
		require.Equal(t, "from-env", cfg.GitHub.Token)
	})
}

func TestResolvePaths(t *testing.T) {
	t.Setenv("LIBRARIAN_CONFIG_DIR", "/tmp/lc")
	t.Setenv("LIBRARIAN_CACHE_DIR", "/tmp/lcache")
	t.Setenv("LIBRARIAN_DB_PATH", "")
	t.Setenv("LIBRARIAN_LIBRARY_DB_DIR", "")

	p, err := config.ResolvePaths()
	require.NoError(t, err)
	require.Equal(t, "/tmp/lc", p.ConfigDir)
	require.Equal(t, filepath.Join("/tmp/lcache", "index.db"), p.IndexDBPath)
	require.Equal(t, filepath.Join("/tmp/lcache", "db"), p.LibraryDBDir)

	t.Setenv("LIBRARIAN_DB_PATH", "/elsewhere/idx.db")
	p, err = config.ResolvePaths()
	require.NoError(t, err)
	require.Equal(t, "/elsewhere/idx.db", p.IndexDBPath)
}
