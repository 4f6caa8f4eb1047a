package config

import (
	"os"
	"path/filepath"
)

// Paths resolves the filesystem layout: the config directory, the
// cache directory housing the index database and the per-library
// database directory, and the models folder.
type Paths struct {
	ConfigDir    string
	CacheDir     string
	IndexDBPath  string
	LibraryDBDir string
	ModelsDir    string
}

// ResolvePaths derives the layout from per-OS defaults, honoring the
// environment overrides.
func ResolvePaths() (*Paths, error) {
	configDir := os.Getenv("LIBRARIAN_CONFIG_DIR")
	if configDir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return nil, err
		}
		configDir = filepath.Join(base, "librarian")
	}

	cacheDir := os.Getenv("LIBRARIAN_CACHE_DIR")
	if cacheDir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			return nil, err
		}
		cacheDir = filepath.Join(base, "librarian")
	}

	p := &Paths{
		ConfigDir:    configDir,
		CacheDir:     cacheDir,
		IndexDBPath:  filepath.Join(cacheDir, "index.db"),
		LibraryDBDir: filepath.Join(cacheDir, "db"),
		ModelsDir:    filepath.Join(cacheDir, "models"),
	}
	if path := os.Getenv("LIBRARIAN_DB_PATH"); path != "" {
		p.IndexDBPath = path
	}
	if dir := os.Getenv("LIBRARIAN_LIBRARY_DB_DIR"); dir != "" {
		p.LibraryDBDir = dir
	}
	return p, nil
}

// Ensure creates the directories the layout needs.
func (p *Paths) Ensure() error {
	for _, dir := range []string{p.ConfigDir, p.CacheDir, p.LibraryDBDir, p.ModelsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}
