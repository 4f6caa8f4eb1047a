package github

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// extractArchive unzips the archive into a temporary directory,
// stripping a single common top-level directory and sanitizing entry
// paths: no absolute paths, no parent-dir traversal, symlinks
// skipped. It returns the extraction root, the stripped top-level
// directory name, and a cleanup function that removes the temp
// directory.
func extractArchive(data []byte) (dir, topDir string, cleanup func(), err error) {
	// Entries with traversal names are dropped individually below, so
	// an insecure-path report does not fail the whole archive.
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return "", "", nil, fmt.Errorf("reading archive: %w", err)
	}

	topDir = commonTopDir(reader.File)

	dir, err = os.MkdirTemp("", "librarian-sync-")
	if err != nil {
		return "", "", nil, err
	}
	cleanup = func() { os.RemoveAll(dir) }

	for _, entry := range reader.File {
		if entry.FileInfo().IsDir() {
			continue
		}
		// Skip symlinks: their targets may escape the extraction root.
		if entry.Mode()&os.ModeSymlink != 0 {
			continue
		}

		rel := entry.Name
		if topDir != "" {
			rel = strings.TrimPrefix(rel, topDir+"/")
		}
		rel = filepath.ToSlash(rel)
		if rel == "" || !filepath.IsLocal(rel) {
			continue
		}

		dst := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			cleanup()
			return "", "", nil, err
		}
		if err := extractEntry(entry, dst); err != nil {
			cleanup()
			return "", "", nil, err
		}
	}

	return dir, topDir, cleanup, nil
}

// extractEntry writes one zip entry to disk.
func extractEntry(entry *zip.File, dst string) error {
	src, err := entry.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, src)
	return err
}

// commonTopDir returns the single top-level directory shared by all
// entries, or "" when entries do not share one.
func commonTopDir(files []*zip.File) string {
	top := ""
	for _, f := range files {
		name := strings.TrimPrefix(f.Name, "/")
		first, _, found := strings.Cut(name, "/")
		if !found {
			// A top-level file means there is no common directory.
			if !f.FileInfo().IsDir() {
				return ""
			}
			first = strings.TrimSuffix(name, "/")
		}
		if top == "" {
			top = first
		} else if top != first {
			return ""
		}
	}
	return top
}
