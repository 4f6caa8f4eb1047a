package github

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/iannuttall/librarian"
	"github.com/iannuttall/librarian/chunk"
)

// extractedFile pairs an absolute path with its repo-relative path.
type extractedFile struct {
	abs string
	rel string
}

// loadFiles walks the extracted tree from basePath, filters, reads
// and hashes the surviving files, and either streams them through
// emit or accumulates them on the result.
func (s *Syncer) loadFiles(root, basePath string, result *librarian.SyncResult, emit librarian.SyncEmitFunc) error {
	walkRoot := root
	if basePath != "" {
		walkRoot = filepath.Join(root, filepath.FromSlash(basePath))
		if _, err := os.Stat(walkRoot); err != nil {
			return librarian.Errorf(librarian.ENOTFOUND, "path %q not found in repository", basePath)
		}
	}

	var files []extractedFile
	err := filepath.WalkDir(walkRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		files = append(files, extractedFile{abs: p, rel: filepath.ToSlash(rel)})
		return nil
	})
	if err != nil {
		return err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].rel < files[j].rel })

	var tree strings.Builder
	for _, f := range files {
		if !KeepPath(f.rel) {
			continue
		}

		info, err := os.Stat(f.abs)
		if err != nil {
			return err
		}
		if info.Size() > s.MaxFileBytes {
			result.Skipped = append(result.Skipped, librarian.SkippedFile{
				Path: f.rel, Reason: "file_too_large",
			})
			continue
		}

		data, err := os.ReadFile(f.abs)
		if err != nil {
			return err
		}
		if !utf8.Valid(data) {
			result.Skipped = append(result.Skipped, librarian.SkippedFile{
				Path: f.rel, Reason: "not_utf8",
			})
			continue
		}

		loaded := librarian.LoadedFile{
			Path:     f.rel,
			Content:  string(data),
			Hash:     librarian.HashContent(string(data)),
			Language: chunk.DetectLanguage(f.rel),
		}
		fmt.Fprintf(&tree, "%s\n", f.rel)

		if emit != nil {
			if err := emit(loaded); err != nil {
				return err
			}
		} else {
			result.Files = append(result.Files, loaded)
		}
	}

	result.Tree = tree.String()
	return nil
}
