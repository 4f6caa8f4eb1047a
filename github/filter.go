package github

import (
	"path"
	"strings"
)

// hiddenSegments rejects any path containing one of these directory
// segments.
var hiddenSegments = map[string]bool{
	".git": true, ".github": true, ".gitlab": true, ".cache": true, ".idea": true,
	".vscode": true, ".next": true, ".nuxt": true, ".venv": true, ".tox": true,
	"node_modules": true, "dist": true, "build": true, "out": true, "target": true,
	"vendor": true, "__pycache__": true, "coverage": true,
}

// skippedBasenames rejects well-known lockfiles and build artifacts
// by exact name.
var skippedBasenames = map[string]bool{
	"package-lock.json": true, "yarn.lock": true, "pnpm-lock.yaml": true,
	"bun.lockb": true, "bun.lock": true, "composer.lock": true, "cargo.lock": true,
	"gemfile.lock": true, "poetry.lock": true, "uv.lock": true, "go.sum": true,
	".ds_store": true, "thumbs.db": true,
}

// binaryExtensions rejects binary, media and archive payloads.
var binaryExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true,
	".ico": true, ".bmp": true, ".tiff": true, ".svg": false, // svg is text
	".mp3": true, ".mp4": true, ".wav": true, ".avi": true, ".mov": true,
	".woff": true, ".woff2": true, ".ttf": true, ".otf": true, ".eot": true,
	".zip": true, ".tar": true, ".gz": true, ".bz2": true, ".xz": true, ".7z": true,
	".pdf": true, ".doc": true, ".docx": true, ".xls": true, ".xlsx": true,
	".exe": true, ".dll": true, ".so": true, ".dylib": true, ".a": true,
	".o": true, ".class": true, ".jar": true, ".wasm": true, ".pyc": true,
	".db": true, ".sqlite": true, ".bin": true, ".dat": true,
}

// skippedSuffixes rejects minified and generated files by name
// suffix.
var skippedSuffixes = []string{
	".min.js", ".min.css", ".bundle.js", ".bundle.css", ".map",
	".log", ".bak", ".tmp", ".swp", "~",
}

// specialFiles are extensionless names kept despite the extension
// rule.
var specialFiles = map[string]bool{
	"dockerfile": true, "makefile": true, "rakefile": true, "gemfile": true,
	"justfile": true, "procfile": true, "license": true, "readme": true,
}

// KeepPath reports whether a repository path survives the sync
// filter.
func KeepPath(p string) bool {
	p = strings.TrimPrefix(path.Clean(p), "./")
	lower := strings.ToLower(p)

	for _, segment := range strings.Split(lower, "/") {
		if hiddenSegments[segment] {
			return false
		}
		if strings.HasPrefix(segment, ".") && segment != "." && segment != ".." {
			// Hidden files at any level, except a handful of useful
			// dotfiles.
			if segment != ".env.example" && !strings.HasSuffix(segment, ".md") {
				return false
			}
		}
	}

	base := path.Base(lower)
	if skippedBasenames[base] {
		return false
	}
	for _, suffix := range skippedSuffixes {
		if strings.HasSuffix(base, suffix) {
			return false
		}
	}

	ext := path.Ext(base)
	if ext == "" {
		return specialFiles[base]
	}
	if binary, known := binaryExtensions[ext]; known && binary {
		return false
	}
	return true
}
