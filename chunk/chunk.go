// Package chunk converts documents into ranked, retrievable units.
// Markdown-family files are split along their heading structure; code
// files are split along symbol boundaries; everything else falls back
// to plain line windows. All strategies share the same token
// heuristic so chunk boundaries stay stable across runs.
package chunk

import (
	"fmt"
	"path"
	"strings"

	"github.com/iannuttall/librarian"
)

// Token budgets shared by the strategies.
const (
	// MaxDocTokens caps a markdown chunk.
	MaxDocTokens = 600
	// MinMergeTokens is the threshold under which consecutive
	// markdown chunks are merged.
	MinMergeTokens = 200
	// OverlapTokens is carried between split markdown chunks.
	OverlapTokens = 60
	// MinChunkTokens is the floor below which a split output is
	// folded into its neighbor.
	MinChunkTokens = 40

	// CodeTargetTokens is the split target for code symbols.
	CodeTargetTokens = 320
	// CodeOverlapLines is carried between split code chunks.
	CodeOverlapLines = 8
	// CodeHardCapTokens is the absolute cap on a code chunk.
	CodeHardCapTokens = 1000
	// CodeMergeCapTokens bounds merging of same-symbol parts.
	CodeMergeCapTokens = 800
	// TinyChunkTokens marks deeply nested chunks eligible for
	// containment dedupe.
	TinyChunkTokens = 50
)

// File is the chunker's input: one loaded file plus display context.
type File struct {
	// Path is the repository- or site-relative path.
	Path string

	// Title is the document title (first H1 or filename).
	Title string

	// Content is the raw file text.
	Content string

	// ContentType is librarian.ContentMarkdown or
	// librarian.ContentCode.
	ContentType string

	// Language is the code language name, empty for markdown.
	Language string

	// Prefix is prepended to every breadcrumb, typically the library
	// name.
	Prefix string
}

// markdownExtensions is the markdown-family dispatch set.
var markdownExtensions = map[string]bool{
	".md": true, ".mdx": true, ".markdown": true, ".mdown": true, ".rst": true, ".txt": true,
}

// IsMarkdownPath reports whether a path dispatches to the markdown
// strategy.
func IsMarkdownPath(p string) bool {
	return markdownExtensions[strings.ToLower(path.Ext(p))]
}

// BuildDocumentChunks converts a file into chunk drafts. Markdown-
// family files use the heading strategy, everything else the symbol
// strategy with a line-window fallback. A nil result means the file
// produced no retrievable content.
func BuildDocumentChunks(file File) []librarian.ChunkDraft {
	if strings.TrimSpace(file.Content) == "" {
		return nil
	}
	if file.ContentType == librarian.ContentMarkdown || IsMarkdownPath(file.Path) {
		return chunkMarkdown(file)
	}
	return chunkCode(file)
}

// breadcrumb joins non-empty context elements as "A > B > C".
func breadcrumb(parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, strings.TrimSpace(p))
		}
	}
	return strings.Join(kept, " > ")
}

// formatChunk renders the final chunk content as breadcrumb, blank
// line, body. Code bodies are fenced with the language name.
func formatChunk(context, body, language string, code bool) string {
	if code {
		body = fmt.Sprintf("```%s\n%s\n```", language, strings.TrimRight(body, "\n"))
	}
	if context == "" {
		return body
	}
	return context + "\n\n" + body
}

// hasCodeBlock reports whether markdown text contains a fenced or
// indented code block.
func hasCodeBlock(text string) bool {
	if strings.Contains(text, "```") || strings.Contains(text, "~~~") {
		return true
	}
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, "    ") && strings.TrimSpace(line) != "" {
			return true
		}
		if strings.HasPrefix(line, "\t") && strings.TrimSpace(line) != "" {
			return true
		}
	}
	return false
}
