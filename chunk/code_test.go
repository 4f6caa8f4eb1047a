package chunk_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/iannuttall/librarian"
	"github.com/iannuttall/librarian/chunk"
	"github.com/stretchr/testify/require"
)

func codeFile(path, language, content string) chunk.File {
	return chunk.File{
		Path:        path,
		Title:       path,
		Content:     content,
		ContentType: librarian.ContentCode,
		Language:    language,
		Prefix:      "acme/widgets",
	}
}

func TestBuildDocumentChunks_CodeSymbols(t *testing.T) {
	t.Parallel()

	content := strings.Join([]string{
		"package widgets",
		"",
		"func Greet(name string) string {",
		`	return "hello " + name`,
		"}",
		"",
		"type Widget struct {",
		"	Name string",
		"}",
	}, "\n")

	drafts := chunk.BuildDocumentChunks(codeFile("widget.go", "go", content))
	require.NotEmpty(t, drafts)

	byName := map[string]librarian.ChunkDraft{}
	for _, d := range drafts {
		require.Equal(t, librarian.ChunkCode, d.Type)
		require.Equal(t, "go", d.Language)
		byName[d.SymbolName] = d
	}

	greet, ok := byName["Greet"]
	require.True(t, ok)
	require.Equal(t, "function", greet.SymbolType)
	require.Equal(t, 3, greet.StartLine)
	require.Equal(t, 5, greet.EndLine)
	require.Contains(t, greet.Content, "```go\n")
	require.Contains(t, greet.Content, "acme/widgets > widget.go > Greet")
	require.NotEmpty(t, greet.SymbolID)

	widget, ok := byName["Widget"]
	require.True(t, ok)
	require.Equal(t, "struct", widget.SymbolType)
}

func TestBuildDocumentChunks_CodeSplitAndOverlap(t *testing.T) {
	t.Parallel()

	// One symbol whose body exceeds the split target: must split into
	// parts whose union (minus overlap) reproduces the original.
	var sb strings.Builder
	sb.WriteString("func Enormous() {\n")
	for i := 0; i < 120; i++ {
		fmt.Fprintf(&sb, "\tstep%03d := compute(%d) // some filler to grow the line\n", i, i)
	}
	sb.WriteString("}")

	drafts := chunk.BuildDocumentChunks(codeFile("big.go", "go", sb.String()))
	require.GreaterOrEqual(t, len(drafts), 2)

	for i, d := range drafts {
		require.Equal(t, "Enormous", d.SymbolName)
		require.Equal(t, i+1, d.SymbolPart)
		require.Equal(t, len(drafts), d.SymbolParts)
		require.LessOrEqual(t, d.TokenCount, chunk.CodeHardCapTokens)
	}

	// Consecutive parts overlap: each part starts inside its
	// predecessor's range.
	for i := 1; i < len(drafts); i++ {
		require.LessOrEqual(t, drafts[i].StartLine, drafts[i-1].EndLine)
		require.Greater(t, drafts[i].EndLine, drafts[i-1].EndLine)
	}

	// The parts cover the whole symbol: every original line appears in
	// some part body.
	var bodies []string
	for _, d := range drafts {
		body := strings.SplitN(d.Content, "\n\n", 2)[1]
		bodies = append(bodies, body)
	}
	all := strings.Join(bodies, "\n")
	for _, line := range strings.Split(sb.String(), "\n") {
		require.Contains(t, all, line)
	}
	require.Equal(t, 1, drafts[0].StartLine)
	require.Equal(t, 122, drafts[len(drafts)-1].EndLine)
}

func TestBuildDocumentChunks_CodeTinyContainedRemoved(t *testing.T) {
	t.Parallel()

	content := strings.Join([]string{
		"function outer() {",
		"	function inner() {",
		"		return 1",
		"	}",
		"	return inner()",
		"}",
	}, "\n")

	drafts := chunk.BuildDocumentChunks(codeFile("outer.ts", "typescript", content))
	require.Len(t, drafts, 1)
	require.Equal(t, "outer", drafts[0].SymbolName)
}

func TestBuildDocumentChunks_CodeLineFallback(t *testing.T) {
	t.Parallel()

	content := "key: value\nother: setting\nmore: data"
	drafts := chunk.BuildDocumentChunks(codeFile("config.yaml", "yaml", content))

	require.Len(t, drafts, 1)
	require.Empty(t, drafts[0].SymbolName)
	require.Contains(t, drafts[0].Content, "```yaml")
}

func TestBuildDocumentChunks_PythonIndentation(t *testing.T) {
	t.Parallel()

	content := strings.Join([]string{
		"def handler(event):",
		"    result = process(event)",
		"    return result",
		"",
		"def other():",
		"    pass",
	}, "\n")

	drafts := chunk.BuildDocumentChunks(codeFile("app.py", "python", content))

	var names []string
	for _, d := range drafts {
		names = append(names, d.SymbolName)
	}
	require.Contains(t, names, "handler")
	require.Contains(t, names, "other")

	for _, d := range drafts {
		if d.SymbolName == "handler" {
			require.Equal(t, 1, d.StartLine)
			require.Equal(t, 3, d.EndLine)
		}
	}
}

func TestDetectLanguage(t *testing.T) {
	t.Parallel()

	require.Equal(t, "go", chunk.DetectLanguage("pkg/server.go"))
	require.Equal(t, "python", chunk.DetectLanguage("app.py"))
	require.Equal(t, "docker", chunk.DetectLanguage("deploy/Dockerfile"))
	require.Equal(t, "ruby", chunk.DetectLanguage("Gemfile"))
	require.Equal(t, "", chunk.DetectLanguage("notes.xyzunknown"))
}
