package chunk_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/iannuttall/librarian"
	"github.com/iannuttall/librarian/chunk"
	"github.com/stretchr/testify/require"
)

func mdFile(content string) chunk.File {
	return chunk.File{
		Path:        "docs/guide.md",
		Title:       "Guide",
		Content:     content,
		ContentType: librarian.ContentMarkdown,
		Prefix:      "acme/widgets",
	}
}

func TestBuildDocumentChunks_MarkdownSingleChunk(t *testing.T) {
	t.Parallel()

	content := "Short intro.\n\n```go\nfmt.Println(\"hi\")\n```\n"
	drafts := chunk.BuildDocumentChunks(mdFile(content))

	require.Len(t, drafts, 1)
	require.Equal(t, librarian.ChunkDoc, drafts[0].Type)
	require.Equal(t, "acme/widgets > Guide", drafts[0].ContextPath)
	require.Contains(t, drafts[0].Content, "fmt.Println")
	require.True(t, strings.HasPrefix(drafts[0].Content, "acme/widgets > Guide\n\n"))
}

func TestBuildDocumentChunks_MarkdownSections(t *testing.T) {
	t.Parallel()

	content := strings.Join([]string{
		"# Guide",
		"",
		"## Install",
		"",
		"Run the installer. " + strings.Repeat("Lots of install detail. ", 40),
		"",
		"## Usage",
		"",
		"### Basics",
		"",
		"Call the function. " + strings.Repeat("Lots of usage detail. ", 40),
	}, "\n")

	drafts := chunk.BuildDocumentChunks(mdFile(content))
	require.NotEmpty(t, drafts)

	var contexts []string
	for _, d := range drafts {
		contexts = append(contexts, d.ContextPath)
		require.LessOrEqual(t, d.TokenCount, 1000)
		require.LessOrEqual(t, d.StartLine, d.EndLine)
	}
	require.Contains(t, contexts, "acme/widgets > Guide > Install")
	require.Contains(t, contexts, "acme/widgets > Guide > Usage > Basics")
}

func TestBuildDocumentChunks_MarkdownTokenLimiter(t *testing.T) {
	t.Parallel()

	t.Run("exactly 600 tokens stays one chunk", func(t *testing.T) {
		t.Parallel()

		// 600 tokens = 2400 characters; build lines of 40 chars each.
		line := strings.Repeat("x", 39) // +1 newline = 40 chars = 10 tokens
		content := strings.TrimSuffix(strings.Repeat(line+"\n", 60), "\n")
		require.Equal(t, 600, librarian.ApproxTokens(content))

		drafts := chunk.BuildDocumentChunks(mdFile(content))
		require.Len(t, drafts, 1)
	})

	t.Run("oversized section splits with floor and cap", func(t *testing.T) {
		t.Parallel()

		var sb strings.Builder
		sb.WriteString("# Guide\n\n## Big\n\n")
		for i := 0; i < 200; i++ {
			fmt.Fprintf(&sb, "Line %03d with a fair amount of text on it to add tokens.\n", i)
		}

		drafts := chunk.BuildDocumentChunks(mdFile(sb.String()))
		require.Greater(t, len(drafts), 1)
		for _, d := range drafts {
			body := d.Content[strings.Index(d.Content, "\n\n")+2:]
			tokens := librarian.ApproxTokens(body)
			require.GreaterOrEqual(t, tokens, chunk.MinChunkTokens)
			require.LessOrEqual(t, tokens, chunk.MaxDocTokens)
		}
	})

	t.Run("small sections merge", func(t *testing.T) {
		t.Parallel()

		content := "Paragraph one.\n\nParagraph two.\n\nParagraph three."
		drafts := chunk.BuildDocumentChunks(mdFile(content))
		require.Len(t, drafts, 1)
	})
}

func TestBuildDocumentChunks_EmptyFile(t *testing.T) {
	t.Parallel()

	require.Nil(t, chunk.BuildDocumentChunks(mdFile("   \n\n  ")))
}

func TestParseHeadingsIgnoresFences(t *testing.T) {
	t.Parallel()

	content := "# Real\n\n```\n# not a heading\n```\n\n## Also real\n\nbody"
	drafts := chunk.BuildDocumentChunks(mdFile(content))

	for _, d := range drafts {
		require.NotContains(t, d.ContextPath, "not a heading")
	}
}
