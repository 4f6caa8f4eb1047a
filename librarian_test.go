package librarian_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/iannuttall/librarian"
	"github.com/stretchr/testify/require"
)

func TestErrorCode(t *testing.T) {
	t.Parallel()

	t.Run("application error", func(t *testing.T) {
		t.Parallel()
		err := librarian.Errorf(librarian.ENOTFOUND, "source not found")
		require.Equal(t, librarian.ENOTFOUND, librarian.ErrorCode(err))
		require.Equal(t, "source not found", librarian.ErrorMessage(err))
	})

	t.Run("plain error is internal", func(t *testing.T) {
		t.Parallel()
		err := errors.New("boom")
		require.Equal(t, librarian.EINTERNAL, librarian.ErrorCode(err))
		require.Equal(t, "Internal error.", librarian.ErrorMessage(err))
	})

	t.Run("nil", func(t *testing.T) {
		t.Parallel()
		require.Equal(t, "", librarian.ErrorCode(nil))
		require.Equal(t, "", librarian.ErrorMessage(nil))
	})
}

func TestApproxTokens(t *testing.T) {
	t.Parallel()

	require.Equal(t, 1, librarian.ApproxTokens(""))
	require.Equal(t, 1, librarian.ApproxTokens("abc"))
	require.Equal(t, 1, librarian.ApproxTokens("abcd"))
	require.Equal(t, 2, librarian.ApproxTokens("abcde"))
	require.Equal(t, 600, librarian.ApproxTokens(strings.Repeat("a", 2400)))
	require.Equal(t, 601, librarian.ApproxTokens(strings.Repeat("a", 2401)))
}

func TestHashContent(t *testing.T) {
	t.Parallel()

	// SHA-256 of the empty string is a well-known constant.
	require.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		librarian.HashContent(""))
	require.NotEqual(t, librarian.HashContent("a"), librarian.HashContent("b"))
}

func TestChunkPreview(t *testing.T) {
	t.Parallel()

	c := &librarian.Chunk{Content: "Getting  Started\n\nInstall   the package."}
	require.Equal(t, "Getting Started Install the package.", c.Preview())

	long := &librarian.Chunk{Content: strings.Repeat("word ", 100)}
	require.LessOrEqual(t, len(long.Preview()), 224)
}

func TestSourceDocumentURI(t *testing.T) {
	t.Parallel()

	s := &librarian.Source{Kind: librarian.SourceGitHub, Owner: "honojs", Repo: "website"}
	require.Equal(t, "gh://honojs/website@1.x/docs/index.md", s.DocumentURI("docs/index.md", "1.x"))
}
