package gemini_test

import (
	"testing"

	"github.com/iannuttall/librarian/gemini"
	"github.com/stretchr/testify/require"
)

func TestParseExpansions(t *testing.T) {
	t.Parallel()

	t.Run("strips list markers and echoes", func(t *testing.T) {
		t.Parallel()
		text := "1. configure middleware ordering\n- hono middleware setup\nmiddleware\n\nregister request middleware"
		got := gemini.ParseExpansions(text, "middleware", 2)
		require.Equal(t, []string{
			"configure middleware ordering",
			"hono middleware setup",
		}, got)
	})

	t.Run("bounded by n", func(t *testing.T) {
		t.Parallel()
		got := gemini.ParseExpansions("a\nb\nc\nd", "q", 2)
		require.Len(t, got, 2)
	})

	t.Run("empty response", func(t *testing.T) {
		t.Parallel()
		require.Empty(t, gemini.ParseExpansions("", "q", 2))
	})
}

func TestBuildExpansionPrompt(t *testing.T) {
	t.Parallel()

	prompt := gemini.BuildExpansionPrompt("route groups", 2)
	require.Contains(t, prompt, "route groups")
	require.Contains(t, prompt, "2 different ways")
}

func TestBuildExpansionConfig(t *testing.T) {
	t.Parallel()

	config := gemini.BuildExpansionConfig()
	require.NotNil(t, config.SystemInstruction)
	require.NotNil(t, config.Temperature)
}
