package librarian_test

import (
	"testing"

	"github.com/iannuttall/librarian"
	"github.com/stretchr/testify/require"
)

func TestParseSeriesLabel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		label string
		major uint64
		ok    bool
	}{
		{"16.x", 16, true},
		{"1.x", 1, true},
		{"main", 0, false},
		{"latest", 0, false},
		{"16.2", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			t.Parallel()
			major, ok := librarian.ParseSeriesLabel(tt.label)
			require.Equal(t, tt.ok, ok)
			if ok {
				require.Equal(t, tt.major, major)
			}
		})
	}
}

func TestExtractMajorVersion(t *testing.T) {
	t.Parallel()

	require.Equal(t, "16.x", librarian.ExtractMajorVersion("v16.2.3"))
	require.Equal(t, "2.x", librarian.ExtractMajorVersion("2.0.0"))
	require.Equal(t, "", librarian.ExtractMajorVersion("main"))
}

func TestPickLatestForSeries(t *testing.T) {
	t.Parallel()

	tags := []string{"v16.2.0", "v16.1.0", "v15.9.9"}

	t.Run("picks highest in series", func(t *testing.T) {
		t.Parallel()
		require.Equal(t, "v16.2.0", librarian.PickLatestForSeries(tags, "16.x"))
		require.Equal(t, "v15.9.9", librarian.PickLatestForSeries(tags, "15.x"))
	})

	t.Run("non-series label yields nothing", func(t *testing.T) {
		t.Parallel()
		require.Equal(t, "", librarian.PickLatestForSeries(tags, "main"))
	})

	t.Run("missing series yields nothing", func(t *testing.T) {
		t.Parallel()
		require.Equal(t, "", librarian.PickLatestForSeries(tags, "14.x"))
	})

	t.Run("prereleases are skipped", func(t *testing.T) {
		t.Parallel()
		got := librarian.PickLatestForSeries([]string{"v16.3.0-rc.1", "v16.2.0"}, "16.x")
		require.Equal(t, "v16.2.0", got)
	})
}

func TestPickDefaultVersion(t *testing.T) {
	t.Parallel()

	t.Run("highest stable wins", func(t *testing.T) {
		t.Parallel()
		got := librarian.PickDefaultVersion([]string{"v1.0.0", "v2.1.0", "v2.2.0-beta.1"})
		require.Equal(t, "v2.1.0", got)
	})

	t.Run("prerelease only", func(t *testing.T) {
		t.Parallel()
		got := librarian.PickDefaultVersion([]string{"v0.1.0-alpha", "v0.2.0-alpha"})
		require.Equal(t, "v0.2.0-alpha", got)
	})

	t.Run("no parseable tags", func(t *testing.T) {
		t.Parallel()
		require.Equal(t, "", librarian.PickDefaultVersion([]string{"main", "tip"}))
	})
}

func TestTopMajorLabels(t *testing.T) {
	t.Parallel()

	tags := []string{"v16.2.0", "v15.1.0", "v14.0.0", "v13.5.0"}
	require.Equal(t, []string{"16.x", "15.x", "14.x"}, librarian.TopMajorLabels(tags, 3))
	require.Equal(t, []string{"16.x", "15.x", "14.x", "13.x"}, librarian.TopMajorLabels(tags, 0))
}
