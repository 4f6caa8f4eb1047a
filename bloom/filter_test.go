package bloom_test

import (
	"fmt"
	"testing"

	"github.com/iannuttall/librarian/bloom"
	"github.com/stretchr/testify/require"
)

func TestFilter(t *testing.T) {
	t.Parallel()

	t.Run("added urls test positive", func(t *testing.T) {
		t.Parallel()
		f := bloom.NewFilter(1000, 0.01)

		f.Add("https://hono.dev/docs")
		require.True(t, f.Test("https://hono.dev/docs"))
	})

	t.Run("no false negatives", func(t *testing.T) {
		t.Parallel()
		f := bloom.NewFilter(10000, 0.01)

		for i := 0; i < 1000; i++ {
			f.Add(fmt.Sprintf("https://hono.dev/docs/page-%d", i))
		}
		for i := 0; i < 1000; i++ {
			require.True(t, f.Test(fmt.Sprintf("https://hono.dev/docs/page-%d", i)))
		}
	})

	t.Run("unseen urls mostly test negative", func(t *testing.T) {
		t.Parallel()
		f := bloom.NewFilter(10000, 0.01)
		for i := 0; i < 1000; i++ {
			f.Add(fmt.Sprintf("https://hono.dev/docs/page-%d", i))
		}

		falsePositives := 0
		for i := 0; i < 1000; i++ {
			if f.Test(fmt.Sprintf("https://other.dev/unseen-%d", i)) {
				falsePositives++
			}
		}
		require.Less(t, falsePositives, 50)
	})
}
