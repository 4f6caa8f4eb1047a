package crawl

import (
	"context"
	"time"

	"github.com/iannuttall/librarian"
)

// LogFunc is the signature for a retry logging callback.
type LogFunc func(format string, args ...any)

// DefaultRetryDelays returns the backoff delays for fetch retries:
// 1s, 2s, 4s.
func DefaultRetryDelays() []time.Duration {
	return []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}
}

// fetchWithRetry fetches a page with backoff across the delay
// schedule: one initial attempt plus one retry per delay.
func fetchWithRetry(ctx context.Context, fetcher librarian.PageFetcher, url string, logger LogFunc, delays []time.Duration) (*librarian.FetchedPage, error) {
	maxAttempts := len(delays) + 1

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		page, err := fetcher.FetchPage(ctx, url)
		if err == nil {
			return page, nil
		}
		lastErr = err

		if attempt >= maxAttempts-1 {
			break
		}
		if logger != nil {
			logger("retry %s (attempt %d): %v", url, attempt+2, err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delays[attempt]):
		}
	}

	return nil, lastErr
}
