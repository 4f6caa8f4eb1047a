package crawl

import (
	"context"
	"sync"

	"github.com/iannuttall/librarian"
	"golang.org/x/time/rate"
)

// Compile-time interface verification.
var _ librarian.DomainLimiter = (*DomainRateLimiter)(nil)

// DomainRateLimiter limits request rate per domain. It is safe for
// concurrent use.
type DomainRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// NewDomainLimiter creates a limiter allowing rps requests per second
// per domain with a burst of one.
func NewDomainLimiter(rps float64) *DomainRateLimiter {
	return &DomainRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    1,
	}
}

// Wait blocks until the rate limit allows a request to the domain.
func (l *DomainRateLimiter) Wait(ctx context.Context, domain string) error {
	l.mu.Lock()
	limiter, ok := l.limiters[domain]
	if !ok {
		limiter = rate.NewLimiter(l.rps, l.burst)
		l.limiters[domain] = limiter
	}
	l.mu.Unlock()

	return limiter.Wait(ctx)
}
