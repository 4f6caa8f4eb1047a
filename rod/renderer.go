// Package rod renders client-side pages in a headless Chrome browser
// via go-rod. The renderer is best effort: when no browser binary can
// be located the crawler proceeds without it.
package rod

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"
	"github.com/iannuttall/librarian"
)

// DefaultMaxPages is the number of rendered pages before the browser
// process is recycled. Chrome accumulates memory under load and never
// returns to its baseline, so the browser is restarted periodically.
const DefaultMaxPages = 75

// settleWait is the post-load pause for late async rendering.
const settleWait = 500 * time.Millisecond

// Compile-time interface verification.
var _ librarian.Renderer = (*Renderer)(nil)

// Renderer renders pages in one managed headless browser with an
// isolated profile directory. Renderer is safe for concurrent use.
type Renderer struct {
	mu         sync.Mutex
	browser    *rod.Browser
	launch     *launcher.Launcher
	profileDir string
	binPath    string
	proxy      string
	pageCount  int64
	maxPages   int64
	closed     bool
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithChromePath pins the browser binary instead of auto-detection.
func WithChromePath(path string) Option {
	return func(r *Renderer) { r.binPath = path }
}

// WithProxy routes browser traffic through a proxy endpoint.
func WithProxy(endpoint string) Option {
	return func(r *Renderer) { r.proxy = endpoint }
}

// WithMaxPages overrides the recycling threshold.
func WithMaxPages(n int64) Option {
	return func(r *Renderer) { r.maxPages = n }
}

// NewRenderer locates a browser binary and launches it headless with
// an isolated profile. Returns EUNAVAILABLE when no binary is found;
// callers should then crawl without headless support.
func NewRenderer(opts ...Option) (*Renderer, error) {
	r := &Renderer{maxPages: DefaultMaxPages}
	for _, opt := range opts {
		opt(r)
	}

	if r.binPath == "" {
		bin, found := launcher.LookPath()
		if !found {
			return nil, librarian.Errorf(librarian.EUNAVAILABLE,
				"no Chrome or Chromium binary found; headless rendering disabled")
		}
		r.binPath = bin
	}

	if err := r.launchBrowser(); err != nil {
		return nil, err
	}
	return r, nil
}

// launchBrowser starts a fresh browser with a new isolated profile.
// Must be called with mu held (or before the renderer is shared).
func (r *Renderer) launchBrowser() error {
	profileDir, err := os.MkdirTemp("", "librarian-profile-"+uuid.NewString()[:8]+"-")
	if err != nil {
		return err
	}

	l := launcher.New().
		Bin(r.binPath).
		UserDataDir(profileDir).
		Set("blink-settings", "imagesEnabled=false").
		Set("disable-background-timer-throttling").
		Set("disable-dev-shm-usage").
		Set("disable-hang-monitor").
		Leakless(true).
		Headless(true)
	if r.proxy != "" {
		l = l.Proxy(r.proxy)
	}

	u, err := l.Launch()
	if err != nil {
		os.RemoveAll(profileDir)
		return fmt.Errorf("launching browser: %w", err)
	}

	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		l.Kill()
		os.RemoveAll(profileDir)
		return fmt.Errorf("connecting to browser: %w", err)
	}

	r.browser = browser
	r.launch = l
	r.profileDir = profileDir
	r.pageCount = 0
	return nil
}

// Render loads the URL, waits for the DOM plus a short settle period,
// and returns the rendered HTML.
func (r *Renderer) Render(ctx context.Context, url, userAgent string) (string, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return "", librarian.Errorf(librarian.EUNAVAILABLE, "renderer is closed")
	}
	if r.pageCount >= r.maxPages {
		r.recycle()
	}
	browser := r.browser
	r.pageCount++
	r.mu.Unlock()

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return "", err
	}
	defer page.Close()
	page = page.Context(ctx)

	if userAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: userAgent}); err != nil {
			return "", err
		}
	}

	if err := page.Navigate(url); err != nil {
		return "", err
	}
	if err := page.WaitDOMStable(settleWait, 0.1); err != nil {
		// A busy page that never settles still has usable HTML.
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}

	return page.HTML()
}

// recycle replaces the browser process, keeping the old one on launch
// failure. Must be called with mu held.
func (r *Renderer) recycle() {
	oldBrowser, oldLaunch, oldProfile := r.browser, r.launch, r.profileDir
	if err := r.launchBrowser(); err != nil {
		r.browser, r.launch, r.profileDir = oldBrowser, oldLaunch, oldProfile
		return
	}
	if oldBrowser != nil {
		_ = oldBrowser.Close()
	}
	if oldLaunch != nil {
		oldLaunch.Kill()
	}
	os.RemoveAll(oldProfile)
}

// Close terminates the browser and deletes the profile directory.
// Safe to call multiple times.
func (r *Renderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	var err error
	if r.browser != nil {
		err = r.browser.Close()
		r.browser = nil
	}
	if r.launch != nil {
		r.launch.Kill()
		r.launch = nil
	}
	if r.profileDir != "" {
		os.RemoveAll(r.profileDir)
		r.profileDir = ""
	}
	return err
}
