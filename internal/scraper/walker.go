package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/maltedev/weft-scraper/internal/browser"
	"github.com/maltedev/weft-scraper/internal/models"
	"github.com/maltedev/weft-scraper/internal/ratelimit"
)

// Walker moves the session between storefront pages and leaves each one
// rendered and settled.
type Walker struct {
	baseURL       string
	limiter       ratelimit.RateLimiter
	screenshotDir string
	logger        *slog.Logger
}

// NewWalker creates a walker. Screenshots are taken only when screenshotDir
// is set.
func NewWalker(baseURL string, limiter ratelimit.RateLimiter, screenshotDir string) *Walker {
	if limiter == nil {
		limiter = ratelimit.NewSimpleRateLimiter(0, 0)
	}
	return &Walker{
		baseURL:       strings.TrimRight(baseURL, "/"),
		limiter:       limiter,
		screenshotDir: screenshotDir,
		logger:        slog.Default().With("component", "walker"),
	}
}

// Home loads the storefront entry page and dismisses the consent banner.
func (w *Walker) Home(ctx context.Context, session Session) (string, error) {
	if err := w.limiter.Wait(ctx); err != nil {
		return "", err
	}

	w.logger.Info("loading home page", "url", w.baseURL)
	if err := session.Navigate(ctx, w.baseURL); err != nil {
		return "", err
	}
	if session.DismissConsent() {
		w.logger.Debug("consent banner dismissed")
	}
	w.screenshot(session, "home")

	return session.Content()
}

// Visit renders a category page. Settle timeouts, including the category
// deadline running out while settling, are logged and the page is used as
// rendered.
func (w *Walker) Visit(ctx context.Context, session Session, link models.CategoryLink) error {
	target, err := ResolveURL(w.baseURL, link.Target)
	if err != nil {
		return err
	}

	if err := w.limiter.Wait(ctx); err != nil {
		return err
	}

	w.logger.Info("visiting category", "category", link.Name, "url", target)
	if err := session.Navigate(ctx, target); err != nil {
		return err
	}

	if err := session.Settle(ctx); err != nil {
		if !errors.Is(err, browser.ErrSettleTimeout) && !errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("failed to settle page: %w", err)
		}
		w.logger.Warn("page not fully settled, using partial content",
			"category", link.Name,
			"error", err)
	}

	w.screenshot(session, link.Name)
	return nil
}

func (w *Walker) screenshot(session Session, name string) {
	if w.screenshotDir == "" {
		return
	}
	path := filepath.Join(w.screenshotDir, "debug-"+safeName(name)+".png")
	if err := session.Screenshot(path); err != nil {
		w.logger.Warn("failed to take screenshot", "path", path, "error", err)
		return
	}
	w.logger.Debug("saved screenshot", "path", path)
}

var unsafeNameChars = regexp.MustCompile(`[^\p{L}\p{N}_-]+`)

func safeName(name string) string {
	name = strings.Trim(unsafeNameChars.ReplaceAllString(name, "-"), "-")
	if name == "" {
		return "page"
	}
	return name
}

// ResolveURL makes a category target absolute. Absolute targets pass
// through; anything else is joined to base with exactly one slash.
func ResolveURL(base, target string) (string, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", fmt.Errorf("empty category target")
	}

	if u, err := url.Parse(target); err == nil && u.IsAbs() {
		return target, nil
	}

	base = strings.TrimRight(base, "/")
	if base == "" {
		return "", fmt.Errorf("cannot resolve relative target %q without base URL", target)
	}
	return base + "/" + strings.TrimLeft(target, "/"), nil
}
