package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/playwright-community/playwright-go"
)

type Options struct {
	Headless       bool
	Timeout        time.Duration
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	ProxyServer    string
	ExtraHeaders   map[string]string
	Settle         SettleOptions
}

func DefaultOptions() *Options {
	return &Options{
		Headless:       true,
		Timeout:        30 * time.Second,
		UserAgent:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		AcceptLanguage: "he-IL,he;q=0.9,en;q=0.8",
		TimezoneID:     "Asia/Jerusalem",
		Locale:         "he-IL",
		ExtraHeaders: map[string]string{
			"Accept": "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
		},
		Settle: DefaultSettleOptions(),
	}
}

var consentSelectors = []string{
	`button[class*="accept"]`,
	`button[class*="אשר"]`,
	`button:has-text("אישור")`,
	`button:has-text("Accept")`,
}

const imagesReadyScript = `() => Array.from(document.querySelectorAll('img')).some(img =>
	img.getAttribute('src') || (img.dataset && (img.dataset.src || img.dataset.lazySrc)))`

// Session is one browser with a single page; categories are rendered one at
// a time on that page.
type Session struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
	opts    *Options
	logger  *slog.Logger
}

func Open(opts *Options) (*Session, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
			"--disable-setuid-sandbox",
			"--lang=he",
		},
	}

	if opts.ProxyServer != "" {
		launchOpts.Proxy = &playwright.Proxy{
			Server: opts.ProxyServer,
		}
	}

	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	headers := map[string]string{}
	for k, v := range opts.ExtraHeaders {
		headers[k] = v
	}
	if opts.AcceptLanguage != "" {
		headers["Accept-Language"] = opts.AcceptLanguage
	}

	contextOpts := playwright.BrowserNewContextOptions{
		UserAgent:         playwright.String(opts.UserAgent),
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		Locale:            playwright.String(opts.Locale),
		TimezoneId:        playwright.String(opts.TimezoneID),
		Viewport: &playwright.Size{
			Width:  opts.ViewportWidth,
			Height: opts.ViewportHeight,
		},
		ExtraHttpHeaders: headers,
	}

	bctx, err := browser.NewContext(contextOpts)
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}
	page.SetDefaultTimeout(float64(opts.Timeout.Milliseconds()))

	return &Session{
		pw:      pw,
		browser: browser,
		context: bctx,
		page:    page,
		opts:    opts,
		logger:  slog.Default().With("component", "browser"),
	}, nil
}

// Navigate loads url and waits until the network is idle.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	timeout := s.opts.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	resp, err := s.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
		Timeout:   playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	if resp != nil && resp.Status() >= 400 {
		return fmt.Errorf("failed to navigate to %s: status %d", url, resp.Status())
	}

	return nil
}

// Settle waits for dynamic content: a fixed delay, a scroll sweep to the
// bottom to trigger lazy images, a bounded wait for image sources, then a
// scroll back to the top. Timeouts are returned but leave the page usable.
func (s *Session) Settle(ctx context.Context) error {
	opts := s.opts.Settle

	if err := sleep(ctx, opts.Delay); err != nil {
		return deadlineAsTimeout(err)
	}

	var errs []error

	steps, err := ScrollToBottom(ctx, s, opts.Step, opts.Pace, opts.MaxDuration)
	if err != nil {
		if !errors.Is(err, ErrSettleTimeout) {
			return err
		}
		errs = append(errs, err)
	}
	s.logger.Debug("scrolled page", "steps", steps)

	if ctx.Err() == nil {
		if err := s.WaitForImages(opts.ImageWaitTimeout); err != nil {
			errs = append(errs, fmt.Errorf("%w: %v", ErrSettleTimeout, err))
		}
	}

	if _, err := s.page.Evaluate(`() => window.scrollTo(0, 0)`); err != nil {
		return fmt.Errorf("failed to scroll to top: %w", err)
	}
	if ctx.Err() == nil {
		if err := sleep(ctx, opts.TopPause); err != nil {
			errs = append(errs, deadlineAsTimeout(err))
		}
	}

	return errors.Join(errs...)
}

func (s *Session) ScrollHeight() (float64, error) {
	v, err := s.page.Evaluate(`() => document.body ? document.body.scrollHeight : 0`)
	if err != nil {
		return 0, err
	}
	return toFloat(v)
}

func (s *Session) ScrollBy(dy int) error {
	_, err := s.page.Evaluate(`(dy) => window.scrollBy(0, dy)`, dy)
	return err
}

func (s *Session) WaitForImages(timeout time.Duration) error {
	_, err := s.page.WaitForFunction(imagesReadyScript, nil, playwright.PageWaitForFunctionOptions{
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	return err
}

// Content returns the serialized live DOM.
func (s *Session) Content() (string, error) {
	html, err := s.page.Content()
	if err != nil {
		return "", fmt.Errorf("failed to get page content: %w", err)
	}
	return html, nil
}

func (s *Session) Screenshot(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create screenshot dir: %w", err)
	}
	if _, err := s.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
	}); err != nil {
		return fmt.Errorf("failed to take screenshot: %w", err)
	}
	return nil
}

// DismissConsent clicks a cookie banner button when one is present.
func (s *Session) DismissConsent() bool {
	for _, selector := range consentSelectors {
		button := s.page.Locator(selector).First()

		count, err := button.Count()
		if err != nil || count == 0 {
			continue
		}

		if err := button.Click(); err != nil {
			s.logger.Debug("failed to click consent button", "selector", selector, "error", err)
			continue
		}

		s.logger.Info("accepted cookie consent", "selector", selector)
		time.Sleep(time.Second)
		return true
	}
	return false
}

func (s *Session) Close() error {
	var errs []error

	if s.page != nil {
		if err := s.page.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close page: %w", err))
		}
	}

	if s.context != nil {
		if err := s.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close context: %w", err))
		}
	}

	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}

	if s.pw != nil {
		if err := s.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %w", errors.Join(errs...))
	}

	return nil
}

func toFloat(v interface{}) (float64, error) {
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case float64:
		return n, nil
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("unexpected value type %T", v)
	}
}
