package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
)

const pollInterval = 100 * time.Millisecond

// Options configures the Chrome instance.
type Options struct {
	Headless     bool
	DownloadPath string
	// ActionTimeout bounds actions that take no explicit timeout.
	ActionTimeout time.Duration
	// IdleTimeout bounds the network-idle wait of a navigation.
	IdleTimeout time.Duration
	Logger        *slog.Logger
}

// Chrome is a Session backed by a local Chrome driven over the DevTools protocol.
type Chrome struct {
	opts   Options
	logger *slog.Logger

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	pageCtx       context.Context
	pageCancel    context.CancelFunc

	events *tracker
}

var (
	_ Session         = (*Chrome)(nil)
	_ DownloadWatcher = (*Chrome)(nil)
)

// Launch starts Chrome, opens a page and routes all downloads into
// opts.DownloadPath, creating it when absent. The returned error wraps
// ErrLaunch, ErrPage or ErrDownloadBehavior depending on the failing step.
func Launch(ctx context.Context, opts Options) (*Chrome, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ActionTimeout <= 0 {
		opts.ActionTimeout = 30 * time.Second
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 30 * time.Second
	}

	if err := os.MkdirAll(opts.DownloadPath, 0o755); err != nil {
		return nil, fmt.Errorf("%w: failed to create download directory: %v", ErrDownloadBehavior, err)
	}
	absDownloadPath, err := filepath.Abs(opts.DownloadPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get absolute path: %v", ErrDownloadBehavior, err)
	}
	opts.DownloadPath = absDownloadPath

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(1920, 1080),
	)

	if opts.Headless {
		logger.Info("Running in HEADLESS mode")
	} else {
		logger.Info("Running in VISIBLE mode")
	}

	c := &Chrome{
		opts:   opts,
		logger: logger,
		events: newTracker(),
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	c.allocCancel = allocCancel

	debugf := func(format string, args ...any) {
		logger.Debug(fmt.Sprintf(format, args...), slog.String("source", "chromedp"))
	}
	c.browserCtx, c.browserCancel = chromedp.NewContext(allocCtx,
		chromedp.WithLogf(debugf),
		chromedp.WithErrorf(debugf),
	)
	if err := chromedp.Run(c.browserCtx); err != nil {
		c.Close()
		return nil, fmt.Errorf("%w: %v", ErrLaunch, err)
	}

	c.pageCtx, c.pageCancel = chromedp.NewContext(c.browserCtx)
	if err := chromedp.Run(c.pageCtx); err != nil {
		c.Close()
		return nil, fmt.Errorf("%w: %v", ErrPage, err)
	}

	// The page's main frame shares the target's ID.
	c.events.setMainFrame(cdp.FrameID(chromedp.FromContext(c.pageCtx).Target.TargetID))

	// Download events are sent on the page session, so they reach the
	// target listener rather than the browser one.
	chromedp.ListenBrowser(c.pageCtx, c.onBrowserEvent)
	chromedp.ListenTarget(c.pageCtx, c.onTargetEvent)

	if err := chromedp.Run(c.pageCtx,
		cdpbrowser.SetDownloadBehavior(cdpbrowser.SetDownloadBehaviorBehaviorAllow).
			WithDownloadPath(absDownloadPath).
			WithEventsEnabled(true),
	); err != nil {
		c.Close()
		return nil, fmt.Errorf("%w: %v", ErrDownloadBehavior, err)
	}
	if err := chromedp.Run(c.pageCtx, page.SetLifecycleEventsEnabled(true)); err != nil {
		c.Close()
		return nil, fmt.Errorf("%w: failed to enable lifecycle events: %v", ErrPage, err)
	}

	logger.Info("Browser initialized", slog.String("download_path", absDownloadPath))
	return c, nil
}

func (c *Chrome) onBrowserEvent(ev any) {
	if e, ok := ev.(*target.EventTargetCreated); ok {
		c.logger.Debug("New target created", slog.String("id", string(e.TargetInfo.TargetID)), slog.String("type", e.TargetInfo.Type))
	}
}

func (c *Chrome) onTargetEvent(ev any) {
	switch e := ev.(type) {
	case *page.EventJavascriptDialogOpening:
		c.logger.Info("Accepting dialog", slog.String("message", e.Message))
		go chromedp.Run(c.pageCtx, page.HandleJavaScriptDialog(true))
	case *cdpbrowser.EventDownloadWillBegin:
		c.logger.Debug("Download starting", slog.String("guid", e.GUID), slog.String("name", e.SuggestedFilename))
		c.events.handle(e)
	case *cdpbrowser.EventDownloadProgress:
		if c.events.handle(e) && e.State != cdpbrowser.DownloadProgressStateInProgress {
			c.logger.Debug("Download finished", slog.String("guid", e.GUID), slog.String("state", e.State.String()))
		}
	default:
		c.events.handle(ev)
	}
}

// Close shuts the browser down. Errors are logged, not returned, since the
// run is complete by the time it is called.
func (c *Chrome) Close() error {
	if c.browserCtx != nil {
		if err := chromedp.Cancel(c.browserCtx); err != nil {
			c.logger.Debug("Browser did not close cleanly", slog.Any("error", err))
		}
	}
	if c.pageCancel != nil {
		c.pageCancel()
	}
	if c.browserCancel != nil {
		c.browserCancel()
	}
	if c.allocCancel != nil {
		c.allocCancel()
	}
	return nil
}

// run executes actions on the page, bounded by timeout and by ctx.
func (c *Chrome) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if timeout <= 0 {
		timeout = c.opts.ActionTimeout
	}
	rctx, cancel := context.WithTimeout(c.pageCtx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(rctx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func (c *Chrome) eval(ctx context.Context, expr string, res any) error {
	return c.run(ctx, 0, chromedp.Evaluate(expr, res))
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// Navigate loads url. A change of fragment only is applied in-page, since the
// app routes on the hash and no load event follows.
func (c *Chrome) Navigate(ctx context.Context, rawURL string, until WaitUntil) error {
	current, _ := c.URL(ctx)
	if sameDocument(current, rawURL) {
		if err := c.eval(ctx, fmt.Sprintf("location.href = %s; true", jsString(rawURL)), nil); err != nil {
			return fmt.Errorf("failed to navigate to %s: %w", rawURL, err)
		}
	} else if err := c.run(ctx, 0, chromedp.Navigate(rawURL)); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", rawURL, err)
	}

	if err := c.run(ctx, 0, chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return fmt.Errorf("page %s never became ready: %w", rawURL, err)
	}
	if until == WaitNetworkIdle {
		return c.WaitNetworkIdle(ctx, c.opts.IdleTimeout)
	}
	return nil
}

func sameDocument(from, to string) bool {
	a, err := url.Parse(from)
	if err != nil || a.Host == "" {
		return false
	}
	b, err := url.Parse(to)
	if err != nil || b.Fragment == "" {
		return false
	}
	a.Fragment, b.Fragment = "", ""
	a.RawFragment, b.RawFragment = "", ""
	return a.String() == b.String()
}

func (c *Chrome) Back(ctx context.Context) error {
	before, _ := c.URL(ctx)
	if err := c.eval(ctx, "history.back(); true", nil); err != nil {
		return fmt.Errorf("failed to navigate back: %w", err)
	}
	c.waitURLChange(ctx, before, c.opts.ActionTimeout)
	return nil
}

func (c *Chrome) URL(ctx context.Context) (string, error) {
	var loc string
	if err := c.run(ctx, 0, chromedp.Location(&loc)); err != nil {
		return "", err
	}
	return loc, nil
}

func (c *Chrome) waitURLChange(ctx context.Context, before string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if now, err := c.URL(ctx); err == nil && now != before {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(pollInterval):
		}
	}
	return false
}

// WaitNetworkIdle waits until no document load is pending in the main frame
// and no request has been in flight for quietPeriod.
func (c *Chrome) WaitNetworkIdle(ctx context.Context, timeout time.Duration) error {
	return c.events.waitIdle(ctx, timeout)
}

func (c *Chrome) WaitVisible(ctx context.Context, sel string, timeout time.Duration) error {
	if err := c.run(ctx, timeout, chromedp.WaitVisible(sel, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("%w: %s not visible: %v", ErrNotFound, sel, err)
	}
	return nil
}

func (c *Chrome) WaitPresent(ctx context.Context, sel string, timeout time.Duration) error {
	if err := c.run(ctx, timeout, chromedp.WaitReady(sel, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("%w: %s not present: %v", ErrNotFound, sel, err)
	}
	return nil
}

func (c *Chrome) Exists(ctx context.Context, sel string) (bool, error) {
	var found bool
	err := c.eval(ctx, fmt.Sprintf("document.querySelector(%s) !== null", jsString(sel)), &found)
	return found, err
}

func (c *Chrome) Count(ctx context.Context, sel string) (int, error) {
	var n int
	err := c.eval(ctx, fmt.Sprintf("document.querySelectorAll(%s).length", jsString(sel)), &n)
	return n, err
}

func (c *Chrome) Click(ctx context.Context, sel string) error {
	if err := c.run(ctx, 0, chromedp.Click(sel, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("failed to click %s: %w", sel, err)
	}
	return nil
}

func (c *Chrome) ClickDOM(ctx context.Context, sel string) (bool, error) {
	expr := fmt.Sprintf(`(function() {
		var el = document.querySelector(%s);
		if (el) { el.click(); return true; }
		return false;
	})()`, jsString(sel))

	var clicked bool
	if err := c.eval(ctx, expr, &clicked); err != nil {
		return false, fmt.Errorf("failed to click %s in page: %w", sel, err)
	}
	return clicked, nil
}

func (c *Chrome) ClickNavigate(ctx context.Context, sel string, mode ClickMode, timeout time.Duration) error {
	before, _ := c.URL(ctx)

	switch mode {
	case ClickDOM:
		clicked, err := c.ClickDOM(ctx, sel)
		if err != nil {
			return err
		}
		if !clicked {
			return fmt.Errorf("%w: %s", ErrNotFound, sel)
		}
	default:
		if err := c.Click(ctx, sel); err != nil {
			return err
		}
	}

	if !c.waitURLChange(ctx, before, timeout) {
		c.logger.Debug("No navigation after click", slog.String("selector", sel))
	}
	return nil
}

func (c *Chrome) Type(ctx context.Context, sel, text string) error {
	if err := c.run(ctx, 0, chromedp.SendKeys(sel, text, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("failed to type into %s: %w", sel, err)
	}
	return nil
}

type lookup struct {
	Found bool   `json:"found"`
	Value string `json:"value"`
}

func (c *Chrome) read(ctx context.Context, sel, prop string) (string, error) {
	expr := fmt.Sprintf(`(function() {
		var el = document.querySelector(%s);
		return el ? {found: true, value: el.%s || ""} : {found: false, value: ""};
	})()`, jsString(sel), prop)

	var res lookup
	if err := c.eval(ctx, expr, &res); err != nil {
		return "", err
	}
	if !res.Found {
		return "", fmt.Errorf("%w: %s", ErrNotFound, sel)
	}
	return res.Value, nil
}

func (c *Chrome) Text(ctx context.Context, sel string) (string, error) {
	return c.read(ctx, sel, "textContent")
}

func (c *Chrome) OuterHTML(ctx context.Context, sel string) (string, error) {
	return c.read(ctx, sel, "outerHTML")
}

// WaitDownload waits for the download that begins first at or after since
// and returns it once that download completes.
func (c *Chrome) WaitDownload(ctx context.Context, since time.Time, timeout time.Duration) (Download, error) {
	return c.events.waitDownload(ctx, since, timeout)
}
