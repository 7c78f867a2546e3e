// Package browser runs web automation tasks through a headless Chrome
// controlled with rod. The browser launches lazily on the first task
// that needs it and every task gets a fresh page. Full-page text
// extraction without a selector goes through internal/fetch instead,
// which needs no browser at all.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/kahyalabs/kahya/internal/config"
	"github.com/kahyalabs/kahya/internal/fetch"
)

// Task is one web automation step, parsed from analyzer parameters.
type Task struct {
	Action   string // navigate, click, type, extract
	URL      string
	Selector string
	Text     string
}

// TaskFromParams builds a Task from loosely-typed analyzer parameters.
func TaskFromParams(params map[string]any) Task {
	str := func(key string) string {
		s, _ := params[key].(string)
		return s
	}
	return Task{
		Action:   str("action"),
		URL:      str("url"),
		Selector: str("selector"),
		Text:     str("text"),
	}
}

// Result carries whatever a task produced: extracted text, or a short
// confirmation for actions that produce none.
type Result struct {
	Data string `json:"data,omitempty"`
}

// Automator owns the browser process and executes tasks against it.
type Automator struct {
	cfg     config.BrowserConfig
	fetcher *fetch.Fetcher
	logger  *slog.Logger

	mu      sync.Mutex
	browser *rod.Browser
}

// New creates an automator. The browser is not launched until the
// first task needs it.
func New(cfg config.BrowserConfig, logger *slog.Logger) *Automator {
	return &Automator{
		cfg:     cfg,
		fetcher: fetch.New(),
		logger:  logger.With("component", "browser"),
	}
}

// Enabled reports whether web automation is available.
func (a *Automator) Enabled() bool {
	return a.cfg.Enabled
}

// Run executes one task on a fresh page.
func (a *Automator) Run(ctx context.Context, task Task) (*Result, error) {
	if !a.cfg.Enabled {
		return nil, fmt.Errorf("web automation is disabled")
	}

	switch task.Action {
	case "navigate", "click", "type", "extract":
	default:
		return nil, fmt.Errorf("unsupported action %q", task.Action)
	}

	task.URL = normalizeURL(task.URL)
	if task.URL == "" {
		return nil, fmt.Errorf("%s requires a url", task.Action)
	}

	// Whole-page extraction reads better through the fetcher and
	// avoids the browser entirely.
	if task.Action == "extract" && task.Selector == "" {
		return a.extractReadable(ctx, task.URL)
	}

	if (task.Action == "click" || task.Action == "type") && task.Selector == "" {
		return nil, fmt.Errorf("%s requires a selector", task.Action)
	}

	a.logger.Debug("running task", "action", task.Action, "url", task.URL, "selector", task.Selector)

	page, err := a.newPage(ctx, task.URL)
	if err != nil {
		return nil, err
	}
	defer page.Close()

	switch task.Action {
	case "navigate":
		return &Result{Data: fmt.Sprintf("opened %s", task.URL)}, nil

	case "click":
		el, err := a.element(ctx, page, task.Selector)
		if err != nil {
			return nil, err
		}
		if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
			return nil, fmt.Errorf("click %q: %w", task.Selector, err)
		}
		return &Result{Data: fmt.Sprintf("clicked %s", task.Selector)}, nil

	case "type":
		el, err := a.element(ctx, page, task.Selector)
		if err != nil {
			return nil, err
		}
		if err := el.Input(task.Text); err != nil {
			return nil, fmt.Errorf("type into %q: %w", task.Selector, err)
		}
		return &Result{Data: fmt.Sprintf("typed into %s", task.Selector)}, nil

	default: // extract with selector
		el, err := a.element(ctx, page, task.Selector)
		if err != nil {
			return nil, err
		}
		text, err := el.Text()
		if err != nil {
			return nil, fmt.Errorf("extract %q: %w", task.Selector, err)
		}
		return &Result{Data: text}, nil
	}
}

// element finds an element by CSS selector, bounded by the navigation
// timeout so a missing element fails instead of hanging.
func (a *Automator) element(ctx context.Context, page *rod.Page, selector string) (*rod.Element, error) {
	el, err := page.Context(ctx).Timeout(a.navTimeout()).Element(selector)
	if err != nil {
		return nil, fmt.Errorf("element %q not found: %w", selector, err)
	}
	return el, nil
}

// newPage opens a fresh page and navigates it to url.
func (a *Automator) newPage(ctx context.Context, url string) (*rod.Page, error) {
	browser, err := a.ensureBrowser()
	if err != nil {
		return nil, err
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}

	if err := page.Context(ctx).Timeout(a.navTimeout()).Navigate(url); err != nil {
		page.Close()
		return nil, fmt.Errorf("navigate to %s: %w", url, err)
	}
	return page, nil
}

// ensureBrowser launches Chrome on first use and reconnects if a
// previous process died underneath us.
func (a *Automator) ensureBrowser() (*rod.Browser, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.browser != nil {
		if _, err := a.browser.Version(); err == nil {
			return a.browser, nil
		}
		a.logger.Warn("stale browser connection, relaunching")
		a.browser.Close()
		a.browser = nil
	}

	l := launcher.New().Headless(a.cfg.Headless)
	if a.cfg.Bin != "" {
		l = l.Bin(a.cfg.Bin)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect to browser: %w", err)
	}

	a.logger.Info("browser launched", "headless", a.cfg.Headless)
	a.browser = browser
	return browser, nil
}

// extractReadable fetches the page over plain HTTP and returns its
// readable text.
func (a *Automator) extractReadable(ctx context.Context, url string) (*Result, error) {
	res, err := a.fetcher.Fetch(ctx, url, 0)
	if err != nil {
		return nil, err
	}
	data := res.Content
	if res.Title != "" {
		data = res.Title + "\n\n" + res.Content
	}
	return &Result{Data: data}, nil
}

func (a *Automator) navTimeout() time.Duration {
	if a.cfg.NavTimeoutSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(a.cfg.NavTimeoutSec) * time.Second
}

// normalizeURL defaults bare hostnames to https.
func normalizeURL(url string) string {
	if url == "" {
		return ""
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return "https://" + url
	}
	return url
}

// Close shuts the browser process down. Safe to call when it never
// launched.
func (a *Automator) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.browser == nil {
		return nil
	}
	err := a.browser.Close()
	a.browser = nil
	return err
}
