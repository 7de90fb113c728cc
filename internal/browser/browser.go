// Package browser drives a Chrome instance over the DevTools protocol for
// the gateway's browser method: navigate, snapshot, screenshot, click,
// fill, eval, extract. Navigation URLs are validated by the network safety
// layer before this package is ever asked to act; the driver itself only
// executes already-approved actions.
//
// The driver either attaches to a running Chrome over its DevTools debug
// URL or launches a managed headless instance; the tab context is created
// lazily on the first action and reused until Close.
package browser

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/nexuscore/agentrt/internal/bus"
	"github.com/nexuscore/agentrt/internal/rterr"
	"github.com/nexuscore/agentrt/pkg/models"
)

// snapshotTextCap bounds how much page text a snapshot event carries on the
// bus; the full text is still returned to the caller.
const snapshotTextCap = 2048

// Config configures the Driver.
type Config struct {
	// DebugURL attaches to an already-running Chrome
	// (--remote-debugging-port). Empty launches a managed instance.
	DebugURL string
	// Headless applies only to the managed-instance path.
	Headless bool
	// ActionTimeout bounds one action. Default 20s.
	ActionTimeout time.Duration
}

// Driver executes browser actions against a single lazily-created tab.
type Driver struct {
	cfg    Config
	bus    *bus.Bus
	logger *slog.Logger

	mu          sync.Mutex
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc

	// run is swapped by tests to avoid requiring a real Chrome.
	run func(ctx context.Context, actions ...chromedp.Action) error
}

// New constructs a Driver. b may be nil; snapshot events are then not
// published.
func New(cfg Config, b *bus.Bus, logger *slog.Logger) *Driver {
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = 20 * time.Second
	}
	if logger == nil {
		logger = slog.Default().With("component", "browser")
	}
	return &Driver{cfg: cfg, bus: b, logger: logger}
}

// ensureTab builds the allocator and tab context on first use.
func (d *Driver) ensureTab() (context.Context, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.tabCtx != nil && d.tabCtx.Err() == nil {
		return d.tabCtx, nil
	}
	var allocCtx context.Context
	var allocCancel context.CancelFunc
	if d.cfg.DebugURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(context.Background(), d.cfg.DebugURL)
	} else {
		opts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)
		if !d.cfg.Headless {
			opts = append(opts, chromedp.Flag("headless", false))
		}
		allocCtx, allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	}
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	d.allocCancel = allocCancel
	d.tabCtx = tabCtx
	d.tabCancel = tabCancel
	return tabCtx, nil
}

// Close tears down the tab and allocator. Safe to call more than once.
func (d *Driver) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.tabCancel != nil {
		d.tabCancel()
		d.tabCancel = nil
	}
	if d.allocCancel != nil {
		d.allocCancel()
		d.allocCancel = nil
	}
	d.tabCtx = nil
}

// runActions executes the actions under the configured per-action timeout,
// honoring the caller's context for cancellation.
func (d *Driver) runActions(ctx context.Context, actions ...chromedp.Action) error {
	d.mu.Lock()
	runFn := d.run
	d.mu.Unlock()
	if runFn == nil {
		tabCtx, err := d.ensureTab()
		if err != nil {
			return err
		}
		runFn = func(_ context.Context, acts ...chromedp.Action) error {
			tctx, cancel := context.WithTimeout(tabCtx, d.cfg.ActionTimeout)
			defer cancel()
			stop := context.AfterFunc(ctx, cancel)
			defer stop()
			return chromedp.Run(tctx, acts...)
		}
	}
	return runFn(ctx, actions...)
}

// Do executes one browser action. Unknown actions and missing required
// params are contract errors.
func (d *Driver) Do(ctx context.Context, action string, params map[string]any) (any, error) {
	switch action {
	case "navigate":
		return d.navigate(ctx, params)
	case "snapshot":
		return d.snapshot(ctx)
	case "screenshot":
		return d.screenshot(ctx, params)
	case "click":
		return d.click(ctx, params)
	case "fill":
		return d.fill(ctx, params)
	case "eval":
		return d.eval(ctx, params)
	case "extract":
		return d.extract(ctx, params)
	default:
		return nil, rterr.New(rterr.KindInvalidParams, "unknown browser action: "+action)
	}
}

func (d *Driver) navigate(ctx context.Context, params map[string]any) (any, error) {
	url, _ := params["url"].(string)
	if url == "" {
		return nil, rterr.New(rterr.KindInvalidParams, "navigate requires url")
	}
	var loc, title string
	err := d.runActions(ctx,
		chromedp.Navigate(url),
		chromedp.Location(&loc),
		chromedp.Title(&title),
	)
	if err != nil {
		return nil, fmt.Errorf("browser: navigate: %w", err)
	}
	return map[string]any{"url": loc, "title": title}, nil
}

func (d *Driver) snapshot(ctx context.Context) (any, error) {
	var loc, title, text string
	err := d.runActions(ctx,
		chromedp.Location(&loc),
		chromedp.Title(&title),
		chromedp.Text("body", &text, chromedp.ByQuery),
	)
	if err != nil {
		return nil, fmt.Errorf("browser: snapshot: %w", err)
	}
	if d.bus != nil {
		busText := text
		if len(busText) > snapshotTextCap {
			busText = busText[:snapshotTextCap]
		}
		d.bus.Publish(models.Event{
			Topic:   models.TopicBrowserSnapshot,
			Payload: map[string]any{"url": loc, "title": title, "text": busText},
		})
	}
	return map[string]any{"url": loc, "title": title, "text": text}, nil
}

func (d *Driver) screenshot(ctx context.Context, params map[string]any) (any, error) {
	fullPage, _ := params["fullPage"].(bool)
	var buf []byte
	err := d.runActions(ctx, chromedp.ActionFunc(func(actx context.Context) error {
		var err error
		buf, err = page.CaptureScreenshot().
			WithCaptureBeyondViewport(fullPage).
			Do(actx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("browser: screenshot: %w", err)
	}
	return map[string]any{"data": base64.StdEncoding.EncodeToString(buf), "encoding": "base64"}, nil
}

func (d *Driver) click(ctx context.Context, params map[string]any) (any, error) {
	selector, _ := params["selector"].(string)
	if selector == "" {
		return nil, rterr.New(rterr.KindInvalidParams, "click requires selector")
	}
	if err := d.runActions(ctx, chromedp.Click(selector, chromedp.ByQuery)); err != nil {
		return nil, fmt.Errorf("browser: click: %w", err)
	}
	return map[string]any{"clicked": selector}, nil
}

func (d *Driver) fill(ctx context.Context, params map[string]any) (any, error) {
	selector, _ := params["selector"].(string)
	value, _ := params["value"].(string)
	if selector == "" || value == "" {
		return nil, rterr.New(rterr.KindInvalidParams, "fill requires selector and value")
	}
	err := d.runActions(ctx,
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
	if err != nil {
		return nil, fmt.Errorf("browser: fill: %w", err)
	}
	return map[string]any{"filled": selector}, nil
}

func (d *Driver) eval(ctx context.Context, params map[string]any) (any, error) {
	expr, _ := params["expression"].(string)
	if expr == "" {
		expr, _ = params["script"].(string)
	}
	if expr == "" {
		return nil, rterr.New(rterr.KindInvalidParams, "eval requires expression")
	}
	var result any
	if err := d.runActions(ctx, chromedp.Evaluate(expr, &result)); err != nil {
		return nil, fmt.Errorf("browser: eval: %w", err)
	}
	return map[string]any{"result": result}, nil
}

func (d *Driver) extract(ctx context.Context, params map[string]any) (any, error) {
	selector, _ := params["selector"].(string)
	if selector == "" {
		selector = "body"
	}
	var text string
	if err := d.runActions(ctx, chromedp.Text(selector, &text, chromedp.ByQuery)); err != nil {
		return nil, fmt.Errorf("browser: extract: %w", err)
	}
	return map[string]any{"selector": selector, "text": text}, nil
}
