// Package browser implements reveal.PageFetcher on top of a headless Chrome driven by chromedp.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"

	"image-harvester/internal/domain"
	"image-harvester/internal/reveal"
)

// Options configures the Chrome process started for each job.
type Options struct {
	// ExecPath overrides chromedp's browser discovery when set.
	ExecPath string
	Headless bool
	Width    int
	Height   int
}

// OptionsFromSettings maps user settings onto launch options.
func OptionsFromSettings(s domain.Settings) Options {
	return Options{
		ExecPath: s.BrowserPath,
		Headless: !s.ShowBrowser,
	}
}

// Chrome is a single-page renderer session backed by its own browser process.
type Chrome struct {
	ctx         context.Context
	cancelAlloc context.CancelFunc
	cancelTab   context.CancelFunc
	closeOnce   sync.Once
}

// NewFactory returns a reveal.FetcherFactory that starts one Chrome per job.
func NewFactory(opts Options) reveal.FetcherFactory {
	return func(ctx context.Context) (reveal.PageFetcher, error) {
		return Start(ctx, opts)
	}
}

// Start launches Chrome and opens a blank tab. The browser lives until Close
// is called or ctx is cancelled.
func Start(ctx context.Context, opts Options) (*Chrome, error) {
	if opts.Width <= 0 {
		opts.Width = 1920
	}
	if opts.Height <= 0 {
		opts.Height = 1080
	}

	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	allocOpts = append(allocOpts,
		chromedp.Flag("headless", opts.Headless),
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(opts.Width, opts.Height),
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	// The first Run starts the browser process.
	if err := chromedp.Run(tabCtx); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("start chrome: %w", err)
	}

	return &Chrome{
		ctx:         tabCtx,
		cancelAlloc: cancelAlloc,
		cancelTab:   cancelTab,
	}, nil
}

// Open navigates to url and waits for the body element.
func (c *Chrome) Open(ctx context.Context, url string) error {
	return c.run(ctx, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery))
}

// FindClickable waits up to timeout for the first node matching sel.
func (c *Chrome) FindClickable(ctx context.Context, sel reveal.Selector, timeout time.Duration) (reveal.Handle, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	queryOpts := []chromedp.QueryOption{chromedp.BySearch, chromedp.AtLeast(1)}
	if sel.Visible {
		queryOpts = append(queryOpts, chromedp.NodeVisible)
	}

	var nodes []*cdp.Node
	err := c.run(waitCtx, chromedp.Nodes(sel.XPath, &nodes, queryOpts...))
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return reveal.Handle{}, reveal.ErrNotFound
		}
		return reveal.Handle{}, err
	}
	if len(nodes) == 0 {
		return reveal.Handle{}, reveal.ErrNotFound
	}
	return reveal.Handle{XPath: sel.XPath, Ref: nodes[0]}, nil
}

// Click activates h with real mouse events or a script-level element.click().
func (c *Chrome) Click(ctx context.Context, h reveal.Handle, mode reveal.ClickMode) error {
	if mode == reveal.ClickNative {
		node, ok := h.Ref.(*cdp.Node)
		if !ok {
			return fmt.Errorf("handle for %s has no node reference", h.XPath)
		}
		return c.run(ctx, chromedp.MouseClickNode(node))
	}

	var clicked bool
	if err := c.run(ctx, chromedp.Evaluate(scriptClick(h.XPath), &clicked)); err != nil {
		return err
	}
	if !clicked {
		return reveal.ErrNotFound
	}
	return nil
}

// ScrollToBottom scrolls the window to the current document height.
func (c *Chrome) ScrollToBottom(ctx context.Context) error {
	var height int64
	return c.run(ctx, chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight); document.body.scrollHeight`, &height))
}

// DocumentHeight reports document.body.scrollHeight.
func (c *Chrome) DocumentHeight(ctx context.Context) (int64, error) {
	var height int64
	if err := c.run(ctx, chromedp.Evaluate(`document.body.scrollHeight`, &height)); err != nil {
		return 0, err
	}
	return height, nil
}

// PageSource serializes the live DOM.
func (c *Chrome) PageSource(ctx context.Context) (string, error) {
	var markup string
	if err := c.run(ctx, chromedp.OuterHTML("html", &markup, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return markup, nil
}

// Close shuts the tab and kills the browser process. Safe to call repeatedly.
func (c *Chrome) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = chromedp.Cancel(c.ctx)
		c.cancelTab()
		c.cancelAlloc()
		if errors.Is(err, context.Canceled) {
			err = nil
		}
	})
	return err
}

// run executes actions on the tab while honouring the caller's ctx as well.
func (c *Chrome) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(c.ctx)
	defer cancel()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// scriptClick builds a script that clicks the first node matching xpath and reports success.
func scriptClick(xpath string) string {
	return `(function() {
	var node = document.evaluate(` + strconv.Quote(xpath) + `, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
	if (!node) { return false; }
	node.click();
	return true;
})()`
}
