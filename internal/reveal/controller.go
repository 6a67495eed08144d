// Package reveal forces a lazily loaded page to materialize every image before extraction.
package reveal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"image-harvester/internal/domain"
)

// Reveal steps, used in RevealError and log messages.
const (
	StepLaunch  = "launch"
	StepOpen    = "open"
	StepFilter  = "filter"
	StepImages  = "images"
	StepScroll  = "scroll"
	StepCapture = "capture"
)

var (
	filterSelector = Selector{XPath: "//button[.//text()[contains(., 'Filter')]]", Visible: true}
	imagesSelector = Selector{XPath: "//*[contains(text(),'Images')]"}
)

// Progress milestones reported while revealing.
const (
	progressLaunched = 5
	progressOpened   = 15
	progressFilter   = 25
	progressImages   = 35
	progressScrolled = 50
	progressCaptured = 55
)

// Options bounds every wait in the reveal protocol.
type Options struct {
	OpenTimeout        time.Duration
	ElementWait        time.Duration
	FilterPause        time.Duration
	ImagesPause        time.Duration
	ScrollIterations   int
	ScrollPause        time.Duration
	StopOnStableHeight bool
	// RequireImagesView turns a missing "Images" control into a fatal error.
	RequireImagesView bool
}

// Hooks receive step logs and progress while revealing.
type Hooks struct {
	OnLog      func(level domain.LogLevel, message string)
	OnProgress func(progress int)
}

// RevealError is a step-aware failure that aborts the job.
type RevealError struct {
	Step    string
	Message string
	Err     error
}

// Error formats reveal failures for job logs.
func (e *RevealError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Step, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Step, e.Message, e.Err)
}

// Unwrap exposes underlying error for errors.Is / errors.As.
func (e *RevealError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Controller runs the reveal protocol against a fresh renderer per call.
type Controller struct {
	factory FetcherFactory
	opts    Options
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewController builds a controller that starts renderers through factory.
func NewController(factory FetcherFactory, opts Options) *Controller {
	return &Controller{
		factory: factory,
		opts:    opts,
		sleep:   sleepContext,
	}
}

// Reveal opens url, clicks optional controls, scrolls to exhaustion, and returns the markup.
// The renderer is closed on every exit path.
func (c *Controller) Reveal(ctx context.Context, url string, hooks Hooks) (markup string, err error) {
	fetcher, err := c.factory(ctx)
	if err != nil {
		return "", &RevealError{Step: StepLaunch, Message: "cannot start renderer", Err: err}
	}
	defer func() {
		if closeErr := fetcher.Close(); closeErr != nil {
			hooks.log(domain.LogLevelWarn, fmt.Sprintf("Renderer close failed: %v", closeErr))
		}
	}()
	hooks.log(domain.LogLevelInfo, "Renderer started")
	hooks.progress(progressLaunched)

	openCtx := ctx
	if c.opts.OpenTimeout > 0 {
		var cancel context.CancelFunc
		openCtx, cancel = context.WithTimeout(ctx, c.opts.OpenTimeout)
		defer cancel()
	}
	if err := fetcher.Open(openCtx, url); err != nil {
		return "", &RevealError{Step: StepOpen, Message: fmt.Sprintf("page did not load: %s", url), Err: err}
	}
	hooks.log(domain.LogLevelInfo, "Page opened")
	hooks.progress(progressOpened)

	if _, err := c.clickOptional(ctx, fetcher, filterSelector, ClickNative, c.opts.FilterPause, "Filter", hooks); err != nil {
		return "", &RevealError{Step: StepFilter, Message: "interrupted", Err: err}
	}
	hooks.progress(progressFilter)

	found, err := c.clickOptional(ctx, fetcher, imagesSelector, ClickScript, c.opts.ImagesPause, "Images", hooks)
	if err != nil {
		return "", &RevealError{Step: StepImages, Message: "interrupted", Err: err}
	}
	if !found && c.opts.RequireImagesView {
		return "", &RevealError{Step: StepImages, Message: "images view control is required but was not found", Err: ErrNotFound}
	}
	hooks.progress(progressImages)

	if err := c.scroll(ctx, fetcher, hooks); err != nil {
		return "", &RevealError{Step: StepScroll, Message: "interrupted", Err: err}
	}
	hooks.progress(progressScrolled)

	markup, err = fetcher.PageSource(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", &RevealError{Step: StepCapture, Message: "interrupted", Err: ctxErr}
		}
		// An unreadable page yields no candidates; the job still completes.
		hooks.log(domain.LogLevelWarn, fmt.Sprintf("Page source could not be captured, continuing without images: %v", err))
		hooks.progress(progressCaptured)
		return "", nil
	}
	hooks.log(domain.LogLevelInfo, fmt.Sprintf("Page source captured (%d bytes)", len(markup)))
	hooks.progress(progressCaptured)
	return markup, nil
}

// clickOptional clicks sel when it shows up within ElementWait. A missing or
// unclickable control is logged and skipped; only ctx cancellation is returned.
func (c *Controller) clickOptional(
	ctx context.Context,
	fetcher PageFetcher,
	sel Selector,
	mode ClickMode,
	pause time.Duration,
	name string,
	hooks Hooks,
) (bool, error) {
	handle, err := fetcher.FindClickable(ctx, sel, c.opts.ElementWait)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		if errors.Is(err, ErrNotFound) {
			hooks.log(domain.LogLevelInfo, fmt.Sprintf("%s control not found, skipped", name))
		} else {
			hooks.log(domain.LogLevelWarn, fmt.Sprintf("%s control lookup failed, skipped: %v", name, err))
		}
		return false, nil
	}

	if err := fetcher.Click(ctx, handle, mode); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		hooks.log(domain.LogLevelWarn, fmt.Sprintf("%s control click failed, skipped: %v", name, err))
		return false, nil
	}
	hooks.log(domain.LogLevelInfo, fmt.Sprintf("Clicked %s", name))

	return true, c.sleep(ctx, pause)
}

// scroll scrolls to the bottom up to ScrollIterations times, optionally stopping
// once the document height stops growing. Renderer errors are logged, not returned.
func (c *Controller) scroll(ctx context.Context, fetcher PageFetcher, hooks Hooks) error {
	total := c.opts.ScrollIterations
	span := progressScrolled - progressImages
	watchHeight := c.opts.StopOnStableHeight
	var lastHeight int64 = -1

	for i := 0; i < total; i++ {
		if err := fetcher.ScrollToBottom(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			hooks.log(domain.LogLevelWarn, fmt.Sprintf("Scroll %d/%d failed: %v", i+1, total, err))
		} else {
			hooks.log(domain.LogLevelInfo, fmt.Sprintf("Scroll %d/%d", i+1, total))
		}
		hooks.progress(progressImages + span*(i+1)/total)

		if err := c.sleep(ctx, c.opts.ScrollPause); err != nil {
			return err
		}

		if !watchHeight {
			continue
		}
		height, err := fetcher.DocumentHeight(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			hooks.log(domain.LogLevelWarn, fmt.Sprintf("Cannot measure page height, scrolling all %d times: %v", total, err))
			watchHeight = false
			continue
		}
		if height == lastHeight {
			hooks.log(domain.LogLevelInfo, fmt.Sprintf("Page height stable at %d px, stopped after %d scrolls", height, i+1))
			return nil
		}
		lastHeight = height
	}
	return nil
}

func (h Hooks) log(level domain.LogLevel, message string) {
	if h.OnLog != nil {
		h.OnLog(level, message)
	}
}

func (h Hooks) progress(p int) {
	if h.OnProgress != nil {
		h.OnProgress(p)
	}
}

// sleepContext pauses for d unless ctx is cancelled first.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NewControllerForTests constructs a controller with an injectable sleep.
func NewControllerForTests(factory FetcherFactory, opts Options, sleep func(ctx context.Context, d time.Duration) error) *Controller {
	return &Controller{
		factory: factory,
		opts:    opts,
		sleep:   sleep,
	}
}
