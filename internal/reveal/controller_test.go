package reveal

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"image-harvester/internal/domain"
)

// fakeFetcher scripts renderer behavior and records calls.
type fakeFetcher struct {
	mu        sync.Mutex
	openErr   error
	found     map[string]bool
	clickErr  error
	heights   []int64
	source    string
	sourceErr error
	panicOn   string

	calls   []string
	clicks  []ClickMode
	scrolls int
	closed  int
}

func (f *fakeFetcher) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeFetcher) Open(ctx context.Context, url string) error {
	f.record("open")
	return f.openErr
}

func (f *fakeFetcher) FindClickable(ctx context.Context, sel Selector, timeout time.Duration) (Handle, error) {
	f.record("find")
	if f.panicOn == "find" {
		panic("renderer crashed")
	}
	for key, ok := range f.found {
		if ok && strings.Contains(sel.XPath, key) {
			return Handle{XPath: sel.XPath}, nil
		}
	}
	return Handle{}, ErrNotFound
}

func (f *fakeFetcher) Click(ctx context.Context, h Handle, mode ClickMode) error {
	f.record("click")
	f.clicks = append(f.clicks, mode)
	return f.clickErr
}

func (f *fakeFetcher) ScrollToBottom(ctx context.Context) error {
	f.record("scroll")
	f.scrolls++
	return nil
}

func (f *fakeFetcher) DocumentHeight(ctx context.Context) (int64, error) {
	if len(f.heights) == 0 {
		return 0, errors.New("no height")
	}
	idx := f.scrolls - 1
	if idx >= len(f.heights) {
		idx = len(f.heights) - 1
	}
	return f.heights[idx], nil
}

func (f *fakeFetcher) PageSource(ctx context.Context) (string, error) {
	f.record("source")
	return f.source, f.sourceErr
}

func (f *fakeFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func factoryFor(f *fakeFetcher) FetcherFactory {
	return func(ctx context.Context) (PageFetcher, error) {
		return f, nil
	}
}

func noSleep(ctx context.Context, d time.Duration) error {
	return ctx.Err()
}

func testOptions() Options {
	return Options{
		OpenTimeout:      time.Second,
		ElementWait:      time.Millisecond,
		ScrollIterations: 4,
	}
}

// collectHooks captures log messages and progress values.
func collectHooks() (Hooks, *[]string, *[]int) {
	var logs []string
	var progress []int
	return Hooks{
		OnLog:      func(level domain.LogLevel, msg string) { logs = append(logs, msg) },
		OnProgress: func(p int) { progress = append(progress, p) },
	}, &logs, &progress
}

// TestRevealHappyPath checks both optional controls, scrolls and capture.
func TestRevealHappyPath(t *testing.T) {
	f := &fakeFetcher{
		found:  map[string]bool{"Filter": true, "Images": true},
		source: "<html>ok</html>",
	}
	hooks, logs, progress := collectHooks()

	markup, err := NewControllerForTests(factoryFor(f), testOptions(), noSleep).Reveal(context.Background(), "http://example.test", hooks)
	if err != nil {
		t.Fatalf("Reveal() error = %v", err)
	}
	if markup != "<html>ok</html>" {
		t.Fatalf("markup = %q", markup)
	}
	if f.scrolls != 4 {
		t.Fatalf("scrolls = %d, want 4", f.scrolls)
	}
	if len(f.clicks) != 2 || f.clicks[0] != ClickNative || f.clicks[1] != ClickScript {
		t.Fatalf("click modes = %v, want [native script]", f.clicks)
	}
	if f.closed != 1 {
		t.Fatalf("close calls = %d, want 1", f.closed)
	}
	assertNonDecreasing(t, *progress)
	assertLogContains(t, *logs, "Clicked Filter")
	assertLogContains(t, *logs, "Clicked Images")
}

// TestRevealSkipsMissingOptionalControls checks that absent controls are not errors.
func TestRevealSkipsMissingOptionalControls(t *testing.T) {
	f := &fakeFetcher{source: "<html></html>"}
	hooks, logs, _ := collectHooks()

	if _, err := NewControllerForTests(factoryFor(f), testOptions(), noSleep).Reveal(context.Background(), "http://example.test", hooks); err != nil {
		t.Fatalf("Reveal() error = %v", err)
	}
	assertLogContains(t, *logs, "Filter control not found, skipped")
	assertLogContains(t, *logs, "Images control not found, skipped")
	if len(f.clicks) != 0 {
		t.Fatalf("unexpected clicks: %v", f.clicks)
	}
}

// TestRevealClickFailureIsSkipped checks that a failing click is best-effort.
func TestRevealClickFailureIsSkipped(t *testing.T) {
	f := &fakeFetcher{
		found:    map[string]bool{"Filter": true},
		clickErr: errors.New("element intercepted"),
		source:   "<html></html>",
	}
	hooks, logs, _ := collectHooks()

	if _, err := NewControllerForTests(factoryFor(f), testOptions(), noSleep).Reveal(context.Background(), "http://example.test", hooks); err != nil {
		t.Fatalf("Reveal() error = %v", err)
	}
	assertLogContains(t, *logs, "Filter control click failed")
}

// TestRevealRequiredImagesViewMissingIsFatal checks the strict images policy.
func TestRevealRequiredImagesViewMissingIsFatal(t *testing.T) {
	f := &fakeFetcher{source: "<html></html>"}
	opts := testOptions()
	opts.RequireImagesView = true

	_, err := NewControllerForTests(factoryFor(f), opts, noSleep).Reveal(context.Background(), "http://example.test", Hooks{})
	var rErr *RevealError
	if !errors.As(err, &rErr) || rErr.Step != StepImages {
		t.Fatalf("error = %v, want images RevealError", err)
	}
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
	if f.closed != 1 {
		t.Fatalf("close calls = %d, want 1", f.closed)
	}
}

// TestRevealOpenFailureIsFatalAndCloses checks the only mandatory step.
func TestRevealOpenFailureIsFatalAndCloses(t *testing.T) {
	f := &fakeFetcher{openErr: errors.New("net::ERR_NAME_NOT_RESOLVED")}

	_, err := NewControllerForTests(factoryFor(f), testOptions(), noSleep).Reveal(context.Background(), "http://nowhere.test", Hooks{})
	var rErr *RevealError
	if !errors.As(err, &rErr) || rErr.Step != StepOpen {
		t.Fatalf("error = %v, want open RevealError", err)
	}
	if f.closed != 1 {
		t.Fatalf("close calls = %d, want 1", f.closed)
	}
	if f.scrolls != 0 {
		t.Fatalf("scrolls = %d, want 0", f.scrolls)
	}
}

// TestRevealLaunchFailure checks renderer start errors.
func TestRevealLaunchFailure(t *testing.T) {
	factory := func(ctx context.Context) (PageFetcher, error) {
		return nil, errors.New("chrome not found")
	}

	_, err := NewControllerForTests(factory, testOptions(), noSleep).Reveal(context.Background(), "http://example.test", Hooks{})
	var rErr *RevealError
	if !errors.As(err, &rErr) || rErr.Step != StepLaunch {
		t.Fatalf("error = %v, want launch RevealError", err)
	}
}

// TestRevealStopsWhenHeightStable checks early exhaustion detection.
func TestRevealStopsWhenHeightStable(t *testing.T) {
	f := &fakeFetcher{
		heights: []int64{1000, 2000, 2000, 3000},
		source:  "<html></html>",
	}
	opts := testOptions()
	opts.ScrollIterations = 10
	opts.StopOnStableHeight = true
	hooks, logs, _ := collectHooks()

	if _, err := NewControllerForTests(factoryFor(f), opts, noSleep).Reveal(context.Background(), "http://example.test", hooks); err != nil {
		t.Fatalf("Reveal() error = %v", err)
	}
	if f.scrolls != 3 {
		t.Fatalf("scrolls = %d, want 3", f.scrolls)
	}
	assertLogContains(t, *logs, "stopped after 3 scrolls")
}

// TestRevealHeightErrorFallsBackToFullScroll checks measurement failures are tolerated.
func TestRevealHeightErrorFallsBackToFullScroll(t *testing.T) {
	f := &fakeFetcher{source: "<html></html>"}
	opts := testOptions()
	opts.StopOnStableHeight = true

	if _, err := NewControllerForTests(factoryFor(f), opts, noSleep).Reveal(context.Background(), "http://example.test", Hooks{}); err != nil {
		t.Fatalf("Reveal() error = %v", err)
	}
	if f.scrolls != opts.ScrollIterations {
		t.Fatalf("scrolls = %d, want %d", f.scrolls, opts.ScrollIterations)
	}
}

// TestRevealCaptureFailureIsDegenerate checks an unreadable page source warns and yields no markup.
func TestRevealCaptureFailureIsDegenerate(t *testing.T) {
	f := &fakeFetcher{sourceErr: errors.New("target closed")}
	hooks, logs, _ := collectHooks()

	markup, err := NewControllerForTests(factoryFor(f), testOptions(), noSleep).Reveal(context.Background(), "http://example.test", hooks)
	if err != nil {
		t.Fatalf("Reveal() error = %v, want nil", err)
	}
	if markup != "" {
		t.Fatalf("markup = %q, want empty", markup)
	}
	if len(*logs) == 0 || !strings.HasPrefix((*logs)[len(*logs)-1], "Page source could not be captured") {
		t.Fatalf("logs = %v", *logs)
	}
	if f.closed != 1 {
		t.Fatalf("close calls = %d, want 1", f.closed)
	}
}

// TestRevealClosesOnPanic checks renderer release when a step panics.
func TestRevealClosesOnPanic(t *testing.T) {
	f := &fakeFetcher{panicOn: "find"}

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected panic to propagate")
			}
		}()
		_, _ = NewControllerForTests(factoryFor(f), testOptions(), noSleep).Reveal(context.Background(), "http://example.test", Hooks{})
	}()

	if f.closed != 1 {
		t.Fatalf("close calls = %d, want 1", f.closed)
	}
}

// TestRevealCancelledDuringPause checks ctx cancellation aborts the scroll loop.
func TestRevealCancelledDuringPause(t *testing.T) {
	f := &fakeFetcher{source: "<html></html>"}
	ctx, cancel := context.WithCancel(context.Background())
	sleep := func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err := NewControllerForTests(factoryFor(f), testOptions(), sleep).Reveal(ctx, "http://example.test", Hooks{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if f.closed != 1 {
		t.Fatalf("close calls = %d, want 1", f.closed)
	}
}

func assertNonDecreasing(t *testing.T, values []int) {
	t.Helper()
	for i := 1; i < len(values); i++ {
		if values[i] < values[i-1] {
			t.Fatalf("progress decreased: %v", values)
		}
	}
}

func assertLogContains(t *testing.T, logs []string, want string) {
	t.Helper()
	for _, line := range logs {
		if strings.Contains(line, want) {
			return
		}
	}
	t.Fatalf("log %q not found in %v", want, logs)
}
