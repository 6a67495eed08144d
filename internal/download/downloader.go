// Package download fetches candidate image URLs, validates them, and persists accepted bytes.
package download

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// OutcomeKind classifies the result of one candidate.
type OutcomeKind string

const (
	OutcomeSaved          OutcomeKind = "saved"
	OutcomeHTTPError      OutcomeKind = "http_error"
	OutcomeInvalidContent OutcomeKind = "invalid_content"
	OutcomeIOError        OutcomeKind = "io_error"
)

// DefaultExtension is used when the URL path carries no allowed suffix.
const DefaultExtension = "jpg"

var allowedExtensions = map[string]bool{
	"jpg":  true,
	"jpeg": true,
	"png":  true,
	"webp": true,
}

// Outcome is the per-candidate result. It only drives logs and counters.
type Outcome struct {
	URL        string
	Kind       OutcomeKind
	Path       string
	Extension  string
	StatusCode int
	Reason     string
	Attempts   int
}

// Saved reports whether the candidate was written to disk.
func (o Outcome) Saved() bool {
	return o.Kind == OutcomeSaved
}

// Describe renders the outcome as one job log line.
func (o Outcome) Describe() string {
	switch o.Kind {
	case OutcomeSaved:
		return fmt.Sprintf("Saved %s from %s", filepath.Base(o.Path), o.URL)
	case OutcomeHTTPError:
		return fmt.Sprintf("Skipped %s: HTTP status %d", o.URL, o.StatusCode)
	case OutcomeInvalidContent:
		return fmt.Sprintf("Skipped %s: invalid content: %s", o.URL, o.Reason)
	default:
		return fmt.Sprintf("Skipped %s: io error: %s", o.URL, o.Reason)
	}
}

// Progress is reported once per processed candidate, in processing order.
type Progress struct {
	Outcome   Outcome
	Processed int
	Saved     int
	Total     int
}

// Summary aggregates a finished download run.
type Summary struct {
	Total   int
	Saved   int
	Skipped int
	Files   []string
}

// Options bounds network and validation behavior.
type Options struct {
	Timeout     time.Duration
	Attempts    int
	RetryDelay  time.Duration
	MinBytes    int64
	MaxBytes    int64
	Concurrency int
	UserAgent   string
}

// Downloader fetches candidates through a bounded worker pool.
type Downloader struct {
	client    *http.Client
	opts      Options
	stage     func(dir string, data []byte) (string, error)
	commit    func(tmpPath, path string) error
	sleep     func(ctx context.Context, d time.Duration) error
}

// New builds a downloader with its own HTTP client.
func New(opts Options) *Downloader {
	return NewWithClient(&http.Client{Timeout: opts.Timeout}, opts)
}

// NewWithClient builds a downloader around an existing client.
func NewWithClient(client *http.Client, opts Options) *Downloader {
	if opts.Attempts <= 0 {
		opts.Attempts = 1
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 50 << 20
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 500 * time.Millisecond
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "image-harvester/1.0"
	}

	return &Downloader{
		client:    client,
		opts:      opts,
		stage:     stageFile,
		commit:    commitFile,
		sleep:     sleepContext,
	}
}

// Download fetches every candidate into destDir as img_<seq>.<ext>.
// Per-candidate failures are reported, never returned; the only error is ctx cancellation.
func (d *Downloader) Download(ctx context.Context, candidates []string, destDir string, report func(Progress)) (Summary, error) {
	summary := Summary{Total: len(candidates)}
	if len(candidates) == 0 {
		return summary, nil
	}

	queue := make(chan string)
	var (
		mu        sync.Mutex
		wg        sync.WaitGroup
		seq       int
		processed int
	)

	// record names and reports one outcome. Only the rename runs under the lock,
	// so sequence numbers stay dense while writes proceed in parallel.
	record := func(out Outcome, staged string) {
		mu.Lock()
		defer mu.Unlock()

		if out.Kind == OutcomeSaved {
			seq++
			name := fmt.Sprintf("img_%d.%s", seq, out.Extension)
			dest := filepath.Join(destDir, name)
			if err := d.commit(staged, dest); err != nil {
				seq--
				out.Kind = OutcomeIOError
				out.Reason = err.Error()
			} else {
				out.Path = dest
				summary.Saved++
				summary.Files = append(summary.Files, dest)
			}
		}
		if out.Kind != OutcomeSaved {
			summary.Skipped++
		}
		processed++

		if report != nil {
			report(Progress{
				Outcome:   out,
				Processed: processed,
				Saved:     summary.Saved,
				Total:     summary.Total,
			})
		}
	}

	workers := d.opts.Concurrency
	if workers > len(candidates) {
		workers = len(candidates)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rawURL := range queue {
				body, out := d.fetch(ctx, rawURL)
				if ctx.Err() != nil {
					continue
				}
				var staged string
				if out.Kind == OutcomeSaved {
					path, err := d.stage(destDir, body)
					if err != nil {
						out.Kind = OutcomeIOError
						out.Reason = err.Error()
					}
					staged = path
				}
				record(out, staged)
			}
		}()
	}

feed:
	for _, rawURL := range candidates {
		select {
		case <-ctx.Done():
			break feed
		case queue <- rawURL:
		}
	}
	close(queue)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

// fetch performs up to Attempts tries and returns the accepted body or the last failure.
func (d *Downloader) fetch(ctx context.Context, rawURL string) ([]byte, Outcome) {
	var (
		body  []byte
		out   Outcome
		retry bool
	)
	for attempt := 1; attempt <= d.opts.Attempts; attempt++ {
		body, out, retry = d.attempt(ctx, rawURL)
		out.Attempts = attempt
		if !retry || attempt == d.opts.Attempts {
			break
		}
		if err := d.sleep(ctx, d.opts.RetryDelay); err != nil {
			break
		}
	}
	return body, out
}

// attempt runs one GET and validates the response. retry reports whether the
// failure is transient (transport error, 5xx or 429).
func (d *Downloader) attempt(ctx context.Context, rawURL string) (body []byte, out Outcome, retry bool) {
	out = Outcome{URL: rawURL}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		out.Kind = OutcomeIOError
		out.Reason = err.Error()
		return nil, out, false
	}
	req.Header.Set("User-Agent", d.opts.UserAgent)
	req.Header.Set("Accept", "image/avif,image/webp,image/png,image/jpeg,image/*;q=0.8")

	resp, err := d.client.Do(req)
	if err != nil {
		out.Kind = OutcomeIOError
		out.Reason = err.Error()
		return nil, out, true
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		out.Kind = OutcomeHTTPError
		out.StatusCode = resp.StatusCode
		return nil, out, resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
	}

	if contentType := resp.Header.Get("Content-Type"); contentType != "" {
		mediaType, _, err := mime.ParseMediaType(contentType)
		if err != nil || !strings.HasPrefix(mediaType, "image/") {
			out.Kind = OutcomeInvalidContent
			out.Reason = fmt.Sprintf("content type %q is not an image", contentType)
			return nil, out, false
		}
	}

	body, err = io.ReadAll(io.LimitReader(resp.Body, d.opts.MaxBytes+1))
	if err != nil {
		out.Kind = OutcomeIOError
		out.Reason = fmt.Sprintf("read body: %v", err)
		return nil, out, true
	}
	if int64(len(body)) > d.opts.MaxBytes {
		out.Kind = OutcomeInvalidContent
		out.Reason = fmt.Sprintf("body exceeds %d bytes", d.opts.MaxBytes)
		return nil, out, false
	}
	if int64(len(body)) < d.opts.MinBytes {
		out.Kind = OutcomeInvalidContent
		out.Reason = fmt.Sprintf("body too small (%d bytes, minimum %d)", len(body), d.opts.MinBytes)
		return nil, out, false
	}

	out.Kind = OutcomeSaved
	out.Extension = ExtensionFor(rawURL)
	return body, out, false
}

// ExtensionFor infers a file extension from the URL path suffix, restricted to
// jpg, jpeg, png and webp, falling back to jpg.
func ExtensionFor(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return DefaultExtension
	}

	ext := strings.ToLower(strings.TrimPrefix(path.Ext(u.Path), "."))
	if allowedExtensions[ext] {
		return ext
	}
	return DefaultExtension
}

// sleepContext pauses for d unless ctx is cancelled first.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
