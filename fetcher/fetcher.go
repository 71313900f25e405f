// Package fetcher resolves video identifiers to direct media URLs by driving
// a single browser page through each identifier in turn.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/use-agent/vidurl/config"
	"github.com/use-agent/vidurl/models"
)

// Page is the browser page the fetcher drives. scraper.Session implements
// it against a real browser.
type Page interface {
	Navigate(ctx context.Context, url string) error
	SetUserAgent(ctx context.Context, ua string) error
	Reload(ctx context.Context) error
	WaitElement(ctx context.Context, selector string) error

	// VideoSource returns the media URL of the first element matching
	// selector. An empty string means the element has no source.
	VideoSource(ctx context.Context, selector string) (string, error)
}

// Fetcher runs batches of identifiers against one Page. Batches are
// serialized: a second Run waits until the first has finished.
type Fetcher struct {
	page     Page
	cfg      config.FetchConfig
	progress io.Writer
	logger   *slog.Logger

	mu        sync.Mutex
	busy      atomic.Bool
	batches   atomic.Int64
	processed atomic.Int64
	failures  atomic.Int64
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithProgress writes one "video <id>: <url>" line to w per resolved identifier.
func WithProgress(w io.Writer) Option {
	return func(f *Fetcher) { f.progress = w }
}

// WithLogger replaces slog.Default() as the diagnostics logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

// New creates a Fetcher bound to page.
func New(page Page, cfg config.FetchConfig, opts ...Option) *Fetcher {
	f := &Fetcher{
		page:   page,
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// VideoURL returns the page address for id. The identifier is used as is.
func (f *Fetcher) VideoURL(id string) string {
	return strings.TrimRight(f.cfg.SiteURL, "/") + "/video/" + id
}

// Run resolves every identifier in ids, in order, and returns the mapping.
// A failing identifier is recorded as models.FailureSentinel and never stops
// the batch; every input identifier appears in the result exactly once.
func (f *Fetcher) Run(ctx context.Context, ids []string) *models.Result {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.busy.Store(true)
	defer f.busy.Store(false)
	f.batches.Add(1)

	result := models.NewResult()
	for _, id := range ids {
		src, err := f.fetchOne(ctx, id)
		f.processed.Add(1)
		if err != nil {
			f.failures.Add(1)
			f.logger.Error("failed to resolve video", "id", id, "error", err)
			result.SetFailed(id)
			continue
		}

		result.Set(id, src)
		f.logger.Info("video resolved", "id", id, "url", src)
		if f.progress != nil {
			fmt.Fprintf(f.progress, "video %s: %s\n", id, src)
		}
	}
	return result
}

// fetchOne walks one identifier through
// navigate → set user agent → reload → wait → extract.
func (f *Fetcher) fetchOne(ctx context.Context, id string) (string, error) {
	pageURL := f.VideoURL(id)

	err := withTimeout(ctx, f.cfg.NavigationTimeout, func(ctx context.Context) error {
		return f.page.Navigate(ctx, pageURL)
	})
	if err != nil {
		return "", categorizeError(err, models.ErrCodeNavigation, "navigation to video page failed")
	}

	// The mobile layout is only served once the override is in place, so the
	// page is loaded a second time with it.
	err = withTimeout(ctx, f.cfg.NavigationTimeout, func(ctx context.Context) error {
		return f.page.SetUserAgent(ctx, f.cfg.UserAgent)
	})
	if err != nil {
		return "", categorizeError(err, models.ErrCodeNavigation, "failed to set user agent")
	}

	err = withTimeout(ctx, f.cfg.NavigationTimeout, func(ctx context.Context) error {
		return f.page.Reload(ctx)
	})
	if err != nil {
		return "", categorizeError(err, models.ErrCodeNavigation, "reload with mobile user agent failed")
	}

	err = withTimeout(ctx, f.cfg.WaitTimeout, func(ctx context.Context) error {
		return f.page.WaitElement(ctx, f.cfg.VideoSelector)
	})
	if err != nil {
		return "", categorizeError(err, models.ErrCodeWaitTimeout, "video element did not appear")
	}

	var src string
	err = withTimeout(ctx, f.cfg.WaitTimeout, func(ctx context.Context) error {
		var err error
		src, err = f.page.VideoSource(ctx, f.cfg.VideoSelector)
		return err
	})
	if err != nil {
		return "", categorizeError(err, models.ErrCodeExtraction, "failed to read video source")
	}
	if src == "" {
		return "", models.NewFetchError(models.ErrCodeNoSource, "video element has no source", nil)
	}
	return src, nil
}

// Stats returns a snapshot of the fetcher's counters.
func (f *Fetcher) Stats() models.SessionStats {
	return models.SessionStats{
		Busy:      f.busy.Load(),
		Batches:   f.batches.Load(),
		Processed: f.processed.Load(),
		Failures:  f.failures.Load(),
	}
}

func withTimeout(ctx context.Context, d time.Duration, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return fn(ctx)
}

// categorizeError wraps raw page errors into typed FetchErrors.
func categorizeError(err error, code, msg string) *models.FetchError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewFetchError(code, msg+": timed out", err)
	case errors.Is(err, context.Canceled):
		return models.NewFetchError(code, "fetch canceled", err)
	default:
		return models.NewFetchError(code, msg, err)
	}
}
