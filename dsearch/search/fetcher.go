package search

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// MaxPageSize is the practical page cap of the remote list APIs
const MaxPageSize = 1000

// Lister is the single capability the engine needs from a remote store:
// list the children of pred.Parent matching pred, one page at a time.
// Implementations should return *TransientFetchError or *FatalFetchError;
// anything else goes through Classify.
type Lister interface {
	List(ctx context.Context, pred Predicate, pageSize int, cursor string) (Page, error)
}

// ListerFunc adapts a function to Lister
type ListerFunc func(ctx context.Context, pred Predicate, pageSize int, cursor string) (Page, error)

func (f ListerFunc) List(ctx context.Context, pred Predicate, pageSize int, cursor string) (Page, error) {
	return f(ctx, pred, pageSize, cursor)
}

// RetryConfig holds backoff settings for transient failures
type RetryConfig struct {
	MaxAttempts int // total attempts including the first, <= 1 disables retry
	InitialWait time.Duration
	MaxWait     time.Duration
}

// DefaultRetryConfig returns sensible defaults
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		InitialWait: 100 * time.Millisecond,
		MaxWait:     10 * time.Second,
	}
}

// PageFetcher wraps the paginated list round trip
type PageFetcher struct {
	lister   Lister
	pageSize int
	retry    RetryConfig
	limiter  *rate.Limiter
	logger   zerolog.Logger
	store    string
}

// FetcherOption customizes a PageFetcher
type FetcherOption func(*PageFetcher)

// WithPageSize sets the requested page size, capped at MaxPageSize
func WithPageSize(n int) FetcherOption {
	return func(f *PageFetcher) {
		if n > 0 {
			f.pageSize = min(n, MaxPageSize)
		}
	}
}

// WithRetry sets the backoff policy for transient failures
func WithRetry(cfg RetryConfig) FetcherOption {
	return func(f *PageFetcher) {
		f.retry = cfg
	}
}

// WithRateLimit caps list requests per second. rps <= 0 disables limiting.
func WithRateLimit(rps float64, burst int) FetcherOption {
	return func(f *PageFetcher) {
		if rps <= 0 {
			f.limiter = nil
			return
		}
		f.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
	}
}

// WithFetcherLogger sets the logger used for retry notices
func WithFetcherLogger(logger zerolog.Logger) FetcherOption {
	return func(f *PageFetcher) {
		f.logger = logger
	}
}

// WithStoreLabel names the store in metrics
func WithStoreLabel(name string) FetcherOption {
	return func(f *PageFetcher) {
		f.store = name
	}
}

// NewPageFetcher creates a fetcher around lister
func NewPageFetcher(lister Lister, opts ...FetcherOption) *PageFetcher {
	f := &PageFetcher{
		lister:   lister,
		pageSize: MaxPageSize,
		retry:    DefaultRetryConfig(),
		logger:   zerolog.Nop(),
		store:    "unknown",
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// PageSize returns the effective page size
func (f *PageFetcher) PageSize() int {
	return f.pageSize
}

// Fetch performs one list round trip for pred starting at cursor. Transient
// failures are retried with exponential backoff; fatal ones are returned
// immediately.
func (f *PageFetcher) Fetch(ctx context.Context, pred Predicate, cursor string) (Page, error) {
	var page Page

	operation := func() error {
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx); err != nil {
				if ctx.Err() != nil {
					return backoff.Permanent(ctx.Err())
				}
				// the next token arrives after the deadline
				return backoff.Permanent(fmt.Errorf("%w: %v", context.DeadlineExceeded, err))
			}
		}

		p, err := f.lister.List(ctx, pred, f.pageSize, cursor)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			err = Classify(pred.Parent, err)
			if !IsTransient(err) {
				return backoff.Permanent(err)
			}
			return err
		}

		page = p
		return nil
	}

	notify := func(err error, wait time.Duration) {
		fetchRetries.WithLabelValues(f.store).Inc()
		f.logger.Debug().
			Err(err).
			Str("container", string(pred.Parent)).
			Dur("wait", wait).
			Msg("retrying transient list failure")
	}

	if err := backoff.RetryNotify(operation, f.backoffFor(ctx), notify); err != nil {
		fetchErrors.WithLabelValues(f.store, errorClass(err)).Inc()
		return Page{}, err
	}

	pagesFetched.WithLabelValues(f.store).Inc()
	return page, nil
}

// Drain fetches every page for pred, following continuation cursors until the
// listing is exhausted. The returned slice holds each child exactly once as
// far as the store's cursors are honest; a repeated cursor is fatal.
func (f *PageFetcher) Drain(ctx context.Context, pred Predicate) ([]Item, int, error) {
	var (
		items  []Item
		cursor string
		pages  int
		seen   = make(map[string]struct{})
	)

	for {
		if err := ctx.Err(); err != nil {
			return items, pages, err
		}

		page, err := f.Fetch(ctx, pred, cursor)
		if err != nil {
			return items, pages, err
		}
		pages++
		items = append(items, page.Items...)

		if page.NextCursor == "" {
			return items, pages, nil
		}
		if _, dup := seen[page.NextCursor]; dup {
			return items, pages, Fatal(pred.Parent, fmt.Errorf("%w: %q", ErrCursorLoop, page.NextCursor))
		}
		seen[page.NextCursor] = struct{}{}
		cursor = page.NextCursor
	}
}

func (f *PageFetcher) backoffFor(ctx context.Context) backoff.BackOffContext {
	if f.retry.MaxAttempts <= 1 {
		return backoff.WithContext(&backoff.StopBackOff{}, ctx)
	}

	b := backoff.NewExponentialBackOff()
	if f.retry.InitialWait > 0 {
		b.InitialInterval = f.retry.InitialWait
	}
	if f.retry.MaxWait > 0 {
		b.MaxInterval = f.retry.MaxWait
	}
	b.MaxElapsedTime = 0 // bounded by attempts and ctx instead
	b.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(f.retry.MaxAttempts-1)), ctx)
}

func errorClass(err error) string {
	switch {
	case IsCancellation(err):
		return "cancelled"
	case IsFatal(err):
		return "fatal"
	default:
		return "transient"
	}
}
