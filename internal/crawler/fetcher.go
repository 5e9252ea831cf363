package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Default fetcher settings.
const (
	// DefaultTimeout is the per-attempt request timeout.
	DefaultTimeout = 10 * time.Second

	// DefaultMaxRetries is the number of retries after the first attempt.
	DefaultMaxRetries = 3

	// DefaultRetryDelay is the fixed wait between attempts.
	DefaultRetryDelay = 1 * time.Second
)

// htmlContentType is matched as a substring of the Content-Type header.
const htmlContentType = "text/html"

// Fetcher downloads a single URL through a Transport and retries transient
// failures with a fixed delay.
//
// A Fetcher holds only configuration, so one instance can be shared by any
// number of goroutines.
//
// Design decision: We use a fixed retry delay rather than exponential
// backoff because:
//  1. Behavior is deterministic and easy to test
//  2. Retry counts are small (default 3)
//  3. Pacing between pages is handled separately by the Pacer
type Fetcher struct {
	transport  Transport
	timeout    time.Duration
	maxRetries int
	retryDelay time.Duration
	sleep      SleepFunc
	logger     *slog.Logger
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) FetcherOption {
	return func(f *Fetcher) {
		f.timeout = d
	}
}

// WithFetcherMaxRetries sets how many times a transient failure is retried.
// Total attempts are maxRetries + 1. Negative values are treated as 0.
func WithFetcherMaxRetries(n int) FetcherOption {
	return func(f *Fetcher) {
		if n < 0 {
			n = 0
		}
		f.maxRetries = n
	}
}

// WithFetcherRetryDelay sets the fixed delay between attempts.
func WithFetcherRetryDelay(d time.Duration) FetcherOption {
	return func(f *Fetcher) {
		f.retryDelay = d
	}
}

// WithFetcherSleeper replaces the function used to wait between attempts.
func WithFetcherSleeper(sleep SleepFunc) FetcherOption {
	return func(f *Fetcher) {
		if sleep != nil {
			f.sleep = sleep
		}
	}
}

// WithFetcherLogger sets the logger.
func WithFetcherLogger(logger *slog.Logger) FetcherOption {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// NewFetcher creates a Fetcher that issues requests through transport.
func NewFetcher(transport Transport, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		transport:  transport,
		timeout:    DefaultTimeout,
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
		sleep:      Sleep,
	}

	for _, opt := range opts {
		opt(f)
	}

	if f.logger == nil {
		f.logger = slog.Default()
	}

	return f
}

// MaxRetries returns the configured retry limit.
func (f *Fetcher) MaxRetries() int {
	return f.maxRetries
}

// Fetch performs exactly one attempt and classifies the result.
//
// Classification:
//   - transport error: transient failure
//   - status 400-499: permanent failure
//   - status >= 500: transient failure
//   - no "text/html" in Content-Type: skipped
//   - otherwise: content
//
// A panic inside the transport is recovered and reported as a transient
// failure wrapping ErrUnexpected.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("unexpected error fetching page", "url", pageURL, "panic", r)
			out = Failed(FailureTransient, fmt.Errorf("%w: %v", ErrUnexpected, r))
		}
	}()

	resp, err := f.transport.Get(ctx, pageURL, f.timeout)
	if err != nil {
		f.logger.Error("error fetching page", "url", pageURL, "error", err)
		return Failed(FailureTransient, fmt.Errorf("fetch %s: %w", pageURL, err))
	}
	if resp == nil {
		f.logger.Error("unexpected error fetching page", "url", pageURL, "error", "nil response")
		return Failed(FailureTransient, fmt.Errorf("%w: nil response for %s", ErrUnexpected, pageURL))
	}

	switch {
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		f.logger.Error("client error fetching page", "url", pageURL, "status", resp.StatusCode)
		return Failed(FailurePermanent, &StatusError{URL: pageURL, StatusCode: resp.StatusCode})
	case resp.StatusCode >= 500:
		f.logger.Error("server error fetching page", "url", pageURL, "status", resp.StatusCode)
		return Failed(FailureTransient, &StatusError{URL: pageURL, StatusCode: resp.StatusCode})
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, htmlContentType) {
		f.logger.Warn("skipping non-HTML content", "url", pageURL, "content_type", contentType)
		return Skipped(contentType)
	}

	return Content(resp.Body)
}

// FetchWithRetries fetches pageURL, retrying transient failures up to the
// configured limit with a fixed delay in between.
//
// It never returns an error: permanent failures, skipped content, and
// exhausted retries all surface as a Result without content. Cancelling ctx
// stops the retry loop at the next wait.
func (f *Fetcher) FetchWithRetries(ctx context.Context, pageURL string) Result {
	var res Result
	for {
		res.Outcome = f.Fetch(ctx, pageURL)
		res.Attempts++

		if !res.Outcome.Retryable() {
			return res
		}

		retries := res.Attempts
		if retries > f.maxRetries {
			f.logger.Warn("max retries reached, giving up", "url", pageURL, "attempts", res.Attempts)
			return res
		}

		f.logger.Warn("retryable error, retrying",
			"url", pageURL,
			"error", res.Outcome.Err,
			"retry", retries,
			"max_retries", f.maxRetries,
		)

		if err := f.sleep(ctx, f.retryDelay); err != nil {
			f.logger.Debug("retry wait interrupted", "url", pageURL, "reason", err)
			return res
		}
	}
}
