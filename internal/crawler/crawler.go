package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"runtime/debug"
	"sync"
	"time"

	"github.com/nao1215/sitecrawl/internal/model"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxConcurrentTasks is the default wave size.
const DefaultMaxConcurrentTasks = 5

// Crawler construction errors.
var (
	// ErrInvalidStartURL is returned when the start URL is not an absolute
	// http or https URL with a host.
	ErrInvalidStartURL = errors.New("invalid start URL: must be an absolute http(s) URL")

	// ErrNoTransport is returned when neither a Transport nor a PageFetcher
	// was supplied.
	ErrNoTransport = errors.New("no transport configured")
)

// PageFetcher fetches one URL with retries. *Fetcher implements it.
type PageFetcher interface {
	FetchWithRetries(ctx context.Context, url string) Result
}

// LinkExtractor turns a page body into classified links. *Classifier
// implements it.
type LinkExtractor interface {
	ExtractLinks(body, baseURL string) (Links, error)
}

// LinkExtractorFunc adapts a function to the LinkExtractor interface.
type LinkExtractorFunc func(body, baseURL string) (Links, error)

// ExtractLinks calls f.
func (f LinkExtractorFunc) ExtractLinks(body, baseURL string) (Links, error) {
	return f(body, baseURL)
}

// Observer is told about every page whose links were classified.
// It is called from concurrent goroutines and must be safe for that.
type Observer interface {
	PageVisited(page *model.Page)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(page *model.Page)

// PageVisited calls f.
func (f ObserverFunc) PageVisited(page *model.Page) {
	f(page)
}

// nopObserver discards everything.
type nopObserver struct{}

func (nopObserver) PageVisited(*model.Page) {}

// Crawler is one crawl session over a single domain.
//
// It owns the frontier and the visited set and is the only thing that
// mutates them. A Crawler runs one crawl; create a new one for each run.
//
// Design decision: We process the frontier in waves rather than with a
// streaming worker pool because:
//  1. Each wave is a clear barrier that is easy to reason about and test
//  2. FIFO order holds for every URL present at the start of a wave
//  3. Cancellation only needs checking between waves
type Crawler struct {
	// startURL is the seed URL, used verbatim.
	startURL string

	// domain is the host of startURL, computed once.
	domain string

	// concurrency is the maximum number of URLs claimed per wave.
	concurrency int

	// rateLimit is the pause each unit takes after its work.
	rateLimit time.Duration

	// timeout, maxRetries and retryDelay configure the default Fetcher.
	timeout    time.Duration
	maxRetries int
	retryDelay time.Duration

	sleep         SleepFunc
	logger        *slog.Logger
	observer      Observer
	fetcher       PageFetcher
	extractor     LinkExtractor
	hrefExtractor HrefExtractor
	pacer         *Pacer

	// mu protects everything below.
	mu       sync.Mutex
	frontier *frontier
	visited  map[string]struct{}
	order    []string
	report   *model.CrawlReport
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithMaxConcurrentTasks sets how many URLs are fetched concurrently in one
// wave. Values below 1 are ignored.
func WithMaxConcurrentTasks(n int) Option {
	return func(c *Crawler) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithRateLimit sets the delay each unit waits after fetching and
// classifying its page. Zero disables it.
func WithRateLimit(d time.Duration) Option {
	return func(c *Crawler) {
		c.rateLimit = d
	}
}

// WithMaxRetries sets how many times a transient failure is retried.
func WithMaxRetries(n int) Option {
	return func(c *Crawler) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets the fixed delay between fetch attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Crawler) {
		c.retryDelay = d
	}
}

// WithRequestTimeout sets the per-attempt request timeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Crawler) {
		c.timeout = d
	}
}

// WithSleeper replaces the function used for retry and rate-limit waits.
func WithSleeper(sleep SleepFunc) Option {
	return func(c *Crawler) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Crawler) {
		c.logger = logger
	}
}

// WithObserver sets the observer notified of visited pages.
func WithObserver(o Observer) Option {
	return func(c *Crawler) {
		if o != nil {
			c.observer = o
		}
	}
}

// WithFetcher replaces the page fetcher. When set, the transport passed to
// New is not used and the retry options have no effect.
func WithFetcher(f PageFetcher) Option {
	return func(c *Crawler) {
		c.fetcher = f
	}
}

// WithLinkExtractor replaces the link classifier.
func WithLinkExtractor(e LinkExtractor) Option {
	return func(c *Crawler) {
		c.extractor = e
	}
}

// WithHrefExtractor replaces the HTML parser used by the default classifier.
func WithHrefExtractor(e HrefExtractor) Option {
	return func(c *Crawler) {
		c.hrefExtractor = e
	}
}

// New creates a Crawler that starts at startURL and fetches pages through
// transport.
func New(startURL string, transport Transport, opts ...Option) (*Crawler, error) {
	domain, err := DomainOf(startURL)
	if err != nil {
		return nil, err
	}

	c := &Crawler{
		startURL:    startURL,
		domain:      domain,
		concurrency: DefaultMaxConcurrentTasks,
		timeout:     DefaultTimeout,
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		sleep:       Sleep,
		observer:    nopObserver{},
		frontier:    newFrontier(startURL),
		visited:     make(map[string]struct{}),
		order:       make([]string, 0),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = slog.Default()
	}

	if c.fetcher == nil {
		if transport == nil {
			return nil, ErrNoTransport
		}
		c.fetcher = NewFetcher(transport,
			WithTimeout(c.timeout),
			WithFetcherMaxRetries(c.maxRetries),
			WithFetcherRetryDelay(c.retryDelay),
			WithFetcherSleeper(c.sleep),
			WithFetcherLogger(c.logger),
		)
	}

	if c.extractor == nil {
		c.extractor = NewClassifier(c.domain, c.hrefExtractor)
	}

	c.pacer = NewPacer(c.rateLimit, c.sleep)

	return c, nil
}

// DomainOf returns the host component (including port) of an absolute
// http or https URL.
func DomainOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidStartURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidStartURL, rawURL)
	}
	return u.Host, nil
}

// Domain returns the target domain.
func (c *Crawler) Domain() string {
	return c.domain
}

// StartURL returns the seed URL.
func (c *Crawler) StartURL() string {
	return c.startURL
}

// Visited returns the claimed URLs in claim order.
func (c *Crawler) Visited() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// IsVisited reports whether u has been claimed.
func (c *Crawler) IsVisited(u string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.visited[u]
	return ok
}

// Pending returns the URLs still waiting in the frontier.
func (c *Crawler) Pending() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frontier.snapshot()
}

// Crawl runs the crawl to completion and returns its report.
//
// The crawl alternates between claiming up to the concurrency limit of URLs
// from the frontier and fetching that wave concurrently, until a wave leaves
// the frontier empty. Fetch failures never stop the crawl.
//
// Cancelling ctx stops new waves from starting; units in the current wave see
// the cancelled context and return early. Cancellation is logged and recorded
// in the report, not returned as an error.
func (c *Crawler) Crawl(ctx context.Context) *model.CrawlReport {
	c.mu.Lock()
	c.report = model.NewCrawlReport(c.startURL, c.domain)
	c.mu.Unlock()

	c.logger.Info("starting crawl",
		"url", c.startURL,
		"domain", c.domain,
		"max_concurrent_tasks", c.concurrency,
		"rate_limit", c.pacer.Delay(),
		"max_retries", c.maxRetries,
		"retry_delay", c.retryDelay,
	)

	for {
		if err := ctx.Err(); err != nil {
			c.logger.Info("crawl cancelled", "reason", err, "visited", len(c.Visited()))
			c.mu.Lock()
			c.report.Cancelled = true
			c.mu.Unlock()
			break
		}

		wave, popped := c.claim()
		if popped == 0 {
			break
		}
		if len(wave) == 0 {
			continue
		}

		c.dispatch(ctx, wave)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.report.FinishedAt = time.Now()
	c.report.Visited = make([]string, len(c.order))
	copy(c.report.Visited, c.order)
	c.report.Stats.Claimed = len(c.order)

	c.logger.Info("crawl finished",
		"visited", c.report.Stats.Claimed,
		"fetched", c.report.Stats.Fetched,
		"failed", c.report.Stats.Failed,
		"waves", c.report.Stats.Waves,
		"elapsed", c.report.Duration(),
	)

	return c.report
}

// claim pops min(frontier size, concurrency) entries from the frontier
// head. Entries already visited are discarded but still use up their slot,
// so a wave can be smaller than the limit or even empty. popped is zero
// only when the frontier was empty. Every returned URL is marked visited
// before any fetch starts, so a sibling unit finishing first cannot queue
// it again.
func (c *Crawler) claim() (wave []string, popped int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	wave = make([]string, 0, c.concurrency)
	for ; popped < c.concurrency; popped++ {
		u, ok := c.frontier.pop()
		if !ok {
			break
		}
		if _, seen := c.visited[u]; seen {
			continue
		}
		c.visited[u] = struct{}{}
		c.order = append(c.order, u)
		wave = append(wave, u)
	}
	return wave, popped
}

// dispatch runs one unit per URL concurrently and waits for all of them.
func (c *Crawler) dispatch(ctx context.Context, wave []string) {
	c.mu.Lock()
	c.report.Stats.Waves++
	c.mu.Unlock()

	c.logger.Debug("dispatching wave", "size", len(wave))

	var g errgroup.Group
	g.SetLimit(c.concurrency)

	for _, pageURL := range wave {
		g.Go(func() error {
			c.process(ctx, pageURL)
			return nil
		})
	}

	_ = g.Wait() //nolint:errcheck // units never return an error
}

// process is one fetch-and-process unit. A panic anywhere inside it is
// recovered and logged; the unit then simply contributes no links.
func (c *Crawler) process(ctx context.Context, pageURL string) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("unexpected error during fetch and crawl",
				"url", pageURL,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			c.mu.Lock()
			c.report.Stats.Recovered++
			c.mu.Unlock()
		}
	}()

	res := c.fetcher.FetchWithRetries(ctx, pageURL)
	c.recordResult(res)

	if body, ok := res.Content(); ok {
		c.handleContent(pageURL, body, res.Attempts)
	}

	// Pace every unit, including ones that found nothing.
	if err := c.pacer.Wait(ctx); err != nil {
		c.logger.Debug("rate limit wait interrupted", "url", pageURL, "reason", err)
	}
}

// handleContent classifies the links on a fetched page and queues the new
// crawlable ones.
func (c *Crawler) handleContent(pageURL, body string, attempts int) {
	links, err := c.extractor.ExtractLinks(body, pageURL)
	if err != nil {
		c.logger.Warn("failed to extract links", "url", pageURL, "error", err)
		return
	}

	page := model.NewPage(pageURL, body)
	page.Title = ExtractTitle(body)
	page.Attempts = attempts
	page.Crawlable = links.Crawlable
	page.NonCrawlable = links.NonCrawlable

	added := c.enqueue(links.Crawlable)

	c.mu.Lock()
	c.report.Pages = append(c.report.Pages, page)
	c.mu.Unlock()

	c.logger.Debug("visited page",
		"url", pageURL,
		"crawlable", len(links.Crawlable),
		"non_crawlable", len(links.NonCrawlable),
		"queued", added,
	)

	c.observer.PageVisited(page)
}

// enqueue appends every URL that is neither visited nor already waiting.
// It returns how many were added.
func (c *Crawler) enqueue(urls []string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	added := 0
	for _, u := range urls {
		if _, seen := c.visited[u]; seen {
			continue
		}
		if c.frontier.contains(u) {
			continue
		}
		c.frontier.push(u)
		added++
	}
	return added
}

// recordResult folds one fetch result into the report counters.
func (c *Crawler) recordResult(res Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := &c.report.Stats
	stats.Attempts += res.Attempts
	stats.Retries += res.Retries()

	switch res.Outcome.Kind {
	case OutcomeContent:
		stats.Fetched++
	case OutcomeSkipped:
		stats.Skipped++
	case OutcomeFailed:
		stats.Failed++
	}
}
