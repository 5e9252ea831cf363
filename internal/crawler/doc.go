// Package crawler implements a breadth-first crawler confined to a single
// domain.
//
// # Architecture
//
// The package is built around the Crawler type, which owns the frontier
// (a FIFO queue of URLs to visit) and the visited set. Work proceeds in
// waves: the crawler claims up to MaxConcurrentTasks URLs from the head of
// the frontier, marks them visited, fetches them concurrently, and waits for
// the whole wave before claiming the next one. The crawl ends when a wave
// leaves the frontier empty.
//
// Design decision: We implement our own crawler rather than using a
// third-party library because:
//  1. Domain confinement is exact host matching, which general crawlers treat differently
//  2. We need tight control over retry classification and pacing
//  3. Tests need to replace the transport and the clock
//
// # Components
//
//   - Crawler: The wave scheduler that owns the frontier and visited set
//   - Fetcher: One GET with retry and outcome classification
//   - Classifier: Resolves hrefs and splits them into crawlable and non-crawlable
//   - HTMLParser: Extracts anchor hrefs from a body
//   - Pacer: Per-unit delay applied after each fetch
//
// # Outcomes
//
// Every attempt ends in one of three outcomes: content (an HTML body),
// skipped (the response was not text/html), or failed. A failure is
// permanent for 4xx responses and transient for everything else. Only
// transient failures are retried.
//
// # Usage
//
//	c, err := crawler.New("https://example.com/", transport,
//		crawler.WithMaxConcurrentTasks(5),
//		crawler.WithRateLimit(500*time.Millisecond),
//	)
//	if err != nil {
//		return err
//	}
//	report := c.Crawl(ctx)
//
// # Failure Isolation
//
// Nothing a single page does can stop the crawl. Fetch errors become
// outcomes, panics inside a unit are recovered and logged, and cancellation
// is reported on the returned CrawlReport instead of as an error.
package crawler
