package model

import (
	"sort"
	"time"
)

// CrawlReport is the result of one crawl run.
// It is produced by the crawler and consumed by report writers and the
// archive database.
type CrawlReport struct {
	// ID is the archive row ID. Zero until the report has been saved.
	ID int64 `json:"id,omitempty"`

	// StartURL is the seed URL the crawl started from.
	StartURL string `json:"start_url"`

	// Domain is the host component of StartURL, including any port.
	// Only links whose host equals Domain exactly are crawled.
	Domain string `json:"domain"`

	// StartedAt is when the crawl began.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is when the last wave completed or the crawl was cancelled.
	FinishedAt time.Time `json:"finished_at"`

	// Visited lists every claimed URL in claim order.
	// A URL appears here even if fetching it failed.
	Visited []string `json:"visited"`

	// Pages contains the pages whose content was fetched and classified.
	Pages []*Page `json:"pages"`

	// Stats holds crawl counters.
	Stats CrawlStats `json:"stats"`

	// Cancelled is true when the crawl stopped because its context ended.
	Cancelled bool `json:"cancelled"`
}

// CrawlStats holds counters collected while crawling.
type CrawlStats struct {
	// Claimed is the number of URLs claimed from the frontier.
	// It always equals len(Visited).
	Claimed int `json:"claimed"`

	// Fetched is the number of URLs that yielded HTML content.
	Fetched int `json:"fetched"`

	// Skipped is the number of URLs that returned non-HTML content.
	Skipped int `json:"skipped"`

	// Failed is the number of URLs that produced no content because of
	// a permanent failure or exhausted retries.
	Failed int `json:"failed"`

	// Attempts is the total number of transport attempts, retries included.
	Attempts int `json:"attempts"`

	// Retries is the number of attempts beyond the first one.
	Retries int `json:"retries"`

	// Waves is the number of dispatch waves run.
	Waves int `json:"waves"`

	// Recovered is the number of units that panicked and were recovered.
	Recovered int `json:"recovered"`
}

// NewCrawlReport creates an empty report for the given start URL and domain.
func NewCrawlReport(startURL, domain string) *CrawlReport {
	return &CrawlReport{
		StartURL:  startURL,
		Domain:    domain,
		StartedAt: time.Now(),
		Visited:   make([]string, 0),
		Pages:     make([]*Page, 0),
	}
}

// Duration returns how long the crawl took.
// It returns zero if the crawl has not finished.
func (r *CrawlReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Page returns the page with the given URL, or nil if it was not fetched.
func (r *CrawlReport) Page(pageURL string) *Page {
	for _, p := range r.Pages {
		if p.URL == pageURL {
			return p
		}
	}
	return nil
}

// LinkTotals returns the number of crawlable and non-crawlable links
// summed over all pages.
func (r *CrawlReport) LinkTotals() (crawlable, nonCrawlable int) {
	for _, p := range r.Pages {
		crawlable += len(p.Crawlable)
		nonCrawlable += len(p.NonCrawlable)
	}
	return crawlable, nonCrawlable
}

// ExternalHosts returns the distinct hosts referenced by non-crawlable
// links, sorted by descending reference count and then by name.
func (r *CrawlReport) ExternalHosts() []HostCount {
	counts := make(map[string]int)
	for _, p := range r.Pages {
		for _, link := range p.NonCrawlable {
			counts[hostOf(link)]++
		}
	}

	hosts := make([]HostCount, 0, len(counts))
	for host, n := range counts {
		hosts = append(hosts, HostCount{Host: host, Count: n})
	}
	sort.Slice(hosts, func(i, j int) bool {
		if hosts[i].Count != hosts[j].Count {
			return hosts[i].Count > hosts[j].Count
		}
		return hosts[i].Host < hosts[j].Host
	})
	return hosts
}

// HostCount pairs a host with the number of links pointing at it.
type HostCount struct {
	Host  string `json:"host"`
	Count int    `json:"count"`
}
