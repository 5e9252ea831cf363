package crawler

import (
	"fmt"
	"net/url"
	"strings"
)

// Links is the classification of one page's anchors.
// Both slices hold absolute URLs, deduplicated within the page and kept in
// first-seen order. They are not checked against the visited set.
type Links struct {
	// Crawlable links share the target domain and may be queued.
	Crawlable []string

	// NonCrawlable links point at any other host. They are recorded only.
	NonCrawlable []string
}

// Classifier resolves hrefs against a page URL and partitions them by host.
//
// The target domain is fixed when the classifier is created, normally from
// the host of the crawl's start URL. Matching is exact string equality on
// url.URL.Host, which includes any port: "example.com" does not match
// "www.example.com" or "example.com:8080".
type Classifier struct {
	domain    string
	extractor HrefExtractor
}

// NewClassifier creates a Classifier for domain. If extractor is nil, an
// HTMLParser is used.
func NewClassifier(domain string, extractor HrefExtractor) *Classifier {
	if extractor == nil {
		extractor = NewHTMLParser()
	}
	return &Classifier{domain: domain, extractor: extractor}
}

// Domain returns the target domain.
func (c *Classifier) Domain() string {
	return c.domain
}

// ExtractLinks pulls anchor hrefs out of body and classifies them relative
// to baseURL.
func (c *Classifier) ExtractLinks(body, baseURL string) (Links, error) {
	hrefs, err := c.extractor.Hrefs(body)
	if err != nil {
		return Links{}, fmt.Errorf("extract hrefs from %s: %w", baseURL, err)
	}
	return c.Classify(baseURL, hrefs)
}

// Classify resolves each href against baseURL and splits the results into
// crawlable and non-crawlable links.
//
// Resolution follows RFC 3986: relative paths and protocol-relative links
// are made absolute, and an empty or fragment-only href resolves to the
// base URL itself. Hrefs that cannot be parsed are dropped.
func (c *Classifier) Classify(baseURL string, hrefs []string) (Links, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return Links{}, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}

	links := Links{
		Crawlable:    make([]string, 0),
		NonCrawlable: make([]string, 0),
	}
	seen := make(map[string]struct{}, len(hrefs))

	for _, href := range hrefs {
		resolved, ok := resolve(base, href)
		if !ok {
			continue
		}

		abs := resolved.String()
		if _, dup := seen[abs]; dup {
			continue
		}
		seen[abs] = struct{}{}

		if resolved.Host == c.domain {
			links.Crawlable = append(links.Crawlable, abs)
		} else {
			links.NonCrawlable = append(links.NonCrawlable, abs)
		}
	}

	return links, nil
}

// resolve makes href absolute against base.
func resolve(base *url.URL, href string) (*url.URL, bool) {
	href = strings.TrimSpace(href)

	ref, err := url.Parse(href)
	if err != nil {
		return nil, false
	}

	resolved := base.ResolveReference(ref)

	// "#section" points back at the page itself.
	if strings.HasPrefix(href, "#") {
		resolved.Fragment = ""
		resolved.RawFragment = ""
	}

	return resolved, true
}
