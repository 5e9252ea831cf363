package model

import (
	"encoding/hex"
	"time"

	"golang.org/x/crypto/sha3"
)

// Page is one successfully fetched HTML page together with the links
// discovered on it.
//
// Design decision: We keep crawlable and non-crawlable links as separate
// slices rather than one slice with a flag because:
//  1. Reports print them as two sections
//  2. The crawler only ever enqueues the crawlable half
//  3. JSON output stays readable without extra nesting
type Page struct {
	// URL is the page URL exactly as it was claimed from the frontier.
	URL string `json:"url"`

	// Title is the text of the page's <title> element, if any.
	Title string `json:"title,omitempty"`

	// Crawlable contains absolute links on the same host as the start URL.
	Crawlable []string `json:"crawlable"`

	// NonCrawlable contains absolute links to any other host.
	// They are recorded but never fetched.
	NonCrawlable []string `json:"non_crawlable"`

	// Hash is the hex encoded SHA3-256 digest of the page body.
	// It is informational only; pages are never deduplicated by content.
	Hash string `json:"hash"`

	// Size is the decoded body size in bytes.
	Size int `json:"size"`

	// Attempts is how many transport attempts it took to fetch the page.
	Attempts int `json:"attempts"`

	// FetchedAt is when the page content was received.
	FetchedAt time.Time `json:"fetched_at"`
}

// NewPage creates a Page for the given URL and body.
// The digest and size are computed from body; the body itself is not kept.
func NewPage(pageURL, body string) *Page {
	p := &Page{
		URL:          pageURL,
		Crawlable:    make([]string, 0),
		NonCrawlable: make([]string, 0),
		Size:         len(body),
		FetchedAt:    time.Now(),
	}
	p.ComputeHash(body)
	return p
}

// ComputeHash sets Hash from the given body.
// An empty body yields an empty hash.
func (p *Page) ComputeHash(body string) {
	if body == "" {
		p.Hash = ""
		return
	}
	sum := sha3.Sum256([]byte(body))
	p.Hash = hex.EncodeToString(sum[:])
}

// LinkCount returns the total number of links found on the page.
func (p *Page) LinkCount() int {
	return len(p.Crawlable) + len(p.NonCrawlable)
}
