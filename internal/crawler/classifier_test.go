package crawler

import (
	"errors"
	"slices"
	"testing"
)

// TestHTMLParser tests anchor href extraction.
func TestHTMLParser(t *testing.T) {
	t.Parallel()

	t.Run("extracts hrefs in document order", func(t *testing.T) {
		t.Parallel()

		body := `<html><body>
			<a href="/one">One</a>
			<div><a href="two">Two</a></div>
			<a name="anchor">No href</a>
			<a href="">Empty</a>
			<link href="/style.css">
		</body></html>`

		hrefs, err := NewHTMLParser().Hrefs(body)
		if err != nil {
			t.Fatalf("failed to parse: %v", err)
		}

		want := []string{"/one", "two", ""}
		if !slices.Equal(hrefs, want) {
			t.Errorf("expected %v, got %v", want, hrefs)
		}
	})

	t.Run("tolerates malformed HTML", func(t *testing.T) {
		t.Parallel()

		hrefs, err := NewHTMLParser().Hrefs(`<a href="/x">one<a href='/y'>two<a href=/z>three`)
		if err != nil {
			t.Fatalf("failed to parse: %v", err)
		}
		want := []string{"/x", "/y", "/z"}
		if !slices.Equal(hrefs, want) {
			t.Errorf("expected %v, got %v", want, hrefs)
		}
	})

	t.Run("non-HTML text yields no hrefs", func(t *testing.T) {
		t.Parallel()

		hrefs, err := NewHTMLParser().Hrefs("just some text")
		if err != nil {
			t.Fatalf("failed to parse: %v", err)
		}
		if len(hrefs) != 0 {
			t.Errorf("expected no hrefs, got %v", hrefs)
		}
	})
}

// TestExtractTitle tests <title> extraction.
func TestExtractTitle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "simple title", body: "<html><head><title>Home</title></head></html>", want: "Home"},
		{name: "whitespace is trimmed", body: "<title>\n  Docs Index \n</title>", want: "Docs Index"},
		{name: "entities are decoded", body: "<title>Q&amp;A</title>", want: "Q&A"},
		{name: "first title wins", body: "<title>One</title><title>Two</title>", want: "One"},
		{name: "no title", body: "<html><body>hi</body></html>", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := ExtractTitle(tt.body); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

// TestClassifier tests link resolution and domain classification.
func TestClassifier(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		domain       string
		base         string
		hrefs        []string
		crawlable    []string
		nonCrawlable []string
	}{
		{
			name:      "relative paths resolve against base",
			domain:    "example.com",
			base:      "https://example.com/docs/index.html",
			hrefs:     []string{"/about", "guide.html", "../top"},
			crawlable: []string{"https://example.com/about", "https://example.com/docs/guide.html", "https://example.com/top"},
		},
		{
			name:         "other domains are non-crawlable",
			domain:       "example.com",
			base:         "https://example.com/",
			hrefs:        []string{"https://other.com/x", "https://www.example.com/"},
			nonCrawlable: []string{"https://other.com/x", "https://www.example.com/"},
		},
		{
			name:         "protocol-relative links take the base scheme",
			domain:       "example.com",
			base:         "https://example.com/",
			hrefs:        []string{"//example.com/p", "//cdn.example.net/lib.js"},
			crawlable:    []string{"https://example.com/p"},
			nonCrawlable: []string{"https://cdn.example.net/lib.js"},
		},
		{
			name:      "fragment-only and empty hrefs point at the page",
			domain:    "example.com",
			base:      "https://example.com/page",
			hrefs:     []string{"#top", ""},
			crawlable: []string{"https://example.com/page"},
		},
		{
			name:      "duplicates collapse in first-seen order",
			domain:    "example.com",
			base:      "https://example.com/",
			hrefs:     []string{"/b", "/a", "https://example.com/b", "/a"},
			crawlable: []string{"https://example.com/b", "https://example.com/a"},
		},
		{
			name:         "port is part of the domain",
			domain:       "localhost:8080",
			base:         "http://localhost:8080/",
			hrefs:        []string{"/x", "http://localhost:9090/y", "http://localhost/z"},
			crawlable:    []string{"http://localhost:8080/x"},
			nonCrawlable: []string{"http://localhost:9090/y", "http://localhost/z"},
		},
		{
			name:         "schemes without a host are non-crawlable",
			domain:       "example.com",
			base:         "https://example.com/",
			hrefs:        []string{"mailto:me@example.com", "javascript:void(0)"},
			nonCrawlable: []string{"mailto:me@example.com", "javascript:void(0)"},
		},
		{
			name:      "surrounding whitespace is trimmed",
			domain:    "example.com",
			base:      "https://example.com/",
			hrefs:     []string{"  /spaced  "},
			crawlable: []string{"https://example.com/spaced"},
		},
		{
			name:   "unparseable hrefs are dropped",
			domain: "example.com",
			base:   "https://example.com/",
			hrefs:  []string{"http://[::1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := NewClassifier(tt.domain, nil)
			if c.Domain() != tt.domain {
				t.Errorf("expected domain %q, got %q", tt.domain, c.Domain())
			}
			links, err := c.Classify(tt.base, tt.hrefs)
			if err != nil {
				t.Fatalf("failed to classify: %v", err)
			}

			if !slices.Equal(links.Crawlable, nonNil(tt.crawlable)) {
				t.Errorf("crawlable: expected %v, got %v", tt.crawlable, links.Crawlable)
			}
			if !slices.Equal(links.NonCrawlable, nonNil(tt.nonCrawlable)) {
				t.Errorf("non-crawlable: expected %v, got %v", tt.nonCrawlable, links.NonCrawlable)
			}
		})
	}

	t.Run("extracts and classifies a body", func(t *testing.T) {
		t.Parallel()

		body := `<a href="/in">in</a><a href="https://elsewhere.org/">out</a>`
		links, err := NewClassifier("example.com", nil).ExtractLinks(body, "https://example.com/")
		if err != nil {
			t.Fatalf("failed to extract: %v", err)
		}
		if !slices.Equal(links.Crawlable, []string{"https://example.com/in"}) {
			t.Errorf("unexpected crawlable %v", links.Crawlable)
		}
		if !slices.Equal(links.NonCrawlable, []string{"https://elsewhere.org/"}) {
			t.Errorf("unexpected non-crawlable %v", links.NonCrawlable)
		}
	})

	t.Run("extractor errors are returned", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("boom")
		c := NewClassifier("example.com", HrefExtractorFunc(func(string) ([]string, error) {
			return nil, boom
		}))
		if _, err := c.ExtractLinks("", "https://example.com/"); !errors.Is(err, boom) {
			t.Errorf("expected wrapped extractor error, got %v", err)
		}
	})

	t.Run("invalid base URL is an error", func(t *testing.T) {
		t.Parallel()

		if _, err := NewClassifier("example.com", nil).Classify("http://[::1", nil); err == nil {
			t.Error("expected error for invalid base")
		}
	})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
