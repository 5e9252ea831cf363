package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/sitecrawl/internal/model"
)

// fakeSite is an in-memory Transport. Unknown URLs answer 404.
type fakeSite struct {
	mu    sync.Mutex
	pages map[string]string
	calls map[string]int
}

func newFakeSite(pages map[string]string) *fakeSite {
	return &fakeSite{pages: pages, calls: make(map[string]int)}
}

func (s *fakeSite) Get(_ context.Context, u string, _ time.Duration) (*Response, error) {
	s.mu.Lock()
	s.calls[u]++
	body, ok := s.pages[u]
	s.mu.Unlock()

	if !ok {
		return statusResponse(http.StatusNotFound), nil
	}
	return htmlResponse(body), nil
}

func (s *fakeSite) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

func (s *fakeSite) count(u string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[u]
}

// links renders anchors for hrefs.
func links(hrefs ...string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, h := range hrefs {
		fmt.Fprintf(&b, `<a href="%s">link</a>`, h)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func sorted(s []string) []string {
	out := slices.Clone(s)
	sort.Strings(out)
	return out
}

// TestNew tests crawler construction.
func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("derives domain from start URL", func(t *testing.T) {
		t.Parallel()

		c, err := New("https://example.com:8443/start", newFakeSite(nil), WithLogger(discardLogger()))
		if err != nil {
			t.Fatalf("failed to create crawler: %v", err)
		}
		if c.Domain() != "example.com:8443" {
			t.Errorf("expected example.com:8443, got %q", c.Domain())
		}
		if c.StartURL() != "https://example.com:8443/start" {
			t.Errorf("unexpected start URL %q", c.StartURL())
		}
		if !slices.Equal(c.Pending(), []string{"https://example.com:8443/start"}) {
			t.Errorf("expected start URL queued, got %v", c.Pending())
		}
	})

	t.Run("rejects invalid start URLs", func(t *testing.T) {
		t.Parallel()

		for _, raw := range []string{"", "example.com", "ftp://example.com/", "https://", "http://[::1"} {
			if _, err := New(raw, newFakeSite(nil)); !errors.Is(err, ErrInvalidStartURL) {
				t.Errorf("%q: expected ErrInvalidStartURL, got %v", raw, err)
			}
		}
	})

	t.Run("requires a transport unless a fetcher is given", func(t *testing.T) {
		t.Parallel()

		if _, err := New("https://example.com", nil); !errors.Is(err, ErrNoTransport) {
			t.Errorf("expected ErrNoTransport, got %v", err)
		}

		fetcher := NewFetcher(newFakeSite(nil))
		if _, err := New("https://example.com", nil, WithFetcher(fetcher)); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

// TestCrawl tests the wave scheduler end to end against fake sites.
func TestCrawl(t *testing.T) {
	t.Parallel()

	t.Run("follows a same-domain link", func(t *testing.T) {
		t.Parallel()

		site := newFakeSite(map[string]string{
			"https://example.com":       links("/about"),
			"https://example.com/about": links(),
		})

		c, err := New("https://example.com", site, WithLogger(discardLogger()))
		if err != nil {
			t.Fatalf("failed to create crawler: %v", err)
		}
		report := c.Crawl(context.Background())

		if site.total() != 2 {
			t.Errorf("expected 2 fetch attempts, got %d", site.total())
		}
		want := []string{"https://example.com", "https://example.com/about"}
		if !slices.Equal(c.Visited(), want) {
			t.Errorf("expected visited %v, got %v", want, c.Visited())
		}
		if !slices.Equal(report.Visited, want) {
			t.Errorf("expected report visited %v, got %v", want, report.Visited)
		}
		if report.Cancelled {
			t.Error("expected crawl not to be cancelled")
		}
		if report.FinishedAt.IsZero() {
			t.Error("expected FinishedAt to be set")
		}
	})

	t.Run("never fetches other domains", func(t *testing.T) {
		t.Parallel()

		site := newFakeSite(map[string]string{
			"https://example.com": links("https://other.com"),
		})

		c, err := New("https://example.com", site, WithLogger(discardLogger()))
		if err != nil {
			t.Fatalf("failed to create crawler: %v", err)
		}
		report := c.Crawl(context.Background())

		if site.count("https://other.com") != 0 {
			t.Error("expected other.com never to be fetched")
		}
		page := report.Page("https://example.com")
		if page == nil {
			t.Fatal("expected start page in report")
		}
		if !slices.Equal(page.NonCrawlable, []string{"https://other.com"}) {
			t.Errorf("expected other.com non-crawlable, got %v", page.NonCrawlable)
		}
		if len(page.Crawlable) != 0 {
			t.Errorf("expected no crawlable links, got %v", page.Crawlable)
		}
	})

	t.Run("visits every queued URL once with a small wave", func(t *testing.T) {
		t.Parallel()

		pages := make(map[string]string)
		seeds := make([]string, 0, 20)
		for i := range 20 {
			u := fmt.Sprintf("https://example.com/p%d", i)
			pages[u] = links()
			seeds = append(seeds, u)
		}
		site := newFakeSite(pages)

		c, err := New("https://example.com/p0", site,
			WithMaxConcurrentTasks(2),
			WithLogger(discardLogger()),
		)
		if err != nil {
			t.Fatalf("failed to create crawler: %v", err)
		}
		c.frontier = newFrontier(seeds...)

		report := c.Crawl(context.Background())

		if site.total() != 20 {
			t.Errorf("expected 20 fetch attempts, got %d", site.total())
		}
		if len(c.Visited()) != 20 {
			t.Errorf("expected 20 visited, got %d", len(c.Visited()))
		}
		if report.Stats.Waves != 10 {
			t.Errorf("expected 10 waves, got %d", report.Stats.Waves)
		}
	})

	t.Run("discarded duplicates use up wave slots", func(t *testing.T) {
		t.Parallel()

		site := newFakeSite(map[string]string{
			"https://example.com/":  links(),
			"https://example.com/a": links(),
		})

		c, err := New("https://example.com/", site,
			WithMaxConcurrentTasks(2),
			WithLogger(discardLogger()),
		)
		if err != nil {
			t.Fatalf("failed to create crawler: %v", err)
		}
		c.frontier = newFrontier("https://example.com/", "https://example.com/", "https://example.com/a")

		report := c.Crawl(context.Background())

		// Wave 1 pops both copies of "/" and claims one; wave 2 claims "/a".
		if report.Stats.Waves != 2 {
			t.Errorf("expected 2 waves, got %d", report.Stats.Waves)
		}
		if site.total() != 2 {
			t.Errorf("expected 2 fetch attempts, got %d", site.total())
		}
		for _, u := range []string{"https://example.com/", "https://example.com/a"} {
			if !c.IsVisited(u) {
				t.Errorf("expected %s to be visited", u)
			}
		}
		if c.IsVisited("https://example.com/b") {
			t.Error("unexpected visited URL")
		}
	})

	t.Run("a wave of only duplicates does not end the crawl", func(t *testing.T) {
		t.Parallel()

		site := newFakeSite(map[string]string{
			"https://example.com/":  links(),
			"https://example.com/a": links(),
		})

		c, err := New("https://example.com/", site,
			WithMaxConcurrentTasks(1),
			WithLogger(discardLogger()),
		)
		if err != nil {
			t.Fatalf("failed to create crawler: %v", err)
		}
		c.frontier = newFrontier("https://example.com/", "https://example.com/", "https://example.com/a")

		report := c.Crawl(context.Background())

		if !c.IsVisited("https://example.com/a") {
			t.Error("expected /a to be visited after a duplicate-only wave")
		}
		if report.Stats.Waves != 2 {
			t.Errorf("expected 2 dispatched waves, got %d", report.Stats.Waves)
		}
	})

	t.Run("duplicate frontier entries are fetched once", func(t *testing.T) {
		t.Parallel()

		site := newFakeSite(map[string]string{"https://example.com/": links()})

		c, err := New("https://example.com/", site, WithLogger(discardLogger()))
		if err != nil {
			t.Fatalf("failed to create crawler: %v", err)
		}
		c.frontier = newFrontier("https://example.com/", "https://example.com/")

		c.Crawl(context.Background())

		if site.total() != 1 {
			t.Errorf("expected 1 fetch attempt, got %d", site.total())
		}
		if len(c.Visited()) != 1 {
			t.Errorf("expected 1 visited, got %d", len(c.Visited()))
		}
	})

	t.Run("paces every unit", func(t *testing.T) {
		t.Parallel()

		site := newFakeSite(map[string]string{
			"https://example.com/a": links(),
			"https://example.com/b": links(),
		})
		sleeper := &sleepRecorder{}

		c, err := New("https://example.com/a", site,
			WithMaxConcurrentTasks(3),
			WithRateLimit(10*time.Millisecond),
			WithSleeper(sleeper.sleep),
			WithLogger(discardLogger()),
		)
		if err != nil {
			t.Fatalf("failed to create crawler: %v", err)
		}
		// The third URL 404s; it is still paced.
		c.frontier = newFrontier("https://example.com/a", "https://example.com/b", "https://example.com/c")

		c.Crawl(context.Background())

		if got := sleeper.count(10 * time.Millisecond); got != 3 {
			t.Errorf("expected 3 pacing sleeps of 10ms, got %d (%v)", got, sleeper.calls)
		}
	})

	t.Run("terminates on a cyclic graph", func(t *testing.T) {
		t.Parallel()

		site := newFakeSite(map[string]string{
			"https://example.com/":  links("/a", "/b", "/c"),
			"https://example.com/a": links("/", "/b", "/c", "/a"),
			"https://example.com/b": links("/a", "/c", "/"),
			"https://example.com/c": links("/a", "/b", "/", "/d"),
			"https://example.com/d": links("/"),
		})

		c, err := New("https://example.com/", site,
			WithMaxConcurrentTasks(4),
			WithLogger(discardLogger()),
		)
		if err != nil {
			t.Fatalf("failed to create crawler: %v", err)
		}
		report := c.Crawl(context.Background())

		for u := range site.pages {
			if n := site.count(u); n != 1 {
				t.Errorf("expected %s fetched once, got %d", u, n)
			}
		}
		if len(report.Pages) != 5 {
			t.Errorf("expected 5 pages, got %d", len(report.Pages))
		}
		if len(c.Pending()) != 0 {
			t.Errorf("expected empty frontier, got %v", c.Pending())
		}
	})

	t.Run("visited URLs are discovered same-domain links", func(t *testing.T) {
		t.Parallel()

		site := newFakeSite(map[string]string{
			"https://example.com/":  links("/a", "https://other.com/", "mailto:x@example.com"),
			"https://example.com/a": links("/missing", "//cdn.example.net/x"),
		})

		c, err := New("https://example.com/", site, WithLogger(discardLogger()))
		if err != nil {
			t.Fatalf("failed to create crawler: %v", err)
		}
		report := c.Crawl(context.Background())

		want := []string{"https://example.com/", "https://example.com/a", "https://example.com/missing"}
		if !slices.Equal(sorted(report.Visited), want) {
			t.Errorf("expected %v, got %v", want, report.Visited)
		}
		if report.Stats.Fetched != 2 || report.Stats.Failed != 1 {
			t.Errorf("expected 2 fetched and 1 failed, got %+v", report.Stats)
		}
	})

	t.Run("retries transient failures through the default fetcher", func(t *testing.T) {
		t.Parallel()

		transport := TransportFunc(func(_ context.Context, _ string, _ time.Duration) (*Response, error) {
			return statusResponse(http.StatusBadGateway), nil
		})

		c, err := New("https://example.com/", transport,
			WithMaxRetries(2),
			WithRetryDelay(5*time.Millisecond),
			WithSleeper((&sleepRecorder{}).sleep),
			WithLogger(discardLogger()),
		)
		if err != nil {
			t.Fatalf("failed to create crawler: %v", err)
		}
		report := c.Crawl(context.Background())

		if report.Stats.Attempts != 3 || report.Stats.Retries != 2 {
			t.Errorf("expected 3 attempts and 2 retries, got %+v", report.Stats)
		}
		if report.Stats.Failed != 1 {
			t.Errorf("expected 1 failure, got %d", report.Stats.Failed)
		}
	})

	t.Run("notifies the observer for each page", func(t *testing.T) {
		t.Parallel()

		site := newFakeSite(map[string]string{
			"https://example.com/":  links("/a"),
			"https://example.com/a": links(),
		})

		var mu sync.Mutex
		seen := make([]string, 0)
		observer := ObserverFunc(func(p *model.Page) {
			mu.Lock()
			seen = append(seen, p.URL)
			mu.Unlock()
		})

		c, err := New("https://example.com/", site, WithObserver(observer), WithLogger(discardLogger()))
		if err != nil {
			t.Fatalf("failed to create crawler: %v", err)
		}
		c.Crawl(context.Background())

		if !slices.Equal(seen, []string{"https://example.com/", "https://example.com/a"}) {
			t.Errorf("unexpected observed pages %v", seen)
		}
	})

	t.Run("recovers from a panicking unit", func(t *testing.T) {
		t.Parallel()

		site := newFakeSite(map[string]string{
			"https://example.com/":     links("/bad", "/good"),
			"https://example.com/bad":  links("/never"),
			"https://example.com/good": links(),
		})
		extractor := HrefExtractorFunc(func(body string) ([]string, error) {
			if strings.Contains(body, "/never") {
				panic("parser exploded")
			}
			return NewHTMLParser().Hrefs(body)
		})

		c, err := New("https://example.com/", site,
			WithHrefExtractor(extractor),
			WithLogger(discardLogger()),
		)
		if err != nil {
			t.Fatalf("failed to create crawler: %v", err)
		}
		report := c.Crawl(context.Background())

		if report.Stats.Recovered != 1 {
			t.Errorf("expected 1 recovered panic, got %d", report.Stats.Recovered)
		}
		if site.count("https://example.com/good") != 1 {
			t.Error("expected sibling page to be fetched")
		}
		if site.count("https://example.com/never") != 0 {
			t.Error("expected no links from the panicking page")
		}
	})

	t.Run("extractor errors contribute no links", func(t *testing.T) {
		t.Parallel()

		site := newFakeSite(map[string]string{"https://example.com/": links("/a")})
		extractor := LinkExtractorFunc(func(string, string) (Links, error) {
			return Links{}, errors.New("broken")
		})

		c, err := New("https://example.com/", site,
			WithLinkExtractor(extractor),
			WithLogger(discardLogger()),
		)
		if err != nil {
			t.Fatalf("failed to create crawler: %v", err)
		}
		report := c.Crawl(context.Background())

		if len(report.Visited) != 1 || len(report.Pages) != 0 {
			t.Errorf("expected 1 visited and no pages, got %d/%d", len(report.Visited), len(report.Pages))
		}
	})

	t.Run("cancelled context stops before the first wave", func(t *testing.T) {
		t.Parallel()

		site := newFakeSite(map[string]string{"https://example.com/": links()})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		c, err := New("https://example.com/", site, WithLogger(discardLogger()))
		if err != nil {
			t.Fatalf("failed to create crawler: %v", err)
		}
		report := c.Crawl(ctx)

		if !report.Cancelled {
			t.Error("expected crawl to be cancelled")
		}
		if site.total() != 0 {
			t.Errorf("expected no fetches, got %d", site.total())
		}
	})

	t.Run("cancellation mid-crawl stops further waves", func(t *testing.T) {
		t.Parallel()

		site := newFakeSite(map[string]string{
			"https://example.com/":  links("/a"),
			"https://example.com/a": links(),
		})
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		c, err := New("https://example.com/", site,
			WithObserver(ObserverFunc(func(*model.Page) { cancel() })),
			WithLogger(discardLogger()),
		)
		if err != nil {
			t.Fatalf("failed to create crawler: %v", err)
		}
		report := c.Crawl(ctx)

		if !report.Cancelled {
			t.Error("expected crawl to be cancelled")
		}
		if site.count("https://example.com/a") != 0 {
			t.Error("expected second wave not to run")
		}
		if !slices.Equal(c.Pending(), []string{"https://example.com/a"}) {
			t.Errorf("expected /a left pending, got %v", c.Pending())
		}
	})
}

// TestCrawlHTTP runs a crawl against a real HTTP server.
func TestCrawlHTTP(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, links("/docs", "/image.png", "https://external.example.org/"))
	})
	mux.HandleFunc("/docs", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, links("/", "/docs#intro", "/gone"))
	})
	mux.HandleFunc("/image.png", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte{0x89, 'P', 'N', 'G'}) //nolint:errcheck
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := server.Client()
	transport := TransportFunc(func(ctx context.Context, u string, timeout time.Duration) (*Response, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: string(body)}, nil
	})

	c, err := New(server.URL+"/", transport,
		WithMaxConcurrentTasks(2),
		WithSleeper((&sleepRecorder{}).sleep),
		WithLogger(discardLogger()),
	)
	if err != nil {
		t.Fatalf("failed to create crawler: %v", err)
	}
	report := c.Crawl(context.Background())

	if len(report.Visited) != 5 {
		t.Errorf("expected 5 visited URLs, got %v", report.Visited)
	}
	// "/docs#intro" is a distinct URL and is fetched separately.
	if report.Stats.Fetched != 3 {
		t.Errorf("expected 3 HTML pages, got %d", report.Stats.Fetched)
	}
	if report.Stats.Skipped != 1 {
		t.Errorf("expected 1 skipped page, got %d", report.Stats.Skipped)
	}
	if report.Stats.Failed != 1 {
		t.Errorf("expected 1 failed page, got %d", report.Stats.Failed)
	}
}
