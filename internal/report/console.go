package report

import (
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"github.com/nao1215/sitecrawl/internal/crawler"
	"github.com/nao1215/sitecrawl/internal/model"
)

var _ crawler.Observer = (*ConsoleObserver)(nil)

// ConsoleObserver prints each fetched page and its classified links as the
// crawl runs: the visited URL in green, crawlable links in cyan and
// non-crawlable links in yellow.
//
// PageVisited is called from worker goroutines, so writes are serialized
// to keep one page's block contiguous.
type ConsoleObserver struct {
	mu  sync.Mutex
	out io.Writer

	visited      *color.Color
	crawlable    *color.Color
	nonCrawlable *color.Color
}

// NewConsoleObserver creates a ConsoleObserver writing to out.
//
// Color is decided from out itself, not from the process's stdout: it is on
// only when out is an *os.File attached to a terminal, noColor is false,
// and neither NO_COLOR nor TERM=dumb is set. Live output moves to stderr
// when a report is written to stdout, so the two can differ.
func NewConsoleObserver(out io.Writer, noColor bool) *ConsoleObserver {
	useColor := false
	if f, ok := out.(*os.File); ok && !noColor && colorAllowedByEnv() && isTerminal(f) {
		useColor = true
		// Windows consoles need ANSI sequences translated
		out = colorable.NewColorable(f)
	}

	o := &ConsoleObserver{
		out:          out,
		visited:      color.New(color.FgGreen, color.Bold),
		crawlable:    color.New(color.FgCyan),
		nonCrawlable: color.New(color.FgYellow),
	}

	for _, c := range []*color.Color{o.visited, o.crawlable, o.nonCrawlable} {
		if useColor {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}

	return o
}

func colorAllowedByEnv() bool {
	if _, set := os.LookupEnv("NO_COLOR"); set {
		return false
	}
	return os.Getenv("TERM") != "dumb"
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// PageVisited implements crawler.Observer.
func (o *ConsoleObserver) PageVisited(page *model.Page) {
	o.mu.Lock()
	defer o.mu.Unlock()

	_, _ = o.visited.Fprintf(o.out, "Visited: %s\n", page.URL)

	_, _ = io.WriteString(o.out, "Crawlable links found:\n")
	for _, link := range page.Crawlable {
		_, _ = o.crawlable.Fprintf(o.out, "  %s\n", link)
	}

	_, _ = io.WriteString(o.out, "Non-crawlable links:\n")
	for _, link := range page.NonCrawlable {
		_, _ = o.nonCrawlable.Fprintf(o.out, "  %s\n", link)
	}
}
