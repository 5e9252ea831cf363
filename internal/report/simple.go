package report

import (
	"io"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/nao1215/sitecrawl/internal/model"
)

// SimpleWriter outputs a plain text summary for terminal display.
//
// Design decision: We use plain text with ASCII rules rather than ANSI colors
// because:
// 1. It works in all terminals without compatibility issues
// 2. It's easier to pipe to files or other tools
// 3. The live page stream is already colored by ConsoleObserver
type SimpleWriter struct {
	baseWriter

	// verbose lists every page with its links.
	verbose bool

	// printer formats counts with thousands separators.
	printer *message.Printer
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables the per-page listing.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// WithLanguage sets the language used to format numbers.
func WithLanguage(tag language.Tag) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.printer = message.NewPrinter(tag)
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
		printer:    message.NewPrinter(language.English),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the report in human-readable format.
func (w *SimpleWriter) Write(report *model.CrawlReport) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, report)
	w.writeSummary(&sb, report)
	w.writeExternalHosts(&sb, report)
	if w.verbose {
		w.writePages(&sb, report)
	}
	w.writeFooter(&sb)

	return io.WriteString(w.output, sb.String())
}

func (w *SimpleWriter) rule(sb *strings.Builder, ch string) {
	sb.WriteString(strings.Repeat(ch, 70))
	sb.WriteString("\n")
}

func (w *SimpleWriter) section(sb *strings.Builder, title string) {
	w.rule(sb, "-")
	sb.WriteString(title)
	sb.WriteString("\n")
	w.rule(sb, "-")
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *model.CrawlReport) {
	sb.WriteString("\n")
	w.rule(sb, "=")
	sb.WriteString("                         SITECRAWL REPORT\n")
	w.rule(sb, "=")
	sb.WriteString("\n")

	sb.WriteString(w.printer.Sprintf("Start URL:  %s\n", report.StartURL))
	sb.WriteString(w.printer.Sprintf("Domain:     %s\n", report.Domain))
	sb.WriteString(w.printer.Sprintf("Started:    %s\n", report.StartedAt.Format("2006-01-02 15:04:05 MST")))
	sb.WriteString(w.printer.Sprintf("Duration:   %s\n", report.Duration().Round(time.Millisecond)))
	sb.WriteString(w.printer.Sprintf("Status:     %s\n", statusText(report)))
	if report.ID > 0 {
		sb.WriteString(w.printer.Sprintf("Run ID:     %d\n", report.ID))
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeSummary(sb *strings.Builder, report *model.CrawlReport) {
	w.section(sb, "SUMMARY")

	crawlable, nonCrawlable := report.LinkTotals()
	stats := report.Stats

	sb.WriteString(w.printer.Sprintf("  Visited:        %d\n", stats.Claimed))
	sb.WriteString(w.printer.Sprintf("  Fetched:        %d\n", stats.Fetched))
	sb.WriteString(w.printer.Sprintf("  Skipped:        %d (non-HTML)\n", stats.Skipped))
	sb.WriteString(w.printer.Sprintf("  Failed:         %d\n", stats.Failed))
	sb.WriteString(w.printer.Sprintf("  Attempts:       %d (%d retries)\n", stats.Attempts, stats.Retries))
	sb.WriteString(w.printer.Sprintf("  Waves:          %d\n", stats.Waves))
	sb.WriteString(w.printer.Sprintf("  Crawlable:      %d links\n", crawlable))
	sb.WriteString(w.printer.Sprintf("  Non-crawlable:  %d links\n", nonCrawlable))
	if stats.Recovered > 0 {
		sb.WriteString(w.printer.Sprintf("  Recovered:      %d unexpected errors\n", stats.Recovered))
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeExternalHosts(sb *strings.Builder, report *model.CrawlReport) {
	hosts, rest := topHosts(report, maxExternalHosts)
	if len(hosts) == 0 {
		return
	}

	w.section(sb, "EXTERNAL HOSTS")
	for _, h := range hosts {
		sb.WriteString(w.printer.Sprintf("  %6d  %s\n", h.Count, h.Host))
	}
	if rest > 0 {
		sb.WriteString(w.printer.Sprintf("  ... and %d more\n", rest))
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writePages(sb *strings.Builder, report *model.CrawlReport) {
	if len(report.Pages) == 0 {
		return
	}

	w.section(sb, "PAGES")
	for _, page := range report.Pages {
		sb.WriteString(w.printer.Sprintf("[+] %s\n", page.URL))
		if page.Title != "" {
			sb.WriteString(w.printer.Sprintf("    Title: %s\n", page.Title))
		}
		for _, link := range page.Crawlable {
			sb.WriteString(w.printer.Sprintf("    -> %s\n", link))
		}
		for _, link := range page.NonCrawlable {
			sb.WriteString(w.printer.Sprintf("    => %s\n", link))
		}
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	w.rule(sb, "=")
	sb.WriteString("Report generated by sitecrawl\n")
	w.rule(sb, "=")
}
