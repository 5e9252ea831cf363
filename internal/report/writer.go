package report

import (
	"io"

	"github.com/nao1215/sitecrawl/internal/model"
)

// Writer defines the interface for crawl report output.
//
// Design decision: We use an interface so the CLI can pick text, JSON or
// Markdown output and a file or stdout destination with the same call.
type Writer interface {
	// Write outputs the report and returns the number of bytes written.
	Write(report *model.CrawlReport) (int, error)
}

// MultiWriter writes to multiple Writers in order.
//
// Design decision: We implement this as a separate type rather than
// using io.MultiWriter because our Writer interface is different
// from io.Writer - we write reports, not raw bytes.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the report to all configured Writers.
// Stops on first error encountered.
func (m *MultiWriter) Write(report *model.CrawlReport) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(report)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// statusText describes how the crawl ended.
func statusText(report *model.CrawlReport) string {
	if report.Cancelled {
		return "Cancelled (partial results)"
	}
	return "Complete"
}

// maxExternalHosts caps the external host listing in text and Markdown.
const maxExternalHosts = 10

// topHosts returns at most n external hosts and how many were left out.
func topHosts(report *model.CrawlReport, n int) ([]model.HostCount, int) {
	hosts := report.ExternalHosts()
	if len(hosts) <= n {
		return hosts, 0
	}
	return hosts[:n], len(hosts) - n
}
