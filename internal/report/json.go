package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/sitecrawl/internal/model"
)

// JSONWriter outputs reports in JSON format for tool integration.
//
// Design decision: We use standard encoding/json rather than a third-party
// JSON library because:
// 1. The report is a plain struct tree with no custom encoding needs
// 2. The archive stores the same encoding, so both must agree
// 3. It provides consistent behavior across Go versions
type JSONWriter struct {
	baseWriter

	// indent enables pretty-printed JSON output.
	indent bool

	indentPrefix string
	indentString string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint is WithIndent("", "  ").
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the bare report in JSON format.
func (w *JSONWriter) Write(report *model.CrawlReport) (int, error) {
	return w.writeJSON(report)
}

func (w *JSONWriter) writeJSON(v any) (int, error) {
	var data []byte
	var err error

	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return 0, err
	}

	// Trailing newline for terminal output
	data = append(data, '\n')

	return w.output.Write(data)
}

// Summary holds totals derived from a report.
type Summary struct {
	CrawlableLinks    int               `json:"crawlable_links"`
	NonCrawlableLinks int               `json:"non_crawlable_links"`
	DurationSeconds   float64           `json:"duration_seconds"`
	ExternalHosts     []model.HostCount `json:"external_hosts"`
}

// NewSummary computes the totals for report.
func NewSummary(report *model.CrawlReport) *Summary {
	crawlable, nonCrawlable := report.LinkTotals()
	return &Summary{
		CrawlableLinks:    crawlable,
		NonCrawlableLinks: nonCrawlable,
		DurationSeconds:   report.Duration().Seconds(),
		ExternalHosts:     report.ExternalHosts(),
	}
}

// JSONReport wraps a report with the tool version and derived totals.
//
// Design decision: We wrap the report rather than adding fields to
// CrawlReport so output-only data never reaches the archive.
type JSONReport struct {
	// Version is the sitecrawl version that generated this report.
	Version string `json:"version"`

	Report  *model.CrawlReport `json:"report"`
	Summary *Summary           `json:"summary"`
}

// FullJSONWriter outputs reports wrapped in a JSONReport.
type FullJSONWriter struct {
	*JSONWriter

	version string
}

// NewFullJSONWriter creates a writer for complete reports with metadata.
func NewFullJSONWriter(output io.Writer, version string, opts ...JSONWriterOption) *FullJSONWriter {
	return &FullJSONWriter{
		JSONWriter: NewJSONWriter(output, opts...),
		version:    version,
	}
}

// Write outputs the report wrapped with metadata.
func (w *FullJSONWriter) Write(report *model.CrawlReport) (int, error) {
	return w.writeJSON(&JSONReport{
		Version: w.version,
		Report:  report,
		Summary: NewSummary(report),
	})
}
