package report

import (
	"io"
	"strconv"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/sitecrawl/internal/model"
)

// MarkdownWriter outputs reports in Markdown format for sharing.
//
// Design decision: We use the nao1215/markdown library for fluent markdown
// generation which provides:
// 1. Type-safe markdown generation
// 2. Support for tables, lists, and code blocks
// 3. GitHub-flavored markdown alerts and mermaid charts
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the report in Markdown format.
func (w *MarkdownWriter) Write(report *model.CrawlReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report)
	w.writeSummary(md, report)
	w.writeExternalHosts(md, report)
	w.writePages(md, report)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.CrawlReport) {
	md.H1("Sitecrawl Report")
	md.PlainText("")

	rows := [][]string{
		{"Start URL", "`" + report.StartURL + "`"},
		{"Domain", "`" + report.Domain + "`"},
		{"Started", report.StartedAt.Format("2006-01-02 15:04:05 MST")},
		{"Duration", report.Duration().Round(time.Millisecond).String()},
		{"Status", statusText(report)},
	}
	if report.ID > 0 {
		rows = append(rows, []string{"Run ID", strconv.FormatInt(report.ID, 10)})
	}

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, report *model.CrawlReport) {
	md.H2("Summary")
	md.PlainText("")

	stats := report.Stats
	crawlable, nonCrawlable := report.LinkTotals()

	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Count"},
		Rows: [][]string{
			{"Visited", strconv.Itoa(stats.Claimed)},
			{"Fetched", strconv.Itoa(stats.Fetched)},
			{"Skipped (non-HTML)", strconv.Itoa(stats.Skipped)},
			{"Failed", strconv.Itoa(stats.Failed)},
			{"Attempts", strconv.Itoa(stats.Attempts)},
			{"Retries", strconv.Itoa(stats.Retries)},
			{"Crawlable links", strconv.Itoa(crawlable)},
			{"Non-crawlable links", strconv.Itoa(nonCrawlable)},
		},
	})
	md.PlainText("")

	if crawlable+nonCrawlable > 0 {
		w.writePieChart(md, crawlable, nonCrawlable)
	}

	w.writeAlert(md, report)
}

// writePieChart writes a mermaid pie chart of the link split.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, crawlable, nonCrawlable int) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Link Distribution"),
		piechart.WithShowData(true),
	)

	if crawlable > 0 {
		chart.LabelAndIntValue("Crawlable", uint64(crawlable))
	}
	if nonCrawlable > 0 {
		chart.LabelAndIntValue("Non-crawlable", uint64(nonCrawlable))
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, report *model.CrawlReport) {
	switch {
	case report.Cancelled:
		md.Warningf("The crawl was cancelled after %d URL(s); results are partial.", report.Stats.Claimed)
	case report.Stats.Failed > 0:
		md.Importantf("%d URL(s) could not be fetched.", report.Stats.Failed)
	case report.Stats.Fetched == 0:
		md.Note("No HTML pages were fetched.")
	default:
		md.Tip("Every visited URL was fetched or skipped successfully.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeExternalHosts(md *markdown.Markdown, report *model.CrawlReport) {
	hosts, rest := topHosts(report, maxExternalHosts)
	if len(hosts) == 0 {
		return
	}

	md.H2("External Hosts")
	md.PlainText("")

	rows := make([][]string, len(hosts))
	for i, h := range hosts {
		rows[i] = []string{"`" + h.Host + "`", strconv.Itoa(h.Count)}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Host", "Links"},
		Rows:   rows,
	})
	md.PlainText("")

	if rest > 0 {
		md.PlainTextf("...and %d more.", rest)
		md.PlainText("")
	}
}

func (w *MarkdownWriter) writePages(md *markdown.Markdown, report *model.CrawlReport) {
	md.H2("Pages")
	md.PlainText("")

	if len(report.Pages) == 0 {
		md.PlainText("No pages fetched.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(report.Pages))
	for i, p := range report.Pages {
		title := p.Title
		if title == "" {
			title = "-"
		}
		rows[i] = []string{
			truncateString(p.URL, 80),
			truncateString(title, 50),
			strconv.Itoa(len(p.Crawlable)),
			strconv.Itoa(len(p.NonCrawlable)),
		}
	}

	md.Table(markdown.TableSet{
		Header: []string{"URL", "Title", "Crawlable", "Non-crawlable"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [sitecrawl](https://github.com/nao1215/sitecrawl)*")
}

// truncateString truncates a string to maxLen characters with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
