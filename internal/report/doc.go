// Package report renders crawl results.
//
// This package contains:
//   - ConsoleObserver: live, colored per-page output while crawling
//   - SimpleWriter: plain text summary for terminal display
//   - JSONWriter / FullJSONWriter: structured JSON for tool integration
//   - MarkdownWriter: Markdown with tables and a mermaid link chart
//
// Design decision: We separate report writing from report data structures
// (which are in the model package) so that adding an output format never
// touches the crawler or the archive.
//
// Writers implement the Writer interface, allowing them to be used
// interchangeably and composed for multi-format output.
package report
