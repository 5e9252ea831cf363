// Package database archives finished crawl runs in SQLite.
//
// The CrawlDB stores:
//   - One crawl_runs row per run, with the full report as JSON
//   - One pages row per fetched page, with its title and content digest
//   - One links row per discovered link, marked crawlable or not
//
// Design decision: We use SQLite (via modernc.org/sqlite) because:
// 1. The archive is a single file under the XDG data directory
// 2. The CGO-free driver keeps cross-compilation simple
// 3. WAL mode lets `sitecrawl history` read while a crawl is saving
//
// Runs are only written after the crawl finishes. The archive is a history
// of results, never a resume point: a new crawl always starts from an empty
// frontier.
package database
