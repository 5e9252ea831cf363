// Package model defines the data structures shared by the crawler, the
// report writers, and the archive database.
//
// This package contains the following main types:
//   - Page: A fetched HTML page and its classified links
//   - CrawlReport: The result of one crawl run
//   - CrawlStats: Counters collected during a crawl
//
// Design decision: We separate models into their own package to avoid circular
// dependencies. The crawler produces these types while report and database
// consume them, so centralizing them prevents import cycles.
package model
