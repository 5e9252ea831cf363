// Package main provides the entry point for the sitecrawl CLI.
//
// sitecrawl crawls every page reachable from a start URL without leaving
// the start URL's host, and reports the links it found on each page.
//
// Usage:
//
//	sitecrawl crawl --url https://example.com/
//	sitecrawl history list
//
// See --help for all available options.
package main

func main() {
	Execute()
}
