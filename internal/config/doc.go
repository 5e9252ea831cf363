// Package config provides configuration structures and utilities for
// sitecrawl: crawl limits, retry and pacing settings, report preferences,
// and per-host request customization loaded from a YAML file.
package config
