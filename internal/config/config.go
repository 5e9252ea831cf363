package config

import (
	"net/url"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// DefaultMaxConcurrentTasks is the number of URLs fetched per wave.
	// Five keeps a small site responsive without looking like a flood.
	DefaultMaxConcurrentTasks = 5

	// DefaultRateLimit is the pause each fetch unit takes after its work.
	// Zero means no pause.
	DefaultRateLimit = 0 * time.Second

	// DefaultMaxRetries is how many times a transient failure is retried.
	// Total attempts per URL are DefaultMaxRetries + 1.
	DefaultMaxRetries = 3

	// DefaultRetryDelay is the fixed wait between attempts.
	DefaultRetryDelay = 1 * time.Second

	// DefaultTimeout bounds a single request attempt, including redirects
	// and reading the body.
	DefaultTimeout = 10 * time.Second

	// AppName is the application name used for XDG directory paths.
	AppName = "sitecrawl"

	// DefaultUserAgent identifies sitecrawl in HTTP requests.
	// Using a descriptive User-Agent lets site operators identify crawler
	// traffic in their logs.
	DefaultUserAgent = "sitecrawl/1.0 (+https://github.com/nao1215/sitecrawl)"

	// DefaultMaxBodySize limits how much of a response body is read.
	// 10MB covers any reasonable HTML page while preventing memory exhaustion.
	DefaultMaxBodySize = 10 * 1024 * 1024 // 10MB

	// DefaultTorStartupTimeout is the maximum time to wait for the embedded
	// Tor daemon to bootstrap.
	DefaultTorStartupTimeout = 3 * time.Minute
)

// Config holds all configuration options for a crawl.
// It is populated from CLI flags and passed through the application via
// dependency injection rather than global state.
//
// Design decision: We use a single flat struct instead of nested structs
// (e.g., CrawlConfig, ReportConfig) for simplicity. The number of options
// is manageable, and nesting would add complexity without significant benefit.
type Config struct {
	// URL is the start URL. Its host becomes the crawl domain.
	URL string

	// MaxConcurrentTasks is the maximum number of URLs fetched concurrently
	// in one wave.
	MaxConcurrentTasks int

	// RateLimit is the delay each fetch unit waits after processing its page.
	// It is applied per unit, not globally.
	RateLimit time.Duration

	// MaxRetries is the number of retries for transient failures.
	MaxRetries int

	// RetryDelay is the fixed delay between fetch attempts.
	RetryDelay time.Duration

	// Timeout is the per-attempt request timeout.
	Timeout time.Duration

	// Verbose enables debug-level log output.
	Verbose bool

	// LogJSON switches log output to JSON.
	LogJSON bool

	// NoColor disables colored console output.
	NoColor bool

	// ConfigFilePath is the path to the site configuration file.
	// If empty, FindConfigFile searches the default locations.
	ConfigFilePath string

	// SiteConfigs holds the site configurations loaded from the config file.
	SiteConfigs *File

	// JSONReport selects the JSON report. Mutually exclusive with MarkdownReport.
	JSONReport bool

	// MarkdownReport selects the Markdown report. Mutually exclusive with JSONReport.
	MarkdownReport bool

	// ReportFile is the output file path for the report.
	// When empty, the report is written to stdout.
	ReportFile string

	// ProxyAddress is an optional SOCKS5 proxy in "host:port" format.
	ProxyAddress string

	// UseTor starts an embedded Tor daemon and routes requests through it.
	// Mutually exclusive with ProxyAddress.
	UseTor bool

	// TorStartupTimeout bounds how long the embedded Tor daemon may take to
	// bootstrap. Only used when UseTor is true.
	TorStartupTimeout time.Duration

	// DBDir is the directory holding the SQLite archive.
	// Setting it implies SaveToDB.
	DBDir string

	// SaveToDB stores the finished crawl in the archive.
	SaveToDB bool

	// UserAgent is the User-Agent header sent with every request.
	UserAgent string

	// MaxBodySize is the maximum response body size in bytes to read.
	// Larger bodies are truncated.
	MaxBodySize int64
}

// NewConfig creates a new Config with default values.
//
// Design decision: We use a constructor function instead of relying on
// zero values because many defaults are non-zero (e.g., timeout, retries).
// This also serves as documentation of what the defaults are.
func NewConfig() *Config {
	return &Config{
		MaxConcurrentTasks: DefaultMaxConcurrentTasks,
		RateLimit:          DefaultRateLimit,
		MaxRetries:         DefaultMaxRetries,
		RetryDelay:         DefaultRetryDelay,
		Timeout:            DefaultTimeout,
		TorStartupTimeout:  DefaultTorStartupTimeout,
		UserAgent:          DefaultUserAgent,
		MaxBodySize:        DefaultMaxBodySize,
	}
}

// XDGDataDir returns the XDG data directory for sitecrawl.
// On Linux: ~/.local/share/sitecrawl
// On macOS: ~/Library/Application Support/sitecrawl
// On Windows: %LOCALAPPDATA%\sitecrawl
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for sitecrawl.
// On Linux: ~/.config/sitecrawl
// On macOS: ~/Library/Application Support/sitecrawl
// On Windows: %APPDATA%\sitecrawl
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Domain returns the host of URL, port included.
// It returns an empty string if URL does not parse.
func (c *Config) Domain() string {
	u, err := url.Parse(c.URL)
	if err != nil {
		return ""
	}
	return u.Host
}

// Site returns the merged site configuration for the crawl domain.
// It returns an empty SiteConfig when no config file was loaded.
func (c *Config) Site() SiteConfig {
	if c.SiteConfigs == nil {
		return SiteConfig{}
	}
	return c.SiteConfigs.GetSiteConfig(c.Domain())
}

// Validate checks if the configuration is valid.
// It returns a specific error describing what is invalid.
//
// Design decision: We validate at the config level rather than at each
// point of use to fail fast and provide clear error messages upfront.
// This is called once after CLI parsing, before any request is sent.
//
// We chose to return the first error found rather than collecting all errors
// because fixing one error often makes others irrelevant.
func (c *Config) Validate() error {
	if c.URL == "" {
		return ErrNoURL
	}

	// Only absolute http(s) URLs have a host to confine the crawl to
	u, err := url.Parse(c.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidURL
	}

	if c.MaxConcurrentTasks <= 0 {
		return ErrInvalidConcurrency
	}

	if c.RateLimit < 0 {
		return ErrInvalidRateLimit
	}

	if c.MaxRetries < 0 {
		return ErrInvalidMaxRetries
	}

	if c.RetryDelay < 0 {
		return ErrInvalidRetryDelay
	}

	// Zero timeout would cause immediate failures
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}

	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}

	if c.UseTor && c.ProxyAddress != "" {
		return ErrConflictingProxySettings
	}

	return nil
}
