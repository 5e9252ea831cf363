package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() and provide specific
// information about what is wrong with the configuration.
//
// Design decision: We use package-level sentinel errors rather than
// creating new error instances in Validate(). This allows callers to use
// errors.Is() for programmatic error handling while still providing
// human-readable messages.
var (
	// ErrNoURL is returned when no start URL is given.
	ErrNoURL = errors.New("no start URL specified: use --url")

	// ErrInvalidURL is returned when the start URL is not an absolute
	// http or https URL with a host.
	ErrInvalidURL = errors.New("invalid start URL: must be an absolute http(s) URL with a host")

	// ErrInvalidConcurrency is returned when max concurrent tasks is not positive.
	ErrInvalidConcurrency = errors.New("invalid max concurrent tasks: must be positive")

	// ErrInvalidRateLimit is returned when the rate limit is negative.
	// Use 0 for no delay.
	ErrInvalidRateLimit = errors.New("invalid rate limit: must be non-negative")

	// ErrInvalidMaxRetries is returned when max retries is negative.
	ErrInvalidMaxRetries = errors.New("invalid max retries: must be non-negative")

	// ErrInvalidRetryDelay is returned when the retry delay is negative.
	ErrInvalidRetryDelay = errors.New("invalid retry delay: must be non-negative")

	// ErrInvalidTimeout is returned when the timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified. Only one output format can be used at a time.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrConflictingProxySettings is returned when both --tor and --proxy
	// are specified.
	ErrConflictingProxySettings = errors.New("conflicting proxy settings: --tor and --proxy cannot be used together")

	// ErrConfigNotFound is returned when the configuration file does not exist.
	ErrConfigNotFound = errors.New("configuration file not found")
)
