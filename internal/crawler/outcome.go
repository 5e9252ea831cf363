package crawler

import (
	"errors"
	"fmt"
)

// OutcomeKind tags the result of a single fetch attempt.
type OutcomeKind int

const (
	// OutcomeContent means an HTML body was received.
	OutcomeContent OutcomeKind = iota

	// OutcomeSkipped means the response was not HTML.
	// This is not an error and is never retried.
	OutcomeSkipped

	// OutcomeFailed means the attempt failed. See FailureKind.
	OutcomeFailed
)

// String returns a short name for the outcome kind.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeContent:
		return "content"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// FailureKind decides whether a failed attempt may be retried.
type FailureKind int

const (
	// FailureTransient covers server errors, connection errors, timeouts,
	// and anything unclassified. Transient failures are retried.
	FailureTransient FailureKind = iota

	// FailurePermanent covers 4xx responses. They are never retried.
	FailurePermanent
)

// String returns a short name for the failure kind.
func (k FailureKind) String() string {
	switch k {
	case FailureTransient:
		return "transient"
	case FailurePermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Fetch errors.
var (
	// ErrClientStatus wraps 4xx responses.
	ErrClientStatus = errors.New("client error status")

	// ErrServerStatus wraps 5xx responses.
	ErrServerStatus = errors.New("server error status")

	// ErrUnexpected wraps failures that could not be classified, such as a
	// panic inside the transport.
	ErrUnexpected = errors.New("unexpected fetch failure")
)

// StatusError reports an HTTP status that is not a success.
type StatusError struct {
	URL        string
	StatusCode int
}

// Error implements error.
func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d fetching %s", e.StatusCode, e.URL)
}

// Unwrap lets errors.Is match ErrClientStatus or ErrServerStatus.
func (e *StatusError) Unwrap() error {
	if e.StatusCode >= 400 && e.StatusCode < 500 {
		return ErrClientStatus
	}
	return ErrServerStatus
}

// Outcome is the tagged result of one fetch attempt.
// Exactly one of Body (content), ContentType (skipped), or Err (failed)
// is meaningful, depending on Kind.
type Outcome struct {
	Kind OutcomeKind

	// Body is the decoded page body when Kind is OutcomeContent.
	Body string

	// ContentType is the response content type when Kind is OutcomeSkipped.
	ContentType string

	// Failure classifies the error when Kind is OutcomeFailed.
	Failure FailureKind

	// Err describes the failure when Kind is OutcomeFailed.
	Err error
}

// Content returns an outcome carrying an HTML body.
func Content(body string) Outcome {
	return Outcome{Kind: OutcomeContent, Body: body}
}

// Skipped returns an outcome for a non-HTML response.
func Skipped(contentType string) Outcome {
	return Outcome{Kind: OutcomeSkipped, ContentType: contentType}
}

// Failed returns a failed outcome of the given kind.
func Failed(kind FailureKind, err error) Outcome {
	return Outcome{Kind: OutcomeFailed, Failure: kind, Err: err}
}

// Retryable reports whether the outcome is a transient failure.
func (o Outcome) Retryable() bool {
	return o.Kind == OutcomeFailed && o.Failure == FailureTransient
}

// Result is what FetchWithRetries returns: the last outcome and the number
// of attempts it took to get there.
type Result struct {
	Outcome Outcome

	// Attempts is the number of transport attempts made, at least 1.
	Attempts int
}

// Content returns the page body and true if the fetch produced HTML.
func (r Result) Content() (string, bool) {
	if r.Outcome.Kind != OutcomeContent {
		return "", false
	}
	return r.Outcome.Body, true
}

// Retries returns the number of attempts beyond the first.
func (r Result) Retries() int {
	if r.Attempts <= 1 {
		return 0
	}
	return r.Attempts - 1
}
