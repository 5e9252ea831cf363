package crawler

import (
	"context"
	"net/http"
	"time"
)

// Response is what a Transport returns for a completed GET request,
// whatever its status code.
type Response struct {
	// StatusCode is the final HTTP status after redirects.
	StatusCode int

	// Header holds the response headers.
	Header http.Header

	// Body is the response body decoded to UTF-8 text.
	Body string
}

// Transport issues a single GET request.
//
// Implementations return a Response for every status code and an error only
// when no response was received (connection failure, timeout, cancellation).
// The timeout applies to this one request.
type Transport interface {
	Get(ctx context.Context, url string, timeout time.Duration) (*Response, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, url string, timeout time.Duration) (*Response, error)

// Get calls f.
func (f TransportFunc) Get(ctx context.Context, url string, timeout time.Duration) (*Response, error) {
	return f(ctx, url, timeout)
}
