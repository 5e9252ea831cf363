package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nao1215/sitecrawl/internal/crawler"
	"golang.org/x/net/html/charset"
)

// DefaultMaxBodySize limits how much of an HTML body is read.
const DefaultMaxBodySize = 10 * 1024 * 1024

// acceptHeader prefers HTML but accepts anything, so non-HTML responses are
// reported and skipped rather than refused.
const acceptHeader = "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8"

// HTTPTransport performs crawler GET requests with an *http.Client.
//
// Only successful HTML responses have their body read. The body is capped at
// the configured size and decoded to UTF-8 using the charset declared in the
// Content-Type header or the document itself.
type HTTPTransport struct {
	client      *http.Client
	maxBodySize int64
}

// HTTPTransportOption configures an HTTPTransport.
type HTTPTransportOption func(*HTTPTransport)

// WithMaxBodySize sets the body size cap in bytes. Zero or negative values
// keep the default.
func WithMaxBodySize(n int64) HTTPTransportOption {
	return func(t *HTTPTransport) {
		if n > 0 {
			t.maxBodySize = n
		}
	}
}

// NewHTTPTransport creates an HTTPTransport. If client is nil,
// http.DefaultClient is used.
func NewHTTPTransport(client *http.Client, opts ...HTTPTransportOption) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}

	t := &HTTPTransport{
		client:      client,
		maxBodySize: DefaultMaxBodySize,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Get implements crawler.Transport.
//
// The timeout covers the whole attempt: connecting, redirects, and reading
// the body. Non-2xx/3xx statuses are returned as a Response, not an error.
func (t *HTTPTransport) Get(ctx context.Context, rawURL string, timeout time.Duration) (*crawler.Response, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", acceptHeader)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	out := &crawler.Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
	}

	contentType := resp.Header.Get("Content-Type")
	if resp.StatusCode >= http.StatusBadRequest || !strings.Contains(contentType, "text/html") {
		return out, nil
	}

	body, err := t.readBody(resp.Body, contentType)
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	out.Body = body

	return out, nil
}

// readBody reads at most maxBodySize bytes and converts them to UTF-8.
func (t *HTTPTransport) readBody(r io.Reader, contentType string) (string, error) {
	limited := io.LimitReader(r, t.maxBodySize)

	utf8Reader, err := charset.NewReader(limited, contentType)
	if err != nil {
		return "", err
	}

	data, err := io.ReadAll(utf8Reader)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
