package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

// DefaultMaxRedirects is the redirect cap applied to every request.
const DefaultMaxRedirects = 10

// checkProxyTimeout is the timeout for the proxy handshake check.
// It is short because this is a connectivity check, not a real request.
const checkProxyTimeout = 2 * time.Second

// Client builds HTTP clients that connect either directly or through a
// SOCKS5 proxy, and injects per-site cookies and headers into every request.
//
// Design decision: We keep proxy selection and header injection here rather
// than in the crawler because:
//  1. The crawler only needs "GET this URL", not how the bytes travel
//  2. Direct, --proxy and --tor crawls share one code path
//  3. Tests can swap the transport without a proxy
type Client struct {
	// proxyAddress is the SOCKS5 proxy address in "host:port" format.
	// Empty means direct connections.
	proxyAddress string

	// dialer is the SOCKS5 dialer. Nil for direct connections.
	dialer proxy.Dialer

	userAgent     string
	siteHost      string
	cookie        string
	headers       map[string]string
	maxRedirects  int
	skipTLSVerify bool
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithProxy routes all connections through the SOCKS5 proxy at address.
// An empty address means direct connections.
func WithProxy(address string) ClientOption {
	return func(c *Client) {
		c.proxyAddress = address
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithSiteHost binds the configured cookie and headers to host, compared
// with the request URL's host including any port. Requests to any other
// host, such as the target of a cross-site redirect, never carry them.
// Without a site host the cookie and headers are not sent at all.
func WithSiteHost(host string) ClientOption {
	return func(c *Client) {
		c.siteHost = host
	}
}

// WithCookie sets a raw cookie string (e.g., "session_id=abc123") sent with
// every request to the site host.
func WithCookie(cookie string) ClientOption {
	return func(c *Client) {
		c.cookie = cookie
	}
}

// WithHeaders sets custom headers sent with every request to the site host.
func WithHeaders(headers map[string]string) ClientOption {
	return func(c *Client) {
		c.headers = headers
	}
}

// WithMaxRedirects sets the redirect cap. Values below 0 are ignored.
func WithMaxRedirects(n int) ClientOption {
	return func(c *Client) {
		if n >= 0 {
			c.maxRedirects = n
		}
	}
}

// WithInsecureSkipVerify disables TLS certificate verification.
// Onion services commonly present self-signed certificates; the onion
// address itself authenticates the service.
func WithInsecureSkipVerify(skip bool) ClientOption {
	return func(c *Client) {
		c.skipTLSVerify = skip
	}
}

// NewClient creates a Client.
//
// When a proxy is configured its address format is validated, but the proxy
// is not contacted. Call CheckConnection() to verify it.
//
// Design decision: We don't connect to the proxy in the constructor because:
//  1. It allows creating the client even when the proxy isn't running yet
//  2. It separates object creation from network operations
//  3. It allows for better testing with mock proxies
func NewClient(opts ...ClientOption) (*Client, error) {
	c := &Client{
		maxRedirects: DefaultMaxRedirects,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.proxyAddress != "" {
		if !isValidProxyAddress(c.proxyAddress) {
			return nil, ErrInvalidProxyAddress
		}

		// Proxies used for crawling typically don't require auth
		dialer, err := proxy.SOCKS5("tcp", c.proxyAddress, nil, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}
		c.dialer = dialer
	}

	return c, nil
}

// isValidProxyAddress checks if the address is in valid "host:port" format
// with a port between 1 and 65535.
func isValidProxyAddress(address string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return false
	}

	portNum, err := strconv.Atoi(port)
	if err != nil {
		return false
	}
	return portNum >= 1 && portNum <= 65535
}

// SOCKS5 protocol constants
const (
	socks5Version       = 0x05
	socks5AuthNone      = 0x00
	socks5CmdConnect    = 0x01
	socks5AddrTypeDomID = 0x03

	// socks5CheckHost is the CONNECT target of the connection check. The .invalid TLD is
	// reserved and never resolves, so no real service is contacted; we only
	// need the proxy to answer the request.
	socks5CheckHost = "sitecrawl-check.invalid"
)

// CheckConnection verifies that the configured proxy is running and speaks
// SOCKS5 without authentication.
//
// The check performs a SOCKS5 handshake followed by a CONNECT request to a
// reserved host. Any well-formed reply, including a failure code, proves the
// peer is a SOCKS5 proxy.
func (c *Client) CheckConnection(ctx context.Context) ProxyStatus {
	if c.proxyAddress == "" {
		return ProxyStatusNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, checkProxyTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.proxyAddress)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ProxyStatusTimeout
		}
		return ProxyStatusCannotConnect
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(checkProxyTimeout)); err != nil {
		return ProxyStatusCannotConnect
	}

	// Version negotiation: offer "no authentication" only
	if _, err := conn.Write([]byte{socks5Version, 0x01, socks5AuthNone}); err != nil {
		return ProxyStatusCannotConnect
	}

	authResp := make([]byte, 2)
	if _, err := io.ReadFull(conn, authResp); err != nil {
		if isTimeout(err) {
			return ProxyStatusTimeout
		}
		return ProxyStatusWrongType
	}

	if authResp[0] != socks5Version {
		return ProxyStatusWrongType
	}
	// 0xFF means every offered method was rejected, i.e. auth is required
	if authResp[1] != socks5AuthNone {
		return ProxyStatusWrongType
	}

	// CONNECT: version + cmd + reserved + addr type + addr + port
	checkPort := uint16(80)
	connectReq := []byte{
		socks5Version,
		socks5CmdConnect,
		0x00,
		socks5AddrTypeDomID,
		byte(len(socks5CheckHost)),
	}
	connectReq = append(connectReq, []byte(socks5CheckHost)...)
	connectReq = append(connectReq, byte(checkPort>>8), byte(checkPort&0xFF))

	if _, err := conn.Write(connectReq); err != nil {
		return ProxyStatusCannotConnect
	}

	// version + reply + reserved + addr type
	connectResp := make([]byte, 4)
	if _, err := io.ReadFull(conn, connectResp); err != nil {
		if isTimeout(err) {
			return ProxyStatusTimeout
		}
		return ProxyStatusWrongType
	}

	if connectResp[0] != socks5Version {
		return ProxyStatusWrongType
	}

	return ProxyStatusOK
}

// isTimeout reports whether err is a network timeout.
func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// NewHTTPClient creates an HTTP client that uses this client's connection
// mode, cookie jar and redirect cap, and injects the configured headers.
//
// Design decisions:
//   - A cookie jar keeps session cookies set by the site across pages
//   - Redirects beyond the cap are an error so a loop counts as a failure
//   - No client-wide timeout; each request carries its own deadline
func (c *Client) NewHTTPClient() *http.Client {
	transport := &http.Transport{
		DialContext:         c.DialContext,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     30 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	if c.skipTLSVerify {
		transport.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: true, //nolint:gosec // Explicitly requested by the user
		}
	}

	jar, _ := cookiejar.New(nil) //nolint:errcheck // cookiejar.New only fails with invalid options

	maxRedirects := c.maxRedirects
	return &http.Client{
		Transport: &headerInjectingTransport{
			base:      transport,
			userAgent: c.userAgent,
			siteHost:  c.siteHost,
			cookie:    c.cookie,
			headers:   c.headers,
		},
		Jar: jar,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("%w: stopped after %d", ErrTooManyRedirects, maxRedirects)
			}
			return nil
		},
	}
}

// DialContext establishes a TCP connection, through the proxy if one is
// configured.
//
// The x/net SOCKS5 dialer implements proxy.ContextDialer, so cancellation
// reaches the proxy handshake. For other dialers the dial runs in a goroutine
// and the context only bounds how long we wait for it.
func (c *Client) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if c.dialer == nil {
		var d net.Dialer
		return d.DialContext(ctx, network, address)
	}

	if cd, ok := c.dialer.(proxy.ContextDialer); ok {
		return cd.DialContext(ctx, network, address)
	}

	type dialResult struct {
		conn net.Conn
		err  error
	}
	resultCh := make(chan dialResult, 1)

	go func() {
		conn, err := c.dialer.Dial(network, address)
		resultCh <- dialResult{conn, err}
	}()

	select {
	case result := <-resultCh:
		return result.conn, result.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ProxyAddress returns the configured proxy address, or "" for direct
// connections.
func (c *Client) ProxyAddress() string {
	return c.proxyAddress
}

// headerInjectingTransport wraps an http.RoundTripper. The User-Agent goes
// into every request, redirects included; the site cookie and headers only
// into requests for siteHost.
type headerInjectingTransport struct {
	base      http.RoundTripper
	userAgent string
	siteHost  string
	cookie    string
	headers   map[string]string
}

// RoundTrip implements http.RoundTripper.
func (t *headerInjectingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())

	if t.userAgent != "" {
		clone.Header.Set("User-Agent", t.userAgent)
	}

	if t.siteHost == "" || !strings.EqualFold(clone.URL.Host, t.siteHost) {
		return t.base.RoundTrip(clone)
	}

	if t.cookie != "" {
		// Keep cookies from the jar
		if existing := clone.Header.Get("Cookie"); existing != "" {
			clone.Header.Set("Cookie", existing+"; "+t.cookie)
		} else {
			clone.Header.Set("Cookie", t.cookie)
		}
	}

	for key, value := range t.headers {
		clone.Header.Set(key, value)
	}

	return t.base.RoundTrip(clone)
}
