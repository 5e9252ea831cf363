// Package transport moves crawler requests over the network.
//
// It provides:
//   - Client: builds *http.Client values that connect directly or through a
//     SOCKS5 proxy, with a cookie jar, a redirect cap, and per-site header
//     and cookie injection
//   - HTTPTransport: the crawler.Transport implementation, which applies the
//     per-attempt timeout, caps the body size and decodes it to UTF-8
//   - EmbeddedTor: an embedded Tor daemon (via tornago) for crawling
//     .onion sites without a system Tor installation
//
// Design decision: We use golang.org/x/net/proxy for SOCKS5 rather than
// implementing the client side ourselves because it supports
// context-aware dialing and is maintained alongside the standard library.
// Only the CheckConnection handshake speaks SOCKS5 by hand, since it needs to
// tell "not a proxy" apart from "proxy refused the target".
//
// The package is designed to be used with dependency injection: create a
// Client, wrap its *http.Client in an HTTPTransport, and pass that to the
// crawler.
package transport
