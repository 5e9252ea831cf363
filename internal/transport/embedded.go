package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nao1215/tornago"
)

// DefaultTorStartupTimeout bounds how long the embedded daemon may take to
// bootstrap.
const DefaultTorStartupTimeout = 3 * time.Minute

// EmbeddedTor runs a private Tor daemon through tornago so .onion sites can
// be crawled without a system Tor installation. Bootstrapping takes one to
// three minutes on a cold start.
type EmbeddedTor struct {
	mu      sync.Mutex
	process *tornago.TorProcess

	startupTimeout time.Duration
	logger         *slog.Logger
}

// EmbeddedTorOption configures an EmbeddedTor.
type EmbeddedTorOption func(*EmbeddedTor)

// WithStartupTimeout sets the bootstrap timeout. Non-positive values keep
// the default.
func WithStartupTimeout(timeout time.Duration) EmbeddedTorOption {
	return func(e *EmbeddedTor) {
		if timeout > 0 {
			e.startupTimeout = timeout
		}
	}
}

// WithTorLogger sets the logger for daemon lifecycle events.
func WithTorLogger(logger *slog.Logger) EmbeddedTorOption {
	return func(e *EmbeddedTor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEmbeddedTor creates an unstarted daemon manager.
func NewEmbeddedTor(opts ...EmbeddedTorOption) *EmbeddedTor {
	e := &EmbeddedTor{
		startupTimeout: DefaultTorStartupTimeout,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type launchResult struct {
	process *tornago.TorProcess
	err     error
}

// Start launches the daemon and waits until it has bootstrapped. tornago's
// launch call does not take a context, so it runs in its own goroutine: if
// ctx ends first, Start returns ctx.Err() at once and the daemon is stopped
// as soon as the launch call returns. Starting a running daemon is a no-op.
func (e *EmbeddedTor) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.process != nil {
		return nil
	}

	// ":0" lets the OS pick free SOCKS and control ports
	launchCfg, err := tornago.NewTorLaunchConfig(
		tornago.WithTorSocksAddr(":0"),
		tornago.WithTorControlAddr(":0"),
		tornago.WithTorStartupTimeout(e.startupTimeout),
	)
	if err != nil {
		return fmt.Errorf("failed to create Tor launch config: %w", err)
	}

	e.logger.Debug("launching embedded Tor daemon", "startupTimeout", e.startupTimeout)
	started := time.Now()

	done := make(chan launchResult, 1)
	go func() {
		process, err := tornago.StartTorDaemon(launchCfg)
		done <- launchResult{process: process, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return fmt.Errorf("failed to start embedded Tor daemon: %w", res.err)
		}
		e.process = res.process
		e.logger.Debug("embedded Tor daemon bootstrapped",
			"elapsed", time.Since(started).Round(time.Second),
			"socksAddr", res.process.SocksAddr(),
		)
		return nil
	case <-ctx.Done():
		go func() {
			if res := <-done; res.err == nil {
				_ = res.process.Stop() //nolint:errcheck // Best effort cleanup
			}
		}()
		return ctx.Err()
	}
}

// Stop shuts the daemon down. It is safe to call on an unstarted or already
// stopped instance.
func (e *EmbeddedTor) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.process == nil {
		return nil
	}
	err := e.process.Stop()
	e.process = nil
	return err
}

// SocksAddr returns the daemon's SOCKS5 address, or "" when not running.
func (e *EmbeddedTor) SocksAddr() string {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.process == nil {
		return ""
	}
	return e.process.SocksAddr()
}

// ControlAddr returns the daemon's control port address, or "" when not
// running.
func (e *EmbeddedTor) ControlAddr() string {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.process == nil {
		return ""
	}
	return e.process.ControlAddr()
}

// IsRunning reports whether the daemon has been started and not stopped.
func (e *EmbeddedTor) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.process != nil
}

// NewClient creates a Client routed through the daemon's SOCKS port.
// Onion services commonly use self-signed certificates, so TLS verification
// is off. opts are applied first and cannot override the proxy.
func (e *EmbeddedTor) NewClient(opts ...ClientOption) (*Client, error) {
	socksAddr := e.SocksAddr()
	if socksAddr == "" {
		return nil, ErrTorNotRunning
	}

	opts = append(opts,
		WithInsecureSkipVerify(true),
		WithProxy(socksAddr),
	)
	return NewClient(opts...)
}
