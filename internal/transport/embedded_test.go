package transport

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

// TestNewEmbeddedTor tests the embedded Tor constructor and options.
// These tests don't start the daemon.
func TestNewEmbeddedTor(t *testing.T) {
	t.Parallel()

	t.Run("uses default startup timeout", func(t *testing.T) {
		t.Parallel()

		e := NewEmbeddedTor()
		if e.startupTimeout != DefaultTorStartupTimeout {
			t.Errorf("expected %v, got %v", DefaultTorStartupTimeout, e.startupTimeout)
		}
	})

	t.Run("applies startup timeout option", func(t *testing.T) {
		t.Parallel()

		e := NewEmbeddedTor(WithStartupTimeout(30 * time.Second))
		if e.startupTimeout != 30*time.Second {
			t.Errorf("expected 30s, got %v", e.startupTimeout)
		}
	})

	t.Run("applies logger option", func(t *testing.T) {
		t.Parallel()

		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		if e := NewEmbeddedTor(WithTorLogger(logger)); e.logger != logger {
			t.Error("expected logger to be set")
		}
		if e := NewEmbeddedTor(WithTorLogger(nil)); e.logger == nil {
			t.Error("expected nil logger to keep the default")
		}
	})

	t.Run("ignores non-positive startup timeout", func(t *testing.T) {
		t.Parallel()

		e := NewEmbeddedTor(WithStartupTimeout(0))
		if e.startupTimeout != DefaultTorStartupTimeout {
			t.Errorf("expected default timeout, got %v", e.startupTimeout)
		}
	})
}

// TestEmbeddedTorNotRunning tests methods on an unstarted daemon.
func TestEmbeddedTorNotRunning(t *testing.T) {
	t.Parallel()

	e := NewEmbeddedTor()

	if e.IsRunning() {
		t.Error("expected IsRunning() to be false")
	}
	if e.SocksAddr() != "" {
		t.Errorf("expected empty SOCKS address, got %q", e.SocksAddr())
	}
	if e.ControlAddr() != "" {
		t.Errorf("expected empty control address, got %q", e.ControlAddr())
	}
	if err := e.Stop(); err != nil {
		t.Errorf("Stop() on unstarted instance returned %v", err)
	}
	if err := e.Stop(); err != nil {
		t.Errorf("second Stop() returned %v", err)
	}

	client, err := e.NewClient(WithUserAgent("test"))
	if !errors.Is(err, ErrTorNotRunning) {
		t.Errorf("expected ErrTorNotRunning, got %v", err)
	}
	if client != nil {
		t.Error("expected nil client")
	}
}
