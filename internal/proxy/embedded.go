package proxy

import (
	"context"
	"fmt"
	"time"

	"github.com/nao1215/tornago"
)

// DefaultTorStartupTimeout bounds the bootstrap of the embedded daemon.
const DefaultTorStartupTimeout = 3 * time.Minute

// torProcess is the part of *tornago.TorProcess the pool needs.
type torProcess interface {
	SocksAddr() string
	Stop() error
}

// torLauncher starts a daemon and blocks until it has bootstrapped.
type torLauncher func(timeout time.Duration) (torProcess, error)

// launchTornago starts a tornago daemon on OS-assigned ports.
func launchTornago(timeout time.Duration) (torProcess, error) {
	cfg, err := tornago.NewTorLaunchConfig(
		tornago.WithTorSocksAddr(":0"),
		tornago.WithTorControlAddr(":0"),
		tornago.WithTorStartupTimeout(timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Tor launch config: %w", err)
	}
	process, err := tornago.StartTorDaemon(cfg)
	if err != nil {
		return nil, err
	}
	return process, nil
}

// EmbeddedTor runs a Tor daemon inside the process and exposes its SOCKS
// port as one more pool entry, so no external Tor installation is needed.
//
// Bootstrapping downloads the directory and builds circuits, which usually
// takes one to three minutes.
type EmbeddedTor struct {
	timeout time.Duration
	launch  torLauncher
	process torProcess
}

// EmbeddedTorOption configures an EmbeddedTor.
type EmbeddedTorOption func(*EmbeddedTor)

// WithStartupTimeout sets the bootstrap timeout. Non-positive values keep the default.
func WithStartupTimeout(timeout time.Duration) EmbeddedTorOption {
	return func(e *EmbeddedTor) {
		if timeout > 0 {
			e.timeout = timeout
		}
	}
}

// NewEmbeddedTor returns an unstarted daemon.
func NewEmbeddedTor(opts ...EmbeddedTorOption) *EmbeddedTor {
	e := &EmbeddedTor{
		timeout: DefaultTorStartupTimeout,
		launch:  launchTornago,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type launchResult struct {
	process torProcess
	err     error
}

// Start launches the daemon and waits for the bootstrap to finish.
// When ctx ends first Start returns ctx.Err() at once; the daemon is
// stopped in the background as soon as its launch returns.
func (e *EmbeddedTor) Start(ctx context.Context) error {
	if e.process != nil {
		return nil
	}

	done := make(chan launchResult, 1)
	go func() {
		p, err := e.launch(e.timeout)
		done <- launchResult{process: p, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return fmt.Errorf("failed to start embedded Tor daemon: %w", res.err)
		}
		e.process = res.process
		return nil
	case <-ctx.Done():
		go func() {
			if res := <-done; res.err == nil {
				_ = res.process.Stop() //nolint:errcheck // Nobody waits for the abandoned daemon
			}
		}()
		return ctx.Err()
	}
}

// Stop shuts the daemon down. Stopping an unstarted or stopped daemon is a no-op.
func (e *EmbeddedTor) Stop() error {
	if e.process == nil {
		return nil
	}
	err := e.process.Stop()
	e.process = nil
	return err
}

// IsRunning reports whether Start succeeded and Stop was not called since.
func (e *EmbeddedTor) IsRunning() bool {
	return e.process != nil
}

// SocksAddr returns the host:port of the SOCKS listener, or "" when not running.
func (e *EmbeddedTor) SocksAddr() string {
	if e.process == nil {
		return ""
	}
	return e.process.SocksAddr()
}

// Descriptor returns the pool entry of the running daemon. The socks5h
// scheme makes Tor resolve the search host, so no DNS query leaks.
func (e *EmbeddedTor) Descriptor() (string, error) {
	if e.process == nil {
		return "", ErrTorNotRunning
	}
	return SchemeSOCKS5H + "://" + e.process.SocksAddr(), nil
}
