package proxy

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"time"

	xproxy "golang.org/x/net/proxy"
)

// maxRedirects bounds redirect chains. Google's consent and sorry pages
// redirect a few times; more than this is a loop.
const maxRedirects = 10

// ClientOption configures the HTTP client built by NewHTTPClient.
type ClientOption func(*clientOptions)

type clientOptions struct {
	headers map[string]string
}

// WithHeaders sets headers added to every request the client sends,
// redirects included. Headers already set on a request are kept.
func WithHeaders(headers map[string]string) ClientOption {
	return func(o *clientOptions) {
		o.headers = headers
	}
}

// NewHTTPClient creates an HTTP client that sends its requests through p.
//
// HTTP and HTTPS proxies use the transport's CONNECT support. SOCKS5 proxies
// go through golang.org/x/net/proxy; for the socks5 scheme the target name is
// resolved locally and only the IP is sent to the proxy, while socks5h hands
// the name to the proxy. verifyTLS=false disables certificate verification
// for the target connection, which some intercepting HTTPS proxies require.
//
// Design decisions:
//   - A fresh client (and connection pool) per query, so a connection opened
//     through one proxy is never reused through another
//   - A cookie jar per client, because Google's consent flow sets cookies
//     across redirects
func NewHTTPClient(p Proxy, verifyTLS bool, timeout time.Duration, opts ...ClientOption) (*http.Client, error) {
	options := &clientOptions{}
	for _, opt := range opts {
		opt(options)
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: !verifyTLS, //nolint:gosec // Operator opt-in for intercepting proxies
			MinVersion:         tls.VersionTLS12,
		},
		MaxIdleConns:          4,
		MaxIdleConnsPerHost:   2,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
		ForceAttemptHTTP2:     true,
	}

	switch p.Scheme() {
	case "":
		dialer := &net.Dialer{Timeout: timeout}
		transport.DialContext = dialer.DialContext
	case SchemeHTTP, SchemeHTTPS:
		transport.Proxy = http.ProxyURL(p.URL())
	case SchemeSOCKS5, SchemeSOCKS5H:
		dialContext, err := socksDialContext(p, timeout)
		if err != nil {
			return nil, err
		}
		transport.DialContext = dialContext
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, p.Redacted())
	}

	var rt http.RoundTripper = transport
	if len(options.headers) > 0 {
		rt = &headerInjectingTransport{base: transport, headers: options.headers}
	}

	jar, _ := cookiejar.New(nil) //nolint:errcheck // cookiejar.New only fails with invalid options

	return &http.Client{
		Transport: rt,
		Timeout:   timeout,
		Jar:       jar,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}, nil
}

// socksDialContext returns a DialContext function that connects through the
// SOCKS5 proxy p.
func socksDialContext(p Proxy, timeout time.Duration) (func(ctx context.Context, network, addr string) (net.Conn, error), error) {
	u := p.URL()
	remoteDNS := u.Scheme == SchemeSOCKS5H
	// x/net/proxy registers only "socks5" and "socks5h"; both send names unresolved.
	dialer, err := xproxy.FromURL(u, &net.Dialer{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer for %q: %w", p.Redacted(), err)
	}

	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		if !remoteDNS {
			resolved, err := resolveLocally(ctx, addr)
			if err != nil {
				return nil, err
			}
			addr = resolved
		}
		if cd, ok := dialer.(xproxy.ContextDialer); ok {
			return cd.DialContext(ctx, network, addr)
		}
		return dialWithContext(ctx, dialer, network, addr)
	}, nil
}

// resolveLocally replaces the host of addr with its first resolved IP.
func resolveLocally(ctx context.Context, addr string) (string, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", err
	}
	if net.ParseIP(host) != nil {
		return addr, nil
	}
	ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", host, err)
	}
	if len(ips) == 0 {
		return "", fmt.Errorf("failed to resolve %s: no addresses", host)
	}
	return net.JoinHostPort(ips[0].IP.String(), port), nil
}

// dialWithContext wraps a dialer without context support.
// If the context is cancelled, the goroutine returns the error but the
// underlying connection attempt may continue briefly.
func dialWithContext(ctx context.Context, d xproxy.Dialer, network, addr string) (net.Conn, error) {
	type dialResult struct {
		conn net.Conn
		err  error
	}
	resultCh := make(chan dialResult, 1)

	go func() {
		conn, err := d.Dial(network, addr)
		resultCh <- dialResult{conn, err}
	}()

	select {
	case result := <-resultCh:
		return result.conn, result.err
	case <-ctx.Done():
		go func() {
			if r := <-resultCh; r.conn != nil {
				_ = r.conn.Close() //nolint:errcheck // abandoned connection
			}
		}()
		return nil, ctx.Err()
	}
}

// headerInjectingTransport wraps an http.RoundTripper to inject
// fixed headers into every request.
type headerInjectingTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

// RoundTrip implements http.RoundTripper.
func (t *headerInjectingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	for k, v := range t.headers {
		if clone.Header.Get(k) == "" {
			clone.Header.Set(k, v)
		}
	}
	return t.base.RoundTrip(clone)
}
