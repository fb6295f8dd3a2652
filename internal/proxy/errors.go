package proxy

import "errors"

// Proxy descriptor errors.
// These errors are returned while the pool is parsed, before any query is sent.
var (
	// ErrUnsupportedScheme is returned for a descriptor whose scheme is not
	// http, https, socks5 or socks5h.
	ErrUnsupportedScheme = errors.New("unsupported proxy scheme: must be http, https, socks5 or socks5h")

	// ErrMissingHost is returned for a descriptor without host or port.
	ErrMissingHost = errors.New("proxy descriptor must include host and port")

	// ErrEmptyPool is returned when a pool has no descriptor at all.
	ErrEmptyPool = errors.New("proxy pool is empty")

	// ErrTorNotRunning is returned when the embedded Tor daemon is used before Start.
	ErrTorNotRunning = errors.New("embedded Tor daemon is not running")
)
