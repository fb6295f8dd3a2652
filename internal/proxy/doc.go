// Package proxy provides the proxy pool used to spread backend queries over
// several egress addresses.
//
// A pool is an ordered list of proxy descriptors. The empty descriptor means
// a direct connection. Supported schemes are http, https, socks5 (local name
// resolution) and socks5h (name resolution by the proxy). Rotator walks the
// pool round robin, and NewHTTPClient builds the HTTP client for one proxy.
//
// EmbeddedTor starts a private Tor daemon through tornago whose SOCKS port
// can be appended to the pool as one more socks5h proxy.
package proxy
