package search

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net/http"
	"time"

	"github.com/nao1215/gdorker/internal/proxy"
)

// Backend errors.
var (
	// ErrRateLimited is returned when the search engine answers HTTP 429 or
	// reports an exhausted quota.
	ErrRateLimited = errors.New("search engine rate limit reached")

	// ErrBlocked is returned when the search engine serves a captcha or its
	// "unusual traffic" page instead of results.
	ErrBlocked = errors.New("search engine blocked the request (captcha)")

	// ErrUnexpectedStatus is returned for any other non-success HTTP status.
	ErrUnexpectedStatus = errors.New("unexpected HTTP status from search engine")
)

// Request is one backend invocation.
type Request struct {
	// Query is the normalized query text.
	Query string

	// Proxy is the egress for this request. The zero value connects directly.
	Proxy proxy.Proxy

	// MaxResults is the number of URLs wanted. The backend may return a few
	// more when the last page overshoots; the caller truncates.
	MaxResults int

	// VerifyTLS enables certificate verification.
	VerifyTLS bool
}

// Backend runs queries against a search engine.
type Backend interface {
	// Name identifies the backend in logs and history.
	Name() string

	// Search returns the result URLs for req in engine order, without
	// duplicates. A query without results returns an empty slice and no error.
	Search(ctx context.Context, req Request) ([]string, error)
}

// ClientFactory builds the HTTP client for one request.
// proxy.NewHTTPClient is the production implementation; tests substitute
// their own to point a backend at an httptest server.
type ClientFactory func(p proxy.Proxy, verifyTLS bool, timeout time.Duration, opts ...proxy.ClientOption) (*http.Client, error)

// IsTLSVerificationError reports whether err is caused by a failed
// certificate verification, as opposed to a network or protocol error.
func IsTLSVerificationError(err error) bool {
	if err == nil {
		return false
	}

	var verifyErr *tls.CertificateVerificationError
	var unknownAuthority x509.UnknownAuthorityError
	var hostnameErr x509.HostnameError
	var invalidErr x509.CertificateInvalidError
	var systemRootsErr x509.SystemRootsError

	return errors.As(err, &verifyErr) ||
		errors.As(err, &unknownAuthority) ||
		errors.As(err, &hostnameErr) ||
		errors.As(err, &invalidErr) ||
		errors.As(err, &systemRootsErr)
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// appendUnique appends the URLs of page that are not in seen yet and
// returns how many were new.
func appendUnique(urls []string, seen map[string]struct{}, page []string) ([]string, int) {
	added := 0
	for _, u := range page {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		urls = append(urls, u)
		added++
	}
	return urls, added
}
