package ghdb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/nao1215/gdorker/internal/proxy"
)

const (
	// DefaultBaseURL is the prefix of GHDB detail pages; the number follows.
	DefaultBaseURL = "https://www.exploit-db.com/ghdb/"

	// DefaultWorkers is the number of pages fetched concurrently.
	DefaultWorkers = 3

	// DefaultRequestsPerSecond is the request rate shared by all workers.
	DefaultRequestsPerSecond = 2.0

	// DefaultTimeout is the HTTP timeout per page; exploit-db.com is slow at times.
	DefaultTimeout = 60 * time.Second

	// DefaultUserAgent is sent with every request.
	DefaultUserAgent = "Googlebot/2.1 (+http://www.google.com/bot.html)"

	// MinNumber is the lowest GHDB entry number.
	MinNumber = 5

	// maxPageSize bounds a detail page read into memory.
	maxPageSize = 4 << 20
)

var (
	// ErrInvalidRange is returned for a number range that is empty or below MinNumber.
	ErrInvalidRange = errors.New("invalid GHDB number range")

	// ErrNotFound is returned when a detail page does not exist.
	ErrNotFound = errors.New("GHDB entry not found")
)

// Dork is one collected GHDB entry.
type Dork struct {
	Number int
	Query  string
}

// Result is the outcome of a collection.
type Result struct {
	// Dorks are the collected entries ordered by number.
	Dorks []Dork

	// Failed lists the numbers whose page could not be fetched or parsed.
	Failed []int
}

// Queries returns the dork texts in order.
func (r *Result) Queries() []string {
	out := make([]string, len(r.Dorks))
	for i, d := range r.Dorks {
		out[i] = d.Query
	}
	return out
}

// Collector fetches GHDB detail pages.
type Collector struct {
	baseURL   string
	userAgent string
	workers   int
	limiter   *rate.Limiter
	client    *http.Client
	proxy     proxy.Proxy
	timeout   time.Duration
	logger    *slog.Logger
}

// Option configures a Collector.
type Option func(*Collector)

// WithBaseURL sets the detail page prefix. Tests point it at an httptest server.
func WithBaseURL(u string) Option {
	return func(c *Collector) {
		if !strings.HasSuffix(u, "/") {
			u += "/"
		}
		c.baseURL = u
	}
}

// WithWorkers sets the number of concurrent fetches. Values below 1 are ignored.
func WithWorkers(n int) Option {
	return func(c *Collector) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithRate sets the request rate shared by all workers. rps <= 0 disables pacing.
func WithRate(rps float64) Option {
	return func(c *Collector) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithHTTPClient sets the HTTP client. It takes precedence over WithProxy.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Collector) {
		c.client = client
	}
}

// WithProxy sends all requests through p.
func WithProxy(p proxy.Proxy) Option {
	return func(c *Collector) {
		c.proxy = p
	}
}

// WithTimeout sets the HTTP timeout per page.
func WithTimeout(d time.Duration) Option {
	return func(c *Collector) {
		c.timeout = d
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Collector) {
		c.userAgent = ua
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Collector) {
		c.logger = logger
	}
}

// NewCollector creates a Collector.
func NewCollector(opts ...Option) (*Collector, error) {
	c := &Collector{
		baseURL:   DefaultBaseURL,
		userAgent: DefaultUserAgent,
		workers:   DefaultWorkers,
		limiter:   rate.NewLimiter(rate.Limit(DefaultRequestsPerSecond), 1),
		timeout:   DefaultTimeout,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.client == nil {
		client, err := proxy.NewHTTPClient(c.proxy, true, c.timeout)
		if err != nil {
			return nil, err
		}
		c.client = client
	}

	return c, nil
}

// Collect fetches the entries from..to (inclusive).
//
// Pages that fail are listed in Result.Failed and do not stop the others.
// The returned error is non-nil only when ctx is cancelled; the dorks
// collected until then are still returned.
func (c *Collector) Collect(ctx context.Context, from, to int) (*Result, error) {
	if from < MinNumber || to < from {
		return nil, fmt.Errorf("%w: %d-%d (minimum is %d)", ErrInvalidRange, from, to, MinNumber)
	}

	c.logger.Info("collecting GHDB dorks",
		"from", from,
		"to", to,
		"workers", c.workers,
	)
	startTime := time.Now()

	// Pre-allocated so each worker writes only its own slot.
	found := make([]string, to-from+1)
	var (
		mu     sync.Mutex
		failed []int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)

	for n := from; n <= to; n++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := c.limiter.Wait(gctx); err != nil {
				return err
			}

			dork, err := c.fetch(gctx, n)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				c.logger.Warn("failed to retrieve dork", "number", n, "error", err)
				mu.Lock()
				failed = append(failed, n)
				mu.Unlock()
				return nil
			}

			c.logger.Info("retrieved dork", "number", n, "dork", dork)
			found[n-from] = dork
			return nil
		})
	}

	err := g.Wait()

	result := &Result{Dorks: make([]Dork, 0, len(found))}
	for i, q := range found {
		if q != "" {
			result.Dorks = append(result.Dorks, Dork{Number: from + i, Query: q})
		}
	}
	slices.Sort(failed)
	result.Failed = failed

	c.logger.Info("GHDB collection complete",
		"retrieved", len(result.Dorks),
		"failed", len(result.Failed),
		"elapsed", time.Since(startTime),
	)

	if err == nil {
		err = ctx.Err()
	}
	return result, err
}

// fetch retrieves and parses one detail page.
func (c *Collector) fetch(ctx context.Context, number int) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+strconv.Itoa(number), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close() //nolint:errcheck // body is fully read

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("unexpected HTTP status %d", resp.StatusCode)
	}

	return ParseDorkPage(io.LimitReader(resp.Body, maxPageSize))
}
