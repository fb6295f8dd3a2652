package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/nao1215/gdorker/internal/proxy"
)

const (
	// DefaultCSEURL is the Custom Search JSON API endpoint.
	DefaultCSEURL = "https://www.googleapis.com/customsearch/v1"

	// csePageSize is the largest num= the API accepts.
	csePageSize = 10

	// cseMaxResults is the API's hard limit: start+num may not exceed 101.
	cseMaxResults = 100
)

// ErrCSEAPI is returned when the API answers with an error object.
var ErrCSEAPI = errors.New("custom search API error")

// cseResponse is the subset of the API response that is used.
type cseResponse struct {
	Items []struct {
		Link string `json:"link"`
	} `json:"items"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
	} `json:"error"`
}

// CSE queries the Google Custom Search JSON API.
// Results are capped at 100 per query by the API itself.
type CSE struct {
	key       string
	engineID  string
	endpoint  string
	timeout   time.Duration
	newClient ClientFactory
	logger    *slog.Logger
}

// CSEOption configures a CSE backend.
type CSEOption func(*CSE)

// WithCSEEndpoint sets the API endpoint. Tests point it at an httptest server.
func WithCSEEndpoint(u string) CSEOption {
	return func(c *CSE) {
		c.endpoint = u
	}
}

// WithCSETimeout sets the HTTP timeout for each API request.
func WithCSETimeout(d time.Duration) CSEOption {
	return func(c *CSE) {
		c.timeout = d
	}
}

// WithCSEClientFactory replaces proxy.NewHTTPClient.
func WithCSEClientFactory(f ClientFactory) CSEOption {
	return func(c *CSE) {
		c.newClient = f
	}
}

// WithCSELogger sets the logger.
func WithCSELogger(logger *slog.Logger) CSEOption {
	return func(c *CSE) {
		c.logger = logger
	}
}

// NewCSE creates a Custom Search backend for the given API key and engine id.
func NewCSE(key, engineID string, opts ...CSEOption) *CSE {
	c := &CSE{
		key:       key,
		engineID:  engineID,
		endpoint:  DefaultCSEURL,
		timeout:   30 * time.Second,
		newClient: proxy.NewHTTPClient,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements Backend.
func (c *CSE) Name() string {
	return "cse"
}

// Search implements Backend. Pages of 10 are requested with a 1-based start
// index until MaxResults, the API limit, or the end of the results is reached.
func (c *CSE) Search(ctx context.Context, req Request) ([]string, error) {
	limit := min(req.MaxResults, cseMaxResults)
	if limit <= 0 {
		return []string{}, nil
	}

	client, err := c.newClient(req.Proxy, req.VerifyTLS, c.timeout)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("custom search", "query", req.Query, "proxy", req.Proxy.Redacted())

	urls := make([]string, 0, limit)
	seen := make(map[string]struct{})
	for start := 1; len(urls) < limit && start <= cseMaxResults; start += csePageSize {
		num := min(csePageSize, cseMaxResults-start+1)

		page, err := c.fetchPage(ctx, client, req.Query, start, num)
		if err != nil {
			return nil, err
		}

		urls, _ = appendUnique(urls, seen, page)
		if len(page) < num {
			break
		}
	}

	return urls, nil
}

// fetchPage requests one API page.
func (c *CSE) fetchPage(ctx context.Context, client *http.Client, query string, start, num int) ([]string, error) {
	params := url.Values{}
	params.Set("key", c.key)
	params.Set("cx", c.engineID)
	params.Set("q", query)
	params.Set("num", strconv.Itoa(num))
	params.Set("start", strconv.Itoa(start))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck // body is fully read

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read API response: %w", err)
	}

	var cr cseResponse
	decodeErr := json.Unmarshal(body, &cr)

	if resp.StatusCode == http.StatusTooManyRequests || (cr.Error != nil && isQuotaError(cr)) {
		return nil, ErrRateLimited
	}
	if cr.Error != nil {
		return nil, fmt.Errorf("%w: %d %s", ErrCSEAPI, cr.Error.Code, cr.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("failed to decode API response: %w", decodeErr)
	}

	links := make([]string, 0, len(cr.Items))
	for _, item := range cr.Items {
		if item.Link != "" {
			links = append(links, item.Link)
		}
	}
	return links, nil
}

// isQuotaError reports whether the API error is a quota or rate limit.
func isQuotaError(cr cseResponse) bool {
	if cr.Error.Code == http.StatusTooManyRequests {
		return true
	}
	for _, e := range cr.Error.Errors {
		switch e.Reason {
		case "rateLimitExceeded", "dailyLimitExceeded", "userRateLimitExceeded", "quotaExceeded":
			return true
		}
	}
	return false
}
