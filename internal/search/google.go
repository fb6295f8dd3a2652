package search

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/corpix/uarand"

	"github.com/nao1215/gdorker/internal/proxy"
)

const (
	// DefaultGoogleURL is the Google search endpoint.
	DefaultGoogleURL = "https://www.google.com/search"

	// googlePageSize is the num= value; Google serves at most 100 results per page.
	googlePageSize = 100

	// defaultPagePause is the wait between result pages of one query.
	defaultPagePause = 2 * time.Second

	// maxBodySize bounds a result page read into memory.
	maxBodySize = 8 << 20
)

// captchaPhrases appear on Google's "unusual traffic" interstitial.
var captchaPhrases = []string{
	"unusual traffic",
	"automated queries",
	"not a robot",
	"detected unusual",
}

// Google scrapes the Google HTML search page.
//
// Design decision: Each query gets its own client with a random User-Agent,
// verbatim mode (tbs=li:1) so Google does not rewrite the dork, and
// filter=0 so near-duplicate results are not folded away.
type Google struct {
	baseURL   string
	language  string
	userAgent string
	timeout   time.Duration
	pagePause time.Duration
	newClient ClientFactory
	logger    *slog.Logger
}

// GoogleOption configures a Google backend.
type GoogleOption func(*Google)

// WithGoogleURL sets the search endpoint. Tests point it at an httptest server.
func WithGoogleURL(u string) GoogleOption {
	return func(g *Google) {
		g.baseURL = u
	}
}

// WithUserAgent fixes the User-Agent instead of drawing a random one per query.
func WithUserAgent(ua string) GoogleOption {
	return func(g *Google) {
		g.userAgent = ua
	}
}

// WithLanguage sets the hl= interface language.
func WithLanguage(lang string) GoogleOption {
	return func(g *Google) {
		g.language = lang
	}
}

// WithTimeout sets the HTTP timeout for each page request.
func WithTimeout(d time.Duration) GoogleOption {
	return func(g *Google) {
		g.timeout = d
	}
}

// WithPagePause sets the wait between result pages of one query.
func WithPagePause(d time.Duration) GoogleOption {
	return func(g *Google) {
		g.pagePause = d
	}
}

// WithClientFactory replaces proxy.NewHTTPClient.
func WithClientFactory(f ClientFactory) GoogleOption {
	return func(g *Google) {
		g.newClient = f
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) GoogleOption {
	return func(g *Google) {
		g.logger = logger
	}
}

// NewGoogle creates a Google backend.
func NewGoogle(opts ...GoogleOption) *Google {
	g := &Google{
		baseURL:   DefaultGoogleURL,
		language:  "en",
		timeout:   30 * time.Second,
		pagePause: defaultPagePause,
		newClient: proxy.NewHTTPClient,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Name implements Backend.
func (g *Google) Name() string {
	return "google"
}

// Search implements Backend. It requests result pages until MaxResults URLs
// are collected, a page brings nothing new, or a page is less than half
// full, which means Google ran out of results.
func (g *Google) Search(ctx context.Context, req Request) ([]string, error) {
	if req.MaxResults <= 0 {
		return []string{}, nil
	}

	ua := g.userAgent
	if ua == "" {
		ua = uarand.GetRandom()
	}
	client, err := g.newClient(req.Proxy, req.VerifyTLS, g.timeout, proxy.WithHeaders(map[string]string{
		"User-Agent":      ua,
		"Accept":          "text/html,application/xhtml+xml",
		"Accept-Language": g.language,
	}))
	if err != nil {
		return nil, err
	}
	g.logger.Debug("google search", "query", req.Query, "user_agent", ua, "proxy", req.Proxy.Redacted())

	urls := make([]string, 0, min(req.MaxResults, googlePageSize))
	seen := make(map[string]struct{})
	for start := 0; len(urls) < req.MaxResults; start += googlePageSize {
		if start > 0 {
			if err := sleepContext(ctx, g.pagePause); err != nil {
				return nil, err
			}
		}

		page, err := g.fetchPage(ctx, client, req.Query, start)
		if err != nil {
			return nil, err
		}

		var added int
		urls, added = appendUnique(urls, seen, page)
		if added == 0 || len(page) < googlePageSize/2 {
			break
		}
	}

	return urls, nil
}

// pageURL builds the URL of one result page.
func (g *Google) pageURL(query string, start int) string {
	params := url.Values{}
	params.Set("q", query)
	params.Set("num", strconv.Itoa(googlePageSize))
	params.Set("hl", g.language)
	params.Set("tbs", "li:1")
	params.Set("filter", "0")
	if start > 0 {
		params.Set("start", strconv.Itoa(start))
	}
	return g.baseURL + "?" + params.Encode()
}

// fetchPage requests one result page and extracts its result URLs.
func (g *Google) fetchPage(ctx context.Context, client *http.Client, query string, start int) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, g.pageURL(query, start), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck // body is fully read

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if strings.HasPrefix(resp.Request.URL.Path, "/sorry") {
		return nil, ErrBlocked
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	links, blocked, err := ParseGoogleResults(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to parse result page: %w", err)
	}
	if blocked {
		return nil, ErrBlocked
	}
	return links, nil
}

// ParseGoogleResults extracts the organic result URLs of a Google result page.
// blocked is true when the page is a captcha interstitial.
//
// Result anchors are either the /url?q=<target> redirect form or a direct
// absolute link. Links to Google's own properties (cache, translate, maps,
// account pages) are dropped, as are duplicates.
func ParseGoogleResults(r io.Reader) (links []string, blocked bool, err error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, false, err
	}

	if doc.Find("form#captcha-form, div.g-recaptcha, #recaptcha").Length() > 0 {
		return nil, true, nil
	}

	root := doc.Find("#search")
	if root.Length() == 0 {
		root = doc.Find("body")
	}

	seen := make(map[string]struct{})
	root.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		target, ok := resultTarget(href)
		if !ok {
			return
		}
		if _, dup := seen[target]; dup {
			return
		}
		seen[target] = struct{}{}
		links = append(links, target)
	})

	if len(links) == 0 {
		text := strings.ToLower(doc.Find("body").Text())
		for _, phrase := range captchaPhrases {
			if strings.Contains(text, phrase) {
				return nil, true, nil
			}
		}
	}

	return links, false, nil
}

// resultTarget returns the destination of a result anchor.
func resultTarget(href string) (string, bool) {
	href = strings.TrimSpace(href)
	if strings.HasPrefix(href, "/url?") {
		u, err := url.Parse(href)
		if err != nil {
			return "", false
		}
		q := u.Query()
		href = q.Get("q")
		if href == "" {
			href = q.Get("url")
		}
	}

	u, err := url.Parse(href)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", false
	}
	if isGoogleHost(u.Hostname()) {
		return "", false
	}
	return href, true
}

// isGoogleHost reports whether host belongs to Google itself.
func isGoogleHost(host string) bool {
	host = strings.ToLower(host)
	labels := strings.Split(host, ".")
	for i, label := range labels {
		// google.com, www.google.co.uk, maps.google.de; not googleblog.example
		if label == "google" && i >= len(labels)-3 && i < len(labels)-1 {
			return true
		}
	}
	for _, suffix := range []string{"googleusercontent.com", "gstatic.com", "googleadservices.com"} {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}
