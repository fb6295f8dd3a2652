package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"

	"github.com/nao1215/gdorker/internal/proxy"
)

// Default configuration values.
// The delay bounds and result cap are chosen to stay under Google's
// abuse detection for long unattended runs.
const (
	// DefaultMaxResultsPerQuery caps the URLs kept for each query template.
	DefaultMaxResultsPerQuery = 100

	// DefaultMinDelaySeconds is the lower bound of the wait between two queries.
	DefaultMinDelaySeconds = 37.0

	// DefaultMaxDelaySeconds is the upper bound (exclusive) of the wait between two queries.
	// Google starts answering with HTTP 429 quickly when queries arrive faster
	// than roughly one per half minute from the same egress address.
	DefaultMaxDelaySeconds = 60.0

	// DefaultVerbosity maps to INFO. The scale is 0 (silent) to 5 (debug).
	DefaultVerbosity = 4

	// MaxVerbosity is the most verbose level (debug).
	MaxVerbosity = 5

	// DefaultTimeout is the HTTP timeout for a single backend request.
	DefaultTimeout = 30 * time.Second

	// DefaultBackend is the search backend used when none is configured.
	DefaultBackend = BackendGoogle

	// DefaultTorStartupTimeout is the maximum time to wait for the embedded
	// Tor daemon to bootstrap.
	DefaultTorStartupTimeout = proxy.DefaultTorStartupTimeout

	// AppName is the application name used for XDG directory paths.
	AppName = "gdorker"

	// AutoFileName is the flag value meaning "generate a file name".
	// It is used as cobra's NoOptDefVal for -o and -s.
	AutoFileName = "auto"
)

// Backend names recognized by Validate.
const (
	// BackendGoogle scrapes the Google HTML search page.
	BackendGoogle = "google"

	// BackendCSE uses the Google Custom Search JSON API.
	BackendCSE = "cse"
)

// Config holds all configuration options for a dork run.
// This struct is populated from CLI flags and the optional configuration
// file, and is passed through the application rather than kept in globals.
type Config struct {
	// TemplateFile is the path of the file containing one dork per line.
	TemplateFile string

	// DomainScope restricts every query to a single site when non-empty.
	DomainScope string

	// MaxResultsPerQuery caps the URLs kept per query. Zero keeps none.
	MaxResultsPerQuery int

	// Proxies is the ordered proxy pool. An empty string means "no proxy".
	// The pool is never empty: NewConfig installs a single direct entry.
	Proxies []string

	// MinDelaySeconds and MaxDelaySeconds bound the jitter between queries.
	MinDelaySeconds float64
	MaxDelaySeconds float64

	// DivideDelayByProxies divides both delay bounds by the pool size.
	// Each proxy then still sees roughly the undivided pace.
	DivideDelayByProxies bool

	// VerifyTLS enables certificate verification for backend connections.
	VerifyTLS bool

	// Verbosity is the log level on the 0..5 scale.
	Verbosity int

	// LogFile additionally writes logs to the given file when non-empty.
	LogFile string

	// URLFile is the incremental text output. Empty disables it.
	URLFile string

	// JSONFile is the structured result file written at completion. Empty disables it.
	JSONFile string

	// MarkdownFile is a markdown run summary written at completion. Empty disables it.
	MarkdownFile string

	// SaveHistory records every query in the history database.
	SaveHistory bool

	// DBDir is the directory of the history database.
	DBDir string

	// ResumeRunID skips templates already recorded by the given run. Zero disables it.
	ResumeRunID int64

	// Backend selects the search backend (BackendGoogle or BackendCSE).
	Backend string

	// CSEKey and CSEID are the Custom Search API key and engine id.
	CSEKey string
	CSEID  string

	// Timeout is the HTTP timeout for one backend request.
	Timeout time.Duration

	// UserAgent overrides the random per-query User-Agent when non-empty.
	UserAgent string

	// DenyPatterns are extra false-positive URL patterns (case-insensitive regexps).
	DenyPatterns []string

	// UseEmbeddedTor starts an embedded Tor daemon and rotates through it.
	UseEmbeddedTor bool

	// TorStartupTimeout bounds the embedded Tor bootstrap.
	TorStartupTimeout time.Duration

	// ConfigFilePath is the configuration file given on the command line.
	ConfigFilePath string
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		MaxResultsPerQuery: DefaultMaxResultsPerQuery,
		Proxies:            []string{""},
		MinDelaySeconds:    DefaultMinDelaySeconds,
		MaxDelaySeconds:    DefaultMaxDelaySeconds,
		VerifyTLS:          true,
		Verbosity:          DefaultVerbosity,
		SaveHistory:        true,
		DBDir:              XDGDataDir(),
		Backend:            DefaultBackend,
		Timeout:            DefaultTimeout,
		TorStartupTimeout:  DefaultTorStartupTimeout,
	}
}

// XDGDataDir returns the XDG data directory for gdorker.
// On Linux: ~/.local/share/gdorker
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for gdorker.
// On Linux: ~/.config/gdorker
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// ParseProxyList splits a comma-separated proxy list.
// Surrounding whitespace and commas are ignored, so "" yields the single
// direct entry and "a,b," yields [a b].
func ParseProxyList(s string) []string {
	s = strings.Trim(strings.TrimSpace(s), ",")
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}

// ResolveOutputPaths replaces AutoFileName in URLFile and JSONFile with
// gdorker_results_<timestamp>.txt / .json.
func (c *Config) ResolveOutputPaths(now time.Time) {
	base := "gdorker_results_" + now.Format("20060102_150405")
	if c.URLFile == AutoFileName {
		c.URLFile = base + ".txt"
	}
	if c.JSONFile == AutoFileName {
		c.JSONFile = base + ".json"
	}
}

// Validate checks if the configuration is valid.
// It returns the first problem found as one of the package sentinel errors,
// so the run never starts with a configuration that would fail mid-way.
func (c *Config) Validate() error {
	if c.TemplateFile == "" {
		return ErrNoTemplateFile
	}
	info, err := os.Stat(c.TemplateFile)
	if err != nil || info.IsDir() {
		return ErrTemplateFileNotFound
	}

	if c.MinDelaySeconds < 0 {
		return ErrInvalidMinDelay
	}
	if c.MaxDelaySeconds < 0 {
		return ErrInvalidMaxDelay
	}
	if c.MaxDelaySeconds <= c.MinDelaySeconds {
		return ErrInvalidDelayRange
	}

	if c.MaxResultsPerQuery < 0 {
		return ErrInvalidMaxResults
	}

	if c.Verbosity < 0 || c.Verbosity > MaxVerbosity {
		return ErrInvalidVerbosity
	}

	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}

	switch c.Backend {
	case BackendGoogle:
	case BackendCSE:
		if c.CSEKey == "" || c.CSEID == "" {
			return ErrMissingCSECredentials
		}
	default:
		return ErrUnknownBackend
	}

	if len(c.Proxies) == 0 {
		return ErrEmptyProxyPool
	}

	if strings.ContainsAny(c.DomainScope, " \t") {
		return ErrInvalidDomainScope
	}

	return nil
}
