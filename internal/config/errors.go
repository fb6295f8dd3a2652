package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() and are detected before
// the first query is dispatched.
//
// Design decision: We use package-level sentinel errors rather than
// creating new error instances in Validate(). This allows callers to use
// errors.Is() for programmatic error handling while still providing
// human-readable messages.
var (
	// ErrNoTemplateFile is returned when no dork file was given.
	ErrNoTemplateFile = errors.New("no dork file specified: use -g <file>")

	// ErrTemplateFileNotFound is returned when the dork file does not exist or is a directory.
	ErrTemplateFileNotFound = errors.New("dork file not found: specify a valid file containing dorks with -g")

	// ErrInvalidMinDelay is returned when the minimum delay is negative.
	ErrInvalidMinDelay = errors.New("invalid minimum delay: must be non-negative")

	// ErrInvalidMaxDelay is returned when the maximum delay is negative.
	ErrInvalidMaxDelay = errors.New("invalid maximum delay: must be non-negative")

	// ErrInvalidDelayRange is returned when the maximum delay is not greater than the minimum.
	// The jitter pool is sampled from [min, max), so an empty interval has nothing to draw.
	ErrInvalidDelayRange = errors.New("invalid delay range: maximum delay must be greater than minimum delay")

	// ErrInvalidMaxResults is returned when the per-query result cap is negative.
	ErrInvalidMaxResults = errors.New("invalid max results per query: must be non-negative")

	// ErrInvalidVerbosity is returned when verbosity is outside 0..5.
	ErrInvalidVerbosity = errors.New("invalid verbosity: must be between 0 and 5")

	// ErrInvalidTimeout is returned when the request timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrUnknownBackend is returned for an unsupported backend name.
	ErrUnknownBackend = errors.New("unknown backend: must be \"google\" or \"cse\"")

	// ErrMissingCSECredentials is returned when the cse backend lacks a key or engine id.
	ErrMissingCSECredentials = errors.New("cse backend requires both an API key and a search engine id")

	// ErrEmptyProxyPool is returned when the proxy pool has no entry at all.
	ErrEmptyProxyPool = errors.New("proxy pool must contain at least one entry")

	// ErrInvalidDomainScope is returned when the domain scope contains whitespace.
	// A scope with spaces would split the site: operator into unrelated words.
	ErrInvalidDomainScope = errors.New("invalid domain scope: must not contain whitespace")
)
