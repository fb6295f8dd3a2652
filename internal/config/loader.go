package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the default configuration file name.
const DefaultConfigFile = ".gdorker"

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// File represents the structure of the .gdorker configuration file.
type File struct {
	// Defaults holds option values used when the matching flag is not set.
	Defaults Defaults `yaml:"defaults,omitempty"`

	// DenyPatterns are extra false-positive URL patterns added to the built-in list.
	DenyPatterns []string `yaml:"denyPatterns,omitempty"`

	// CSE holds the Custom Search API credentials.
	CSE CSECredentials `yaml:"cse,omitempty"`
}

// Defaults mirrors the run options that can be set from the configuration file.
// Pointer fields distinguish "not set" from the zero value.
type Defaults struct {
	Domain               string   `yaml:"domain,omitempty"`
	MaxResults           *int     `yaml:"maxResults,omitempty"`
	Proxies              []string `yaml:"proxies,omitempty"`
	MinDelay             *float64 `yaml:"minDelay,omitempty"`
	MaxDelay             *float64 `yaml:"maxDelay,omitempty"`
	DivideDelayByProxies *bool    `yaml:"divideDelayByProxies,omitempty"`
	VerifyTLS            *bool    `yaml:"verifyTLS,omitempty"`
	Verbosity            *int     `yaml:"verbosity,omitempty"`
	Backend              string   `yaml:"backend,omitempty"`
	UserAgent            string   `yaml:"userAgent,omitempty"`
	Timeout              string   `yaml:"timeout,omitempty"`
	SaveHistory          *bool    `yaml:"saveHistory,omitempty"`
}

// CSECredentials are the Google Custom Search API credentials.
type CSECredentials struct {
	Key string `yaml:"key,omitempty"`
	ID  string `yaml:"id,omitempty"`
}

// LoadConfigFile loads the configuration file at path.
// If the file does not exist, it returns ErrConfigNotFound.
// Callers should handle this error appropriately based on whether
// the config file path was explicitly specified by the user.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var cf File
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, err
	}

	return &cf, nil
}

// FindConfigFile searches for the configuration file in the following order:
// 1. If configPath is specified, use it directly
// 2. Look for .gdorker in the current directory
// 3. Look for .gdorker in the user's home directory
// 4. Look for config.yaml in the XDG config directory
//
// Returns the path to the configuration file if found, or empty string if not found.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	candidates := make([]string, 0, 3)
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, DefaultConfigFile))
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, DefaultConfigFile))
	}
	candidates = append(candidates, filepath.Join(XDGConfigDir(), "config.yaml"))

	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}

	return ""
}

// Option names accepted by ApplyFile's isSet callback.
// They match the long flag names of "gdorker run".
const (
	OptionDomain      = "domain"
	OptionMaxResults  = "max-results"
	OptionProxies     = "proxies"
	OptionMinDelay    = "min-delay"
	OptionMaxDelay    = "max-delay"
	OptionDivideDelay = "divide-delay"
	OptionInsecure    = "insecure"
	OptionVerbosity   = "verbosity"
	OptionBackend     = "backend"
	OptionUserAgent   = "user-agent"
	OptionTimeout     = "timeout"
	OptionNoHistory   = "no-history"
	OptionCSEKey      = "cse-key"
	OptionCSEID       = "cse-id"
)

// ApplyFile copies the values of the configuration file into c.
// isSet reports whether an option was given explicitly on the command line;
// explicit options always win over the file. A nil isSet treats every
// option as unset.
func (c *Config) ApplyFile(f *File, isSet func(option string) bool) error {
	if f == nil {
		return nil
	}
	if isSet == nil {
		isSet = func(string) bool { return false }
	}

	d := f.Defaults
	if d.Domain != "" && !isSet(OptionDomain) {
		c.DomainScope = d.Domain
	}
	if d.MaxResults != nil && !isSet(OptionMaxResults) {
		c.MaxResultsPerQuery = *d.MaxResults
	}
	if len(d.Proxies) > 0 && !isSet(OptionProxies) {
		c.Proxies = append([]string(nil), d.Proxies...)
	}
	if d.MinDelay != nil && !isSet(OptionMinDelay) {
		c.MinDelaySeconds = *d.MinDelay
	}
	if d.MaxDelay != nil && !isSet(OptionMaxDelay) {
		c.MaxDelaySeconds = *d.MaxDelay
	}
	if d.DivideDelayByProxies != nil && !isSet(OptionDivideDelay) {
		c.DivideDelayByProxies = *d.DivideDelayByProxies
	}
	if d.VerifyTLS != nil && !isSet(OptionInsecure) {
		c.VerifyTLS = *d.VerifyTLS
	}
	if d.Verbosity != nil && !isSet(OptionVerbosity) {
		c.Verbosity = *d.Verbosity
	}
	if d.Backend != "" && !isSet(OptionBackend) {
		c.Backend = d.Backend
	}
	if d.UserAgent != "" && !isSet(OptionUserAgent) {
		c.UserAgent = d.UserAgent
	}
	if d.Timeout != "" && !isSet(OptionTimeout) {
		timeout, err := time.ParseDuration(d.Timeout)
		if err != nil {
			return fmt.Errorf("invalid timeout %q in configuration file: %w", d.Timeout, err)
		}
		c.Timeout = timeout
	}
	if d.SaveHistory != nil && !isSet(OptionNoHistory) {
		c.SaveHistory = *d.SaveHistory
	}

	if f.CSE.Key != "" && !isSet(OptionCSEKey) {
		c.CSEKey = f.CSE.Key
	}
	if f.CSE.ID != "" && !isSet(OptionCSEID) {
		c.CSEID = f.CSE.ID
	}

	c.DenyPatterns = append(c.DenyPatterns, f.DenyPatterns...)
	return nil
}
