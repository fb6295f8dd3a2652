// Package filter removes known false positives from search results.
//
// Sites that merely document a dork (the GHDB itself, CERT advisories, the
// GHDB social accounts) match almost every query from the catalog. Their
// URLs say nothing about the scanned target and are dropped before results
// are stored.
package filter

import (
	"fmt"
	"log/slog"
	"regexp"
)

// DefaultPatterns are the deny rules every Filter starts with.
// Patterns are regular expressions matched case-insensitively anywhere in the URL.
var DefaultPatterns = []string{
	`https://www\.kb\.cert\.org`,
	`https://www\.exploit-db\.com/`,
	`https://twitter\.com/googlehacking/`,
	`https://x\.com/googlehacking/`,
}

// rule is one compiled deny pattern.
type rule struct {
	pattern string
	re      *regexp.Regexp
}

// Filter drops URLs matching any deny rule. It is immutable and safe for
// concurrent use.
type Filter struct {
	rules  []rule
	logger *slog.Logger
}

// New creates a Filter from DefaultPatterns plus extra patterns.
// A nil logger uses slog.Default().
func New(extra []string, logger *slog.Logger) (*Filter, error) {
	if logger == nil {
		logger = slog.Default()
	}

	patterns := make([]string, 0, len(DefaultPatterns)+len(extra))
	patterns = append(patterns, DefaultPatterns...)
	patterns = append(patterns, extra...)

	f := &Filter{
		rules:  make([]rule, 0, len(patterns)),
		logger: logger,
	}
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("invalid deny pattern %q: %w", p, err)
		}
		f.rules = append(f.rules, rule{pattern: p, re: re})
	}
	return f, nil
}

// Patterns returns the deny patterns in evaluation order.
func (f *Filter) Patterns() []string {
	out := make([]string, len(f.rules))
	for i, r := range f.rules {
		out[i] = r.pattern
	}
	return out
}

// Apply returns the URLs that match no deny rule, in their original order.
// The input slice is not modified and duplicates are kept. Every removal is
// logged at WARN with the rule that matched.
func (f *Filter) Apply(urls []string) []string {
	kept := make([]string, 0, len(urls))
	for _, u := range urls {
		if pattern, denied := f.match(u); denied {
			f.logger.Warn("removing false positive URL", "rule", pattern, "url", u)
			continue
		}
		kept = append(kept, u)
	}
	return kept
}

// match returns the first rule that matches u.
func (f *Filter) match(u string) (string, bool) {
	for _, r := range f.rules {
		if r.re.MatchString(u) {
			return r.pattern, true
		}
	}
	return "", false
}
