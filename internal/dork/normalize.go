package dork

import (
	"log/slog"
	"strings"
)

// MaxWords is the number of words Google evaluates in a query.
// Words past this limit are silently ignored by the search engine, so they
// are dropped client-side where the truncation can be logged.
const MaxWords = 32

// ScopedQuery is the query derived from one template.
type ScopedQuery struct {
	// Query is the text sent to the backend.
	Query string

	// Dropped holds the trailing words removed by truncation.
	Dropped []string
}

// Truncated reports whether words were removed from the query.
func (q ScopedQuery) Truncated() bool {
	return len(q.Dropped) > 0
}

// Normalize derives the backend query for template.
//
// A non-empty scope is prepended as "site:<scope> " so the scope operator is
// always the first word and survives truncation. A query with more than
// MaxWords words keeps its first MaxWords words; if the full query ended with
// a double quote the kept part ends with one too, which keeps a quoted phrase
// cut in the middle balanced.
//
// Words are separated by runs of whitespace and rejoined with single spaces
// only when truncation happens; a short query is returned byte for byte.
// Normalize(q.Query, "") == q holds for every result q with Dropped cleared.
func Normalize(template, scope string) ScopedQuery {
	query := template
	if scope != "" {
		query = "site:" + scope + " " + template
	}

	words := strings.Fields(query)
	if len(words) <= MaxWords {
		return ScopedQuery{Query: query}
	}

	kept := make([]string, MaxWords)
	copy(kept, words[:MaxWords])
	dropped := make([]string, len(words)-MaxWords)
	copy(dropped, words[MaxWords:])

	truncated := strings.Join(kept, " ")
	if strings.HasSuffix(query, `"`) && !strings.HasSuffix(truncated, `"`) {
		truncated += `"`
	}

	return ScopedQuery{Query: truncated, Dropped: dropped}
}

// Normalizer applies Normalize with a fixed scope and logs truncations.
type Normalizer struct {
	scope  string
	logger *slog.Logger
}

// NewNormalizer creates a Normalizer for the given domain scope.
// An empty scope leaves queries unscoped. A nil logger uses slog.Default().
func NewNormalizer(scope string, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{scope: scope, logger: logger}
}

// Scope returns the domain scope.
func (n *Normalizer) Scope() string {
	return n.scope
}

// Normalize derives the query for template. When words are dropped it logs
// them at WARN and the resulting query at INFO.
func (n *Normalizer) Normalize(template string) ScopedQuery {
	q := Normalize(template, n.scope)
	if q.Truncated() {
		n.logger.Warn("query exceeds the word limit, dropping trailing words",
			"template", template,
			"limit", MaxWords,
			"dropped", strings.Join(q.Dropped, " "),
		)
		n.logger.Info("query truncated", "template", template, "query", q.Query)
	}
	return q
}
