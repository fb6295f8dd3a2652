// Package search implements the search backends queried by the dispatch loop.
//
// A Backend turns one query into an ordered list of result URLs. Two
// backends are provided:
//   - Google scrapes the HTML result page, 100 results per page, verbatim mode
//   - CSE uses the Google Custom Search JSON API with an API key and engine id
//
// Both build a fresh HTTP client per query through the proxy package, so the
// proxy chosen by the rotator is the only egress used for that query.
//
// Error classification matters to the caller: IsTLSVerificationError marks
// failures that will not go away by retrying, ErrRateLimited and ErrBlocked
// mark pushback from the search engine. Everything else is a per-query failure.
package search
