// Package dispatch drives a batch of query templates through a search backend.
//
// The Loop is strictly sequential: for each template it normalizes the query,
// takes the next proxy from the rotation, runs the backend, filters the
// results and folds the outcome into the RunReport, then waits a jittered
// delay before the next template.
//
// Design decision: Queries are never dispatched in parallel. Pacing, not
// throughput, is what keeps a scraping run below the search engine's abuse
// detection, and concurrent requests would defeat the delay pool.
//
// Each iteration produces an explicit Outcome. Per-query failures stay inside
// the loop; only a TLS verification failure (FatalError) and cancellation
// (ErrAborted) end a run early.
package dispatch
