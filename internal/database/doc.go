// Package database provides SQLite-based run history for gdorker.
//
// The RunDB stores:
//   - One row per run with its start and completion time
//   - One row per dispatched template with its query, proxy and URLs
//
// Design decision: We use SQLite (via modernc.org/sqlite) because the
// history is a single local file and the CGO-free driver keeps
// cross-compilation simple. Runs are compared and resumed from it.
package database
