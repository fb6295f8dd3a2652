// Package store persists the results of a run.
//
// Sinks plug into the dispatch loop:
//   - TextFile appends each query's URLs to a text file as it finishes
//   - ReportFile writes the structured result file (NewJSONFile) or a
//     Markdown summary (NewMarkdownFile) at the end of a run
//   - History records every query and the run itself in the SQLite history
//
// Design decision: Incremental sinks open, append and close the file once
// per query. A crash in the middle of a run then leaves a truncated but
// valid file. End-of-run sinks write to a temporary file and rename it, so
// readers never see a half-written result.
package store
