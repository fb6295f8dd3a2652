// Package report renders a RunReport in different output formats.
//
// This package contains writers for:
//   - JSONWriter: the structured result file (dorks in dispatch order)
//   - MarkdownWriter: a shareable summary with a results table and chart
//   - SimpleWriter: a short human-readable summary for the terminal
//
// Design decision: Report data lives in the model package and rendering
// lives here, so a new output format never touches the data structures.
// Writers implement the Writer interface.
package report
