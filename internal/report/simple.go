package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/gdorker/internal/model"
)

// simpleTimeFormat is the timestamp layout of the terminal summary.
const simpleTimeFormat = "2006-01-02 15:04:05 MST"

// SimpleWriter outputs a human-readable run summary.
//
// Design decision: Plain ASCII without colors, so the summary is the same
// in a terminal, a pipe and a log file.
type SimpleWriter struct {
	baseWriter

	// showEmpty lists templates that produced no URLs.
	showEmpty bool

	// verbose lists every URL under its template.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty lists templates without results too.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// WithVerbose lists the URLs of each template.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the report summary.
func (w *SimpleWriter) Write(report *model.RunReport) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, report)
	w.writeTemplates(&sb, report)
	w.writeFooter(&sb)

	return io.WriteString(w.output, sb.String())
}

// writeHeader writes the run information and totals.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *model.RunReport) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                         GDORKER SUMMARY\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Started:        %s\n", report.StartedAt.Format(simpleTimeFormat))
	if report.IsComplete() {
		fmt.Fprintf(sb, "Completed:      %s\n", report.CompletedAt.Format(simpleTimeFormat))
		fmt.Fprintf(sb, "Duration:       %s\n", report.CompletedAt.Sub(report.StartedAt).Round(time.Second))
		sb.WriteString("Status:         Complete\n")
	} else {
		sb.WriteString("Status:         INTERRUPTED (partial results)\n")
	}
	fmt.Fprintf(sb, "Queries:        %d\n", report.Len())
	fmt.Fprintf(sb, "With results:   %d\n", report.TemplatesWithResults())
	fmt.Fprintf(sb, "Total URLs:     %d\n", report.TotalURLs)
	sb.WriteString("\n")
}

// writeTemplates writes one line per template, and its URLs in verbose mode.
func (w *SimpleWriter) writeTemplates(sb *strings.Builder, report *model.RunReport) {
	if report.TemplatesWithResults() == 0 && !w.showEmpty {
		return
	}

	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("RESULTS\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	for _, template := range report.Templates() {
		entry, _ := report.Entry(template)
		if entry.IsEmpty() {
			if w.showEmpty {
				fmt.Fprintf(sb, "  [ ] %s\n", template)
			}
			continue
		}

		fmt.Fprintf(sb, "  [+] %s (%d)\n", template, entry.URLCount)
		if w.verbose {
			for _, u := range entry.URLs {
				fmt.Fprintf(sb, "      %s\n", u)
			}
		}
	}
	sb.WriteString("\n")
}

// writeFooter writes the report footer.
func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}
