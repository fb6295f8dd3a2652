package report

import (
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/gdorker/internal/model"
)

// markdownTimeFormat is the timestamp layout of the summary table.
const markdownTimeFormat = "2006-01-02 15:04:05 MST"

// MarkdownWriter outputs a run summary in Markdown format.
//
// Design decision: We use the nao1215/markdown library for fluent markdown
// generation, including GitHub alerts and the mermaid pie chart that shows
// how many queries produced results.
type MarkdownWriter struct {
	baseWriter

	// domain is the site: scope of the run, shown in the header.
	domain string

	// maxURLs bounds the URLs listed per template; 0 lists all of them.
	maxURLs int
}

// MarkdownWriterOption configures a MarkdownWriter.
type MarkdownWriterOption func(*MarkdownWriter)

// WithDomain shows the domain scope of the run in the header.
func WithDomain(domain string) MarkdownWriterOption {
	return func(w *MarkdownWriter) {
		w.domain = domain
	}
}

// WithMaxURLs limits how many URLs are listed per template.
func WithMaxURLs(n int) MarkdownWriterOption {
	return func(w *MarkdownWriter) {
		w.maxURLs = n
	}
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer, opts ...MarkdownWriterOption) *MarkdownWriter {
	w := &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the report in Markdown format.
func (w *MarkdownWriter) Write(report *model.RunReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report)
	w.writeSummary(md, report)
	w.writeResults(md, report)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the title and the run information table.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.RunReport) {
	md.H1("gdorker Report")
	md.PlainText("")

	domain := w.domain
	if domain == "" {
		domain = "-"
	} else {
		domain = "`" + domain + "`"
	}

	completed := "-"
	if report.IsComplete() {
		completed = report.CompletedAt.Format(markdownTimeFormat)
	}

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Domain", domain},
			{"Started", report.StartedAt.Format(markdownTimeFormat)},
			{"Completed", completed},
			{"Status", statusText(report)},
		},
	})
	md.PlainText("")
}

func statusText(report *model.RunReport) string {
	if report.IsComplete() {
		return "✅ Complete"
	}
	return "⚠️ Interrupted (partial results)"
}

// writeSummary writes the counts, the pie chart and an alert.
func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, report *model.RunReport) {
	md.H2("Summary")
	md.PlainText("")

	withResults := report.TemplatesWithResults()
	withoutResults := report.Len() - withResults

	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Count"},
		Rows: [][]string{
			{"Queries", strconv.Itoa(report.Len())},
			{"Queries with results", strconv.Itoa(withResults)},
			{"Queries without results", strconv.Itoa(withoutResults)},
			{"**Total URLs**", "**" + strconv.Itoa(report.TotalURLs) + "**"},
		},
	})
	md.PlainText("")

	if report.Len() > 0 {
		chart := piechart.NewPieChart(
			io.Discard,
			piechart.WithTitle("Queries With Results"),
			piechart.WithShowData(true),
		)
		if withResults > 0 {
			chart.LabelAndIntValue("With results", uint64(withResults))
		}
		if withoutResults > 0 {
			chart.LabelAndIntValue("Without results", uint64(withoutResults))
		}

		md.PlainText("")
		md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
		md.PlainText("")
	}

	switch {
	case !report.IsComplete():
		md.Warningf("The run was interrupted after %d queries. Resume it with --resume.", report.Len())
	case report.TotalURLs > 0:
		md.Importantf("%d URL(s) matched %d of %d queries. Review them before they are indexed elsewhere.",
			report.TotalURLs, withResults, report.Len())
	default:
		md.Tip("No query returned results.")
	}
	md.PlainText("")
}

// writeResults writes one section per template that produced URLs.
func (w *MarkdownWriter) writeResults(md *markdown.Markdown, report *model.RunReport) {
	md.H2("Results")
	md.PlainText("")

	if report.TemplatesWithResults() == 0 {
		md.PlainText("No results.")
		md.PlainText("")
		return
	}

	rows := make([][]string, 0, report.Len())
	for _, template := range report.Templates() {
		entry, _ := report.Entry(template)
		rows = append(rows, []string{"`" + escapePipes(template) + "`", strconv.Itoa(entry.URLCount)})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Template", "URLs"},
		Rows:   rows,
	})
	md.PlainText("")

	for _, template := range report.Templates() {
		entry, _ := report.Entry(template)
		if entry.IsEmpty() {
			continue
		}

		urls := entry.URLs
		if w.maxURLs > 0 && len(urls) > w.maxURLs {
			urls = urls[:w.maxURLs]
		}

		md.H3(template)
		md.PlainText("")
		md.BulletList(urls...)
		if len(urls) < len(entry.URLs) {
			md.PlainTextf("*... and %d more*", len(entry.URLs)-len(urls))
		}
		md.PlainText("")
	}
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainText("*Report generated by [gdorker](https://github.com/nao1215/gdorker)*")
}

// escapePipes keeps a template from breaking the table layout.
func escapePipes(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '|' {
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
