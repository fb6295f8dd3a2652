package store

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/nao1215/gdorker/internal/model"
	"github.com/nao1215/gdorker/internal/report"
)

// ReportFile renders a completed run with a report.Writer and replaces the
// file at its path in one step.
type ReportFile struct {
	path      string
	what      string
	newWriter func(io.Writer) report.Writer
}

// NewJSONFile creates a ReportFile holding the structured result file.
func NewJSONFile(path string, opts ...report.JSONWriterOption) *ReportFile {
	return &ReportFile{
		path: path,
		what: "result file",
		newWriter: func(w io.Writer) report.Writer {
			return report.NewJSONWriter(w, opts...)
		},
	}
}

// NewMarkdownFile creates a ReportFile holding a Markdown summary.
func NewMarkdownFile(path string, opts ...report.MarkdownWriterOption) *ReportFile {
	return &ReportFile{
		path: path,
		what: "markdown summary",
		newWriter: func(w io.Writer) report.Writer {
			return report.NewMarkdownWriter(w, opts...)
		},
	}
}

// Path returns the output path.
func (f *ReportFile) Path() string {
	return f.path
}

// Finalize implements dispatch.Finalizer.
func (f *ReportFile) Finalize(_ context.Context, r *model.RunReport) error {
	data, err := render(func(buf *bytes.Buffer) error {
		_, err := f.newWriter(buf).Write(r)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to render %s: %w", f.what, err)
	}
	return writeFileAtomic(f.path, data)
}
