package report

import (
	"io"

	"github.com/nao1215/gdorker/internal/model"
)

// Writer renders a run report to its configured destination.
type Writer interface {
	// Write outputs the report.
	// Returns the number of bytes written and any error encountered.
	Write(report *model.RunReport) (int, error)
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}
