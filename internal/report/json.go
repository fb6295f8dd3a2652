package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/gdorker/internal/model"
)

// DefaultJSONIndent is the indentation of the structured result file.
const DefaultJSONIndent = "    "

// JSONWriter outputs the structured result format:
//
//	{"dorks": {...}, "initiation_timestamp": "...", "completion_timestamp": "..."}
//
// Design decision: We use the standard encoding/json because the format
// is a fixed object whose ordering is handled by RunReport.MarshalJSON.
type JSONWriter struct {
	baseWriter

	// indent is the per-level indentation; "" writes compact JSON.
	indent string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent sets the per-level indentation.
func WithIndent(indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = indent
	}
}

// WithCompact disables indentation.
func WithCompact() JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = ""
	}
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
// The output is indented with four spaces unless configured otherwise.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{
		baseWriter: newBaseWriter(output),
		indent:     DefaultJSONIndent,
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the report in JSON format followed by a newline.
func (w *JSONWriter) Write(report *model.RunReport) (int, error) {
	var (
		data []byte
		err  error
	)
	if w.indent != "" {
		data, err = json.MarshalIndent(report, "", w.indent)
	} else {
		data, err = json.Marshal(report)
	}
	if err != nil {
		return 0, err
	}

	data = append(data, '\n')
	return w.output.Write(data)
}
