package store

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/nao1215/gdorker/internal/dispatch"
)

// separatorWidth is the number of '#' characters closing each block.
const separatorWidth = 50

// TextFile appends a block per query with results:
//
//	# <template>
//	<url>
//	...
//	##################################################
type TextFile struct {
	path string
}

// NewTextFile creates a TextFile writing to path. The file is created on
// the first block and appended to afterwards.
func NewTextFile(path string) *TextFile {
	return &TextFile{path: path}
}

// Path returns the output path.
func (t *TextFile) Path() string {
	return t.path
}

// Record implements dispatch.Recorder. Queries without surviving URLs are skipped.
func (t *TextFile) Record(_ context.Context, rec dispatch.Record) error {
	if rec.Outcome != dispatch.OutcomeResults || len(rec.URLs) == 0 {
		return nil
	}

	f, err := os.OpenFile(t.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open text output: %w", err)
	}

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "# %s\n", rec.Template)
	for _, u := range rec.URLs {
		fmt.Fprintln(w, u)
	}
	fmt.Fprintln(w, strings.Repeat("#", separatorWidth))

	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write text output: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close text output: %w", err)
	}
	return nil
}
