package dork

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// ErrNoTemplates is returned when the input contains no usable template.
var ErrNoTemplates = errors.New("no dorks found: the dork file contains only blank lines")

// maxLineSize bounds a single template line. Real dorks are far shorter.
const maxLineSize = 1 << 20

// LoadFile reads the templates of the file at path.
func LoadFile(path string) ([]string, error) {
	f, err := os.Open(path) //nolint:gosec // User-provided dork file is intentional
	if err != nil {
		return nil, fmt.Errorf("failed to open dork file: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only file

	templates, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("failed to load dorks from %s: %w", path, err)
	}
	return templates, nil
}

// Load reads one template per line from r.
//
// Whitespace-only lines are skipped. Other lines are kept verbatim, in input
// order, apart from the line terminator (\n or \r\n). A line seen a second
// time is dropped with a warning, so every template appears once in the run
// report. ErrNoTemplates is returned when nothing is left.
func Load(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var templates []string
	seen := make(map[string]int)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if first, dup := seen[line]; dup {
			slog.Warn("skipping duplicate dork",
				"template", line,
				"line", lineNo,
				"first_line", first,
			)
			continue
		}
		seen[line] = lineNo
		templates = append(templates, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if len(templates) == 0 {
		return nil, ErrNoTemplates
	}
	return templates, nil
}
