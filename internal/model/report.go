package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// TimestampFormat is the layout used for the initiation and completion
// timestamps of the structured result file. It keeps microsecond precision
// so two runs started within the same second remain distinguishable.
const TimestampFormat = "2006-01-02T15:04:05.000000"

// ResultEntry holds the URLs collected for one query template.
// URLCount always equals len(URLs); use NewResultEntry or SetURLs to keep
// the two fields consistent.
type ResultEntry struct {
	// URLCount is the number of URLs that survived filtering.
	URLCount int `json:"urls_size"`

	// URLs are the result URLs in the order the backend returned them.
	URLs []string `json:"urls"`
}

// NewResultEntry creates an entry for the given URLs.
// A nil slice is stored as an empty slice so the JSON output is [] rather than null.
func NewResultEntry(urls []string) ResultEntry {
	copied := make([]string, len(urls))
	copy(copied, urls)
	return ResultEntry{
		URLCount: len(copied),
		URLs:     copied,
	}
}

// IsEmpty reports whether the entry contains no URLs.
func (e ResultEntry) IsEmpty() bool {
	return e.URLCount == 0
}

// RunReport is the structured record of one execution.
//
// Design decision: Entries are kept in a map for lookup plus a slice for
// order, because the result file must list templates in dispatch order and
// Go maps do not preserve insertion order. RunReport is owned by a single
// goroutine (the dispatch loop) and is not safe for concurrent mutation.
type RunReport struct {
	// StartedAt is when the run was initiated.
	StartedAt time.Time

	// CompletedAt is when the run finished normally.
	// It stays zero for aborted runs.
	CompletedAt time.Time

	// TotalURLs is the running sum of surviving URLs across all templates.
	TotalURLs int

	order   []string
	entries map[string]ResultEntry
}

// NewRunReport creates an empty report started at the given time.
func NewRunReport(startedAt time.Time) *RunReport {
	return &RunReport{
		StartedAt: startedAt,
		order:     make([]string, 0),
		entries:   make(map[string]ResultEntry),
	}
}

// Init resets the entry for template to an empty result.
// A template seen for the first time is appended to the dispatch order;
// a template already present keeps its original position.
func (r *RunReport) Init(template string) {
	if _, ok := r.entries[template]; !ok {
		r.order = append(r.order, template)
	}
	r.entries[template] = NewResultEntry(nil)
}

// Set overwrites the entry for template. The previous URLs are not merged.
func (r *RunReport) Set(template string, entry ResultEntry) {
	if _, ok := r.entries[template]; !ok {
		r.order = append(r.order, template)
	}
	r.entries[template] = entry
}

// Entry returns the entry for template and whether it exists.
func (r *RunReport) Entry(template string) (ResultEntry, bool) {
	e, ok := r.entries[template]
	return e, ok
}

// Templates returns the templates in dispatch order.
func (r *RunReport) Templates() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of templates in the report.
func (r *RunReport) Len() int {
	return len(r.order)
}

// Complete marks the run as finished at t.
func (r *RunReport) Complete(t time.Time) {
	r.CompletedAt = t
}

// IsComplete reports whether the run terminated normally.
func (r *RunReport) IsComplete() bool {
	return !r.CompletedAt.IsZero()
}

// TemplatesWithResults returns how many templates produced at least one URL.
func (r *RunReport) TemplatesWithResults() int {
	n := 0
	for _, t := range r.order {
		if !r.entries[t].IsEmpty() {
			n++
		}
	}
	return n
}

// MarshalJSON writes the report in the structured result format:
//
//	{"dorks": {...}, "initiation_timestamp": "...", "completion_timestamp": "..."}
//
// "dorks" lists templates in dispatch order. An aborted run has an empty
// completion timestamp.
func (r *RunReport) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(`{"dorks":{`)
	for i, template := range r.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(template)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(r.entries[template])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteString(`},"initiation_timestamp":`)

	started, err := json.Marshal(formatTimestamp(r.StartedAt))
	if err != nil {
		return nil, err
	}
	buf.Write(started)

	buf.WriteString(`,"completion_timestamp":`)
	completed, err := json.Marshal(formatTimestamp(r.CompletedAt))
	if err != nil {
		return nil, err
	}
	buf.Write(completed)
	buf.WriteByte('}')

	return buf.Bytes(), nil
}

// UnmarshalJSON reads the structured result format, keeping the order of
// the "dorks" object.
func (r *RunReport) UnmarshalJSON(data []byte) error {
	var raw struct {
		Dorks      json.RawMessage `json:"dorks"`
		Initiation string          `json:"initiation_timestamp"`
		Completion string          `json:"completion_timestamp"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	started, err := parseTimestamp(raw.Initiation)
	if err != nil {
		return fmt.Errorf("invalid initiation_timestamp: %w", err)
	}
	completed, err := parseTimestamp(raw.Completion)
	if err != nil {
		return fmt.Errorf("invalid completion_timestamp: %w", err)
	}

	*r = *NewRunReport(started)
	r.CompletedAt = completed

	if len(raw.Dorks) == 0 || string(raw.Dorks) == "null" {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw.Dorks))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("dorks must be a JSON object")
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		template, ok := keyTok.(string)
		if !ok {
			return errors.New("dorks key must be a string")
		}

		var entry ResultEntry
		if err := dec.Decode(&entry); err != nil {
			return fmt.Errorf("invalid entry for %q: %w", template, err)
		}
		entry = NewResultEntry(entry.URLs)

		r.Set(template, entry)
		r.TotalURLs += entry.URLCount
	}

	return nil
}

// formatTimestamp formats t for the result file. The zero time is an empty string.
func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(TimestampFormat)
}

// parseTimestamp is the inverse of formatTimestamp.
func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.ParseInLocation(TimestampFormat, s, time.Local)
}
