package model

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

// TestNewResultEntry tests the ResultEntry constructor.
func TestNewResultEntry(t *testing.T) {
	t.Parallel()

	t.Run("nil urls become an empty slice", func(t *testing.T) {
		t.Parallel()

		entry := NewResultEntry(nil)
		if entry.URLs == nil {
			t.Fatal("expected non-nil URLs")
		}
		if entry.URLCount != 0 {
			t.Errorf("expected URLCount 0, got %d", entry.URLCount)
		}
		if !entry.IsEmpty() {
			t.Error("expected entry to be empty")
		}
	})

	t.Run("count matches urls", func(t *testing.T) {
		t.Parallel()

		entry := NewResultEntry([]string{"u1", "u2"})
		if entry.URLCount != 2 {
			t.Errorf("expected URLCount 2, got %d", entry.URLCount)
		}
	})

	t.Run("copies the input slice", func(t *testing.T) {
		t.Parallel()

		urls := []string{"u1"}
		entry := NewResultEntry(urls)
		urls[0] = "changed"
		if entry.URLs[0] != "u1" {
			t.Errorf("entry shares backing array with input: %q", entry.URLs[0])
		}
	})
}

// TestRunReport tests RunReport bookkeeping.
func TestRunReport(t *testing.T) {
	t.Parallel()

	t.Run("keeps dispatch order", func(t *testing.T) {
		t.Parallel()

		r := NewRunReport(time.Now())
		r.Init("b")
		r.Init("a")
		r.Init("c")

		got := strings.Join(r.Templates(), ",")
		if got != "b,a,c" {
			t.Errorf("expected order b,a,c, got %s", got)
		}
	})

	t.Run("init twice keeps a single key", func(t *testing.T) {
		t.Parallel()

		r := NewRunReport(time.Now())
		r.Init("a")
		r.Set("a", NewResultEntry([]string{"u1"}))
		r.Init("a")

		if r.Len() != 1 {
			t.Fatalf("expected 1 template, got %d", r.Len())
		}
		entry, _ := r.Entry("a")
		if !entry.IsEmpty() {
			t.Error("expected Init to reset the entry")
		}
	})

	t.Run("set overwrites instead of merging", func(t *testing.T) {
		t.Parallel()

		r := NewRunReport(time.Now())
		r.Set("a", NewResultEntry([]string{"u1", "u2"}))
		r.Set("a", NewResultEntry([]string{"u3"}))

		entry, ok := r.Entry("a")
		if !ok {
			t.Fatal("expected entry")
		}
		if entry.URLCount != 1 || entry.URLs[0] != "u3" {
			t.Errorf("unexpected entry: %+v", entry)
		}
	})

	t.Run("complete sets completion time", func(t *testing.T) {
		t.Parallel()

		r := NewRunReport(time.Now())
		if r.IsComplete() {
			t.Fatal("new report should not be complete")
		}
		r.Complete(time.Now())
		if !r.IsComplete() {
			t.Error("expected report to be complete")
		}
	})

	t.Run("counts templates with results", func(t *testing.T) {
		t.Parallel()

		r := NewRunReport(time.Now())
		r.Set("a", NewResultEntry([]string{"u1"}))
		r.Init("b")
		if n := r.TemplatesWithResults(); n != 1 {
			t.Errorf("expected 1, got %d", n)
		}
	})
}

// TestRunReportJSON tests the structured result format.
func TestRunReportJSON(t *testing.T) {
	t.Parallel()

	started := time.Date(2025, 3, 1, 10, 0, 0, 123456000, time.Local)

	t.Run("writes dorks in dispatch order", func(t *testing.T) {
		t.Parallel()

		r := NewRunReport(started)
		r.Set("zzz", NewResultEntry([]string{"u1"}))
		r.Init("aaa")

		data, err := json.Marshal(r)
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}

		s := string(data)
		if strings.Index(s, "zzz") > strings.Index(s, "aaa") {
			t.Errorf("expected zzz before aaa: %s", s)
		}
		if !strings.Contains(s, `"aaa":{"urls_size":0,"urls":[]}`) {
			t.Errorf("expected empty entry with [] urls: %s", s)
		}
		if !strings.Contains(s, `"initiation_timestamp":"2025-03-01T10:00:00.123456"`) {
			t.Errorf("unexpected initiation timestamp: %s", s)
		}
	})

	t.Run("aborted run has empty completion timestamp", func(t *testing.T) {
		t.Parallel()

		r := NewRunReport(started)
		data, err := json.Marshal(r)
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}
		if !strings.Contains(string(data), `"completion_timestamp":""`) {
			t.Errorf("expected empty completion timestamp: %s", data)
		}
	})

	t.Run("round trip preserves order and entries", func(t *testing.T) {
		t.Parallel()

		r := NewRunReport(started)
		r.Set("inurl:admin", NewResultEntry([]string{"u1", "u2"}))
		r.Init("intitle:index.of")
		r.Complete(started.Add(time.Minute))

		data, err := json.Marshal(r)
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}

		var decoded RunReport
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("unmarshal failed: %v", err)
		}

		got := strings.Join(decoded.Templates(), "|")
		if got != "inurl:admin|intitle:index.of" {
			t.Errorf("unexpected order: %s", got)
		}
		entry, _ := decoded.Entry("inurl:admin")
		if entry.URLCount != 2 {
			t.Errorf("expected 2 urls, got %d", entry.URLCount)
		}
		if decoded.TotalURLs != 2 {
			t.Errorf("expected TotalURLs 2, got %d", decoded.TotalURLs)
		}
		if !decoded.StartedAt.Equal(started) {
			t.Errorf("started mismatch: %v vs %v", decoded.StartedAt, started)
		}
		if !decoded.IsComplete() {
			t.Error("expected decoded report to be complete")
		}
	})

	t.Run("rejects non-object dorks", func(t *testing.T) {
		t.Parallel()

		var decoded RunReport
		err := json.Unmarshal([]byte(`{"dorks":[1,2],"initiation_timestamp":"","completion_timestamp":""}`), &decoded)
		if err == nil {
			t.Error("expected error for array dorks")
		}
	})
}
