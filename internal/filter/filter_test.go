package filter

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"testing"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestApply tests URL filtering with the default rules.
func TestApply(t *testing.T) {
	t.Parallel()

	f, err := New(nil, quietLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	t.Run("removes default false positives and keeps order", func(t *testing.T) {
		t.Parallel()

		in := []string{
			"https://www.exploit-db.com/ghdb/123",
			"https://a.com/x",
			"https://www.kb.cert.org/vuls/id/1",
			"https://b.com/y",
			"https://twitter.com/googlehacking/status/1",
			"https://x.com/googlehacking/status/2",
		}
		got := f.Apply(in)
		if strings.Join(got, " ") != "https://a.com/x https://b.com/y" {
			t.Errorf("unexpected result %q", got)
		}
	})

	t.Run("matching is case-insensitive", func(t *testing.T) {
		t.Parallel()

		got := f.Apply([]string{"HTTPS://WWW.EXPLOIT-DB.COM/ghdb/1"})
		if len(got) != 0 {
			t.Errorf("expected URL to be removed, got %q", got)
		}
	})

	t.Run("matches anywhere in the URL", func(t *testing.T) {
		t.Parallel()

		got := f.Apply([]string{"https://archive.example/save/https://www.exploit-db.com/ghdb/1"})
		if len(got) != 0 {
			t.Errorf("expected URL to be removed, got %q", got)
		}
	})

	t.Run("input is not modified and duplicates are kept", func(t *testing.T) {
		t.Parallel()

		in := []string{"https://a.com", "https://www.exploit-db.com/", "https://a.com"}
		got := f.Apply(in)
		if len(got) != 2 || got[0] != "https://a.com" || got[1] != "https://a.com" {
			t.Errorf("unexpected result %q", got)
		}
		if in[1] != "https://www.exploit-db.com/" || len(in) != 3 {
			t.Errorf("input was modified: %q", in)
		}
	})

	t.Run("empty input", func(t *testing.T) {
		t.Parallel()

		if got := f.Apply(nil); len(got) != 0 {
			t.Errorf("expected empty result, got %q", got)
		}
	})

	t.Run("similar hosts are kept", func(t *testing.T) {
		t.Parallel()

		got := f.Apply([]string{"https://exploit-db.com.evil.test/", "https://twitter.com/other/"})
		if len(got) != 2 {
			t.Errorf("expected both URLs kept, got %q", got)
		}
	})
}

// TestNew tests Filter construction.
func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("extra patterns are appended", func(t *testing.T) {
		t.Parallel()

		f, err := New([]string{`github\.com/`}, quietLogger())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		patterns := f.Patterns()
		if len(patterns) != len(DefaultPatterns)+1 || patterns[len(patterns)-1] != `github\.com/` {
			t.Errorf("unexpected patterns %q", patterns)
		}
		if got := f.Apply([]string{"https://GitHub.com/x", "https://a.com"}); len(got) != 1 {
			t.Errorf("expected extra rule to apply, got %q", got)
		}
	})

	t.Run("invalid pattern is an error", func(t *testing.T) {
		t.Parallel()

		if _, err := New([]string{"("}, quietLogger()); err == nil {
			t.Error("expected error for invalid pattern")
		}
	})
}

// TestApplyLogsRemovals tests the removal log.
func TestApplyLogsRemovals(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	f, err := New(nil, slog.New(slog.NewTextHandler(&buf, nil)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	f.Apply([]string{"https://www.kb.cert.org/vuls/id/1"})

	output := buf.String()
	if !strings.Contains(output, "level=WARN") || !strings.Contains(output, "kb") {
		t.Errorf("expected WARN log naming the rule, got %s", output)
	}
}
