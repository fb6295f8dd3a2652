package dispatch

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/gdorker/internal/dork"
	"github.com/nao1215/gdorker/internal/filter"
	"github.com/nao1215/gdorker/internal/model"
	"github.com/nao1215/gdorker/internal/proxy"
	"github.com/nao1215/gdorker/internal/search"
)

// discardLogger returns a logger that drops all output.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// reply is a canned backend answer.
type reply struct {
	urls []string
	err  error
}

// stubBackend answers queries from a map and remembers every request.
type stubBackend struct {
	mu       sync.Mutex
	replies  map[string]reply
	requests []search.Request

	// onSearch runs before the reply is returned.
	onSearch func(req search.Request)
}

func (b *stubBackend) Name() string { return "stub" }

func (b *stubBackend) Search(_ context.Context, req search.Request) ([]string, error) {
	b.mu.Lock()
	b.requests = append(b.requests, req)
	r := b.replies[req.Query]
	b.mu.Unlock()

	if b.onSearch != nil {
		b.onSearch(req)
	}
	return r.urls, r.err
}

func (b *stubBackend) queries() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.requests))
	for i, r := range b.requests {
		out[i] = r.Query
	}
	return out
}

// stubPacer counts waits and can cancel the run on a given wait.
type stubPacer struct {
	waits    int
	cancelOn int
	cancel   context.CancelFunc
}

func (p *stubPacer) Wait(ctx context.Context) (time.Duration, error) {
	p.waits++
	if p.cancel != nil && p.waits == p.cancelOn {
		p.cancel()
	}
	return 0, ctx.Err()
}

// memRecorder keeps every record.
type memRecorder struct {
	records []Record
	err     error
}

func (r *memRecorder) Record(_ context.Context, rec Record) error {
	r.records = append(r.records, rec)
	return r.err
}

// memFinalizer remembers the finalized report.
type memFinalizer struct {
	report *model.RunReport
	err    error
}

func (f *memFinalizer) Finalize(_ context.Context, report *model.RunReport) error {
	f.report = report
	return f.err
}

func directPool() proxy.Pool {
	return proxy.Pool{proxy.Direct}
}

// TestLoop_EntriesFollowInputOrder tests that every template gets exactly one entry in input order.
func TestLoop_EntriesFollowInputOrder(t *testing.T) {
	t.Parallel()

	templates := []string{"inurl:admin", "intitle:index.of", "filetype:sql", "ext:log"}
	backend := &stubBackend{replies: map[string]reply{
		"inurl:admin":  {urls: []string{"https://a"}},
		"filetype:sql": {err: errors.New("connection reset")},
	}}
	pacer := &stubPacer{}

	report, err := NewLoop(backend, directPool(), pacer, WithLogger(discardLogger())).Run(context.Background(), templates)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := report.Templates(); !slices.Equal(got, templates) {
		t.Errorf("Templates() = %v, want %v", got, templates)
	}
	if got := backend.queries(); !slices.Equal(got, templates) {
		t.Errorf("dispatch order = %v, want %v", got, templates)
	}
	if pacer.waits != len(templates)-1 {
		t.Errorf("expected %d waits, got %d", len(templates)-1, pacer.waits)
	}
	if !report.IsComplete() {
		t.Error("expected report to be complete")
	}
}

// TestLoop_EndToEnd tests the two-template scenario with one empty result.
func TestLoop_EndToEnd(t *testing.T) {
	t.Parallel()

	backend := &stubBackend{replies: map[string]reply{
		"inurl:admin":      {urls: []string{"u1", "u2"}},
		"intitle:index.of": {urls: []string{}},
	}}
	rec := &memRecorder{}
	fin := &memFinalizer{}

	loop := NewLoop(backend, directPool(), &stubPacer{},
		WithMaxResults(10),
		WithRecorders(rec),
		WithFinalizers(fin),
		WithLogger(discardLogger()),
	)
	report, err := loop.Run(context.Background(), []string{"inurl:admin", "intitle:index.of"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first, _ := report.Entry("inurl:admin")
	if first.URLCount != 2 {
		t.Errorf("inurl:admin urls_size = %d, want 2", first.URLCount)
	}
	second, ok := report.Entry("intitle:index.of")
	if !ok || second.URLCount != 0 {
		t.Errorf("intitle:index.of entry = %+v (present %v), want empty", second, ok)
	}
	if report.TotalURLs != 2 {
		t.Errorf("TotalURLs = %d, want 2", report.TotalURLs)
	}

	if len(rec.records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(rec.records))
	}
	if rec.records[0].Outcome != OutcomeResults || rec.records[1].Outcome != OutcomeEmpty {
		t.Errorf("unexpected outcomes: %v, %v", rec.records[0].Outcome, rec.records[1].Outcome)
	}
	if fin.report != report {
		t.Error("expected finalizer to receive the report")
	}
}

// TestLoop_RecoverableFailure tests that a failing query keeps an empty entry and the loop continues.
func TestLoop_RecoverableFailure(t *testing.T) {
	t.Parallel()

	backend := &stubBackend{replies: map[string]reply{
		"q1": {err: search.ErrRateLimited},
		"q2": {urls: []string{"https://x"}},
	}}
	rec := &memRecorder{}

	report, err := NewLoop(backend, directPool(), &stubPacer{},
		WithRecorders(rec), WithLogger(discardLogger())).Run(context.Background(), []string{"q1", "q2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entry, ok := report.Entry("q1")
	if !ok || entry.URLCount != 0 {
		t.Errorf("expected empty entry for q1, got %+v (present %v)", entry, ok)
	}
	if got := backend.queries(); !slices.Equal(got, []string{"q1", "q2"}) {
		t.Errorf("expected q2 to be dispatched, got %v", got)
	}
	if rec.records[0].Outcome != OutcomeRecoverable || !errors.Is(rec.records[0].Err, search.ErrRateLimited) {
		t.Errorf("unexpected first record: %+v", rec.records[0])
	}
}

// TestLoop_FatalTLSFailure tests that a verification failure ends the run only when verification is on.
func TestLoop_FatalTLSFailure(t *testing.T) {
	t.Parallel()

	tlsErr := fmt.Errorf("Get \"https://www.google.com/search\": %w", x509.UnknownAuthorityError{})

	t.Run("verification enabled", func(t *testing.T) {
		t.Parallel()

		backend := &stubBackend{replies: map[string]reply{"q1": {err: tlsErr}}}
		fin := &memFinalizer{}

		report, err := NewLoop(backend, directPool(), &stubPacer{},
			WithFinalizers(fin), WithLogger(discardLogger())).Run(context.Background(), []string{"q1", "q2"})

		var fatal *FatalError
		if !errors.As(err, &fatal) {
			t.Fatalf("expected *FatalError, got %v", err)
		}
		if fatal.Template != "q1" || fatal.Hint == "" {
			t.Errorf("unexpected fatal error: %+v", fatal)
		}
		if !search.IsTLSVerificationError(err) {
			t.Error("expected the cause to be reachable through Unwrap")
		}
		if len(backend.queries()) != 1 {
			t.Errorf("expected no further dispatch, got %v", backend.queries())
		}
		if report.IsComplete() || fin.report != nil {
			t.Error("a fatal run must not be completed or finalized")
		}
	})

	t.Run("verification disabled", func(t *testing.T) {
		t.Parallel()

		backend := &stubBackend{replies: map[string]reply{"q1": {err: tlsErr}}}

		_, err := NewLoop(backend, directPool(), &stubPacer{},
			WithVerifyTLS(false), WithLogger(discardLogger())).Run(context.Background(), []string{"q1", "q2"})
		if err != nil {
			t.Fatalf("expected the failure to be recoverable, got %v", err)
		}
		if len(backend.queries()) != 2 {
			t.Errorf("expected both templates dispatched, got %v", backend.queries())
		}
		if backend.requests[0].VerifyTLS {
			t.Error("expected VerifyTLS=false in the request")
		}
	})
}

// TestLoop_CancelDuringWait tests that cancellation in the wait aborts without finalizing.
func TestLoop_CancelDuringWait(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend := &stubBackend{replies: map[string]reply{"q1": {urls: []string{"https://a"}}}}
	pacer := &stubPacer{cancelOn: 1, cancel: cancel}
	fin := &memFinalizer{}

	report, err := NewLoop(backend, directPool(), pacer,
		WithFinalizers(fin), WithLogger(discardLogger())).Run(ctx, []string{"q1", "q2", "q3"})
	if !errors.Is(err, ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
	if got := backend.queries(); !slices.Equal(got, []string{"q1"}) {
		t.Errorf("expected only q1 dispatched, got %v", got)
	}
	if report.IsComplete() {
		t.Error("aborted report must not have a completion time")
	}
	if fin.report != nil {
		t.Error("finalizers must not run after an abort")
	}
	if entry, _ := report.Entry("q1"); entry.URLCount != 1 {
		t.Error("results gathered before the abort should stay in the report")
	}
}

// TestLoop_CancelDuringSearch tests that a cancelled backend call is discarded.
func TestLoop_CancelDuringSearch(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend := &stubBackend{
		replies:  map[string]reply{"q1": {urls: []string{"https://a"}}},
		onSearch: func(search.Request) { cancel() },
	}
	rec := &memRecorder{}

	report, err := NewLoop(backend, directPool(), &stubPacer{},
		WithRecorders(rec), WithLogger(discardLogger())).Run(ctx, []string{"q1", "q2"})
	if !errors.Is(err, ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
	if len(rec.records) != 0 {
		t.Errorf("expected no records after cancellation, got %d", len(rec.records))
	}
	if report.TotalURLs != 0 {
		t.Errorf("expected discarded results, TotalURLs = %d", report.TotalURLs)
	}
}

// TestLoop_CancelledBeforeStart tests that nothing is dispatched on a cancelled context.
func TestLoop_CancelledBeforeStart(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	backend := &stubBackend{}
	_, err := NewLoop(backend, directPool(), &stubPacer{}, WithLogger(discardLogger())).Run(ctx, []string{"q1"})
	if !errors.Is(err, ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
	if len(backend.queries()) != 0 {
		t.Error("expected no dispatch")
	}
}

// TestLoop_TruncatesAndFilters tests truncation to max results followed by filtering.
func TestLoop_TruncatesAndFilters(t *testing.T) {
	t.Parallel()

	f, err := filter.New(nil, discardLogger())
	if err != nil {
		t.Fatalf("filter.New failed: %v", err)
	}

	backend := &stubBackend{replies: map[string]reply{
		"q1": {urls: []string{"https://good.example/a", "https://www.exploit-db.com/x", "https://good.example/b", "https://good.example/c"}},
		"q2": {urls: []string{"https://www.kb.cert.org/vuls/1"}},
	}}
	rec := &memRecorder{}

	report, err := NewLoop(backend, directPool(), &stubPacer{},
		WithMaxResults(3),
		WithFilter(f),
		WithRecorders(rec),
		WithLogger(discardLogger()),
	).Run(context.Background(), []string{"q1", "q2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entry, _ := report.Entry("q1")
	if want := []string{"https://good.example/a", "https://good.example/b"}; !slices.Equal(entry.URLs, want) {
		t.Errorf("q1 URLs = %v, want %v", entry.URLs, want)
	}
	if backend.requests[0].MaxResults != 3 {
		t.Errorf("expected MaxResults=3 in the request, got %d", backend.requests[0].MaxResults)
	}
	if rec.records[1].Outcome != OutcomeEmpty {
		t.Errorf("a fully filtered query should be empty, got %v", rec.records[1].Outcome)
	}
}

// TestLoop_RotatesProxies tests round-robin proxy use across templates.
func TestLoop_RotatesProxies(t *testing.T) {
	t.Parallel()

	pool, err := proxy.ParsePool([]string{"http://10.0.0.1:3128", "http://10.0.0.2:3128", "socks5://10.0.0.3:1080"})
	if err != nil {
		t.Fatalf("ParsePool failed: %v", err)
	}

	backend := &stubBackend{}
	templates := []string{"a", "b", "c", "d", "e"}
	if _, err := NewLoop(backend, pool, &stubPacer{}, WithLogger(discardLogger())).Run(context.Background(), templates); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantIdx := []int{0, 1, 2, 0, 1}
	for i, req := range backend.requests {
		if req.Proxy.String() != pool[wantIdx[i]].String() {
			t.Errorf("request %d used %s, want %s", i, req.Proxy, pool[wantIdx[i]])
		}
	}
}

// TestLoop_AppliesScope tests that the normalizer scope reaches the backend.
func TestLoop_AppliesScope(t *testing.T) {
	t.Parallel()

	backend := &stubBackend{}
	loop := NewLoop(backend, directPool(), &stubPacer{},
		WithNormalizer(dork.NewNormalizer("example.com", discardLogger())),
		WithLogger(discardLogger()),
	)
	report, err := loop.Run(context.Background(), []string{"inurl:admin"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := backend.queries(); !slices.Equal(got, []string{"site:example.com inurl:admin"}) {
		t.Errorf("queries = %v", got)
	}
	if got := report.Templates(); !slices.Equal(got, []string{"inurl:admin"}) {
		t.Errorf("report must be keyed by template, got %v", got)
	}
}

// TestLoop_Resume tests that templates of a prior run are not dispatched again.
func TestLoop_Resume(t *testing.T) {
	t.Parallel()

	started := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	prior := model.NewRunReport(started)
	prior.Set("b", model.NewResultEntry([]string{"https://b1", "https://b2"}))
	prior.Set("a", model.NewResultEntry(nil))

	backend := &stubBackend{replies: map[string]reply{"c": {urls: []string{"https://c1"}}}}
	pacer := &stubPacer{}
	var progress []Progress

	report, err := NewLoop(backend, directPool(), pacer,
		WithResume(prior),
		WithProgress(func(p Progress) { progress = append(progress, p) }),
		WithLogger(discardLogger()),
	).Run(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := backend.queries(); !slices.Equal(got, []string{"c"}) {
		t.Errorf("expected only c dispatched, got %v", got)
	}
	if pacer.waits != 0 {
		t.Errorf("expected no wait before the first dispatch, got %d", pacer.waits)
	}
	if got := report.Templates(); !slices.Equal(got, []string{"a", "b", "c"}) {
		t.Errorf("Templates() = %v, want input order", got)
	}
	if report.TotalURLs != 3 {
		t.Errorf("TotalURLs = %d, want 3", report.TotalURLs)
	}
	if !report.StartedAt.Equal(started) {
		t.Errorf("expected the prior start time, got %v", report.StartedAt)
	}
	if len(progress) != 3 || !progress[0].Resumed || progress[2].Resumed || progress[2].Index != 3 {
		t.Errorf("unexpected progress: %+v", progress)
	}
}

// TestLoop_FinalizerAndRecorderErrors tests error handling of sinks.
func TestLoop_FinalizerAndRecorderErrors(t *testing.T) {
	t.Parallel()

	backend := &stubBackend{replies: map[string]reply{"q": {urls: []string{"https://a"}}}}
	rec := &memRecorder{err: errors.New("disk full")}
	fin := &memFinalizer{err: errors.New("rename failed")}

	report, err := NewLoop(backend, directPool(), &stubPacer{},
		WithRecorders(rec), WithFinalizers(fin), WithLogger(discardLogger())).Run(context.Background(), []string{"q"})
	if err == nil {
		t.Fatal("expected finalizer error")
	}
	if errors.Is(err, ErrAborted) {
		t.Error("finalizer failure is not an abort")
	}
	if !report.IsComplete() {
		t.Error("report should be complete even if a finalizer fails")
	}
	if len(rec.records) != 1 {
		t.Error("a recorder error must not stop the run")
	}
}

// TestLoop_Clock tests the injected clock.
func TestLoop_Clock(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)
	report, err := NewLoop(&stubBackend{}, directPool(), &stubPacer{},
		WithClock(func() time.Time { return now }), WithLogger(discardLogger())).Run(context.Background(), []string{"q"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.StartedAt.Equal(now) || !report.CompletedAt.Equal(now) {
		t.Errorf("unexpected timestamps: %v %v", report.StartedAt, report.CompletedAt)
	}
}

// TestClassify tests the outcome classification.
func TestClassify(t *testing.T) {
	t.Parallel()

	tlsErr := x509.HostnameError{}
	tests := []struct {
		name      string
		urls      []string
		err       error
		verifyTLS bool
		want      Outcome
	}{
		{name: "results", urls: []string{"u"}, want: OutcomeResults},
		{name: "empty", urls: nil, want: OutcomeEmpty},
		{name: "transport error", err: errors.New("timeout"), verifyTLS: true, want: OutcomeRecoverable},
		{name: "tls error with verification", err: tlsErr, verifyTLS: true, want: OutcomeFatal},
		{name: "tls error without verification", err: tlsErr, verifyTLS: false, want: OutcomeRecoverable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := classify(tt.urls, tt.err, tt.verifyTLS); got != tt.want {
				t.Errorf("classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestFatalError tests the error message and unwrapping.
func TestFatalError(t *testing.T) {
	t.Parallel()

	cause := errors.New("x509: certificate signed by unknown authority")
	err := &FatalError{Template: "inurl:admin", Hint: tlsHint, Err: cause}

	if !errors.Is(err, cause) {
		t.Error("expected Unwrap to expose the cause")
	}
	msg := err.Error()
	if !strings.Contains(msg, "inurl:admin") || !strings.Contains(msg, "--insecure") {
		t.Errorf("unexpected message: %s", msg)
	}
}

// TestOutcomeString tests outcome names.
func TestOutcomeString(t *testing.T) {
	t.Parallel()

	if OutcomeResults.String() != "results" || OutcomeFatal.String() != "fatal" || Outcome(0).String() != "unknown" {
		t.Error("unexpected outcome names")
	}
}
