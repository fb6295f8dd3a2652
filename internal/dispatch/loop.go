package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/gdorker/internal/dork"
	gdlog "github.com/nao1215/gdorker/internal/log"
	"github.com/nao1215/gdorker/internal/model"
	"github.com/nao1215/gdorker/internal/proxy"
	"github.com/nao1215/gdorker/internal/search"
)

// Pacer blocks between two dispatches. jitter.Scheduler is the production
// implementation.
type Pacer interface {
	Wait(ctx context.Context) (time.Duration, error)
}

// URLFilter removes unwanted URLs from a result list without reordering it.
// filter.Filter is the production implementation.
type URLFilter interface {
	Apply(urls []string) []string
}

// Progress describes one finished template for progress display.
type Progress struct {
	// Index is the 1-based position of the template.
	Index int

	// Total is the number of templates in the run.
	Total int

	Template string
	Outcome  Outcome
	URLs     int

	// Resumed is true for templates copied from a previous run.
	Resumed bool
}

// Loop dispatches query templates one at a time.
type Loop struct {
	backend    search.Backend
	pool       proxy.Pool
	pacer      Pacer
	rotator    *proxy.Rotator
	normalizer *dork.Normalizer
	filter     URLFilter
	maxResults int
	verifyTLS  bool
	recorders  []Recorder
	finalizers []Finalizer
	resume     *model.RunReport
	progress   func(Progress)
	now        func() time.Time
	logger     *slog.Logger
}

// Option configures a Loop.
type Option func(*Loop)

// WithNormalizer sets the query normalizer, which carries the domain scope.
// Default: an unscoped normalizer.
func WithNormalizer(n *dork.Normalizer) Option {
	return func(l *Loop) {
		l.normalizer = n
	}
}

// WithRotator sets the proxy rotator. Default: a new rotator starting at 0.
func WithRotator(r *proxy.Rotator) Option {
	return func(l *Loop) {
		l.rotator = r
	}
}

// WithFilter sets the result filter. Without one, no URL is removed.
func WithFilter(f URLFilter) Option {
	return func(l *Loop) {
		l.filter = f
	}
}

// WithMaxResults sets the number of URLs kept per query. Default: 100.
func WithMaxResults(n int) Option {
	return func(l *Loop) {
		l.maxResults = n
	}
}

// WithVerifyTLS enables or disables certificate verification. Default: enabled.
func WithVerifyTLS(verify bool) Option {
	return func(l *Loop) {
		l.verifyTLS = verify
	}
}

// WithRecorders adds recorders notified after every dispatched template.
func WithRecorders(recorders ...Recorder) Option {
	return func(l *Loop) {
		l.recorders = append(l.recorders, recorders...)
	}
}

// WithFinalizers adds finalizers run after a completed run.
func WithFinalizers(finalizers ...Finalizer) Option {
	return func(l *Loop) {
		l.finalizers = append(l.finalizers, finalizers...)
	}
}

// WithResume continues a previous run. Templates present in prior are
// copied into the new report without being dispatched, and the report
// keeps the prior start time.
func WithResume(prior *model.RunReport) Option {
	return func(l *Loop) {
		l.resume = prior
	}
}

// WithProgress sets a callback invoked after every template.
func WithProgress(fn func(Progress)) Option {
	return func(l *Loop) {
		l.progress = fn
	}
}

// WithClock replaces time.Now for the report timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Loop) {
		l.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) {
		l.logger = logger
	}
}

// NewLoop creates a Loop that sends queries to backend through the proxies of
// pool, waiting on pacer between two dispatches.
func NewLoop(backend search.Backend, pool proxy.Pool, pacer Pacer, opts ...Option) *Loop {
	l := &Loop{
		backend:    backend,
		pool:       pool,
		pacer:      pacer,
		maxResults: 100,
		verifyTLS:  true,
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(l)
	}

	if l.logger == nil {
		l.logger = slog.Default()
	}
	if l.rotator == nil {
		l.rotator = proxy.NewRotator()
	}
	if l.normalizer == nil {
		l.normalizer = dork.NewNormalizer("", l.logger)
	}

	return l
}

// Run dispatches templates in order and returns the report.
//
// On cancellation it returns the partial report with ErrAborted; on a TLS
// verification failure with verification enabled it returns the partial
// report with a *FatalError. Finalizers run only when every template was
// processed; their errors are joined and returned with the completed report.
func (l *Loop) Run(ctx context.Context, templates []string) (*model.RunReport, error) {
	report := model.NewRunReport(l.now())
	if l.resume != nil {
		report = model.NewRunReport(l.resume.StartedAt)
	}

	l.logger.Info("starting run",
		"templates", len(templates),
		"backend", l.backend.Name(),
		"proxies", len(l.pool),
		"scope", l.normalizer.Scope(),
	)

	dispatched := 0
	for i, template := range templates {
		if l.resumeEntry(report, template) {
			entry, _ := report.Entry(template)
			l.notifyProgress(Progress{Index: i + 1, Total: len(templates), Template: template,
				Outcome: outcomeOf(entry), URLs: entry.URLCount, Resumed: true})
			continue
		}

		if dispatched > 0 {
			if _, err := l.pacer.Wait(ctx); err != nil {
				return report, l.abort(template)
			}
		}
		if ctx.Err() != nil {
			return report, l.abort(template)
		}
		dispatched++

		rec, aborted := l.dispatch(ctx, report, i, template)
		if aborted {
			return report, l.abort(template)
		}

		apply(report, rec)
		l.record(ctx, rec)
		l.notifyProgress(Progress{Index: i + 1, Total: len(templates), Template: template,
			Outcome: rec.Outcome, URLs: len(rec.URLs)})

		if rec.Outcome == OutcomeFatal {
			l.logger.Log(ctx, gdlog.LevelCritical, "TLS verification failed, stopping run",
				"template", template,
				"proxy", rec.Proxy.Redacted(),
				"error", rec.Err,
				"hint", tlsHint,
			)
			return report, &FatalError{Template: template, Hint: tlsHint, Err: rec.Err}
		}
	}

	report.Complete(l.now())
	l.logger.Info("run completed",
		"templates", report.Len(),
		"with_results", report.TemplatesWithResults(),
		"total_urls", report.TotalURLs,
	)

	var errs []error
	for _, f := range l.finalizers {
		if err := f.Finalize(ctx, report); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return report, fmt.Errorf("failed to finalize run: %w", err)
	}
	return report, nil
}

// dispatch runs one template. aborted is true when ctx was cancelled during
// or right after the backend call; the result is then discarded.
func (l *Loop) dispatch(ctx context.Context, report *model.RunReport, position int, template string) (Record, bool) {
	report.Init(template)

	q := l.normalizer.Normalize(template)
	p, idx := l.rotator.Next(l.pool)

	l.logger.Info("dispatching query",
		"template", template,
		"query", q.Query,
		"position", position+1,
		"proxy_index", idx,
		"proxy", p.Redacted(),
	)

	urls, err := l.backend.Search(ctx, search.Request{
		Query:      q.Query,
		Proxy:      p,
		MaxResults: l.maxResults,
		VerifyTLS:  l.verifyTLS,
	})
	if ctx.Err() != nil {
		return Record{}, true
	}

	if err == nil {
		if len(urls) > l.maxResults {
			urls = urls[:max(l.maxResults, 0)]
		}
		if l.filter != nil {
			urls = l.filter.Apply(urls)
		}
	}

	rec := Record{
		Position: position,
		Template: template,
		Query:    q.Query,
		Proxy:    p,
		Err:      err,
		Outcome:  classify(urls, err, l.verifyTLS),
	}
	if rec.Outcome == OutcomeResults {
		rec.URLs = urls
	}

	switch rec.Outcome {
	case OutcomeResults:
		l.logger.Info("query returned results", "template", template, "urls", len(urls))
	case OutcomeEmpty:
		l.logger.Info("query returned no results", "template", template)
	case OutcomeRecoverable:
		l.logger.Error("query failed, continuing with next template",
			"template", template,
			"proxy", p.Redacted(),
			"error", err,
		)
	case OutcomeFatal:
		// logged by Run together with the hint
	}

	return rec, false
}

// resumeEntry copies template from the resumed report. It reports whether
// the template was found.
func (l *Loop) resumeEntry(report *model.RunReport, template string) bool {
	if l.resume == nil {
		return false
	}
	entry, ok := l.resume.Entry(template)
	if !ok {
		return false
	}
	report.Set(template, entry)
	report.TotalURLs += entry.URLCount
	l.logger.Debug("skipping template from resumed run", "template", template, "urls", entry.URLCount)
	return true
}

// record hands rec to every recorder. Failures are logged, not returned.
func (l *Loop) record(ctx context.Context, rec Record) {
	for _, r := range l.recorders {
		if err := r.Record(ctx, rec); err != nil {
			l.logger.Error("failed to record result", "template", rec.Template, "error", err)
		}
	}
}

func (l *Loop) notifyProgress(p Progress) {
	if l.progress != nil {
		l.progress(p)
	}
}

// abort logs the cancellation and returns ErrAborted.
func (l *Loop) abort(template string) error {
	l.logger.Warn("run aborted by operator", "next_template", template)
	return ErrAborted
}

func outcomeOf(entry model.ResultEntry) Outcome {
	if entry.IsEmpty() {
		return OutcomeEmpty
	}
	return OutcomeResults
}
