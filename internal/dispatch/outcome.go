package dispatch

import (
	"context"

	"github.com/nao1215/gdorker/internal/model"
	"github.com/nao1215/gdorker/internal/proxy"
	"github.com/nao1215/gdorker/internal/search"
)

// Outcome classifies the result of one dispatched template.
type Outcome int

const (
	// OutcomeResults means at least one URL survived filtering.
	OutcomeResults Outcome = iota + 1

	// OutcomeEmpty means the backend succeeded but no URL survived,
	// either because there were none or because all were filtered.
	OutcomeEmpty

	// OutcomeRecoverable means the backend failed; the loop continues.
	OutcomeRecoverable

	// OutcomeFatal means the run cannot continue (TLS verification failure).
	OutcomeFatal
)

// String returns the outcome name used in logs.
func (o Outcome) String() string {
	switch o {
	case OutcomeResults:
		return "results"
	case OutcomeEmpty:
		return "empty"
	case OutcomeRecoverable:
		return "failed"
	case OutcomeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Record is what recorders see for every dispatched template.
type Record struct {
	// Position is the template's index in the input.
	Position int

	// Template is the template as read from the input.
	Template string

	// Query is the normalized query sent to the backend.
	Query string

	// Proxy is the egress that was used.
	Proxy proxy.Proxy

	// URLs are the surviving URLs. Empty unless Outcome is OutcomeResults.
	URLs []string

	// Err is the backend error for OutcomeRecoverable and OutcomeFatal.
	Err error

	// Outcome is the classification of this iteration.
	Outcome Outcome
}

// Recorder receives every dispatched template as soon as it finishes.
// Implementations persist incremental output; an error is logged and the run
// continues.
type Recorder interface {
	Record(ctx context.Context, rec Record) error
}

// Finalizer runs once after every template has been processed.
// It is not called for aborted or fatal runs.
type Finalizer interface {
	Finalize(ctx context.Context, report *model.RunReport) error
}

// classify maps a backend reply to an Outcome. urls are the URLs left after
// truncation and filtering.
func classify(urls []string, err error, verifyTLS bool) Outcome {
	switch {
	case err != nil && verifyTLS && search.IsTLSVerificationError(err):
		return OutcomeFatal
	case err != nil:
		return OutcomeRecoverable
	case len(urls) == 0:
		return OutcomeEmpty
	default:
		return OutcomeResults
	}
}

// apply folds rec into report. The entry was initialized to empty before the
// dispatch, so only OutcomeResults changes it.
func apply(report *model.RunReport, rec Record) {
	if rec.Outcome != OutcomeResults {
		return
	}
	entry := model.NewResultEntry(rec.URLs)
	report.Set(rec.Template, entry)
	report.TotalURLs += entry.URLCount
}
