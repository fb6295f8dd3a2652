package dispatch

import (
	"errors"
	"fmt"
)

// ErrAborted is returned when the run is cancelled by the operator.
// Incremental output written so far stays valid; finalizers are not run.
var ErrAborted = errors.New("run aborted")

// tlsHint is the remediation advice attached to TLS verification failures.
const tlsHint = "the proxy presented a certificate that cannot be verified; " +
	"fix the proxy certificate or disable verification with --insecure"

// FatalError ends a run early. It carries the template that triggered it
// and a hint for the operator.
type FatalError struct {
	// Template is the template being dispatched when the error occurred.
	Template string

	// Hint describes how to fix the condition.
	Hint string

	// Err is the underlying error.
	Err error
}

// Error implements error.
func (e *FatalError) Error() string {
	msg := fmt.Sprintf("fatal error while dispatching %q: %v", e.Template, e.Err)
	if e.Hint != "" {
		msg += " (" + e.Hint + ")"
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *FatalError) Unwrap() error {
	return e.Err
}
