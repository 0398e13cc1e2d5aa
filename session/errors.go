package session

import "errors"

// ErrorKind classifies pipeline errors for the caller. Every kind is
// recoverable; nothing in the pipeline is allowed to wedge a session.
type ErrorKind string

const (
	// InputError: malformed or missing raw sample, rejected synchronously
	// with no state change.
	InputError ErrorKind = "input"
	// PreconditionError: the data cannot support training, rejected before
	// any network is built.
	PreconditionError ErrorKind = "precondition"
	// ConcurrencyError: training requested while a job is in flight.
	ConcurrencyError ErrorKind = "concurrency"
	// StateError: the operation is not legal in the current state.
	StateError ErrorKind = "state"
)

// Stable rejection reasons surfaced to the caller.
const (
	ReasonClassCapReached        = "class cap reached"
	ReasonMissingLabel           = "missing label"
	ReasonRaggedPixelGrid        = "ragged pixel grid"
	ReasonMismatchedColumnCount  = "mismatched column count"
	ReasonInsufficientSamples    = "insufficient samples"
	ReasonInsufficientClasses    = "insufficient classes"
	ReasonInsufficientVocabulary = "insufficient vocabulary"
	ReasonTrainingInProgress     = "training already in progress"
	ReasonModelNotReady          = "model not ready"
	ReasonEmptyInput             = "empty input"
	ReasonTrainingFailed         = "training failed"
)

// Error is a structured, recoverable pipeline error.
type Error struct {
	Kind   ErrorKind `json:"kind"`
	Reason string    `json:"reason"`
}

func (e *Error) Error() string { return string(e.Kind) + ": " + e.Reason }

func inputErr(reason string) *Error        { return &Error{Kind: InputError, Reason: reason} }
func preconditionErr(reason string) *Error { return &Error{Kind: PreconditionError, Reason: reason} }
func concurrencyErr(reason string) *Error  { return &Error{Kind: ConcurrencyError, Reason: reason} }
func stateErr(reason string) *Error        { return &Error{Kind: StateError, Reason: reason} }

// KindOf extracts the ErrorKind from an error chain, or "" for errors that
// did not originate in the pipeline taxonomy.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// ReasonOf extracts the stable reason, falling back to the error text.
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
