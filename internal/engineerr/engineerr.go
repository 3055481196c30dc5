// Package engineerr provides the engine's single error type, covering
// every category in SPEC_FULL.md §7 with one Kind enum instead of the
// teacher's ad-hoc per-package error structs.
package engineerr

import "fmt"

// Kind classifies an Error for caller dispatch (errors.As + Kind switch).
type Kind int

const (
	// Configuration covers missing/invalid option values and mutually
	// exclusive fields both set. Fatal: the engine refuses to start.
	Configuration Kind = iota
	// Data covers unreadable files, malformed rows, unsupported continuous
	// values, and unknown labels. Fatal.
	Data
	// Precondition covers structural precondition violations: scoring a
	// model with empty weights, duplicate feature definitions. Fatal.
	Precondition
	// Overflow covers J counter exhaustion and oversized slices. Fatal.
	Overflow
	// Convergence covers a loss increase after a step. Non-fatal: handled
	// via undo or learning-rate reduction by the caller.
	Convergence
	// FeatureSkip covers a present-but-empty feature skip during
	// exploration. Non-fatal; counted in exploration statistics.
	FeatureSkip
)

func (k Kind) String() string {
	switch k {
	case Configuration:
		return "configuration"
	case Data:
		return "data"
	case Precondition:
		return "precondition"
	case Overflow:
		return "overflow"
	case Convergence:
		return "convergence"
	case FeatureSkip:
		return "feature_skip"
	default:
		return "unknown"
	}
}

// Fatal reports whether errors of this Kind must abort the running command.
func (k Kind) Fatal() bool {
	switch k {
	case Convergence, FeatureSkip:
		return false
	default:
		return true
	}
}

// Error is the engine's single error type: every failure path wraps into
// one of these so callers can errors.As and switch on Kind, rather than
// type-switching across many per-package error structs.
type Error struct {
	Kind    Kind
	Op      string // the operation that failed, e.g. "world.AddFeatures"
	Message string
	Err     error // wrapped cause, may be nil
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Op, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns an Error with no wrapped cause.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap returns an Error wrapping err.
func Wrap(kind Kind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}
