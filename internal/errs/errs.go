// Package errs defines the error taxonomy shared by the region-mapping and
// difference-classification code.
//
// Every failure carries a Kind. Callers match on kind with errors.Is against
// the exported sentinels:
//
//	if errors.Is(err, errs.ErrDimensionMismatch) { ... }
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	InvalidTransform Kind = iota + 1
	DimensionMismatch
	EmptyRegion
	OutOfBounds
)

func (k Kind) String() string {
	switch k {
	case InvalidTransform:
		return "invalid transform"
	case DimensionMismatch:
		return "dimension mismatch"
	case EmptyRegion:
		return "empty region"
	case OutOfBounds:
		return "out of bounds"
	default:
		return "unknown"
	}
}

// Error is a typed failure from a core operation.
type Error struct {
	Kind   Kind
	Op     string // operation that failed, e.g. "MapToTestSpace"
	Detail string
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Is matches any *Error of the same kind, so the sentinels below work with
// errors.Is regardless of Op and Detail.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrInvalidTransform  = &Error{Kind: InvalidTransform}
	ErrDimensionMismatch = &Error{Kind: DimensionMismatch}
	ErrEmptyRegion       = &Error{Kind: EmptyRegion}
	ErrOutOfBounds       = &Error{Kind: OutOfBounds}
)

// New builds an *Error with a formatted detail message.
func New(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Detail: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err, or 0 when err does not wrap an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
