package iop

import (
	"errors"
	"fmt"
)

// ErrorKind classifies the failures that the bridge reports to its callers.
type ErrorKind int

// The kinds of errors that can be reported.
const (
	KindNone ErrorKind = iota
	InvalidOperation
	AlignmentViolation
	TransportFailure
	ProtocolViolation
	SequencingFailure
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case InvalidOperation:
		return "invalid operation"
	case AlignmentViolation:
		return "alignment violation"
	case TransportFailure:
		return "transport failure"
	case ProtocolViolation:
		return "protocol violation"
	case SequencingFailure:
		return "sequencing failure"
	default:
		return fmt.Sprintf("error kind %d", int(k))
	}
}

// Error is an error with a kind attached. Op names the operation that failed
// and Err, if set, is the underlying cause.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

// Sentinel errors that match any Error of the same kind with errors.Is.
var (
	ErrInvalidOperation   = &Error{Kind: InvalidOperation}
	ErrAlignmentViolation = &Error{Kind: AlignmentViolation}
	ErrTransportFailure   = &Error{Kind: TransportFailure}
	ErrProtocolViolation  = &Error{Kind: ProtocolViolation}
	ErrSequencingFailure  = &Error{Kind: SequencingFailure}
)

// NewError creates an error of the given kind.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf creates an error of the given kind with a formatted cause.
func Errorf(kind ErrorKind, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	switch {
	case e.Op == "" && e.Err == nil:
		return e.Kind.String()
	case e.Err == nil:
		return e.Op + ": " + e.Kind.String()
	case e.Op == "":
		return e.Kind.String() + ": " + e.Err.Error()
	default:
		return e.Op + ": " + e.Kind.String() + ": " + e.Err.Error()
	}
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a bare sentinel of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

// KindOf returns the kind of the first Error in err's chain, or KindNone.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return KindNone
}
