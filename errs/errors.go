// Package errs defines the error kinds shared by every stream type in
// iostream. Errors are sentinel-wrapped so callers can branch with
// errors.Is instead of string matching, the way a library consumed by
// other packages should behave (unlike the teacher's own ad hoc
// fmt.Errorf("err ...") strings, which were fine for an app that only
// ever logged its own errors).
package errs

import "errors"

// Kind identifies one of the eight error categories from the stream
// contracts (spec §4.2, §7).
type Kind int

const (
	KindInvalidArgument Kind = iota
	KindUnreadable
	KindUnwritable
	KindUnseekable
	KindClosed
	KindTimeout
	KindFailure
	KindOutOfBounds
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid argument"
	case KindUnreadable:
		return "unreadable"
	case KindUnwritable:
		return "unwritable"
	case KindUnseekable:
		return "unseekable"
	case KindClosed:
		return "closed"
	case KindTimeout:
		return "timeout"
	case KindFailure:
		return "failure"
	case KindOutOfBounds:
		return "out of bounds"
	default:
		return "unknown"
	}
}

// Error is the concrete error type returned by every operation in this
// module. Cause, when non-nil, is the underlying OS or peer error that
// produced a KindFailure or KindClosed.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Msg == "" {
		e.Msg = e.Kind.String()
	}
	if e.Cause != nil {
		return e.Msg + ": " + e.Cause.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, errs.Timeout) style checks against the
// sentinel values below: two *Error values match if their Kind matches.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New builds an *Error of the given kind with an optional cause.
func New(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

// Sentinels for errors.Is comparisons. Messages are placeholders; real
// errors constructed with New carry their own descriptive Msg/Cause.
var (
	InvalidArgument = &Error{Kind: KindInvalidArgument}
	Unreadable      = &Error{Kind: KindUnreadable}
	Unwritable      = &Error{Kind: KindUnwritable}
	Unseekable      = &Error{Kind: KindUnseekable}
	Closed          = &Error{Kind: KindClosed}
	Timeout         = &Error{Kind: KindTimeout}
	Failure         = &Error{Kind: KindFailure}
	OutOfBounds     = &Error{Kind: KindOutOfBounds}
)

// Is reports whether err carries the given Kind, unwrapping through
// standard library error wrapping.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
