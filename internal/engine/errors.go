package engine

import (
	"errors"
	"fmt"
)

// Kind classifies an operation failure. Callers surface each kind as a
// distinct response category; messages stay human-readable and never leak
// identifiers beyond what the caller already supplied.
type Kind int

const (
	KindUnexpected Kind = iota // anything else, incl. persistence failures
	KindUnauthorized
	KindNotFound
	KindConflict
	KindInvalidState
)

// Error is a classified operation failure.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the kind from an error, defaulting to KindUnexpected.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnexpected
}

func unauthorized(format string, args ...any) error {
	return &Error{Kind: KindUnauthorized, Msg: fmt.Sprintf(format, args...)}
}

func notFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

func conflict(format string, args ...any) error {
	return &Error{Kind: KindConflict, Msg: fmt.Sprintf(format, args...)}
}

func invalidState(format string, args ...any) error {
	return &Error{Kind: KindInvalidState, Msg: fmt.Sprintf(format, args...)}
}

func unexpected(msg string, err error) error {
	return &Error{Kind: KindUnexpected, Msg: msg, Err: err}
}
