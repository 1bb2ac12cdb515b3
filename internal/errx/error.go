// Package errx holds the error taxonomy shared by the reconciliation engine
// and its adapters.
package errx

import (
	stderrors "errors"
	"fmt"

	"github.com/pkg/errors"
)

type Kind string

const (
	KindExtraction      Kind = "extraction"
	KindCatalog         Kind = "catalog"
	KindBackend         Kind = "backend"
	KindSessionNotFound Kind = "session_not_found"
	KindDuplicate       Kind = "duplicate_invoice"
	KindInvalidChoice   Kind = "invalid_choice"
	KindValidation      Kind = "validation"
	KindStorage         Kind = "storage"
)

// Sentinels for errors.Is; matching is by kind only.
var (
	ErrExtraction      = &Error{Kind: KindExtraction}
	ErrCatalog         = &Error{Kind: KindCatalog}
	ErrBackend         = &Error{Kind: KindBackend}
	ErrSessionNotFound = &Error{Kind: KindSessionNotFound}
	ErrDuplicate       = &Error{Kind: KindDuplicate}
	ErrInvalidChoice   = &Error{Kind: KindInvalidChoice}
	ErrValidation      = &Error{Kind: KindValidation}
	ErrStorage         = &Error{Kind: KindStorage}
)

type Error struct {
	Kind      Kind
	Message   string
	Err       error
	Transient bool
	stack     errors.StackTrace
}

func (e *Error) Error() string {
	switch {
	case e.Err == nil && e.Message == "":
		return string(e.Kind)
	case e.Err == nil:
		return e.Message
	case e.Message == "":
		return e.Err.Error()
	default:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// StackTrace satisfies the pkg/errors stackTracer contract so %+v prints
// the origin of the failure.
func (e *Error) StackTrace() errors.StackTrace {
	return e.stack
}

func (e *Error) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			fmt.Fprintf(s, "%s [%s]", e.Error(), e.Kind)
			e.stack.Format(s, verb)
			return
		}
		fallthrough
	case 's':
		fmt.Fprint(s, e.Error())
	case 'q':
		fmt.Fprintf(s, "%q", e.Error())
	}
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, stack: callers()}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

func Wrap(err error, kind Kind, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Err: err, Transient: Transient(err), stack: callers()}
}

// MarkTransient flags the error as safe to retry.
func (e *Error) MarkTransient() *Error {
	e.Transient = true
	return e
}

func IsKind(err error, kind Kind) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Transient reports whether any error in the chain was marked retryable.
func Transient(err error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Transient {
			return true
		}
		err = stderrors.Unwrap(err)
	}
	return false
}

func callers() errors.StackTrace {
	type stackTracer interface {
		StackTrace() errors.StackTrace
	}
	st := errors.New("").(stackTracer).StackTrace()
	if len(st) > 2 {
		return st[2:]
	}
	return st
}
