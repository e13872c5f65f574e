package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error so handlers can pick a response status and
// operators can tell caller mistakes from engine bugs.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindStateConflict
	KindAuthorization
	KindPolicy
	KindInvariant
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindStateConflict:
		return "state_conflict"
	case KindAuthorization:
		return "authorization"
	case KindPolicy:
		return "policy"
	case KindInvariant:
		return "invariant_violation"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Validationf(format string, args ...any) *Error {
	return newf(KindValidation, format, args...)
}

func NotFoundf(format string, args ...any) *Error {
	return newf(KindNotFound, format, args...)
}

func StateConflictf(format string, args ...any) *Error {
	return newf(KindStateConflict, format, args...)
}

func Authorizationf(format string, args ...any) *Error {
	return newf(KindAuthorization, format, args...)
}

func Policyf(format string, args ...any) *Error {
	return newf(KindPolicy, format, args...)
}

// Invariantf marks a condition that validated callers should have made
// impossible: a tripped balance guard after validation, or a conservation
// mismatch. Callers log these loudly.
func Invariantf(format string, args ...any) *Error {
	return newf(KindInvariant, format, args...)
}

// KindOf returns the kind of err, or KindUnknown for plain errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func IsKind(err error, kind Kind) bool { return KindOf(err) == kind }
