// Package apperr holds the error taxonomy shared by every session-core operation.
//
// Callers branch on the sentinel with errors.Is or on the stable string returned by
// KindOf; message text is for humans only.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrNoWorkerAvailable = errors.New("no worker available")
	ErrInvalidState      = errors.New("invalid state")
	ErrForbidden         = errors.New("forbidden")
	ErrAlreadyExists     = errors.New("already exists")
	ErrValidation        = errors.New("validation failed")
	ErrUnauthenticated   = errors.New("unauthenticated")
)

type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindNoWorkerAvailable Kind = "no_worker_available"
	KindInvalidState      Kind = "invalid_state"
	KindForbidden         Kind = "forbidden"
	KindAlreadyExists     Kind = "already_exists"
	KindValidation        Kind = "validation_error"
	KindUnauthenticated   Kind = "unauthenticated"
	KindInternal          Kind = "internal"
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrNotFound, KindNotFound},
	{ErrNoWorkerAvailable, KindNoWorkerAvailable},
	{ErrInvalidState, KindInvalidState},
	{ErrForbidden, KindForbidden},
	{ErrAlreadyExists, KindAlreadyExists},
	{ErrValidation, KindValidation},
	{ErrUnauthenticated, KindUnauthenticated},
}

// KindOf reports the taxonomy kind of err. Anything outside the taxonomy is internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

func NotFound(format string, args ...any) error {
	return wrap(ErrNotFound, format, args...)
}

func InvalidState(format string, args ...any) error {
	return wrap(ErrInvalidState, format, args...)
}

func Forbidden(format string, args ...any) error {
	return wrap(ErrForbidden, format, args...)
}

func AlreadyExists(format string, args ...any) error {
	return wrap(ErrAlreadyExists, format, args...)
}

func Validation(format string, args ...any) error {
	return wrap(ErrValidation, format, args...)
}

func wrap(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}
