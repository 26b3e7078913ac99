package ledger

import (
	"errors"
	"fmt"
)

var (
	ErrStorage         = errors.New("storage_error")
	ErrNotFound        = errors.New("not_found")
	ErrAlreadyExists   = errors.New("already_exists")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrContentTooLong  = errors.New("content_too_long")
	ErrInvalidIdentity = errors.New("invalid_identity")
	// ErrConflict is returned by backends that gave up on an optimistic update.
	ErrConflict = errors.New("conflict")
)

// kinds lists the sentinels KindOf reports, most specific first.
var kinds = []error{
	ErrAlreadyExists,
	ErrNotFound,
	ErrUnauthorized,
	ErrContentTooLong,
	ErrInvalidIdentity,
	ErrConflict,
	ErrStorage,
}

// Error is the typed failure returned by Ledger operations. Kind is one of the
// package sentinels, Field names the offending input and Key the record involved.
type Error struct {
	Kind  error
	Field string
	Key   Key
	Err   error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Field != "" {
		msg += " (field=" + e.Field + ")"
	}
	if e.Key != "" {
		msg += " (key=" + string(e.Key) + ")"
	}
	if e.Err != nil && !errors.Is(e.Err, e.Kind) {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindOf returns the sentinel describing err, or nil if err carries none.
func KindOf(err error) error {
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// fail tags a store or validation error with the field and key it concerns.
// Errors already carrying a kind keep it; anything else becomes ErrStorage.
func fail(field string, key Key, err error) error {
	var le *Error
	if errors.As(err, &le) {
		return err
	}
	kind := KindOf(err)
	if kind == nil {
		kind = ErrStorage
	}
	return &Error{Kind: kind, Field: field, Key: key, Err: err}
}

func storageErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrStorage, fmt.Sprintf(format, args...))
}
