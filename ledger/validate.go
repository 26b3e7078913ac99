package ledger

import (
	"fmt"

	"golang.org/x/exp/constraints"
)

// Byte ceilings of the variable-length fields. Records reserve exactly this
// much space for each field.
const (
	MaxIdentityLen = 64
	MaxHandleLen   = 15
	MaxNameLen     = 50
	MaxContentLen  = 280
)

// Authorize permits an owner-scoped mutation only when caller is the record owner.
func Authorize(owner, caller Identity) error {
	if owner != caller {
		return &Error{
			Kind:  ErrUnauthorized,
			Field: "caller",
			Err:   fmt.Errorf("%q does not own a record held by %q", caller, owner),
		}
	}
	return nil
}

// ValidateLength rejects values longer than max bytes.
func ValidateLength(field, value string, max int) error {
	if len(value) > max {
		return &Error{
			Kind:  ErrContentTooLong,
			Field: field,
			Err:   fmt.Errorf("%d bytes exceeds limit of %d", len(value), max),
		}
	}
	return nil
}

// ValidateIdentity requires a non-empty identity that fits its record slot.
func ValidateIdentity(field string, id Identity) error {
	if id == "" {
		return &Error{Kind: ErrInvalidIdentity, Field: field, Err: fmt.Errorf("identity is empty")}
	}
	if len(id) > MaxIdentityLen {
		return &Error{
			Kind:  ErrInvalidIdentity,
			Field: field,
			Err:   fmt.Errorf("%d bytes exceeds limit of %d", len(id), MaxIdentityLen),
		}
	}
	return nil
}

// increment adds one to a counter, refusing to wrap around.
func increment[T constraints.Unsigned](v T) (T, error) {
	next := v + 1
	if next < v {
		return v, storageErrorf("counter overflow at %d", v)
	}
	return next, nil
}
