// Package apperr holds the error kinds shared by every domain package.
// Package level sentinels wrap one of these so handlers can switch on the
// kind with errors.Is without knowing which package produced the error.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrAuthRequired        = errors.New("authentication required")
	ErrValidation          = errors.New("validation failed")
	ErrRecipientUnresolved = errors.New("recipient could not be resolved")
	ErrNotFound            = errors.New("not found")
	ErrTransport           = errors.New("backend call failed")
)

// Validation returns an ErrValidation carrying a field specific message.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Transport wraps a failed backend call so it matches ErrTransport and still
// unwraps to the underlying driver error.
func Transport(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrTransport, err)
}
