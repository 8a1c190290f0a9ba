package service

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound    = errors.New("reminder not found")
	ErrAlreadySent = errors.New("reminder already sent")
)

// ValidationError reports bad input to Add. No state was changed.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// StorageError wraps a persistence failure. On a mutating call the in-memory
// state is left as it was before the call.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err carries a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsStorage reports whether err carries a *StorageError.
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
