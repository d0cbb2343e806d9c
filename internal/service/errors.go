package service

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateEmail is returned when registering an email that already has an account.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrInvalidCredentials indicates that provided login credentials are incorrect.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNotFound is returned for notes that do not exist or belong to someone else.
	ErrNotFound = errors.New("not found")
	// ErrStorage tags unexpected failures of the backing store.
	ErrStorage = errors.New("storage error")
)

// ValidationError reports malformed or missing input. It is always returned
// before the store is touched.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

func storageError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}
