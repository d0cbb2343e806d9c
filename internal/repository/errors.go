package repository

import "errors"

var (
	// ErrNotFound is returned when no row matches a lookup.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateEmail is returned when a user with the same normalized email exists.
	ErrDuplicateEmail = errors.New("email already registered")
)
