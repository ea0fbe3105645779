package services

import "errors"

// Sentinel error kinds. Services wrap these with %w and a human message;
// the HTTP layer maps each kind to a status and a stable machine string.
var (
	ErrValidation      = errors.New("validation error")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrInvalidState    = errors.New("invalid state")
	ErrStorage         = errors.New("storage error")
	ErrUnauthenticated = errors.New("unauthenticated")
)
