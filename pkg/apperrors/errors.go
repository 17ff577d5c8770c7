package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrValidation    = errors.New("validation failed")
	ErrHQLGeneration = errors.New("hql generation failed")
	ErrCache         = errors.New("cache unavailable")
)

// Validationf wraps ErrValidation with a user-facing message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFoundf wraps ErrNotFound with a user-facing message.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Conflictf wraps ErrConflict with a user-facing message.
func Conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// HQLGenerationf wraps ErrHQLGeneration with a user-facing message.
func HQLGenerationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrHQLGeneration, fmt.Sprintf(format, args...))
}

// ErrorType returns the machine-readable error class carried in API error
// envelopes. Anything unrecognized classifies as server_error.
func ErrorType(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrHQLGeneration):
		return "hql_generation_error"
	default:
		return "server_error"
	}
}
