package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("validation failed")
	ErrStorage         = errors.New("storage error")
	ErrExternalService = errors.New("external service error")
	ErrConflict        = errors.New("already exists")
)

// Storage marks err as a failure reading or writing persisted rows.
// ErrNotFound passes through unchanged so callers can still map it to 404.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

// Conflict marks a write rejected because the row already exists.
func Conflict(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrConflict, op, err)
}

// External marks err as a failure of an outbound provider call.
func External(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrExternalService, op, err)
}

func Validation(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

func Validationf(format string, args ...any) error {
	return Validation(fmt.Sprintf(format, args...))
}
