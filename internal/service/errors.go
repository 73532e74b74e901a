package service

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrValidation          = errors.New("validation error")
	ErrConflict            = errors.New("email already registered")
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrNotFound            = errors.New("not found")
	ErrForbidden           = errors.New("forbidden")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrProviderUnavailable = errors.New("identity provider unavailable")
)

// BanError is returned by sign-in paths for a banned account. It matches
// ErrForbidden under errors.Is.
type BanError struct {
	Reason string
	Until  *time.Time
}

func (e *BanError) Error() string {
	msg := "account is banned"
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Until != nil {
		msg += fmt.Sprintf(" (until %s)", e.Until.UTC().Format(time.RFC3339))
	}
	return msg
}

func (e *BanError) Unwrap() error { return ErrForbidden }

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
