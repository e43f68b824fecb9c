package session

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrValidation is returned for malformed input. Use errors.As with
	// *ValidationError for per-field details.
	ErrValidation = errors.New("validation failed")

	// ErrAccountExists is returned when the email is already registered.
	ErrAccountExists = errors.New("account already exists")

	// ErrRegistrationFailed is returned when registration fails after the input
	// was accepted. No partial account is left behind.
	ErrRegistrationFailed = errors.New("registration failed")

	// ErrInvalidCredentials is the single, uniform login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidToken covers bad signatures, expiry, unknown subjects and
	// refresh tokens that are no longer the current one.
	ErrInvalidToken = errors.New("invalid token")

	// ErrNotFound is returned when an account does not exist.
	ErrNotFound = errors.New("account not found")

	ErrEncryption = errors.New("field encryption failed")
	ErrDecryption = errors.New("field decryption failed")

	// ErrStoreUnavailable reports that a backing store could not serve the
	// request. Callers may retry.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrConfig is returned for invalid configuration and is fatal at startup.
	ErrConfig = errors.New("invalid config")
)

// ValidationError carries per-field messages keyed by the JSON field name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalidField(field, msg string) error {
	return &ValidationError{Fields: map[string]string{field: msg}}
}
