package credential

import "errors"

var (
	// ErrNoCredential means the user has no active credential for the platform.
	ErrNoCredential = errors.New("no active credential")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)
