package session

import "errors"

var (
	// ErrSessionNotFound is returned when no session exists for a
	// connection.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidInput is returned when required session fields are
	// missing.
	ErrInvalidInput = errors.New("invalid input")
)
