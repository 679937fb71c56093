package graph

import "errors"

var (
	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrTeamNotFound is returned when the team doesn't exist.
	ErrTeamNotFound = errors.New("team not found")

	// ErrNodeNotFound is returned when the node doesn't exist in the team.
	ErrNodeNotFound = errors.New("node not found")
)
