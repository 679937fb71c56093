package platform

import "errors"

var (
	// ErrUnknownPlatform is returned for a platform with no registered
	// adapter variant.
	ErrUnknownPlatform = errors.New("unknown platform")

	// ErrAuthExpired means the credential is expired and could not be
	// refreshed; the user must reconnect the platform.
	ErrAuthExpired = errors.New("authentication expired, reconnect required")

	// ErrInvalidSignature means webhook verification failed. The payload
	// is rejected at the boundary and never enqueued.
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrTransport is a whole-pull transport failure, retryable through
	// the job queue.
	ErrTransport = errors.New("platform transport failure")

	// ErrUnknownTeam means a webhook event could not be attributed to
	// any connected team; the event is dropped with a warning.
	ErrUnknownTeam = errors.New("no team connected for webhook account")

	// ErrRefreshUnsupported is returned by adapters whose platform does
	// not issue refresh tokens.
	ErrRefreshUnsupported = errors.New("refresh not supported")
)
