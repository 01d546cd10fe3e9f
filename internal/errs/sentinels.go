// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across api/session/sync layers.
var (
	// ErrNotFound indicates the requested entity does not exist on the gateway.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates a missing, expired or rejected credential.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrDuplicate indicates the gateway refused an upload because the
	// document already exists (HTTP 409).
	ErrDuplicate = errors.New("duplicate document")

	// ErrRateLimited indicates the gateway is throttling the caller.
	ErrRateLimited = errors.New("rate limited")

	// ErrUnreachable indicates a transport-level failure before any HTTP
	// status was received.
	ErrUnreachable = errors.New("gateway unreachable")

	// ErrBusy indicates an operation was skipped because an equivalent one
	// is already in flight.
	ErrBusy = errors.New("operation already in flight")

	// ErrNoSession indicates an operation that needs credentials was called
	// without an active session.
	ErrNoSession = errors.New("no active session")
)
