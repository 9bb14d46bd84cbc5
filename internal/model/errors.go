package model

import "errors"

// Typed outcomes for the call core. Guard violations are returned as these
// sentinels so callers can resolve them locally instead of treating them as
// opaque failures.
var (
	ErrNotFound        = errors.New("session not found")
	ErrUnauthorized    = errors.New("requester is not authorized for this session")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrConflict        = errors.New("transition rejected for current status")
	ErrAlreadyAnswered = errors.New("session already answered")
	ErrAlreadyEnded    = errors.New("session already ended")

	// ErrHandoffFailed never reaches an EndSession caller; it is recorded
	// on the concluded session as a fallback marker.
	ErrHandoffFailed = errors.New("durable handoff failed")
)
