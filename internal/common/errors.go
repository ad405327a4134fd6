// Package common defines shared constants and sentinel errors used across
// the lifecycle engine layers. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound    = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrLockLost      = errors.New("reset lock lost")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// Lifecycle taxonomy.
	ErrValidation          = errors.New("validation error")
	ErrStorage             = errors.New("storage error")
	ErrPartialArchive      = errors.New("partial archive failure")
	ErrNotifier            = errors.New("notifier error")
	ErrConcurrencyConflict = errors.New("reset already in progress")

	// ErrMissingTimestamp marks a progress record that lacks a lifecycle
	// timestamp although the user is not brand new.
	ErrMissingTimestamp = errors.New("missing lifecycle timestamp")

	// Startup errors.
	ErrInvalidConfig = errors.New("invalid config")
)
