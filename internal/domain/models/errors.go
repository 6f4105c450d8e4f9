package models

import "errors"

var (
	// ErrCapacityExceeded signals the global connection cap was reached.
	ErrCapacityExceeded = errors.New("connection capacity exceeded")

	// ErrAlertLimitReached signals the owner's active-alert cap was reached.
	ErrAlertLimitReached = errors.New("active alert limit reached")

	// ErrUnknownConnection signals an operation on a handle the registry
	// does not know (already deregistered or never registered).
	ErrUnknownConnection = errors.New("unknown connection")

	// ErrAlertNotFound signals a missing alert or one owned by another user.
	ErrAlertNotFound = errors.New("alert not found")

	// ErrSymbolNotFound signals the price source has no record for a symbol.
	ErrSymbolNotFound = errors.New("symbol not found")

	// ErrDraining signals the registry no longer accepts registrations.
	ErrDraining = errors.New("registry is draining")
)
