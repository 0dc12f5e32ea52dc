// Package common defines shared constants and sentinel errors used across
// the client and backbone layers. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// ErrObjectDeleted is returned when an object id refers to a local tombstone.
	ErrObjectDeleted = errors.New("object deleted")

	// Service-level errors (generic/internal flow control).
	ErrorInternal      = errors.New("internal error")
	ErrorUnauthorized  = errors.New("unauthorized")
	ErrVersionConflict = errors.New("version conflict")

	// Domain errors. Validation covers malformed input, integrity covers
	// references to missing objects and broken succession chains.
	ErrValidation = errors.New("validation error")
	ErrIntegrity  = errors.New("integrity error")

	// ErrUnknownEventType marks external events this client cannot interpret.
	ErrUnknownEventType = errors.New("unknown event type")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
	ErrInvalidCredentials = errors.New("invalid credentials")
)
