// Package common defines shared constants and sentinel errors used across
// creditkeeper components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Inbound notification errors.
	ErrVerificationFailure = errors.New("verification failure")
	ErrMalformedEvent      = errors.New("malformed event")
	ErrIgnoredEvent        = errors.New("ignored event")

	// Referential gaps between the providers and the local store.
	ErrUnknownBuyer = errors.New("unknown buyer")
	ErrUnknownUser  = errors.New("unknown user")

	// Handle allocation errors.
	ErrValidation           = errors.New("validation error")
	ErrConflict             = errors.New("conflict")
	ErrHandleAlreadyClaimed = errors.New("handle already claimed")

	// ErrTransientInfra marks store or provider failures worth a retry.
	ErrTransientInfra = errors.New("transient infrastructure failure")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
)
