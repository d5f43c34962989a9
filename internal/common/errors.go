// Package common defines shared constants and sentinel errors used across
// dropserve components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound       = errors.New("not found")
	ErrDuplicateToken = errors.New("duplicate token")
	ErrAlreadySet     = errors.New("access secret already set")

	// Service-level errors.
	ErrNoFile     = errors.New("no file supplied")
	ErrBadRequest = errors.New("bad request")
	ErrStorage    = errors.New("storage failure")

	// ErrInconsistent reports a metadata record whose blob is missing.
	// It indicates a prior reconciliation failure and is never retried.
	ErrInconsistent = errors.New("metadata and blob storage inconsistent")

	// Auth errors (invalid or malformed upload token).
	ErrInvalidToken = errors.New("invalid token")
)
