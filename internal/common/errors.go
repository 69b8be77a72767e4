// Package common defines shared constants and sentinel errors used across
// vaultcore layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Naming and key collisions. ErrNameConflict covers folder/tag naming,
	// ErrDuplicateData covers credential/file duplicate keys.
	ErrNameConflict  = errors.New("name already taken")
	ErrDuplicateData = errors.New("duplicate data")

	// Structural violations: folder cycles, wrong-kind parents, empty updates.
	ErrInvalidOperation = errors.New("invalid operation")

	// Storage quota exhausted on item creation.
	ErrQuotaExceeded = errors.New("storage quota exceeded")

	// Service-level errors (generic/internal flow control).
	ErrInternal     = errors.New("internal error")
	ErrUnauthorized = errors.New("unauthorized")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
)
