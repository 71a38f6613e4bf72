package engine

import (
	"errors"
	"fmt"
)

// SeedError is a client-input failure from PostActivity: a malformed seed,
// an unknown activity type, or an engine that can no longer accept work.
// Seed errors are surfaced synchronously and are never queued or retried.
type SeedError struct {
	// Code identifies the rejection category.
	Code SeedErrorCode

	// Message is a human-readable description.
	Message string

	// ActivityType names the posted type, when known.
	ActivityType string

	// Err carries the underlying validation failure, when any.
	Err error
}

// SeedErrorCode categorizes seed rejections.
type SeedErrorCode string

const (
	// ErrCodeInvalidSeed indicates the seed failed shape validation.
	ErrCodeInvalidSeed SeedErrorCode = "INVALID_SEED"

	// ErrCodeUnknownActivityType indicates the seed names an activity type
	// the registry never registered.
	ErrCodeUnknownActivityType SeedErrorCode = "UNKNOWN_ACTIVITY_TYPE"

	// ErrCodeRegistryUnsealed indicates posting before startup registration
	// finished.
	ErrCodeRegistryUnsealed SeedErrorCode = "REGISTRY_UNSEALED"

	// ErrCodeEngineStopped indicates the delivery queue is closed.
	ErrCodeEngineStopped SeedErrorCode = "ENGINE_STOPPED"
)

// Error implements the error interface.
func (e *SeedError) Error() string {
	if e.ActivityType != "" {
		return fmt.Sprintf("%s: %s (activity_type=%s)", e.Code, e.Message, e.ActivityType)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *SeedError) Unwrap() error {
	return e.Err
}

// IsSeedError reports whether err is (or wraps) a SeedError.
func IsSeedError(err error) bool {
	var se *SeedError
	return errors.As(err, &se)
}
