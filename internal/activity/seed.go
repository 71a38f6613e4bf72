package activity

import (
	"errors"
	"fmt"
)

// ValidationError reports a malformed field on a posted seed. It is a
// client-input error: never queued, never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid activity seed: %s: %s", e.Field, e.Message)
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ValidateSeed checks the shape of a seed before it is accepted for
// delivery. Returns the first violation found.
func ValidateSeed(s *Seed) error {
	if s == nil {
		return &ValidationError{Field: "seed", Message: "must not be nil"}
	}
	if s.ActivityType == "" {
		return &ValidationError{Field: "activity_type", Message: "must not be empty"}
	}
	if s.Verb == "" {
		return &ValidationError{Field: "verb", Message: "must not be empty"}
	}
	if s.Published.IsZero() {
		return &ValidationError{Field: "published", Message: "must be set"}
	}
	if err := validateResource("actor", s.Actor, true); err != nil {
		return err
	}
	if err := validateResource("object", s.Object, true); err != nil {
		return err
	}
	return validateResource("target", s.Target, false)
}

func validateResource(field string, res *SeedResource, required bool) error {
	if res == nil {
		if required {
			return &ValidationError{Field: field, Message: "resource is required"}
		}
		return nil
	}
	if res.ResourceType == "" {
		return &ValidationError{Field: field + ".resource_type", Message: "must not be empty"}
	}
	if res.ResourceID == "" {
		return &ValidationError{Field: field + ".resource_id", Message: "must not be empty"}
	}
	return nil
}
