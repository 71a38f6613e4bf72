package assoc

import (
	"errors"
	"fmt"
)

// CycleError reports an association function that resolved itself,
// directly or transitively, on the same entity within one session.
type CycleError struct {
	EntityType  string
	EntityID    string
	Association string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("association cycle: %q on %s %s resolves itself",
		e.Association, e.EntityType, e.EntityID)
}

// IsCycleError reports whether err is (or wraps) a CycleError.
func IsCycleError(err error) bool {
	var ce *CycleError
	return errors.As(err, &ce)
}

// ResolveError wraps a failure from a registered association function with
// the entity and association it was resolving.
type ResolveError struct {
	EntityType  string
	EntityID    string
	Association string
	Err         error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("resolve association %q on %s %s: %v",
		e.Association, e.EntityType, e.EntityID, e.Err)
}

func (e *ResolveError) Unwrap() error {
	return e.Err
}
