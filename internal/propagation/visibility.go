package propagation

import (
	"fmt"

	"github.com/wakefeed/wake/internal/activity"
)

// Visibility defines who may see a resource, before any explicit
// membership is consulted.
type Visibility string

const (
	// VisibilityPublic resources are visible to anyone, including
	// anonymous principals on other tenants.
	VisibilityPublic Visibility = "public"

	// VisibilityLoggedIn resources are visible to any authenticated
	// principal of the resource's own tenant.
	VisibilityLoggedIn Visibility = "loggedin"

	// VisibilityPrivate resources are visible to explicit members and
	// routes only. This is the default when a resource declares nothing.
	VisibilityPrivate Visibility = "private"
)

// Joinable defines whether principals can join a resource themselves.
type Joinable string

const (
	JoinableYes     Joinable = "yes"
	JoinableNo      Joinable = "no"
	JoinableRequest Joinable = "request"
)

// ValidateVisibility checks v against the known visibility values.
// Empty is valid and defaults to private.
func ValidateVisibility(v string) error {
	switch Visibility(v) {
	case VisibilityPublic, VisibilityLoggedIn, VisibilityPrivate, "":
		return nil
	default:
		return fmt.Errorf("invalid visibility %q: must be public, loggedin, or private", v)
	}
}

// ValidateJoinable checks j against the known joinable values.
// Empty is valid and defaults to no.
func ValidateJoinable(j string) error {
	switch Joinable(j) {
	case JoinableYes, JoinableNo, JoinableRequest, "":
		return nil
	default:
		return fmt.Errorf("invalid joinable %q: must be yes, no, or request", j)
	}
}

// VisibilityOf reads the entity's declared visibility, defaulting to
// private. Unknown values also fall back to private: failing closed beats
// leaking a mislabeled resource.
func VisibilityOf(e *activity.Entity) Visibility {
	raw, _ := e.Data["visibility"].(string)
	switch v := Visibility(raw); v {
	case VisibilityPublic, VisibilityLoggedIn, VisibilityPrivate:
		return v
	default:
		return VisibilityPrivate
	}
}

// JoinableOf reads the entity's declared joinability, defaulting to no.
func JoinableOf(e *activity.Entity) Joinable {
	raw, _ := e.Data["joinable"].(string)
	switch j := Joinable(raw); j {
	case JoinableYes, JoinableNo, JoinableRequest:
		return j
	default:
		return JoinableNo
	}
}
