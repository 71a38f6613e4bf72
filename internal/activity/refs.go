package activity

import (
	"fmt"
	"strings"
)

// AssociationSelf is the synthetic association that resolves to the
// entity's own id. It needs no registration.
const AssociationSelf = "self"

// exclusionMarker prefixes an association reference that removes ids from
// the role's running set instead of adding them.
const exclusionMarker = "^"

// RouteRef is one parsed association reference in a router list.
// The textual form "name" includes, "^name" excludes. Parsing happens
// exactly once, at registration time, never per activity.
type RouteRef struct {
	Association string `json:"association"`
	Exclude     bool   `json:"exclude,omitempty"`
}

// Include builds an inclusion reference.
func Include(association string) RouteRef {
	return RouteRef{Association: association}
}

// Exclude builds an exclusion reference.
func Exclude(association string) RouteRef {
	return RouteRef{Association: association, Exclude: true}
}

// ParseRouteRef parses the textual "name" / "^name" form.
func ParseRouteRef(raw string) (RouteRef, error) {
	name, excluded := strings.CutPrefix(raw, exclusionMarker)
	if name == "" {
		return RouteRef{}, fmt.Errorf("association reference %q: empty association name", raw)
	}
	if strings.HasPrefix(name, exclusionMarker) {
		return RouteRef{}, fmt.Errorf("association reference %q: repeated exclusion marker", raw)
	}
	return RouteRef{Association: name, Exclude: excluded}, nil
}

// ParseRouteRefs parses an ordered reference list, preserving order.
func ParseRouteRefs(raw []string) ([]RouteRef, error) {
	refs := make([]RouteRef, 0, len(raw))
	for i, r := range raw {
		ref, err := ParseRouteRef(r)
		if err != nil {
			return nil, fmt.Errorf("reference %d: %w", i, err)
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// String renders the reference back to its textual form.
func (r RouteRef) String() string {
	if r.Exclude {
		return exclusionMarker + r.Association
	}
	return r.Association
}
