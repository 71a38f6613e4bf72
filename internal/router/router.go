// Package router computes, for one stream of one activity, the set of
// feeds interested in the delivery. It answers "who wants this"; whether
// they may have it is propagation's concern.
package router

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/wakefeed/wake/internal/activity"
	"github.com/wakefeed/wake/internal/assoc"
)

// Route resolves a stream's router against the activity's entities and
// returns the sorted union of per-role recipient sets.
//
// Within one role the references apply strictly left to right: an
// inclusion adds the resolved ids to the role's running set, an exclusion
// removes them. An exclusion only affects ids already present, so a later
// inclusion re-adds anything an earlier exclusion removed. Exclusions are
// scoped to their own role; they never subtract from other roles'
// contributions.
//
// A role without an entity (no target, say) contributes nothing. Any
// association failure aborts routing for this stream only; the caller
// isolates the failure.
func Route(ctx context.Context, sess *assoc.Session, router map[activity.Role][]activity.RouteRef, entities map[activity.Role]*activity.Entity) ([]string, error) {
	union := make(map[string]bool)
	for _, role := range activity.Roles() {
		entity := entities[role]
		if entity == nil {
			continue
		}
		refs := router[role]
		if len(refs) == 0 {
			continue
		}
		running, err := resolveRole(ctx, sess.ContextFor(entity), refs)
		if err != nil {
			return nil, fmt.Errorf("role %s (%s): %w", role, entity.ID, err)
		}
		maps.Copy(union, running)
	}
	return sortedIDs(union), nil
}

func resolveRole(ctx context.Context, ac *assoc.Context, refs []activity.RouteRef) (map[string]bool, error) {
	running := make(map[string]bool)
	for _, ref := range refs {
		ids, err := ac.Get(ctx, ref.Association)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			if ref.Exclude {
				delete(running, id)
			} else {
				running[id] = true
			}
		}
	}
	return running, nil
}

func sortedIDs(set map[string]bool) []string {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
