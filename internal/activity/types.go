package activity

import (
	"context"
	"time"
)

// Role identifies which slot of an activity an entity occupies.
type Role string

const (
	RoleActor  Role = "actor"
	RoleObject Role = "object"
	RoleTarget Role = "target"
)

// Roles returns all roles in canonical order (actor, object, target).
func Roles() []Role {
	return []Role{RoleActor, RoleObject, RoleTarget}
}

// ValidRoles defines the allowed role names.
var ValidRoles = map[Role]bool{
	RoleActor:  true,
	RoleObject: true,
	RoleTarget: true,
}

// Seed is the raw, unprocessed description of a domain event. It is
// created by a domain collaborator at the moment of the event, consumed
// exactly once by the poster, and never mutated.
type Seed struct {
	ActivityType string        `json:"activity_type"`
	Verb         string        `json:"verb"`
	Published    time.Time     `json:"published"`
	Actor        *SeedResource `json:"actor"`
	Object       *SeedResource `json:"object"`
	Target       *SeedResource `json:"target,omitempty"`
}

// Resource returns the seed resource occupying the given role, or nil.
func (s *Seed) Resource(role Role) *SeedResource {
	switch role {
	case RoleActor:
		return s.Actor
	case RoleObject:
		return s.Object
	case RoleTarget:
		return s.Target
	default:
		return nil
	}
}

// SeedResource describes one actor/object/target before entity production.
// Data is opaque to the engine and is carried into the produced entity.
type SeedResource struct {
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	Data         map[string]any `json:"data,omitempty"`
}

// Entity is the durable, propagation-aware representation of an
// actor/object/target. Immutable once produced; never re-derived for the
// same seed.
type Entity struct {
	ID         string         `json:"id"`
	ObjectType string         `json:"objectType"`
	Data       map[string]any `json:"data,omitempty"`
}

// Clone returns a copy with its own Data map. Values inside Data are
// shared; the engine treats them as read-only.
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}
	out := &Entity{ID: e.ID, ObjectType: e.ObjectType}
	if e.Data != nil {
		out.Data = make(map[string]any, len(e.Data))
		for k, v := range e.Data {
			out.Data[k] = v
		}
	}
	return out
}

// ProducerFunc turns a seed resource into a persistent entity. Producers
// may perform I/O (for example, loading a full profile) and must honor ctx.
type ProducerFunc func(ctx context.Context, res *SeedResource) (*Entity, error)

// DefaultProducer copies the seed resource data, strips any stray
// resource_type/resource_id keys, and injects the canonical id and
// objectType. Used for every entity type that registers no producer.
func DefaultProducer(_ context.Context, res *SeedResource) (*Entity, error) {
	data := make(map[string]any, len(res.Data))
	for k, v := range res.Data {
		data[k] = v
	}
	delete(data, "resource_type")
	delete(data, "resource_id")
	if len(data) == 0 {
		data = nil
	}
	return &Entity{
		ID:         res.ResourceID,
		ObjectType: res.ResourceType,
		Data:       data,
	}, nil
}

// FeedAuthorizer decides whether a principal may read the feed owned by
// the given resource. A nil error grants access.
type FeedAuthorizer func(ctx context.Context, principalID, ownerResourceID string) error

// Pivot is a set of roles whose entity ids form an aggregation axis.
// Two deliveries aggregate when their pivot entity ids match exactly.
type Pivot []Role

// ActivityTypeSpec declares the streams an activity type delivers to and
// how repeated activities of this type aggregate.
//
// An empty GroupBy pivots on all three roles, so only exact-duplicate
// activities collapse into one feed entry.
type ActivityTypeSpec struct {
	Streams map[string]StreamSpec `json:"streams"`
	GroupBy []Pivot               `json:"group_by,omitempty"`
}

// StreamSpec declares the router for one stream of one activity type:
// an ordered list of association references per role.
type StreamSpec struct {
	Router map[Role][]RouteRef `json:"router"`
}
