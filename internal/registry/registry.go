// Package registry holds the process-lifetime tables of registered
// activity types, entity types, associations and stream types. It is
// populated during a defined startup phase, sealed, and then read-only:
// the poster, router and propagation resolver receive it by injection and
// never mutate it.
//
// Registration is not safe for concurrent use; it happens before the
// engine starts. After Seal the registry is immutable and may be read
// from any goroutine.
package registry

import (
	"context"
	"maps"
	"slices"
	"strings"

	"github.com/wakefeed/wake/internal/activity"
	"github.com/wakefeed/wake/internal/assoc"
	"github.com/wakefeed/wake/internal/propagation"
)

// EntityType configures how one resource type turns into persistent
// entities. A nil Producer means activity.DefaultProducer; a nil
// Propagation means the standard-resource rules.
type EntityType struct {
	Producer    activity.ProducerFunc
	Propagation propagation.Func
}

// StreamType configures one delivery channel kind. Transient streams are
// delivered for immediate consumption and never persisted. A nil
// Authorizer leaves the feed readable by anyone the transport admits.
type StreamType struct {
	Transient  bool
	Authorizer activity.FeedAuthorizer
}

// Registry is the startup-time registration surface and the engine's
// read-only lookup table.
type Registry struct {
	sealed        bool
	activityTypes map[string]activity.ActivityTypeSpec
	entityTypes   map[string]EntityType
	associations  map[string]map[string]assoc.Func
	streamTypes   map[string]StreamType
	defaultRouter map[activity.Role][]activity.RouteRef
}

// Option configures a Registry.
type Option func(*Registry)

// WithDefaultRouter overrides the fallback router used by activity-type
// streams that declare no router of their own.
func WithDefaultRouter(router map[activity.Role][]activity.RouteRef) Option {
	return func(r *Registry) {
		r.defaultRouter = router
	}
}

// StockDefaultRouter is the compatibility fallback: the actor's own feed
// and followers, and whatever routes to or is a member of the object and
// target. Associations an entity type never registered resolve to the
// empty set, so this is safe for minimally configured types.
func StockDefaultRouter() map[activity.Role][]activity.RouteRef {
	return map[activity.Role][]activity.RouteRef{
		activity.RoleActor: {
			activity.Include(activity.AssociationSelf),
			activity.Include("followers"),
		},
		activity.RoleObject: {
			activity.Include(propagation.AssociationRoutes),
			activity.Include("members"),
		},
		activity.RoleTarget: {
			activity.Include(propagation.AssociationRoutes),
			activity.Include("members"),
		},
	}
}

// New creates an empty, unsealed registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		activityTypes: make(map[string]activity.ActivityTypeSpec),
		entityTypes:   make(map[string]EntityType),
		associations:  make(map[string]map[string]assoc.Func),
		streamTypes:   make(map[string]StreamType),
		defaultRouter: StockDefaultRouter(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterActivityType registers the streams and aggregation pivots of
// one activity type. A stream with no router falls back to the default
// router at delivery time; a stream that declares a router must declare
// it completely.
func (r *Registry) RegisterActivityType(name string, spec activity.ActivityTypeSpec) error {
	const op = "register activity type"
	if err := r.writable(op, name); err != nil {
		return err
	}
	if name == "" {
		return configErrorf(op, name, "name must not be empty")
	}
	if _, exists := r.activityTypes[name]; exists {
		return configErrorf(op, name, "already registered")
	}
	if len(spec.Streams) == 0 {
		return configErrorf(op, name, "must declare at least one stream")
	}
	for streamName, stream := range spec.Streams {
		if streamName == "" {
			return configErrorf(op, name, "stream name must not be empty")
		}
		for role, refs := range stream.Router {
			if !activity.ValidRoles[role] {
				return configErrorf(op, name, "stream %q: invalid role %q", streamName, role)
			}
			if len(refs) == 0 {
				return configErrorf(op, name, "stream %q role %q: association list must not be empty", streamName, role)
			}
			for _, ref := range refs {
				if ref.Association == "" {
					return configErrorf(op, name, "stream %q role %q: empty association reference", streamName, role)
				}
			}
		}
	}
	for i, pivot := range spec.GroupBy {
		if len(pivot) == 0 {
			return configErrorf(op, name, "group_by[%d]: pivot must name at least one role", i)
		}
		for _, role := range pivot {
			if !activity.ValidRoles[role] {
				return configErrorf(op, name, "group_by[%d]: invalid role %q", i, role)
			}
		}
	}
	r.activityTypes[name] = spec
	return nil
}

// RegisterEntityType registers the producer and propagation for one
// resource type. Types that never register still work through the
// defaults.
func (r *Registry) RegisterEntityType(name string, et EntityType) error {
	const op = "register entity type"
	if err := r.writable(op, name); err != nil {
		return err
	}
	if name == "" {
		return configErrorf(op, name, "name must not be empty")
	}
	if _, exists := r.entityTypes[name]; exists {
		return configErrorf(op, name, "already registered")
	}
	r.entityTypes[name] = et
	return nil
}

// RegisterAssociation registers a named association function for one
// entity type.
func (r *Registry) RegisterAssociation(entityType, name string, fn assoc.Func) error {
	const op = "register association"
	if err := r.writable(op, name); err != nil {
		return err
	}
	if entityType == "" || name == "" {
		return configErrorf(op, name, "entity type and association name must not be empty")
	}
	if name == activity.AssociationSelf {
		return configErrorf(op, name, "%q is synthetic and cannot be registered", activity.AssociationSelf)
	}
	if fn == nil {
		return configErrorf(op, name, "association function must not be nil")
	}
	if _, exists := r.associations[entityType][name]; exists {
		return configErrorf(op, name, "already registered for entity type %q", entityType)
	}
	if r.associations[entityType] == nil {
		r.associations[entityType] = make(map[string]assoc.Func)
	}
	r.associations[entityType][name] = fn
	return nil
}

// RegisterStreamType registers one delivery channel kind.
func (r *Registry) RegisterStreamType(name string, st StreamType) error {
	const op = "register stream type"
	if err := r.writable(op, name); err != nil {
		return err
	}
	if name == "" {
		return configErrorf(op, name, "name must not be empty")
	}
	if strings.Contains(name, "#") {
		return configErrorf(op, name, "stream type name must not contain '#'")
	}
	if _, exists := r.streamTypes[name]; exists {
		return configErrorf(op, name, "already registered")
	}
	r.streamTypes[name] = st
	return nil
}

func (r *Registry) writable(op, name string) error {
	if r.sealed {
		return configErrorf(op, name, "registry is sealed; registration must happen at startup")
	}
	return nil
}

// Seal freezes the registry and cross-checks registrations: every stream
// an activity type delivers to must be a registered stream type, and the
// default router must be well-formed. Sealing twice is a programming
// error.
func (r *Registry) Seal() error {
	const op = "seal registry"
	if r.sealed {
		return configErrorf(op, "", "already sealed")
	}
	for _, name := range slices.Sorted(maps.Keys(r.activityTypes)) {
		spec := r.activityTypes[name]
		for _, streamName := range slices.Sorted(maps.Keys(spec.Streams)) {
			if _, ok := r.streamTypes[streamName]; !ok {
				return configErrorf(op, name, "stream %q has no registered stream type", streamName)
			}
		}
	}
	for role, refs := range r.defaultRouter {
		if !activity.ValidRoles[role] {
			return configErrorf(op, "", "default router: invalid role %q", role)
		}
		for _, ref := range refs {
			if ref.Association == "" {
				return configErrorf(op, "", "default router role %q: empty association reference", role)
			}
		}
	}
	r.sealed = true
	return nil
}

// Sealed reports whether startup registration has finished.
func (r *Registry) Sealed() bool {
	return r.sealed
}

// ActivityType looks up a registered activity type.
func (r *Registry) ActivityType(name string) (activity.ActivityTypeSpec, bool) {
	spec, ok := r.activityTypes[name]
	return spec, ok
}

// ActivityTypeNames returns the registered activity type names, sorted.
func (r *Registry) ActivityTypeNames() []string {
	return slices.Sorted(maps.Keys(r.activityTypes))
}

// StreamType looks up a registered stream type.
func (r *Registry) StreamType(name string) (StreamType, bool) {
	st, ok := r.streamTypes[name]
	return st, ok
}

// StreamTypeNames returns the registered stream type names, sorted.
func (r *Registry) StreamTypeNames() []string {
	return slices.Sorted(maps.Keys(r.streamTypes))
}

// Association implements assoc.Source.
func (r *Registry) Association(entityType, name string) (assoc.Func, bool) {
	fn, ok := r.associations[entityType][name]
	return fn, ok
}

// ProducerFor returns the producer for a resource type, falling back to
// the default producer.
func (r *Registry) ProducerFor(resourceType string) activity.ProducerFunc {
	if et, ok := r.entityTypes[resourceType]; ok && et.Producer != nil {
		return et.Producer
	}
	return activity.DefaultProducer
}

// PropagationFor returns the propagation function for a resource type,
// falling back to the standard-resource rules.
func (r *Registry) PropagationFor(resourceType string) propagation.Func {
	if et, ok := r.entityTypes[resourceType]; ok && et.Propagation != nil {
		return et.Propagation
	}
	return func(_ context.Context, _ *assoc.Context, e *activity.Entity) ([]propagation.Rule, error) {
		return propagation.DefaultRules(e), nil
	}
}

// RouterFor returns the router for one stream spec, falling back to the
// registry's default router when the stream declares none.
func (r *Registry) RouterFor(stream activity.StreamSpec) map[activity.Role][]activity.RouteRef {
	if len(stream.Router) > 0 {
		return stream.Router
	}
	return r.defaultRouter
}
