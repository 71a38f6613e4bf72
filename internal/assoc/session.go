// Package assoc provides the per-post association resolution layer: a
// session scoped to one activity post, handing out memoizing contexts
// bound to one persistent entity each. Resolved association sets are
// cached so an activity with several streams never resolves the same
// (entity, association) pair twice, and cached values are cloned on both
// store and return so caller mutation can never corrupt later lookups.
package assoc

import (
	"context"
	"log/slog"
	"slices"

	"github.com/wakefeed/wake/internal/activity"
)

// Func resolves one named association for one entity into a set of
// recipient ids. Implementations may perform I/O and may resolve other
// associations through the supplied context.
type Func func(ctx context.Context, ac *Context, entity *activity.Entity) ([]string, error)

// Source looks up registered association functions. Implemented by the
// registry; an interface here keeps this package free of registry wiring.
type Source interface {
	Association(entityType, name string) (Func, bool)
}

// Session owns the association contexts for one in-flight activity post.
// It is exclusively owned by that post and is not safe for concurrent use.
type Session struct {
	source   Source
	logger   *slog.Logger
	contexts map[string]*Context
}

// NewSession creates a session over the given association source.
func NewSession(source Source, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		source:   source,
		logger:   logger,
		contexts: make(map[string]*Context),
	}
}

// ContextFor returns the context bound to the given entity, creating it on
// first use. The same (objectType, id) pair always yields the same context
// within one session, which is what makes memoization effective across
// streams and roles.
func (s *Session) ContextFor(entity *activity.Entity) *Context {
	key := entity.ObjectType + "\x00" + entity.ID
	if ac, ok := s.contexts[key]; ok {
		return ac
	}
	ac := &Context{
		session:   s,
		entity:    entity,
		memo:      make(map[string]memoEntry),
		resolving: make(map[string]bool),
	}
	s.contexts[key] = ac
	return ac
}

// Context resolves associations for one persistent entity, memoizing
// results for the lifetime of the session.
type Context struct {
	session   *Session
	entity    *activity.Entity
	memo      map[string]memoEntry
	resolving map[string]bool
}

type memoEntry struct {
	ids []string
	err error
}

// Entity returns the persistent entity this context is bound to.
func (c *Context) Entity() *activity.Entity {
	return c.entity
}

// Get resolves the named association for this context's entity.
//
// The first call invokes the registered association function and caches
// the outcome; later calls return the cached outcome without I/O. The
// returned slice is a fresh copy on every call. The synthetic "self"
// association resolves to the entity's own id without registration. An
// unregistered name resolves to the empty set so sparse entity types still
// work with the default router.
func (c *Context) Get(ctx context.Context, name string) ([]string, error) {
	if entry, ok := c.memo[name]; ok {
		if entry.err != nil {
			return nil, entry.err
		}
		return slices.Clone(entry.ids), nil
	}

	if c.resolving[name] {
		return nil, &CycleError{
			EntityType:  c.entity.ObjectType,
			EntityID:    c.entity.ID,
			Association: name,
		}
	}

	entry := c.resolve(ctx, name)
	c.memo[name] = entry
	if entry.err != nil {
		return nil, entry.err
	}
	return slices.Clone(entry.ids), nil
}

func (c *Context) resolve(ctx context.Context, name string) memoEntry {
	if name == activity.AssociationSelf {
		return memoEntry{ids: []string{c.entity.ID}}
	}

	fn, ok := c.session.source.Association(c.entity.ObjectType, name)
	if !ok {
		c.session.logger.Debug("association not registered, resolving to empty set",
			"entity_type", c.entity.ObjectType,
			"association", name)
		return memoEntry{ids: []string{}}
	}

	c.resolving[name] = true
	defer delete(c.resolving, name)

	ids, err := fn(ctx, c, c.entity)
	if err != nil {
		return memoEntry{err: &ResolveError{
			EntityType:  c.entity.ObjectType,
			EntityID:    c.entity.ID,
			Association: name,
			Err:         err,
		}}
	}
	return memoEntry{ids: slices.Clone(ids)}
}
