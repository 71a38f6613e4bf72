package engine

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/wakefeed/wake/internal/activity"
	"github.com/wakefeed/wake/internal/aggregate"
	"github.com/wakefeed/wake/internal/assoc"
	"github.com/wakefeed/wake/internal/propagation"
	"github.com/wakefeed/wake/internal/router"
	"github.com/wakefeed/wake/internal/store"
)

// processSeed drives one accepted seed through entity production, routing,
// propagation and aggregation. Called only from the Run goroutine.
//
// Failure isolation: entity production or propagation-rule derivation
// failures drop the whole seed (logged); a routing or propagation check
// failure on one stream skips that stream only, and a delivery failure
// skips that recipient only.
func (e *Engine) processSeed(ctx context.Context, seed *activity.Seed) {
	spec, ok := e.registry.ActivityType(seed.ActivityType)
	if !ok {
		e.logger.Error("unregistered activity type in queue", "type", seed.ActivityType)
		return
	}

	e.logger.Debug("processing activity",
		"type", seed.ActivityType,
		"verb", seed.Verb,
		"actor", seed.Actor.ResourceID,
		"object", seed.Object.ResourceID)

	entities, err := e.produceEntities(ctx, seed)
	if err != nil {
		e.logger.Error("entity production failed, dropping activity",
			"type", seed.ActivityType, "verb", seed.Verb, "error", err)
		return
	}

	// One session per post: association results are memoized across every
	// stream and role of this activity, and never shared across posts.
	sess := assoc.NewSession(e.registry, e.logger)

	rules, err := e.propagationRules(ctx, sess, entities)
	if err != nil {
		e.logger.Error("propagation rules unavailable, dropping activity",
			"type", seed.ActivityType, "verb", seed.Verb, "error", err)
		return
	}

	for _, streamName := range slices.Sorted(maps.Keys(spec.Streams)) {
		e.deliverStream(ctx, seed, spec, streamName, sess, entities, rules)
	}
}

// produceEntities builds the persistent entity for each role present on
// the seed. Entities are produced exactly once per post and reused by
// every stream.
func (e *Engine) produceEntities(ctx context.Context, seed *activity.Seed) (map[activity.Role]*activity.Entity, error) {
	entities := make(map[activity.Role]*activity.Entity, 3)
	for _, role := range activity.Roles() {
		res := seed.Resource(role)
		if res == nil {
			continue
		}
		produce := e.registry.ProducerFor(res.ResourceType)
		ent, err := produce(ctx, res)
		if err != nil {
			return nil, fmt.Errorf("produce %s %s: %w", role, res.ResourceID, err)
		}
		if ent == nil {
			return nil, fmt.Errorf("produce %s %s: producer returned no entity", role, res.ResourceID)
		}
		entities[role] = ent
	}
	return entities, nil
}

// propagationRules derives each entity's propagation rules, once per post.
func (e *Engine) propagationRules(ctx context.Context, sess *assoc.Session, entities map[activity.Role]*activity.Entity) (map[activity.Role][]propagation.Rule, error) {
	rules := make(map[activity.Role][]propagation.Rule, len(entities))
	for role, ent := range entities {
		derive := e.registry.PropagationFor(ent.ObjectType)
		rs, err := derive(ctx, sess.ContextFor(ent), ent)
		if err != nil {
			return nil, fmt.Errorf("propagation rules for %s %s: %w", role, ent.ID, err)
		}
		rules[role] = rs
	}
	return rules, nil
}

// deliverStream routes one stream, filters its recipients through
// propagation, and hands the surviving deliveries to the aggregator
// (durable streams) or the transient sink.
func (e *Engine) deliverStream(
	ctx context.Context,
	seed *activity.Seed,
	spec activity.ActivityTypeSpec,
	streamName string,
	sess *assoc.Session,
	entities map[activity.Role]*activity.Entity,
	rules map[activity.Role][]propagation.Rule,
) {
	// Seal verified every declared stream has a registered stream type.
	streamType, _ := e.registry.StreamType(streamName)

	recipients, err := router.Route(ctx, sess, e.registry.RouterFor(spec.Streams[streamName]), entities)
	if err != nil {
		e.logger.Error("routing failed, stream skipped",
			"type", seed.ActivityType, "stream", streamName, "error", err)
		return
	}

	allowed := make([]string, 0, len(recipients))
	for _, recipientID := range recipients {
		ok, err := e.allowed(ctx, sess, entities, rules, recipientID)
		if err != nil {
			e.logger.Error("propagation check failed, stream skipped",
				"type", seed.ActivityType, "stream", streamName,
				"recipient", recipientID, "error", err)
			return
		}
		if ok {
			allowed = append(allowed, recipientID)
		}
	}
	if len(allowed) == 0 {
		return
	}

	e.logger.Debug("stream delivery",
		"type", seed.ActivityType, "stream", streamName,
		"routed", len(recipients), "allowed", len(allowed),
		"transient", streamType.Transient)

	if streamType.Transient {
		// Transient entries share one ID: they are one activity fanned
		// out, not per-recipient aggregates.
		entry := e.transientEntry(seed, entities)
		for _, recipientID := range allowed {
			streamID := activity.StreamID(recipientID, streamName)
			if err := e.sink.Deliver(ctx, streamID, entry); err != nil {
				e.logger.Error("transient delivery failed",
					"stream", streamID, "error", err)
			}
		}
		return
	}

	for _, recipientID := range allowed {
		streamID := activity.StreamID(recipientID, streamName)
		delivery := aggregate.Delivery{
			StreamID:     streamID,
			ActivityType: seed.ActivityType,
			Verb:         seed.Verb,
			Published:    seed.Published,
			GroupBy:      spec.GroupBy,
			Entities:     roleEntities(entities),
		}
		if err := e.aggregator.Deliver(ctx, delivery); err != nil {
			e.logger.Error("aggregation delivery failed",
				"stream", streamID, "error", err)
		}
	}
}

// allowed reports whether every entity's rules admit the recipient. The
// router proposing a recipient is necessary but not sufficient.
func (e *Engine) allowed(ctx context.Context, sess *assoc.Session, entities map[activity.Role]*activity.Entity, rules map[activity.Role][]propagation.Rule, recipientID string) (bool, error) {
	for _, role := range activity.Roles() {
		ent := entities[role]
		if ent == nil {
			continue
		}
		ok, err := e.resolver.Allows(ctx, sess.ContextFor(ent), rules[role], recipientID)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// transientEntry renders a seed as an immediate-consumption feed entry.
func (e *Engine) transientEntry(seed *activity.Seed, entities map[activity.Role]*activity.Entity) *activity.FeedEntry {
	entry := &activity.FeedEntry{
		ID:           e.ids.Generate(),
		ActivityType: seed.ActivityType,
		Verb:         seed.Verb,
		PublishedMS:  seed.Published.UnixMilli(),
	}
	for role, ent := range entities {
		entry.SetEntities(role, []*activity.Entity{ent})
	}
	return entry
}

// roleEntities shapes the produced entities for the aggregator.
func roleEntities(entities map[activity.Role]*activity.Entity) store.RoleEntities {
	out := make(store.RoleEntities, len(entities))
	for role, ent := range entities {
		out[role] = []*activity.Entity{ent}
	}
	return out
}
