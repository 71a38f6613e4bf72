package aggregate

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/wakefeed/wake/internal/activity"
	"github.com/wakefeed/wake/internal/store"
)

// Defaults match the engine configuration documentation.
const (
	DefaultIdleExpiry        = 15 * time.Minute
	DefaultMaxExpiry         = 24 * time.Hour
	DefaultProcessingBuckets = 3
	DefaultBatchSize         = 1000
	DefaultMaxConcurrent     = 3
)

// Aggregator merges routed activities into per-bucket aggregation windows
// and publishes them as feed entries on collection.
//
// All state lives in the storage adapter; an Aggregator itself is stateless
// and safe for concurrent use, including from multiple processes sharing
// one store.
type Aggregator struct {
	store         store.Adapter
	clock         Clock
	ids           IDGenerator
	logger        *slog.Logger
	idleExpiry    time.Duration
	maxExpiry     time.Duration
	buckets       int
	batchSize     int
	budget        time.Duration
	maxConcurrent int
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithClock replaces the wall clock. Used by tests and the scenario runner.
func WithClock(c Clock) Option {
	return func(a *Aggregator) {
		if c != nil {
			a.clock = c
		}
	}
}

// WithIDGenerator replaces the entry ID source. Used by tests and the
// scenario runner for deterministic entry IDs.
func WithIDGenerator(g IDGenerator) Option {
	return func(a *Aggregator) {
		if g != nil {
			a.ids = g
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithIdleExpiry sets how long a bucket may sit quiet before its window
// closes. Zero closes windows at the first opportunity (no aggregation).
func WithIdleExpiry(d time.Duration) Option {
	return func(a *Aggregator) { a.idleExpiry = d }
}

// WithMaxExpiry sets the hard lifetime of a window regardless of activity.
func WithMaxExpiry(d time.Duration) Option {
	return func(a *Aggregator) { a.maxExpiry = d }
}

// WithProcessingBuckets sets how many hash partitions a collection pass
// splits streams into. Partitions run concurrently.
func WithProcessingBuckets(n int) Option {
	return func(a *Aggregator) { a.buckets = n }
}

// WithBatchSize caps how many active keys one collection pass takes on.
// Zero means unbounded.
func WithBatchSize(n int) Option {
	return func(a *Aggregator) { a.batchSize = n }
}

// WithBudget caps the wall time of one collection pass. Keys not reached
// before the budget expires stay active for the next pass. Zero means
// unbounded.
func WithBudget(d time.Duration) Option {
	return func(a *Aggregator) { a.budget = d }
}

// WithMaxConcurrent caps how many partitions collect at once.
func WithMaxConcurrent(n int) Option {
	return func(a *Aggregator) { a.maxConcurrent = n }
}

// New creates an Aggregator on top of the given storage adapter.
func New(st store.Adapter, opts ...Option) *Aggregator {
	a := &Aggregator{
		store:         st,
		clock:         SystemClock{},
		ids:           UUIDv7Generator{},
		logger:        slog.Default(),
		idleExpiry:    DefaultIdleExpiry,
		maxExpiry:     DefaultMaxExpiry,
		buckets:       DefaultProcessingBuckets,
		batchSize:     DefaultBatchSize,
		maxConcurrent: DefaultMaxConcurrent,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.buckets < 1 {
		a.buckets = 1
	}
	if a.maxConcurrent < 1 {
		a.maxConcurrent = 1
	}
	return a
}

// Delivery is one routed activity landing on one stream.
type Delivery struct {
	StreamID     string
	ActivityType string
	Verb         string
	Published    time.Time

	// GroupBy lists the aggregation pivots declared by the activity type.
	// Each pivot feeds its own bucket. Empty means the full-identity
	// pivot: only activities sharing all role entities aggregate.
	GroupBy []activity.Pivot

	// Entities carries the produced entities per role. Pivot roles take
	// their identity from here.
	Entities store.RoleEntities
}

// Deliver merges the delivery into one bucket per pivot: into the open
// window if the bucket has one, or a fresh window (new entry ID) if the
// previous window expired. The touched buckets are marked active so the
// next collection pass picks them up.
func (a *Aggregator) Deliver(ctx context.Context, d Delivery) error {
	if d.StreamID == "" {
		return fmt.Errorf("deliver: stream ID required")
	}
	if d.Published.IsZero() {
		return fmt.Errorf("deliver: published time required")
	}

	pivots := d.GroupBy
	if len(pivots) == 0 {
		pivots = []activity.Pivot{{activity.RoleActor, activity.RoleObject, activity.RoleTarget}}
	}

	publishedMS := d.Published.UnixMilli()
	for _, pivot := range pivots {
		key, err := activity.AggregateKey(d.StreamID, d.ActivityType, pivotValues(pivot, d.Entities))
		if err != nil {
			return fmt.Errorf("deliver %s to %s: %w", d.ActivityType, d.StreamID, err)
		}
		if err := a.deliverBucket(ctx, key, d, publishedMS); err != nil {
			return fmt.Errorf("deliver %s to %s: %w", d.ActivityType, d.StreamID, err)
		}
	}
	return nil
}

// deliverBucket feeds one bucket and marks it active.
func (a *Aggregator) deliverBucket(ctx context.Context, key string, d Delivery, publishedMS int64) error {
	statuses, err := a.store.AggregateStatuses(ctx, []string{key})
	if err != nil {
		return err
	}

	st, open := statuses[key]
	if open && !a.expired(st, a.clock.Now()) {
		// Merge into the open window.
		if err := a.store.AddAggregatedEntities(ctx, key, d.StreamID, d.Entities); err != nil {
			return err
		}
		if err := a.store.TouchAggregateStatus(ctx, key, publishedMS); err != nil {
			return err
		}
		a.logger.Debug("merged into aggregation window",
			"stream", d.StreamID, "type", d.ActivityType, "entry", st.EntryID)
	} else {
		if open {
			// Publish the expired window before replacing it, so
			// activities delivered since its last collect are not lost.
			if err := a.flushWindow(ctx, key, d.StreamID, st); err != nil {
				return err
			}
		}
		// Fresh window. Clear entities unconditionally: an expired
		// predecessor, or one half-closed by an interrupted collect,
		// must not leak its entities into the new window.
		if err := a.store.RemoveAggregatedEntities(ctx, []string{key}); err != nil {
			return err
		}
		fresh := store.Status{
			StreamID:     d.StreamID,
			ActivityType: d.ActivityType,
			Verb:         d.Verb,
			EntryID:      a.ids.Generate(),
			FirstMS:      publishedMS,
			LastMS:       publishedMS,
		}
		if err := a.store.SetAggregateStatus(ctx, key, fresh); err != nil {
			return err
		}
		if err := a.store.AddAggregatedEntities(ctx, key, d.StreamID, d.Entities); err != nil {
			return err
		}
		a.logger.Debug("opened aggregation window",
			"stream", d.StreamID, "type", d.ActivityType, "entry", fresh.EntryID, "expired", open)
	}

	return a.store.MarkAggregateActive(ctx, key, d.StreamID)
}

// flushWindow writes a window's current state as its feed entry. Saves are
// idempotent upserts keyed by the window's entry ID, so flushing a window
// that a collector already published is harmless.
func (a *Aggregator) flushWindow(ctx context.Context, key, streamID string, st store.Status) error {
	entsByKey, err := a.store.AggregatedEntities(ctx, []string{key})
	if err != nil {
		return err
	}
	ents := entsByKey[key]

	entry := &activity.FeedEntry{
		ID:           st.EntryID,
		ActivityType: st.ActivityType,
		Verb:         st.Verb,
		PublishedMS:  st.LastMS,
		Actors:       ents[activity.RoleActor],
		Objects:      ents[activity.RoleObject],
		Targets:      ents[activity.RoleTarget],
	}
	return a.store.SaveFeedEntry(ctx, streamID, entry)
}

// Reset discards all aggregation state for the given streams: open windows,
// accumulated entities and active markers. Already-persisted feed entries
// and other streams' buckets are untouched. The next matching activity
// starts a brand-new bucket.
func (a *Aggregator) Reset(ctx context.Context, streamIDs []string) error {
	if len(streamIDs) == 0 {
		return nil
	}

	keys, err := a.store.StreamAggregateKeys(ctx, streamIDs)
	if err != nil {
		return fmt.Errorf("reset aggregation: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}

	// Markers first so collectors stop claiming mid-reset.
	if err := a.store.RemoveActiveAggregateKeys(ctx, keys); err != nil {
		return fmt.Errorf("reset aggregation: %w", err)
	}
	if err := a.store.RemoveAggregateStatuses(ctx, keys); err != nil {
		return fmt.Errorf("reset aggregation: %w", err)
	}
	if err := a.store.RemoveAggregatedEntities(ctx, keys); err != nil {
		return fmt.Errorf("reset aggregation: %w", err)
	}

	a.logger.Info("aggregation reset", "streams", len(streamIDs), "buckets", len(keys))
	return nil
}

// expired reports whether a window is over: quiet too long (idle expiry)
// or alive too long (max expiry).
func (a *Aggregator) expired(st store.Status, now time.Time) bool {
	nowMS := now.UnixMilli()
	return nowMS-st.LastMS >= a.idleExpiry.Milliseconds() ||
		nowMS-st.FirstMS >= a.maxExpiry.Milliseconds()
}

// pivotValues extracts the pivot roles' entity IDs from the delivered
// entities. Roles with no entities are omitted so their absence, not an
// empty list, shapes the key.
func pivotValues(pivot activity.Pivot, ents store.RoleEntities) map[string][]string {
	values := make(map[string][]string, len(pivot))
	for _, role := range pivot {
		ids := make([]string, 0, len(ents[role]))
		for _, ent := range ents[role] {
			if ent != nil && ent.ID != "" {
				ids = append(ids, ent.ID)
			}
		}
		if len(ids) == 0 {
			continue
		}
		slices.Sort(ids)
		values[string(role)] = slices.Compact(ids)
	}
	return values
}
