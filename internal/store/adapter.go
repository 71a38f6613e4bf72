package store

import (
	"context"

	"github.com/wakefeed/wake/internal/activity"
)

// Status is the open aggregation window for one aggregate key.
//
// FirstMS and LastMS are the published timestamps (unix milliseconds) of the
// earliest and latest activity merged into the window. EntryID is the feed
// entry identity minted when the window opened; every collection of this
// window writes the same entry ID so re-collects replace rather than append.
type Status struct {
	StreamID     string
	ActivityType string
	Verb         string
	EntryID      string
	FirstMS      int64
	LastMS       int64
}

// ActiveKey marks an aggregate key that received deliveries since it was
// last collected.
type ActiveKey struct {
	Key      string
	StreamID string
}

// RoleEntities holds the entity sets accumulated under an aggregate key,
// grouped by activity role.
type RoleEntities map[activity.Role][]*activity.Entity

// Adapter is the storage boundary used by the delivery and collection
// pipeline. *Store is the SQLite implementation.
//
// Read methods return empty (never nil) containers when nothing matches.
// Write methods must be safe to retry: accumulation is commutative and
// entry saves are upserts.
type Adapter interface {
	// AggregateStatuses returns the open window for each of the given keys.
	// Keys with no open window are absent from the result.
	AggregateStatuses(ctx context.Context, keys []string) (map[string]Status, error)

	// SetAggregateStatus opens or replaces the window for a key.
	SetAggregateStatus(ctx context.Context, key string, st Status) error

	// TouchAggregateStatus extends an existing window to cover publishedMS.
	// It widens first/last bounds and never shrinks them, so concurrent
	// touches commute. Touching an absent key is a no-op.
	TouchAggregateStatus(ctx context.Context, key string, publishedMS int64) error

	// RemoveAggregateStatuses closes the windows for the given keys.
	RemoveAggregateStatuses(ctx context.Context, keys []string) error

	// AggregatedEntities returns the accumulated entity sets for each of the
	// given keys, each role's list ordered by entity ID.
	AggregatedEntities(ctx context.Context, keys []string) (map[string]RoleEntities, error)

	// AddAggregatedEntities accumulates entities under a key. Entities
	// already present (same role and entity ID) are ignored.
	AddAggregatedEntities(ctx context.Context, key, streamID string, ents RoleEntities) error

	// RemoveAggregatedEntities clears the entity sets for the given keys.
	RemoveAggregatedEntities(ctx context.Context, keys []string) error

	// MarkAggregateActive flags a key as having deliveries pending
	// collection. Marking an already-active key is a no-op.
	MarkAggregateActive(ctx context.Context, key, streamID string) error

	// ActiveAggregateKeys lists keys pending collection. A nil streamIDs
	// slice means all streams; an empty non-nil slice matches nothing.
	ActiveAggregateKeys(ctx context.Context, streamIDs []string) ([]ActiveKey, error)

	// ClaimActiveAggregateKey atomically removes the active marker for a key
	// and reports whether this caller removed it. At most one concurrent
	// claimer wins per marking.
	ClaimActiveAggregateKey(ctx context.Context, key string) (bool, error)

	// RemoveActiveAggregateKeys drops active markers without claiming them.
	RemoveActiveAggregateKeys(ctx context.Context, keys []string) error

	// StreamAggregateKeys returns every aggregate key holding state (status,
	// entities or active marker) for the given streams.
	StreamAggregateKeys(ctx context.Context, streamIDs []string) ([]string, error)

	// SaveFeedEntry upserts an entry into a stream's feed, keyed by the
	// entry ID. The entry's published timestamp becomes its feed position.
	SaveFeedEntry(ctx context.Context, streamID string, entry *activity.FeedEntry) error

	// FeedPage reads one page of a stream's feed, newest first. startToken
	// is "" for the first page; the returned token is "" when the feed is
	// exhausted.
	FeedPage(ctx context.Context, streamID, startToken string, limit int) ([]*activity.FeedEntry, string, error)

	// DeleteEntriesBefore removes feed entries positioned before cutoffMS
	// across all streams and returns how many were deleted.
	DeleteEntriesBefore(ctx context.Context, cutoffMS int64) (int64, error)

	// PruneAggregates drops window state (status and entities) for buckets
	// whose last activity predates beforeMS and that hold no active marker.
	// Returns how many windows were dropped.
	PruneAggregates(ctx context.Context, beforeMS int64) (int64, error)

	// Close releases the underlying storage.
	Close() error
}

var _ Adapter = (*Store)(nil)
