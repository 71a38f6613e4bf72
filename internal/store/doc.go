// Package store provides SQLite-backed durable storage for activity feeds
// and aggregation state.
//
// The store holds four kinds of records:
//   - Feed Entries: delivered (aggregated) activities, one row per entry per stream
//   - Aggregate Statuses: the open aggregation window per aggregate key
//   - Aggregated Entities: the entity sets accumulated under an aggregate key
//   - Active Keys: aggregate keys with deliveries pending collection
//
// # Critical Patterns
//
// CP-1: Claim-Before-Collect
//   - ClaimActiveAggregateKey deletes the active marker and reports whether
//     this caller removed it (RowsAffected == 1)
//   - Exactly one collector processes a key per marking, even across processes
//
// CP-2: Commutative Accumulation
//   - AddAggregatedEntities uses ON CONFLICT DO NOTHING on (agg_key, role, entity_id)
//   - Re-delivery of an entity is a no-op, so retries and races are safe
//
// CP-3: Stable Entry Identity
//   - A feed entry keeps the entry ID minted when its aggregation window opened
//   - SaveFeedEntry upserts by (stream_id, entry_id), repositioning the entry
//     rather than duplicating it when a window is re-collected
//
// CP-4: Deterministic Query Results
//   - Feed pages order by position DESC, entry_id COLLATE BINARY DESC
//   - Entity reads order by role, entity_id COLLATE BINARY ASC
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Aggregate keys are computed in internal/activity/hash.go using RFC 8785
// canonical JSON and SHA-256 with domain separation.
package store
