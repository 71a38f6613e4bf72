// Package aggregate implements time-windowed aggregation of routed
// activities into feed entries.
//
// Each (stream, activity type, pivot) pair owns a bucket identified by a
// content-addressed aggregate key. Deliveries merge into the bucket's open
// window or start a fresh one when the window has expired; collection
// publishes each active bucket's current state as a single feed entry and
// closes the bucket once its window is over.
//
// # Lifecycle
//
//	EMPTY -> ACCUMULATING -> (collected repeatedly) -> CLOSED
//
// A bucket's window expires when now-lastActivity reaches the idle expiry
// (quiet buckets close) or now-firstActivity reaches the max expiry (no
// entry stays mutable forever, however busy). Collection always rewrites
// the bucket's feed entry; expiry only decides whether the bucket closes
// afterwards. The entry keeps the ID minted when the window opened, so
// repeated collects replace one feed row while a restart after expiry
// produces a new row.
//
// # Crash and race behavior
//
// Every write is safe to retry: entity accumulation and entry saves are
// idempotent upserts, and window-bound updates widen monotonically. The
// active-marker claim is the only compare-and-set: exactly one collector
// processes a key per marking, across processes sharing the store. A
// collect that fails after claiming re-marks its key so the next pass
// retries the bucket.
package aggregate
