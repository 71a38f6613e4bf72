// Package engine implements the Wake activity engine.
//
// The engine is the heart of Wake - it accepts activity seeds, produces
// entities, routes streams, applies propagation, and hands deliveries to
// the per-stream aggregator.
//
// ARCHITECTURE:
//
// Single-Worker Delivery Loop:
// The engine processes all seeds in a single goroutine for deterministic
// behavior. This ensures:
// - Predictable stream delivery order (streams sorted by name)
// - One association session per post, memoized across streams and roles
// - Simple reasoning about which window a delivery lands in
//
// Seed Processing Flow:
// 1. PostActivity validates the seed and enqueues it (FIFO)
// 2. Engine.Run() dequeues seeds one at a time
// 3. processSeed() produces entities once per role
// 4. Each declared stream is routed, then filtered through propagation
// 5. Durable streams deliver to the aggregator; transient streams fan out
//    through the TransientSink and are never persisted
//
// Note: feed entries are written by the aggregator, not by the worker.
// Readers poll feeds through Feed(); the periodic collection pass closes
// expired windows so entries become externally consistent without reads.
//
// The loop is designed for correctness, not throughput. Collection runs
// on the same goroutine as seed processing, so a slow collection pass
// delays seed pickup and vice versa.
//
// CRITICAL PATTERNS:
//
// CP-5: Validate At The Door
// PostActivity rejects structurally invalid seeds and unknown activity
// types synchronously. A seed that reaches the queue never fails
// validation again; worker-side failures are environmental.
//
// CP-6: Drop Whole Or Skip Narrow
// Entity production and propagation-rule derivation failures drop the
// whole seed. Routing and propagation-check failures skip one stream.
// Delivery failures skip one recipient. Never partial within a scope.
package engine
