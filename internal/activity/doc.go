// Package activity provides the core value types for the activity engine.
//
// This package contains type definitions, seed validation, canonical JSON
// serialization and aggregate-key hashing. All other internal packages
// import activity; activity imports nothing internal. This keeps it the
// foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Aggregate keys are content-addressed: SHA-256 over canonical JSON,
//     so every process computes identical keys for identical deliveries
//   - Canonical JSON forbids floats and nulls (they break determinism)
//   - Timestamps are unix milliseconds (int64) on every persisted shape
package activity
