// Package harness runs YAML-scripted conformance scenarios against a
// real engine instance.
//
// Every scenario gets a fresh in-memory store, a fake clock pinned to a
// fixed epoch and a sequential entry ID generator, so repeated runs
// produce identical feeds. Steps post seeds, advance the clock and issue
// operator calls (collect, reset, prune); the final feed reads are
// checked against the scenario's expectations and, optionally, against a
// golden file kept in a golden/ directory beside the scenario.
//
// Unlike the package unit tests, scenarios exercise the whole pipeline
// under one script: CUE definitions, registration, routing over
// data-backed associations, propagation and aggregation windows.
package harness
