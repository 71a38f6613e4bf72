package testutil

import (
	"fmt"
	"sync"
)

// FixedIDGenerator issues sequential, human-readable entry IDs.
//
// This enables deterministic test execution and golden snapshot comparison:
// the same scenario with the same FixedIDGenerator produces byte-identical
// feeds.
//
// Thread-safety: FixedIDGenerator is safe for concurrent use via internal
// mutex.
type FixedIDGenerator struct {
	mu     sync.Mutex
	prefix string
	next   int
}

// NewFixedIDGenerator creates a generator issuing "<prefix>-1",
// "<prefix>-2" and so on. An empty prefix defaults to "entry".
func NewFixedIDGenerator(prefix string) *FixedIDGenerator {
	if prefix == "" {
		prefix = "entry"
	}
	return &FixedIDGenerator{prefix: prefix}
}

// Generate returns the next sequential ID.
//
// Implements aggregate.IDGenerator.
func (g *FixedIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return fmt.Sprintf("%s-%d", g.prefix, g.next)
}
