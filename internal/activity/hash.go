package activity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
)

// Domain prefix for aggregate-key computation. The version suffix enables
// future algorithm migration without colliding with existing keys.
const domainAggregateKey = "wake/aggregate-key/v1"

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data). The null byte prevents
// domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// AggregateKey computes the content-addressed bucket key for one delivery:
// the stream it lands in, the activity type, and the entity ids of the
// pivot roles. Identical deliveries yield identical keys in every process,
// which is what lets concurrent collectors use the store's conditional
// claim as their only coordination.
//
// Pivot value order is irrelevant; ids are sorted before hashing.
func AggregateKey(streamID, activityType string, pivot map[string][]string) (string, error) {
	sorted := make(map[string][]string, len(pivot))
	for role, ids := range pivot {
		cp := slices.Clone(ids)
		slices.Sort(cp)
		sorted[role] = cp
	}
	canonical, err := MarshalCanonical(map[string]any{
		"stream": streamID,
		"type":   activityType,
		"pivot":  sorted,
	})
	if err != nil {
		return "", fmt.Errorf("aggregate key: %w", err)
	}
	return hashWithDomain(domainAggregateKey, canonical), nil
}

// MustAggregateKey is like AggregateKey but panics on error. Use only in
// tests or when inputs are known to be valid.
func MustAggregateKey(streamID, activityType string, pivot map[string][]string) string {
	key, err := AggregateKey(streamID, activityType, pivot)
	if err != nil {
		panic(err)
	}
	return key
}
