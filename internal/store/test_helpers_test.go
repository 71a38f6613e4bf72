package store

import (
	"path/filepath"
	"testing"

	"github.com/wakefeed/wake/internal/activity"
)

// createTestStore creates a file-backed store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestStatus creates an aggregate status with minimal required fields.
func createTestStatus(streamID, entryID string, firstMS, lastMS int64) Status {
	return Status{
		StreamID:     streamID,
		ActivityType: "content-create",
		Verb:         "post",
		EntryID:      entryID,
		FirstMS:      firstMS,
		LastMS:       lastMS,
	}
}

// createTestEntity creates an entity with a display name derived from its ID.
func createTestEntity(id, objectType string) *activity.Entity {
	return &activity.Entity{
		ID:         id,
		ObjectType: objectType,
		Data:       map[string]any{"displayName": "name of " + id},
	}
}

// createTestEntry creates a feed entry with one actor and one object.
func createTestEntry(id string, publishedMS int64) *activity.FeedEntry {
	return &activity.FeedEntry{
		ID:           id,
		ActivityType: "content-create",
		Verb:         "post",
		PublishedMS:  publishedMS,
		Actors:       []*activity.Entity{createTestEntity("u:cam:alice", "user")},
		Objects:      []*activity.Entity{createTestEntity("c:cam:doc-"+id, "content")},
	}
}
