package store

import (
	"context"
	"testing"

	"github.com/wakefeed/wake/internal/activity"
)

func TestSetAggregateStatus_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	want := createTestStatus("u:cam:alice#activity", "entry-1", 100, 200)
	if err := s.SetAggregateStatus(ctx, "key-1", want); err != nil {
		t.Fatalf("SetAggregateStatus() failed: %v", err)
	}

	got, err := s.AggregateStatuses(ctx, []string{"key-1"})
	if err != nil {
		t.Fatalf("AggregateStatuses() failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 status, got %d", len(got))
	}
	if got["key-1"] != want {
		t.Errorf("status = %+v, expected %+v", got["key-1"], want)
	}
}

func TestSetAggregateStatus_ReplacesExisting(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	old := createTestStatus("u:cam:alice#activity", "entry-old", 100, 200)
	if err := s.SetAggregateStatus(ctx, "key-1", old); err != nil {
		t.Fatalf("first SetAggregateStatus() failed: %v", err)
	}

	// A fresh window replaces everything, including the entry identity.
	fresh := createTestStatus("u:cam:alice#activity", "entry-new", 900, 900)
	if err := s.SetAggregateStatus(ctx, "key-1", fresh); err != nil {
		t.Fatalf("second SetAggregateStatus() failed: %v", err)
	}

	got, err := s.AggregateStatuses(ctx, []string{"key-1"})
	if err != nil {
		t.Fatalf("AggregateStatuses() failed: %v", err)
	}
	if got["key-1"] != fresh {
		t.Errorf("status = %+v, expected replacement %+v", got["key-1"], fresh)
	}
}

func TestTouchAggregateStatus_WidensBounds(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if err := s.SetAggregateStatus(ctx, "key-1", createTestStatus("u:cam:alice#activity", "entry-1", 100, 200)); err != nil {
		t.Fatalf("SetAggregateStatus() failed: %v", err)
	}

	// Later activity extends last_ms
	if err := s.TouchAggregateStatus(ctx, "key-1", 300); err != nil {
		t.Fatalf("TouchAggregateStatus(300) failed: %v", err)
	}
	// Earlier activity extends first_ms
	if err := s.TouchAggregateStatus(ctx, "key-1", 50); err != nil {
		t.Fatalf("TouchAggregateStatus(50) failed: %v", err)
	}
	// In-between activity changes nothing
	if err := s.TouchAggregateStatus(ctx, "key-1", 150); err != nil {
		t.Fatalf("TouchAggregateStatus(150) failed: %v", err)
	}

	got, err := s.AggregateStatuses(ctx, []string{"key-1"})
	if err != nil {
		t.Fatalf("AggregateStatuses() failed: %v", err)
	}
	st := got["key-1"]
	if st.FirstMS != 50 || st.LastMS != 300 {
		t.Errorf("bounds = [%d, %d], expected [50, 300]", st.FirstMS, st.LastMS)
	}
	if st.EntryID != "entry-1" {
		t.Errorf("entry ID changed on touch: %q", st.EntryID)
	}
}

func TestTouchAggregateStatus_AbsentKeyIsNoop(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if err := s.TouchAggregateStatus(ctx, "no-such-key", 100); err != nil {
		t.Fatalf("TouchAggregateStatus() on absent key failed: %v", err)
	}

	got, err := s.AggregateStatuses(ctx, []string{"no-such-key"})
	if err != nil {
		t.Fatalf("AggregateStatuses() failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("touch created a status row: %+v", got)
	}
}

func TestRemoveAggregateStatuses_ScopedToKeys(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, key := range []string{"key-1", "key-2", "key-3"} {
		if err := s.SetAggregateStatus(ctx, key, createTestStatus("u:cam:alice#activity", "e-"+key, 1, 2)); err != nil {
			t.Fatalf("SetAggregateStatus(%q) failed: %v", key, err)
		}
	}

	if err := s.RemoveAggregateStatuses(ctx, []string{"key-1", "key-3"}); err != nil {
		t.Fatalf("RemoveAggregateStatuses() failed: %v", err)
	}

	got, err := s.AggregateStatuses(ctx, []string{"key-1", "key-2", "key-3"})
	if err != nil {
		t.Fatalf("AggregateStatuses() failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 surviving status, got %d", len(got))
	}
	if _, ok := got["key-2"]; !ok {
		t.Error("key-2 should have survived removal")
	}
}

func TestRemoveAggregateStatuses_EmptyKeys(t *testing.T) {
	s := createTestStore(t)

	if err := s.RemoveAggregateStatuses(context.Background(), nil); err != nil {
		t.Errorf("RemoveAggregateStatuses(nil) failed: %v", err)
	}
}

func TestAddAggregatedEntities_AccumulatesAcrossAdds(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	first := RoleEntities{
		activity.RoleActor:  {createTestEntity("u:cam:alice", "user")},
		activity.RoleObject: {createTestEntity("c:cam:doc-1", "content")},
	}
	if err := s.AddAggregatedEntities(ctx, "key-1", "u:cam:alice#activity", first); err != nil {
		t.Fatalf("first AddAggregatedEntities() failed: %v", err)
	}

	// Second delivery re-adds the actor and brings a new object.
	second := RoleEntities{
		activity.RoleActor:  {createTestEntity("u:cam:alice", "user")},
		activity.RoleObject: {createTestEntity("c:cam:doc-2", "content")},
	}
	if err := s.AddAggregatedEntities(ctx, "key-1", "u:cam:alice#activity", second); err != nil {
		t.Fatalf("second AddAggregatedEntities() failed: %v", err)
	}

	got, err := s.AggregatedEntities(ctx, []string{"key-1"})
	if err != nil {
		t.Fatalf("AggregatedEntities() failed: %v", err)
	}
	ents := got["key-1"]
	if len(ents[activity.RoleActor]) != 1 {
		t.Errorf("expected 1 actor, got %d", len(ents[activity.RoleActor]))
	}
	if len(ents[activity.RoleObject]) != 2 {
		t.Errorf("expected 2 objects, got %d", len(ents[activity.RoleObject]))
	}
}

func TestAddAggregatedEntities_RetrySafe(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	ents := RoleEntities{
		activity.RoleActor:  {createTestEntity("u:cam:alice", "user")},
		activity.RoleObject: {createTestEntity("c:cam:doc-1", "content")},
	}

	// Same write twice, as a retry after a lost response would do.
	for i := 0; i < 2; i++ {
		if err := s.AddAggregatedEntities(ctx, "key-1", "u:cam:alice#activity", ents); err != nil {
			t.Fatalf("AddAggregatedEntities() attempt %d failed: %v", i, err)
		}
	}

	got, err := s.AggregatedEntities(ctx, []string{"key-1"})
	if err != nil {
		t.Fatalf("AggregatedEntities() failed: %v", err)
	}
	if n := len(got["key-1"][activity.RoleActor]); n != 1 {
		t.Errorf("expected 1 actor after retry, got %d", n)
	}
	if n := len(got["key-1"][activity.RoleObject]); n != 1 {
		t.Errorf("expected 1 object after retry, got %d", n)
	}
}

func TestAddAggregatedEntities_EmptyIsNoop(t *testing.T) {
	s := createTestStore(t)

	if err := s.AddAggregatedEntities(context.Background(), "key-1", "u:cam:alice#activity", nil); err != nil {
		t.Errorf("AddAggregatedEntities(nil) failed: %v", err)
	}
}

func TestMarkAggregateActive_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := s.MarkAggregateActive(ctx, "key-1", "u:cam:alice#activity"); err != nil {
			t.Fatalf("MarkAggregateActive() attempt %d failed: %v", i, err)
		}
	}

	active, err := s.ActiveAggregateKeys(ctx, nil)
	if err != nil {
		t.Fatalf("ActiveAggregateKeys() failed: %v", err)
	}
	if len(active) != 1 {
		t.Errorf("expected 1 active key, got %d", len(active))
	}
}

func TestClaimActiveAggregateKey_SingleWinner(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if err := s.MarkAggregateActive(ctx, "key-1", "u:cam:alice#activity"); err != nil {
		t.Fatalf("MarkAggregateActive() failed: %v", err)
	}

	claimed, err := s.ClaimActiveAggregateKey(ctx, "key-1")
	if err != nil {
		t.Fatalf("first ClaimActiveAggregateKey() failed: %v", err)
	}
	if !claimed {
		t.Error("first claim should win")
	}

	claimed, err = s.ClaimActiveAggregateKey(ctx, "key-1")
	if err != nil {
		t.Fatalf("second ClaimActiveAggregateKey() failed: %v", err)
	}
	if claimed {
		t.Error("second claim should lose")
	}
}

func TestClaimActiveAggregateKey_NeverMarked(t *testing.T) {
	s := createTestStore(t)

	claimed, err := s.ClaimActiveAggregateKey(context.Background(), "no-such-key")
	if err != nil {
		t.Fatalf("ClaimActiveAggregateKey() failed: %v", err)
	}
	if claimed {
		t.Error("claim on never-marked key should lose")
	}
}

func TestMarkAggregateActive_AfterClaimReactivates(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if err := s.MarkAggregateActive(ctx, "key-1", "u:cam:alice#activity"); err != nil {
		t.Fatalf("MarkAggregateActive() failed: %v", err)
	}
	if _, err := s.ClaimActiveAggregateKey(ctx, "key-1"); err != nil {
		t.Fatalf("ClaimActiveAggregateKey() failed: %v", err)
	}

	// New delivery after the collect claimed the key.
	if err := s.MarkAggregateActive(ctx, "key-1", "u:cam:alice#activity"); err != nil {
		t.Fatalf("re-mark failed: %v", err)
	}

	claimed, err := s.ClaimActiveAggregateKey(ctx, "key-1")
	if err != nil {
		t.Fatalf("re-claim failed: %v", err)
	}
	if !claimed {
		t.Error("key should be claimable again after re-marking")
	}
}

func TestSaveFeedEntry_UpsertsByEntryID(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	entry := createTestEntry("entry-1", 100)
	if err := s.SaveFeedEntry(ctx, "u:cam:alice#activity", entry); err != nil {
		t.Fatalf("first SaveFeedEntry() failed: %v", err)
	}

	// Re-collect of the same window: same ID, later position, more objects.
	entry.PublishedMS = 250
	entry.Objects = append(entry.Objects, createTestEntity("c:cam:doc-extra", "content"))
	if err := s.SaveFeedEntry(ctx, "u:cam:alice#activity", entry); err != nil {
		t.Fatalf("second SaveFeedEntry() failed: %v", err)
	}

	entries, _, err := s.FeedPage(ctx, "u:cam:alice#activity", "", 10)
	if err != nil {
		t.Fatalf("FeedPage() failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry after upsert, got %d", len(entries))
	}
	if entries[0].PublishedMS != 250 {
		t.Errorf("position = %d, expected 250", entries[0].PublishedMS)
	}
	if len(entries[0].Objects) != 2 {
		t.Errorf("expected 2 objects after upsert, got %d", len(entries[0].Objects))
	}
}

func TestSaveFeedEntry_RequiresID(t *testing.T) {
	s := createTestStore(t)

	err := s.SaveFeedEntry(context.Background(), "u:cam:alice#activity", &activity.FeedEntry{})
	if err == nil {
		t.Error("expected error for entry without ID, got nil")
	}
}

func TestDeleteEntriesBefore_RemovesOldEntries(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for i, published := range []int64{100, 200, 300} {
		entry := createTestEntry("entry-"+string(rune('a'+i)), published)
		if err := s.SaveFeedEntry(ctx, "u:cam:alice#activity", entry); err != nil {
			t.Fatalf("SaveFeedEntry() failed: %v", err)
		}
	}

	deleted, err := s.DeleteEntriesBefore(ctx, 250)
	if err != nil {
		t.Fatalf("DeleteEntriesBefore() failed: %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, expected 2", deleted)
	}

	entries, _, err := s.FeedPage(ctx, "u:cam:alice#activity", "", 10)
	if err != nil {
		t.Fatalf("FeedPage() failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 surviving entry, got %d", len(entries))
	}
	if entries[0].PublishedMS != 300 {
		t.Errorf("surviving entry position = %d, expected 300", entries[0].PublishedMS)
	}
}

func TestPruneAggregates_SparesActiveAndRecent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	ents := RoleEntities{activity.RoleActor: {createTestEntity("u:cam:alice", "user")}}

	// Old and inactive: prunable.
	if err := s.SetAggregateStatus(ctx, "key-old", createTestStatus("u:cam:alice#activity", "e-1", 100, 200)); err != nil {
		t.Fatalf("SetAggregateStatus() failed: %v", err)
	}
	if err := s.AddAggregatedEntities(ctx, "key-old", "u:cam:alice#activity", ents); err != nil {
		t.Fatalf("AddAggregatedEntities() failed: %v", err)
	}

	// Old but still marked active: spared.
	if err := s.SetAggregateStatus(ctx, "key-marked", createTestStatus("u:cam:bob#activity", "e-2", 100, 200)); err != nil {
		t.Fatalf("SetAggregateStatus() failed: %v", err)
	}
	if err := s.MarkAggregateActive(ctx, "key-marked", "u:cam:bob#activity"); err != nil {
		t.Fatalf("MarkAggregateActive() failed: %v", err)
	}

	// Recent: spared.
	if err := s.SetAggregateStatus(ctx, "key-recent", createTestStatus("u:cam:eve#activity", "e-3", 100, 9000)); err != nil {
		t.Fatalf("SetAggregateStatus() failed: %v", err)
	}

	pruned, err := s.PruneAggregates(ctx, 5000)
	if err != nil {
		t.Fatalf("PruneAggregates() failed: %v", err)
	}
	if pruned != 1 {
		t.Errorf("pruned = %d, expected 1", pruned)
	}

	statuses, err := s.AggregateStatuses(ctx, []string{"key-old", "key-marked", "key-recent"})
	if err != nil {
		t.Fatalf("AggregateStatuses() failed: %v", err)
	}
	if _, ok := statuses["key-old"]; ok {
		t.Error("key-old should have been pruned")
	}
	if _, ok := statuses["key-marked"]; !ok {
		t.Error("key-marked should have been spared (active)")
	}
	if _, ok := statuses["key-recent"]; !ok {
		t.Error("key-recent should have been spared (recent)")
	}

	// The pruned bucket's entities went with it.
	got, err := s.AggregatedEntities(ctx, []string{"key-old"})
	if err != nil {
		t.Fatalf("AggregatedEntities() failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("key-old entities should have been swept: %+v", got)
	}
}

func TestDeleteEntriesBefore_SpansStreams(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if err := s.SaveFeedEntry(ctx, "u:cam:alice#activity", createTestEntry("entry-1", 100)); err != nil {
		t.Fatalf("SaveFeedEntry() failed: %v", err)
	}
	if err := s.SaveFeedEntry(ctx, "g:cam:devs#activity", createTestEntry("entry-2", 150)); err != nil {
		t.Fatalf("SaveFeedEntry() failed: %v", err)
	}

	deleted, err := s.DeleteEntriesBefore(ctx, 1000)
	if err != nil {
		t.Fatalf("DeleteEntriesBefore() failed: %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, expected 2 across streams", deleted)
	}
}
