package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/wakefeed/wake/internal/activity"
)

// SetAggregateStatus opens or replaces the aggregation window for a key.
// An existing window for the same key is overwritten wholesale, including
// its entry ID; callers use this when a fresh window starts.
func (s *Store) SetAggregateStatus(ctx context.Context, key string, st Status) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO aggregate_status
		(agg_key, stream_id, activity_type, verb, entry_id, first_ms, last_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(agg_key) DO UPDATE SET
			stream_id     = excluded.stream_id,
			activity_type = excluded.activity_type,
			verb          = excluded.verb,
			entry_id      = excluded.entry_id,
			first_ms      = excluded.first_ms,
			last_ms       = excluded.last_ms
	`,
		key,
		st.StreamID,
		st.ActivityType,
		st.Verb,
		st.EntryID,
		st.FirstMS,
		st.LastMS,
	)
	if err != nil {
		return fmt.Errorf("set aggregate status: %w", err)
	}
	return nil
}

// TouchAggregateStatus extends an existing window to cover publishedMS.
// MIN/MAX keeps the update commutative, so deliveries landing out of order
// or from concurrent processes converge on the same bounds. Touching a key
// with no open window is a no-op.
func (s *Store) TouchAggregateStatus(ctx context.Context, key string, publishedMS int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE aggregate_status
		SET first_ms = MIN(first_ms, ?), last_ms = MAX(last_ms, ?)
		WHERE agg_key = ?
	`, publishedMS, publishedMS, key)
	if err != nil {
		return fmt.Errorf("touch aggregate status: %w", err)
	}
	return nil
}

// RemoveAggregateStatuses closes the windows for the given keys.
// Unknown keys are silently ignored.
func (s *Store) RemoveAggregateStatuses(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	placeholders, args := inClause(keys)
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM aggregate_status WHERE agg_key IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("remove aggregate statuses: %w", err)
	}
	return nil
}

// AddAggregatedEntities accumulates entities under a key.
//
// Uses ON CONFLICT(agg_key, role, entity_id) DO NOTHING per CP-2 so that
// re-delivering an entity (retry, concurrent process) is a no-op. All rows
// are written in a single transaction.
func (s *Store) AddAggregatedEntities(ctx context.Context, key, streamID string, ents RoleEntities) error {
	if len(ents) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("add aggregated entities: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO aggregate_entities
		(agg_key, stream_id, role, entity_id, entity_json)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(agg_key, role, entity_id) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("add aggregated entities: prepare: %w", err)
	}
	defer stmt.Close()

	for _, role := range activity.Roles() {
		for _, ent := range ents[role] {
			if ent == nil {
				continue
			}
			entJSON, err := json.Marshal(ent)
			if err != nil {
				return fmt.Errorf("add aggregated entities: marshal %s %q: %w", role, ent.ID, err)
			}
			if _, err := stmt.ExecContext(ctx, key, streamID, string(role), ent.ID, string(entJSON)); err != nil {
				return fmt.Errorf("add aggregated entities: insert %s %q: %w", role, ent.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("add aggregated entities: commit: %w", err)
	}
	return nil
}

// RemoveAggregatedEntities clears the entity sets for the given keys.
func (s *Store) RemoveAggregatedEntities(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	placeholders, args := inClause(keys)
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM aggregate_entities WHERE agg_key IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("remove aggregated entities: %w", err)
	}
	return nil
}

// MarkAggregateActive flags a key as having deliveries pending collection.
// Marking an already-active key keeps the original marker, so the flag
// records "something happened since the last collect" rather than when.
func (s *Store) MarkAggregateActive(ctx context.Context, key, streamID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO active_keys (agg_key, stream_id, marked_ms)
		VALUES (?, ?, unixepoch() * 1000)
		ON CONFLICT(agg_key) DO NOTHING
	`, key, streamID)
	if err != nil {
		return fmt.Errorf("mark aggregate active: %w", err)
	}
	return nil
}

// ClaimActiveAggregateKey atomically removes the active marker for a key.
// Returns true if this caller removed it, false if another claimer got there
// first (or the key was never active). This is the cross-process guard per
// CP-1: DELETE affects one row for exactly one claimer.
func (s *Store) ClaimActiveAggregateKey(ctx context.Context, key string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM active_keys WHERE agg_key = ?`, key)
	if err != nil {
		return false, fmt.Errorf("claim active aggregate key: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim active aggregate key: rows affected: %w", err)
	}
	return affected == 1, nil
}

// RemoveActiveAggregateKeys drops active markers without claiming them.
// Used by reset, where nobody collects the abandoned windows.
func (s *Store) RemoveActiveAggregateKeys(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	placeholders, args := inClause(keys)
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM active_keys WHERE agg_key IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("remove active aggregate keys: %w", err)
	}
	return nil
}

// SaveFeedEntry upserts an entry into a stream's feed.
//
// The upsert key is (stream_id, entry_id) per CP-3: re-collecting an open
// window rewrites the same entry with its new content and position instead
// of appending a duplicate. The entry's published timestamp is its position.
func (s *Store) SaveFeedEntry(ctx context.Context, streamID string, entry *activity.FeedEntry) error {
	if entry == nil || entry.ID == "" {
		return fmt.Errorf("save feed entry: entry must have an ID")
	}

	entryJSON, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("save feed entry: marshal: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO feed_entries
		(stream_id, entry_id, position, activity_type, entry_json)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(stream_id, entry_id) DO UPDATE SET
			position      = excluded.position,
			activity_type = excluded.activity_type,
			entry_json    = excluded.entry_json
	`,
		streamID,
		entry.ID,
		entry.PublishedMS,
		entry.ActivityType,
		string(entryJSON),
	)
	if err != nil {
		return fmt.Errorf("save feed entry: %w", err)
	}
	return nil
}

// DeleteEntriesBefore removes feed entries positioned before cutoffMS across
// all streams. Returns the number of entries removed.
func (s *Store) DeleteEntriesBefore(ctx context.Context, cutoffMS int64) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM feed_entries WHERE position < ?`, cutoffMS)
	if err != nil {
		return 0, fmt.Errorf("delete entries before: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete entries before: rows affected: %w", err)
	}
	return deleted, nil
}

// PruneAggregates drops window state for buckets whose last activity
// predates beforeMS and that hold no active marker. Active buckets are
// never touched: a marker means a collector still owes them an entry.
// Orphaned entity sets (no status row) older than any surviving window are
// swept too.
func (s *Store) PruneAggregates(ctx context.Context, beforeMS int64) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("prune aggregates: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	result, err := tx.ExecContext(ctx, `
		DELETE FROM aggregate_status
		WHERE last_ms < ?
		AND agg_key NOT IN (SELECT agg_key FROM active_keys)
	`, beforeMS)
	if err != nil {
		return 0, fmt.Errorf("prune aggregates: statuses: %w", err)
	}
	pruned, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune aggregates: rows affected: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM aggregate_entities
		WHERE agg_key NOT IN (SELECT agg_key FROM aggregate_status)
		AND agg_key NOT IN (SELECT agg_key FROM active_keys)
	`)
	if err != nil {
		return 0, fmt.Errorf("prune aggregates: entities: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("prune aggregates: commit: %w", err)
	}
	return pruned, nil
}

// inClause builds a "?, ?, ..." placeholder string and the matching args
// slice for an IN (...) query over the given keys.
func inClause(keys []string) (string, []any) {
	placeholders := make([]byte, 0, len(keys)*2-1)
	args := make([]any, len(keys))
	for i, key := range keys {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args[i] = key
	}
	return string(placeholders), args
}
