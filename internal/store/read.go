package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/wakefeed/wake/internal/activity"
)

// ErrInvalidPageToken is returned by FeedPage when the start token is not one
// it issued. Callers should treat it as a client error.
var ErrInvalidPageToken = errors.New("invalid page token")

// AggregateStatuses returns the open aggregation window for each of the
// given keys. Keys with no open window are absent from the result; the
// returned map is never nil.
func (s *Store) AggregateStatuses(ctx context.Context, keys []string) (map[string]Status, error) {
	statuses := make(map[string]Status, len(keys))
	if len(keys) == 0 {
		return statuses, nil
	}

	placeholders, args := inClause(keys)
	rows, err := s.db.QueryContext(ctx, `
		SELECT agg_key, stream_id, activity_type, verb, entry_id, first_ms, last_ms
		FROM aggregate_status
		WHERE agg_key IN (`+placeholders+`)
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("read aggregate statuses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var st Status
		if err := rows.Scan(&key, &st.StreamID, &st.ActivityType, &st.Verb, &st.EntryID, &st.FirstMS, &st.LastMS); err != nil {
			return nil, fmt.Errorf("read aggregate statuses: scan: %w", err)
		}
		statuses[key] = st
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read aggregate statuses: rows: %w", err)
	}

	return statuses, nil
}

// AggregatedEntities returns the accumulated entity sets for each of the
// given keys. Role lists are ordered by entity ID for deterministic output
// per CP-4. Keys with no entities are absent from the result.
func (s *Store) AggregatedEntities(ctx context.Context, keys []string) (map[string]RoleEntities, error) {
	result := make(map[string]RoleEntities, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	placeholders, args := inClause(keys)
	rows, err := s.db.QueryContext(ctx, `
		SELECT agg_key, role, entity_json
		FROM aggregate_entities
		WHERE agg_key IN (`+placeholders+`)
		ORDER BY agg_key ASC, role ASC, entity_id COLLATE BINARY ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("read aggregated entities: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, role, entJSON string
		if err := rows.Scan(&key, &role, &entJSON); err != nil {
			return nil, fmt.Errorf("read aggregated entities: scan: %w", err)
		}

		var ent activity.Entity
		if err := json.Unmarshal([]byte(entJSON), &ent); err != nil {
			return nil, fmt.Errorf("read aggregated entities: unmarshal %q: %w", key, err)
		}

		ents := result[key]
		if ents == nil {
			ents = make(RoleEntities)
			result[key] = ents
		}
		r := activity.Role(role)
		ents[r] = append(ents[r], &ent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read aggregated entities: rows: %w", err)
	}

	return result, nil
}

// ActiveAggregateKeys lists aggregate keys pending collection, ordered by
// stream then key. A nil streamIDs slice means all streams; an empty
// non-nil slice matches nothing.
func (s *Store) ActiveAggregateKeys(ctx context.Context, streamIDs []string) ([]ActiveKey, error) {
	active := make([]ActiveKey, 0)
	if streamIDs != nil && len(streamIDs) == 0 {
		return active, nil
	}

	query := `
		SELECT agg_key, stream_id
		FROM active_keys
	`
	var args []any
	if streamIDs != nil {
		placeholders, inArgs := inClause(streamIDs)
		query += ` WHERE stream_id IN (` + placeholders + `)`
		args = inArgs
	}
	query += ` ORDER BY stream_id ASC, agg_key COLLATE BINARY ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read active aggregate keys: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ak ActiveKey
		if err := rows.Scan(&ak.Key, &ak.StreamID); err != nil {
			return nil, fmt.Errorf("read active aggregate keys: scan: %w", err)
		}
		active = append(active, ak)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read active aggregate keys: rows: %w", err)
	}

	return active, nil
}

// StreamAggregateKeys returns every aggregate key holding any state for the
// given streams: an open window, accumulated entities or an active marker.
// The union catches keys left partially cleaned by an interrupted collect.
func (s *Store) StreamAggregateKeys(ctx context.Context, streamIDs []string) ([]string, error) {
	keys := make([]string, 0)
	if len(streamIDs) == 0 {
		return keys, nil
	}

	placeholders, args := inClause(streamIDs)
	query := `
		SELECT agg_key FROM aggregate_status WHERE stream_id IN (` + placeholders + `)
		UNION
		SELECT agg_key FROM aggregate_entities WHERE stream_id IN (` + placeholders + `)
		UNION
		SELECT agg_key FROM active_keys WHERE stream_id IN (` + placeholders + `)
		ORDER BY agg_key ASC
	`
	allArgs := make([]any, 0, len(args)*3)
	allArgs = append(allArgs, args...)
	allArgs = append(allArgs, args...)
	allArgs = append(allArgs, args...)

	rows, err := s.db.QueryContext(ctx, query, allArgs...)
	if err != nil {
		return nil, fmt.Errorf("read stream aggregate keys: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("read stream aggregate keys: scan: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read stream aggregate keys: rows: %w", err)
	}

	return keys, nil
}

// FeedPage reads one page of a stream's feed, newest first.
//
// startToken is "" for the first page, otherwise a token returned by a
// previous call. The returned token is "" once the feed is exhausted; a
// full page may carry a token that yields a final empty page.
//
// Ordering is position DESC, entry_id COLLATE BINARY DESC per CP-4, so
// pagination is stable even when entries share a position.
func (s *Store) FeedPage(ctx context.Context, streamID, startToken string, limit int) ([]*activity.FeedEntry, string, error) {
	if limit <= 0 {
		return nil, "", fmt.Errorf("feed page: limit must be positive, got %d", limit)
	}

	query := `
		SELECT entry_id, position, entry_json
		FROM feed_entries
		WHERE stream_id = ?
	`
	args := []any{streamID}

	if startToken != "" {
		pos, entryID, err := parsePageToken(startToken)
		if err != nil {
			return nil, "", err
		}
		query += ` AND (position < ? OR (position = ? AND entry_id < ?))`
		args = append(args, pos, pos, entryID)
	}

	query += `
		ORDER BY position DESC, entry_id COLLATE BINARY DESC
		LIMIT ?
	`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("feed page: %w", err)
	}
	defer rows.Close()

	entries := make([]*activity.FeedEntry, 0, limit)
	var lastID string
	var lastPos int64
	for rows.Next() {
		var entryJSON string
		if err := rows.Scan(&lastID, &lastPos, &entryJSON); err != nil {
			return nil, "", fmt.Errorf("feed page: scan: %w", err)
		}

		var entry activity.FeedEntry
		if err := json.Unmarshal([]byte(entryJSON), &entry); err != nil {
			return nil, "", fmt.Errorf("feed page: unmarshal entry %q: %w", lastID, err)
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("feed page: rows: %w", err)
	}

	nextToken := ""
	if len(entries) == limit {
		nextToken = encodePageToken(lastPos, lastID)
	}
	return entries, nextToken, nil
}

// encodePageToken packs a feed cursor as "<position>:<entryID>". Entry IDs
// never contain ':'.
func encodePageToken(position int64, entryID string) string {
	return strconv.FormatInt(position, 10) + ":" + entryID
}

func parsePageToken(token string) (int64, string, error) {
	posStr, entryID, ok := strings.Cut(token, ":")
	if !ok || entryID == "" {
		return 0, "", fmt.Errorf("%w: %q", ErrInvalidPageToken, token)
	}
	pos, err := strconv.ParseInt(posStr, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("%w: %q", ErrInvalidPageToken, token)
	}
	return pos, entryID, nil
}
