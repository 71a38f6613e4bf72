package store

import (
	"database/sql"
	_ "embed"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// dsnParams is appended to every database path. Applied per connection,
// so pooled connections can never come up without foreign keys or the
// busy timeout.
const dsnParams = "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=1"

// migrations upgrade PRAGMA user_version step by step: migrations[n]
// takes a database at version n to version n+1. schema.sql already
// creates everything at head, so each migration only has to patch
// databases created before it existed and must be a no-op on a fresh
// file.
var migrations = []func(*sql.DB) error{
	migrateFeedPositionIndex, // 0 -> 1
}

// Store is the SQLite-backed side of the storage adapter: feed entries,
// aggregation windows, accumulated entities and active-key markers in
// one database file. WAL mode keeps feed reads open during delivery
// writes.
type Store struct {
	db *sql.DB
}

// Open opens the database at path, creating it if needed, and brings the
// schema up to the current version. Safe to call repeatedly on the same
// path. Pass ":memory:" for a throwaway in-memory database.
func Open(path string) (*Store, error) {
	sep := "?"
	if strings.ContainsRune(path, '?') {
		sep = "&"
	}
	db, err := sql.Open("sqlite3", path+sep+dsnParams)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One connection total. SQLite allows a single writer, and the
	// claim semantics in write.go assume writes are not racing within
	// this process.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB exposes the underlying handle for callers that need raw queries,
// such as diagnostics. The adapter methods cover normal use.
func (s *Store) DB() *sql.DB {
	return s.db
}

// ensureSchema creates missing tables and walks user_version through any
// pending migrations.
func ensureSchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}
	for ; version < len(migrations); version++ {
		if err := migrations[version](db); err != nil {
			return fmt.Errorf("migrate to v%d: %w", version+1, err)
		}
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", version+1)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}
	return nil
}

// migrateFeedPositionIndex backfills the TTL pruning index on
// feed_entries.position. Fresh databases get it from schema.sql, so
// IF NOT EXISTS makes this safe there.
func migrateFeedPositionIndex(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_feed_entries_position
		ON feed_entries(position)
	`)
	return err
}

// verifyPragma reads one pragma back and compares. Test support.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return fmt.Errorf("read pragma %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("pragma %s = %q, want %q", name, value, expected)
	}
	return nil
}
