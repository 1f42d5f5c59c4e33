// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/wave-tui/internal/model"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNotFound is returned by point lookups when no row exists for the
	// given key. Callers must never confuse this with a zero-id entity.
	ErrNotFound = errors.New("not found")

	// ErrStore wraps persistence failures. The triggering operation is
	// reported failed; no partial mutation is visible afterwards.
	ErrStore = errors.New("store error")

	// ErrClosed is returned when the store is used after Close.
	ErrClosed = errors.New("store closed")
)

// =============================================================================
// ENTITY STORE
// =============================================================================

// Store is a SQLite-backed entity store for one authenticated user. Each
// account gets its own database file, so caches of different logins never
// mix.
type Store struct {
	// mu serializes the write path. Reads go through the pooled
	// connection and may run concurrently with each other.
	mu sync.Mutex

	db     *sql.DB
	path   string
	closed bool
}

// schema is applied on every open; creation is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id   INTEGER PRIMARY KEY,
		name TEXT NOT NULL UNIQUE
	);`,
	`CREATE TABLE IF NOT EXISTS groups (
		id      INTEGER PRIMARY KEY,
		name    TEXT NOT NULL,
		creator INTEGER NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS messages (
		id          INTEGER PRIMARY KEY,
		origin      INTEGER NOT NULL,
		destination INTEGER NOT NULL,
		body        TEXT NOT NULL,
		timestamp   INTEGER NOT NULL,
		kind        INTEGER NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS members (
		group_id INTEGER NOT NULL,
		user_id  INTEGER NOT NULL,
		PRIMARY KEY (group_id, user_id)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_messages_conversation
		ON messages (destination, kind, timestamp);`,
	`CREATE INDEX IF NOT EXISTS idx_messages_origin
		ON messages (origin, kind, timestamp);`,
}

// Open opens (creating if necessary) the database at path and applies the
// schema. The parent directory is created when missing.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: create data directory: %v", ErrStore, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %v", ErrStore, err)
	}

	// SQLite only supports one writer at a time, so limit connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: set pragma: %v", ErrStore, err)
		}
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: create schema: %v", ErrStore, err)
		}
	}

	return &Store{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close releases the database. It is idempotent and safe to call when the
// store was never fully opened.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("%w: close: %v", ErrStore, err)
	}
	return nil
}

// write runs a mutating statement under the store's write lock.
func (s *Store) write(ctx context.Context, query string, args ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	return nil
}

// =============================================================================
// UPSERTS
// =============================================================================

// UpsertUser inserts or refreshes a user row. Applying the same user twice
// is a no-op apart from picking up a renamed account.
func (s *Store) UpsertUser(ctx context.Context, id int64, name string) error {
	return s.write(ctx,
		`INSERT INTO users (id, name) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name;`,
		id, name)
}

// UpsertGroup inserts or refreshes a group row.
func (s *Store) UpsertGroup(ctx context.Context, id int64, name string, creatorID int64) error {
	return s.write(ctx,
		`INSERT INTO groups (id, name, creator) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, creator = excluded.creator;`,
		id, name, creatorID)
}

// UpsertMessage persists a server-acknowledged message. Keyed by id:
// re-applying a message that is already present is a no-op, not a
// duplicate row and not an error. Messages are immutable once stored.
func (s *Store) UpsertMessage(ctx context.Context, m model.Message) error {
	if m.Pending() {
		return fmt.Errorf("%w: refusing to persist unacknowledged message", ErrStore)
	}
	return s.write(ctx,
		`INSERT INTO messages (id, origin, destination, body, timestamp, kind)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING;`,
		m.ID, m.Origin, m.Destination, m.Body, m.Timestamp.UnixNano(), int(m.Kind))
}

// AddMembership records that a user belongs to a group. Idempotent on the
// composite key.
func (s *Store) AddMembership(ctx context.Context, groupID, userID int64) error {
	return s.write(ctx,
		`INSERT INTO members (group_id, user_id) VALUES (?, ?)
		 ON CONFLICT(group_id, user_id) DO NOTHING;`,
		groupID, userID)
}

// =============================================================================
// POINT LOOKUPS
// =============================================================================

func (s *Store) scanUser(row *sql.Row) (model.User, error) {
	var u model.User
	if err := row.Scan(&u.ID, &u.Name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, fmt.Errorf("%w: %v", ErrStore, err)
	}
	return u, nil
}

func (s *Store) scanGroup(row *sql.Row) (model.Group, error) {
	var g model.Group
	if err := row.Scan(&g.ID, &g.Name, &g.CreatorID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Group{}, ErrNotFound
		}
		return model.Group{}, fmt.Errorf("%w: %v", ErrStore, err)
	}
	return g, nil
}

// UserByID returns the cached user with the given id, or ErrNotFound.
func (s *Store) UserByID(ctx context.Context, id int64) (model.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, name FROM users WHERE id = ?;`, id))
}

// UserByName returns the cached user with the given name, or ErrNotFound.
func (s *Store) UserByName(ctx context.Context, name string) (model.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, name FROM users WHERE name = ?;`, name))
}

// GroupByID returns the cached group with the given id, or ErrNotFound.
func (s *Store) GroupByID(ctx context.Context, id int64) (model.Group, error) {
	return s.scanGroup(s.db.QueryRowContext(ctx,
		`SELECT id, name, creator FROM groups WHERE id = ?;`, id))
}

// GroupByName returns the first cached group with the given name, lowest
// id first. Group names are not unique; see the package documentation.
func (s *Store) GroupByName(ctx context.Context, name string) (model.Group, error) {
	return s.scanGroup(s.db.QueryRowContext(ctx,
		`SELECT id, name, creator FROM groups WHERE name = ? ORDER BY id LIMIT 1;`, name))
}

// MessageByID returns the stored message with the given id, or ErrNotFound.
func (s *Store) MessageByID(ctx context.Context, id int64) (model.Message, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, origin, destination, body, timestamp, kind
		 FROM messages WHERE id = ?;`, id)
	return scanMessageRow(row)
}

func scanMessageRow(row *sql.Row) (model.Message, error) {
	var m model.Message
	var ts int64
	var kind int
	if err := row.Scan(&m.ID, &m.Origin, &m.Destination, &m.Body, &ts, &kind); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Message{}, ErrNotFound
		}
		return model.Message{}, fmt.Errorf("%w: %v", ErrStore, err)
	}
	m.Timestamp = time.Unix(0, ts)
	m.Kind = model.Kind(kind)
	return m, nil
}

// =============================================================================
// RANGE QUERIES
// =============================================================================

// MessagesFor returns the full history of one conversation, ordered by
// timestamp with ties broken by id. Direct conversations include both
// directions of the exchange with the peer.
func (s *Store) MessagesFor(ctx context.Context, destination int64, kind model.Kind) ([]model.Message, error) {
	var query string
	var args []any
	switch kind {
	case model.KindDirect:
		query = `SELECT id, origin, destination, body, timestamp, kind
			 FROM messages
			 WHERE (origin = ? OR destination = ?) AND kind = ?
			 ORDER BY timestamp, id;`
		args = []any{destination, destination, int(kind)}
	case model.KindGroup:
		query = `SELECT id, origin, destination, body, timestamp, kind
			 FROM messages
			 WHERE destination = ? AND kind = ?
			 ORDER BY timestamp, id;`
		args = []any{destination, int(kind)}
	default:
		return nil, fmt.Errorf("%w: unknown message kind %d", ErrStore, kind)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	defer rows.Close()

	var msgs []model.Message
	for rows.Next() {
		var m model.Message
		var ts int64
		var k int
		if err := rows.Scan(&m.ID, &m.Origin, &m.Destination, &m.Body, &ts, &k); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStore, err)
		}
		m.Timestamp = time.Unix(0, ts)
		m.Kind = model.Kind(k)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	return msgs, nil
}

// Users returns all cached users, sorted by name for stable display.
func (s *Store) Users(ctx context.Context) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM users ORDER BY name, id;`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Name); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStore, err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	return users, nil
}

// Groups returns all cached groups, sorted by name for stable display.
func (s *Store) Groups(ctx context.Context) ([]model.Group, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, creator FROM groups ORDER BY name, id;`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	defer rows.Close()

	var groups []model.Group
	for rows.Next() {
		var g model.Group
		if err := rows.Scan(&g.ID, &g.Name, &g.CreatorID); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStore, err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	return groups, nil
}

// Members returns the cached members of a group, sorted by name.
func (s *Store) Members(ctx context.Context, groupID int64) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT u.id, u.name FROM users u
		 JOIN members m ON m.user_id = u.id
		 WHERE m.group_id = ?
		 ORDER BY u.name, u.id;`, groupID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Name); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStore, err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	return users, nil
}

// =============================================================================
// MAINTENANCE
// =============================================================================

// DeleteConversation clears the stored history of one conversation. The
// reconciliation engine never calls this; it exists for the display
// layer's history-clearing command.
func (s *Store) DeleteConversation(ctx context.Context, destination int64, kind model.Kind) error {
	switch kind {
	case model.KindDirect:
		return s.write(ctx,
			`DELETE FROM messages WHERE (origin = ? OR destination = ?) AND kind = ?;`,
			destination, destination, int(kind))
	case model.KindGroup:
		return s.write(ctx,
			`DELETE FROM messages WHERE destination = ? AND kind = ?;`,
			destination, int(kind))
	default:
		return fmt.Errorf("%w: unknown message kind %d", ErrStore, kind)
	}
}
