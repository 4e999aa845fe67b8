package credstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists users in a single table, keyed by
// (username, realm) since RFC 7616 realms partition the username
// namespace.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if absent) the sqlite database at
// path and ensures the users table exists.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("credstore: open %s: %w", path, err)
	}
	store := &SQLiteStore{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) init() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS users (
		username  TEXT NOT NULL,
		realm     TEXT NOT NULL,
		algorithm TEXT NOT NULL,
		ha1       BLOB NOT NULL,
		enabled   INTEGER NOT NULL DEFAULT 1,
		PRIMARY KEY (username, realm)
	);`)
	if err != nil {
		return fmt.Errorf("credstore: create users table: %w", err)
	}
	return nil
}

// Get looks up a user by username and realm.
func (s *SQLiteStore) Get(ctx context.Context, username, realm string) (User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT username, realm, algorithm, ha1, enabled FROM users WHERE username = ? AND realm = ?`,
		username, realm)

	var u User
	var enabled int
	if err := row.Scan(&u.Username, &u.Realm, &u.Algorithm, &u.HA1, &enabled); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("credstore: get %s@%s: %w", username, realm, err)
	}
	u.Enabled = enabled != 0
	return u, nil
}

// Put inserts or replaces a user's stored credential.
func (s *SQLiteStore) Put(ctx context.Context, user User) error {
	enabled := 0
	if user.Enabled {
		enabled = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, realm, algorithm, ha1, enabled) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(username, realm) DO UPDATE SET algorithm = excluded.algorithm, ha1 = excluded.ha1, enabled = excluded.enabled`,
		user.Username, user.Realm, user.Algorithm, user.HA1, enabled)
	if err != nil {
		return fmt.Errorf("credstore: put %s@%s: %w", user.Username, user.Realm, err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
