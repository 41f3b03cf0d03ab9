// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides user/conversation/participant persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// Ensure SQLiteStore implements the Store interface
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL,
			email TEXT NOT NULL,
			password_hash TEXT NOT NULL,
			display_name TEXT NOT NULL DEFAULT '',
			avatar_url TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			last_seen_at TEXT,
			online INTEGER NOT NULL DEFAULT 0
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username
			ON users(username);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email
			ON users(email);

		CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL CHECK (kind IN ('DIRECT', 'GROUP')),
			name TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			is_public INTEGER NOT NULL DEFAULT 0,
			max_participants INTEGER NOT NULL DEFAULT 0,
			created_by TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			deleted_at TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_deleted_at
			ON conversations(deleted_at);

		CREATE TABLE IF NOT EXISTS conversation_participants (
			conversation_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			role TEXT NOT NULL CHECK (role IN ('OWNER', 'ADMIN', 'MEMBER')),
			active INTEGER NOT NULL DEFAULT 1,
			joined_at TEXT NOT NULL,
			last_read_at TEXT,
			PRIMARY KEY (conversation_id, user_id),
			FOREIGN KEY (conversation_id) REFERENCES conversations(id)
		);

		CREATE INDEX IF NOT EXISTS idx_participants_user
			ON conversation_participants(user_id);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}

	return nil
}

// runMigrations applies additive schema changes to databases created by
// earlier versions
func (s *SQLiteStore) runMigrations() error {
	// avatar_url was added after the initial release
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info('users') WHERE name = 'avatar_url'`,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking users schema: %w", err)
	}
	if count == 0 {
		if _, err := s.db.Exec(`ALTER TABLE users ADD COLUMN avatar_url TEXT NOT NULL DEFAULT ''`); err != nil {
			return fmt.Errorf("adding avatar_url column: %w", err)
		}
		s.logger.Info("migrated users table", "added", "avatar_url")
	}

	// max_participants was added with group size limits
	err = s.db.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info('conversations') WHERE name = 'max_participants'`,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking conversations schema: %w", err)
	}
	if count == 0 {
		if _, err := s.db.Exec(`ALTER TABLE conversations ADD COLUMN max_participants INTEGER NOT NULL DEFAULT 0`); err != nil {
			return fmt.Errorf("adding max_participants column: %w", err)
		}
		s.logger.Info("migrated conversations table", "added", "max_participants")
	}

	return nil
}

// Ping verifies the database is reachable
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint
// violation. Foreign-key failures are deliberately excluded so they don't get
// misreported as duplicates.
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// nullTimeString returns nil for a nil time, otherwise the RFC3339 string
func nullTimeString(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

// parseNullTime converts a nullable timestamp column back to an optional time
func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
