// ABOUTME: User entity store methods for registration, lookup, and profile updates
// ABOUTME: Username and email uniqueness is enforced by the database

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// CreateUser creates a new user. Returns ErrUsernameTaken or ErrEmailTaken
// when the corresponding unique constraint is violated.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (id, username, email, password_hash, display_name, avatar_url, created_at, last_seen_at, online)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		user.ID,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.DisplayName,
		user.AvatarURL,
		user.CreatedAt.UTC().Format(time.RFC3339),
		nullTimeString(user.LastSeenAt),
		boolToInt(user.Online),
	)
	if err != nil {
		if isConstraintViolation(err) {
			// SQLite names the violated column: "UNIQUE constraint failed: users.username"
			if strings.Contains(err.Error(), "users.email") {
				return ErrEmailTaken
			}
			return ErrUsernameTaken
		}
		return fmt.Errorf("inserting user: %w", err)
	}

	s.logger.Debug("created user", "id", user.ID, "username", user.Username)
	return nil
}

// GetUser retrieves a user by ID.
// Returns ErrNotFound if the user doesn't exist.
func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*User, error) {
	return s.getUserWhere(ctx, "id = ?", id)
}

// GetUserByUsername retrieves a user by their unique username.
// Returns ErrNotFound if no user has that username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return s.getUserWhere(ctx, "username = ?", username)
}

// GetUserByEmail retrieves a user by their unique email.
// Returns ErrNotFound if no user has that email.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return s.getUserWhere(ctx, "email = ?", email)
}

func (s *SQLiteStore) getUserWhere(ctx context.Context, where string, arg any) (*User, error) {
	query := `
		SELECT id, username, email, password_hash, display_name, avatar_url, created_at, last_seen_at, online
		FROM users
		WHERE ` + where

	row := s.db.QueryRowContext(ctx, query, arg)
	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}

	return user, nil
}

// GetUsersByIDs retrieves multiple users in one query. Missing IDs are
// silently omitted from the result; the caller decides whether that matters.
func (s *SQLiteStore) GetUsersByIDs(ctx context.Context, ids []string) ([]*User, error) {
	if len(ids) == 0 {
		return []*User{}, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	query := `
		SELECT id, username, email, password_hash, display_name, avatar_url, created_at, last_seen_at, online
		FROM users
		WHERE id IN (` + placeholders + `)
		ORDER BY username
	`

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating users: %w", err)
	}

	if users == nil {
		users = []*User{}
	}

	return users, nil
}

// UpdateUserProfile applies the non-nil fields of update to the user.
// Returns ErrNotFound if the user doesn't exist.
func (s *SQLiteStore) UpdateUserProfile(ctx context.Context, id string, update ProfileUpdate) error {
	var sets []string
	var args []any

	if update.DisplayName != nil {
		sets = append(sets, "display_name = ?")
		args = append(args, *update.DisplayName)
	}
	if update.AvatarURL != nil {
		sets = append(sets, "avatar_url = ?")
		args = append(args, *update.AvatarURL)
	}
	if len(sets) == 0 {
		return nil
	}

	query := `UPDATE users SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`
	args = append(args, id)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating user profile: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("updated user profile", "id", id)
	return nil
}

// UpdateUserPassword replaces the user's password hash.
// Returns ErrNotFound if the user doesn't exist.
func (s *SQLiteStore) UpdateUserPassword(ctx context.Context, id string, passwordHash string) error {
	query := `UPDATE users SET password_hash = ? WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, passwordHash, id)
	if err != nil {
		return fmt.Errorf("updating user password: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("updated user password", "id", id)
	return nil
}

// SetUserPresence records whether the user is online and when they were last
// seen. Returns ErrNotFound if the user doesn't exist.
func (s *SQLiteStore) SetUserPresence(ctx context.Context, id string, online bool, lastSeen time.Time) error {
	query := `UPDATE users SET online = ?, last_seen_at = ? WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query,
		boolToInt(online),
		lastSeen.UTC().Format(time.RFC3339),
		id,
	)
	if err != nil {
		return fmt.Errorf("updating user presence: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// scanner abstracts *sql.Row and *sql.Rows for shared scan helpers
type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*User, error) {
	var user User
	var createdAtStr string
	var lastSeenAt sql.NullString
	var online int

	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.DisplayName,
		&user.AvatarURL,
		&createdAtStr,
		&lastSeenAt,
		&online,
	)
	if err != nil {
		return nil, err
	}

	user.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	user.LastSeenAt, err = parseNullTime(lastSeenAt)
	if err != nil {
		return nil, fmt.Errorf("parsing last_seen_at: %w", err)
	}

	user.Online = online != 0
	return &user, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
