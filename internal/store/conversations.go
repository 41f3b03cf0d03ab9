// ABOUTME: Conversation entity store methods including soft-delete lifecycle
// ABOUTME: Conversation creation inserts the initial participant rows in one transaction

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// CreateConversation creates a conversation together with its initial
// participants in a single transaction. Returns ErrDuplicateConversation if a
// conversation with the same ID already exists.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *Conversation, participants []*Participant) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	convQuery := `
		INSERT INTO conversations (id, kind, name, description, is_public, max_participants, created_by, created_at, updated_at, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = tx.ExecContext(ctx, convQuery,
		conv.ID,
		string(conv.Kind),
		conv.Name,
		conv.Description,
		boolToInt(conv.IsPublic),
		conv.MaxParticipants,
		conv.CreatedBy,
		conv.CreatedAt.UTC().Format(time.RFC3339),
		conv.UpdatedAt.UTC().Format(time.RFC3339),
		nullTimeString(conv.DeletedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateConversation
		}
		return fmt.Errorf("inserting conversation: %w", err)
	}

	partQuery := `
		INSERT INTO conversation_participants (conversation_id, user_id, role, active, joined_at, last_read_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	for _, p := range participants {
		_, err = tx.ExecContext(ctx, partQuery,
			p.ConversationID,
			p.UserID,
			string(p.Role),
			boolToInt(p.Active),
			p.JoinedAt.UTC().Format(time.RFC3339),
			nullTimeString(p.LastReadAt),
		)
		if err != nil {
			return fmt.Errorf("inserting participant %s: %w", p.UserID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	s.logger.Debug("created conversation", "id", conv.ID, "kind", conv.Kind, "participants", len(participants))
	return nil
}

// GetConversation retrieves a conversation by ID. Soft-deleted conversations
// are returned with DeletedAt set; callers decide how to treat them.
// Returns ErrNotFound if the conversation doesn't exist.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	query := `
		SELECT id, kind, name, description, is_public, max_participants, created_by, created_at, updated_at, deleted_at
		FROM conversations
		WHERE id = ?
	`

	row := s.db.QueryRowContext(ctx, query, id)
	conv, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}

	return conv, nil
}

// ListConversationsForUser returns the live conversations the user actively
// participates in, most recently updated first.
func (s *SQLiteStore) ListConversationsForUser(ctx context.Context, userID string) ([]*Conversation, error) {
	return s.listConversationsForUser(ctx, userID, "")
}

// ListConversationsForUserByKind is ListConversationsForUser restricted to
// one conversation kind.
func (s *SQLiteStore) ListConversationsForUserByKind(ctx context.Context, userID string, kind ConversationKind) ([]*Conversation, error) {
	return s.listConversationsForUser(ctx, userID, kind)
}

func (s *SQLiteStore) listConversationsForUser(ctx context.Context, userID string, kind ConversationKind) ([]*Conversation, error) {
	query := `
		SELECT c.id, c.kind, c.name, c.description, c.is_public, c.max_participants, c.created_by, c.created_at, c.updated_at, c.deleted_at
		FROM conversations c
		JOIN conversation_participants p ON p.conversation_id = c.id
		WHERE p.user_id = ? AND p.active = 1 AND c.deleted_at IS NULL
	`
	args := []any{userID}

	if kind != "" {
		query += ` AND c.kind = ?`
		args = append(args, string(kind))
	}

	query += ` ORDER BY c.updated_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	var convs []*Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		convs = append(convs, conv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversations: %w", err)
	}

	if convs == nil {
		convs = []*Conversation{}
	}

	return convs, nil
}

// UpdateConversationSettings applies the non-nil fields of update and bumps
// updated_at. Returns ErrNotFound if the conversation doesn't exist.
func (s *SQLiteStore) UpdateConversationSettings(ctx context.Context, id string, update SettingsUpdate) error {
	var sets []string
	var args []any

	if update.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *update.Name)
	}
	if update.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *update.Description)
	}
	if update.IsPublic != nil {
		sets = append(sets, "is_public = ?")
		args = append(args, boolToInt(*update.IsPublic))
	}
	if update.MaxParticipants != nil {
		sets = append(sets, "max_participants = ?")
		args = append(args, *update.MaxParticipants)
	}
	if len(sets) == 0 {
		return nil
	}

	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC().Format(time.RFC3339), id)

	query := `UPDATE conversations SET ` + strings.Join(sets, ", ") + ` WHERE id = ? AND deleted_at IS NULL`

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating conversation settings: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("updated conversation settings", "id", id)
	return nil
}

// TouchConversation bumps the conversation's updated_at so it sorts to the
// top of listings. Missing conversations are ignored.
func (s *SQLiteStore) TouchConversation(ctx context.Context, id string, when time.Time) error {
	query := `UPDATE conversations SET updated_at = ? WHERE id = ?`

	_, err := s.db.ExecContext(ctx, query, when.UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("touching conversation: %w", err)
	}

	return nil
}

// SoftDeleteConversation marks a conversation deleted without removing any
// rows. Already-deleted conversations keep their original deletion time.
// Returns ErrNotFound if the conversation doesn't exist.
func (s *SQLiteStore) SoftDeleteConversation(ctx context.Context, id string, deletedAt time.Time) error {
	query := `UPDATE conversations SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`

	result, err := s.db.ExecContext(ctx, query, deletedAt.UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("soft-deleting conversation: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		// Distinguish missing from already soft-deleted
		if _, err := s.GetConversation(ctx, id); err != nil {
			return err
		}
		return nil
	}

	s.logger.Debug("soft-deleted conversation", "id", id)
	return nil
}

// HardDeleteConversation permanently removes a conversation and its
// participant rows in a single transaction. Message rows live in the message
// store and must be removed by the caller first.
func (s *SQLiteStore) HardDeleteConversation(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM conversation_participants WHERE conversation_id = ?`, id); err != nil {
		return fmt.Errorf("deleting participants: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	s.logger.Debug("hard-deleted conversation", "id", id)
	return nil
}

// ListActiveConversationIDs returns the IDs of all live conversations.
// Used by the cleanup reconciler to find orphaned messages.
func (s *SQLiteStore) ListActiveConversationIDs(ctx context.Context) ([]string, error) {
	query := `SELECT id FROM conversations WHERE deleted_at IS NULL`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying conversation ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning conversation id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversation ids: %w", err)
	}

	if ids == nil {
		ids = []string{}
	}

	return ids, nil
}

// ListSoftDeletedConversations returns all soft-deleted conversations,
// oldest deletion first.
func (s *SQLiteStore) ListSoftDeletedConversations(ctx context.Context) ([]*Conversation, error) {
	query := `
		SELECT id, kind, name, description, is_public, max_participants, created_by, created_at, updated_at, deleted_at
		FROM conversations
		WHERE deleted_at IS NOT NULL
		ORDER BY deleted_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying soft-deleted conversations: %w", err)
	}
	defer rows.Close()

	var convs []*Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		convs = append(convs, conv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversations: %w", err)
	}

	if convs == nil {
		convs = []*Conversation{}
	}

	return convs, nil
}

func scanConversation(row scanner) (*Conversation, error) {
	var conv Conversation
	var kind string
	var isPublic int
	var createdAtStr, updatedAtStr string
	var deletedAt sql.NullString

	err := row.Scan(
		&conv.ID,
		&kind,
		&conv.Name,
		&conv.Description,
		&isPublic,
		&conv.MaxParticipants,
		&conv.CreatedBy,
		&createdAtStr,
		&updatedAtStr,
		&deletedAt,
	)
	if err != nil {
		return nil, err
	}

	conv.Kind = ConversationKind(kind)
	conv.IsPublic = isPublic != 0

	conv.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	conv.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	conv.DeletedAt, err = parseNullTime(deletedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing deleted_at: %w", err)
	}

	return &conv, nil
}
