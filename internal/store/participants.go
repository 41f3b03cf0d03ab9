// ABOUTME: Participant entity store methods for membership and roles
// ABOUTME: Deactivation preserves history; rows are only removed with their conversation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// AddParticipant inserts a participant row.
// Returns ErrDuplicateParticipant if the user is already in the conversation.
func (s *SQLiteStore) AddParticipant(ctx context.Context, p *Participant) error {
	query := `
		INSERT INTO conversation_participants (conversation_id, user_id, role, active, joined_at, last_read_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		p.ConversationID,
		p.UserID,
		string(p.Role),
		boolToInt(p.Active),
		p.JoinedAt.UTC().Format(time.RFC3339),
		nullTimeString(p.LastReadAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateParticipant
		}
		return fmt.Errorf("inserting participant: %w", err)
	}

	s.logger.Debug("added participant", "conversation", p.ConversationID, "user", p.UserID, "role", p.Role)
	return nil
}

// GetParticipant retrieves one participant row.
// Returns ErrNotFound if the user has never been in the conversation.
func (s *SQLiteStore) GetParticipant(ctx context.Context, conversationID, userID string) (*Participant, error) {
	query := `
		SELECT conversation_id, user_id, role, active, joined_at, last_read_at
		FROM conversation_participants
		WHERE conversation_id = ? AND user_id = ?
	`

	row := s.db.QueryRowContext(ctx, query, conversationID, userID)
	p, err := scanParticipant(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying participant: %w", err)
	}

	return p, nil
}

// ListParticipants returns all participant rows for a conversation, active or
// not, ordered by join time.
func (s *SQLiteStore) ListParticipants(ctx context.Context, conversationID string) ([]*Participant, error) {
	return s.listParticipants(ctx, conversationID, false)
}

// ListActiveParticipants returns only the active participants of a
// conversation, ordered by join time.
func (s *SQLiteStore) ListActiveParticipants(ctx context.Context, conversationID string) ([]*Participant, error) {
	return s.listParticipants(ctx, conversationID, true)
}

func (s *SQLiteStore) listParticipants(ctx context.Context, conversationID string, activeOnly bool) ([]*Participant, error) {
	query := `
		SELECT conversation_id, user_id, role, active, joined_at, last_read_at
		FROM conversation_participants
		WHERE conversation_id = ?
	`
	if activeOnly {
		query += ` AND active = 1`
	}
	query += ` ORDER BY joined_at ASC`

	rows, err := s.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("querying participants: %w", err)
	}
	defer rows.Close()

	var participants []*Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning participant: %w", err)
		}
		participants = append(participants, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating participants: %w", err)
	}

	if participants == nil {
		participants = []*Participant{}
	}

	return participants, nil
}

// CountActiveParticipants returns the number of active participants in a
// conversation. A missing conversation counts as zero.
func (s *SQLiteStore) CountActiveParticipants(ctx context.Context, conversationID string) (int, error) {
	query := `
		SELECT COUNT(*) FROM conversation_participants
		WHERE conversation_id = ? AND active = 1
	`

	var count int
	if err := s.db.QueryRowContext(ctx, query, conversationID).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting participants: %w", err)
	}

	return count, nil
}

// SetParticipantActive activates or deactivates a participant.
// Returns ErrNotFound if the participant row doesn't exist.
func (s *SQLiteStore) SetParticipantActive(ctx context.Context, conversationID, userID string, active bool) error {
	query := `
		UPDATE conversation_participants SET active = ?
		WHERE conversation_id = ? AND user_id = ?
	`

	result, err := s.db.ExecContext(ctx, query, boolToInt(active), conversationID, userID)
	if err != nil {
		return fmt.Errorf("updating participant: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("set participant active", "conversation", conversationID, "user", userID, "active", active)
	return nil
}

// SetParticipantLastRead records the high-water mark of what the user has
// read in the conversation. Returns ErrNotFound if the participant row
// doesn't exist.
func (s *SQLiteStore) SetParticipantLastRead(ctx context.Context, conversationID, userID string, readAt time.Time) error {
	query := `
		UPDATE conversation_participants SET last_read_at = ?
		WHERE conversation_id = ? AND user_id = ?
	`

	result, err := s.db.ExecContext(ctx, query, readAt.UTC().Format(time.RFC3339), conversationID, userID)
	if err != nil {
		return fmt.Errorf("updating participant last read: %w", err)
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

func scanParticipant(row scanner) (*Participant, error) {
	var p Participant
	var role string
	var active int
	var joinedAtStr string
	var lastReadAt sql.NullString

	err := row.Scan(
		&p.ConversationID,
		&p.UserID,
		&role,
		&active,
		&joinedAtStr,
		&lastReadAt,
	)
	if err != nil {
		return nil, err
	}

	p.Role = Role(role)
	p.Active = active != 0

	p.JoinedAt, err = time.Parse(time.RFC3339, joinedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing joined_at: %w", err)
	}

	p.LastReadAt, err = parseNullTime(lastReadAt)
	if err != nil {
		return nil, fmt.Errorf("parsing last_read_at: %w", err)
	}

	return &p, nil
}
