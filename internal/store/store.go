// ABOUTME: Store interface and data types for parley relational persistence
// ABOUTME: Defines User, Conversation, Participant structs and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrUsernameTaken is returned when registering a username that already exists
var ErrUsernameTaken = errors.New("username already taken")

// ErrEmailTaken is returned when registering an email that already exists
var ErrEmailTaken = errors.New("email already taken")

// ErrDuplicateConversation is returned when a conversation id already exists
var ErrDuplicateConversation = errors.New("conversation already exists")

// ErrDuplicateParticipant is returned when a participant row already exists
var ErrDuplicateParticipant = errors.New("participant already exists")

// ConversationKind distinguishes two-party from multi-party conversations
type ConversationKind string

// Conversation kinds
const (
	KindDirect ConversationKind = "DIRECT"
	KindGroup  ConversationKind = "GROUP"
)

// Role is a participant's role within a conversation
type Role string

// Participant roles
const (
	RoleOwner  Role = "OWNER"
	RoleAdmin  Role = "ADMIN"
	RoleMember Role = "MEMBER"
)

// ValidRole reports whether r is one of the known participant roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember:
		return true
	}
	return false
}

// User represents an identity and authentication principal
type User struct {
	ID           string
	Username     string // unique, case-sensitive
	Email        string // unique, normalized lowercase
	PasswordHash string
	DisplayName  string
	AvatarURL    string
	CreatedAt    time.Time
	LastSeenAt   *time.Time
	Online       bool
}

// Conversation is a container for messages.
// A nil DeletedAt means the conversation is live; a set DeletedAt means it is
// soft-deleted and awaiting hard deletion by the cleanup reconciler.
type Conversation struct {
	ID              string // dm_<lo>_<hi> for DIRECT, grp_<random> for GROUP
	Kind            ConversationKind
	Name            string
	Description     string
	IsPublic        bool
	MaxParticipants int
	CreatedBy       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	DeletedAt       *time.Time
}

// Deleted reports whether the conversation is soft-deleted.
func (c *Conversation) Deleted() bool {
	return c.DeletedAt != nil
}

// Participant relates a user to a conversation.
// Deactivation (Active=false) revokes access while preserving history.
type Participant struct {
	ConversationID string
	UserID         string
	Role           Role
	Active         bool
	JoinedAt       time.Time
	LastReadAt     *time.Time
}

// SettingsUpdate carries a partial conversation-settings change.
// Only non-nil fields are applied.
type SettingsUpdate struct {
	Name            *string
	Description     *string
	IsPublic        *bool
	MaxParticipants *int
}

// ProfileUpdate carries a partial user-profile change.
// Only non-nil fields are applied.
type ProfileUpdate struct {
	DisplayName *string
	AvatarURL   *string
}

// Store defines the interface for user, conversation, and participant persistence
type Store interface {
	// Users
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUsersByIDs(ctx context.Context, ids []string) ([]*User, error)
	UpdateUserProfile(ctx context.Context, id string, update ProfileUpdate) error
	UpdateUserPassword(ctx context.Context, id string, passwordHash string) error
	SetUserPresence(ctx context.Context, id string, online bool, lastSeen time.Time) error

	// Conversations. CreateConversation inserts the conversation and its
	// initial participant rows in one transaction.
	CreateConversation(ctx context.Context, conv *Conversation, participants []*Participant) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	ListConversationsForUser(ctx context.Context, userID string) ([]*Conversation, error)
	ListConversationsForUserByKind(ctx context.Context, userID string, kind ConversationKind) ([]*Conversation, error)
	UpdateConversationSettings(ctx context.Context, id string, update SettingsUpdate) error
	TouchConversation(ctx context.Context, id string, when time.Time) error
	SoftDeleteConversation(ctx context.Context, id string, deletedAt time.Time) error
	HardDeleteConversation(ctx context.Context, id string) error
	ListActiveConversationIDs(ctx context.Context) ([]string, error)
	ListSoftDeletedConversations(ctx context.Context) ([]*Conversation, error)

	// Participants
	AddParticipant(ctx context.Context, p *Participant) error
	GetParticipant(ctx context.Context, conversationID, userID string) (*Participant, error)
	ListParticipants(ctx context.Context, conversationID string) ([]*Participant, error)
	ListActiveParticipants(ctx context.Context, conversationID string) ([]*Participant, error)
	CountActiveParticipants(ctx context.Context, conversationID string) (int, error)
	SetParticipantActive(ctx context.Context, conversationID, userID string, active bool) error
	SetParticipantLastRead(ctx context.Context, conversationID, userID string, readAt time.Time) error

	// Ping verifies the underlying database is reachable
	Ping(ctx context.Context) error

	// Close releases any resources held by the store
	Close() error
}
