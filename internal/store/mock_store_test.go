// ABOUTME: Unit tests for MockStore to ensure behavior matches SQLiteStore
// ABOUTME: Focuses on duplicate detection and copy semantics of the in-memory implementation

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockStore_UserConstraints(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()

	require.NoError(t, m.CreateUser(ctx, testUser("u1", "alice", "alice@example.com")))

	err := m.CreateUser(ctx, testUser("u2", "alice", "other@example.com"))
	assert.ErrorIs(t, err, ErrUsernameTaken)

	err = m.CreateUser(ctx, testUser("u2", "bob", "alice@example.com"))
	assert.ErrorIs(t, err, ErrEmailTaken)

	_, err = m.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMockStore_ReturnsCopies(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()

	require.NoError(t, m.CreateUser(ctx, testUser("u1", "alice", "alice@example.com")))

	first, err := m.GetUser(ctx, "u1")
	require.NoError(t, err)
	first.Username = "mutated"

	second, err := m.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "alice", second.Username, "callers must not be able to mutate stored state")
}

func TestMockStore_ConversationLifecycle(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	conv := &Conversation{
		ID:        "grp_mock",
		Kind:      KindGroup,
		CreatedBy: "alice",
		CreatedAt: now,
		UpdatedAt: now,
	}
	parts := []*Participant{
		{ConversationID: conv.ID, UserID: "alice", Role: RoleOwner, Active: true, JoinedAt: now},
		{ConversationID: conv.ID, UserID: "bob", Role: RoleMember, Active: true, JoinedAt: now.Add(time.Second)},
	}
	require.NoError(t, m.CreateConversation(ctx, conv, parts))

	err := m.CreateConversation(ctx, conv, nil)
	assert.ErrorIs(t, err, ErrDuplicateConversation)

	convs, err := m.ListConversationsForUser(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, convs, 1)

	// Soft delete hides it from listings but keeps it retrievable
	require.NoError(t, m.SoftDeleteConversation(ctx, "grp_mock", now.Add(time.Minute)))

	convs, err = m.ListConversationsForUser(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, convs)

	got, err := m.GetConversation(ctx, "grp_mock")
	require.NoError(t, err)
	require.NotNil(t, got.DeletedAt)

	deleted, err := m.ListSoftDeletedConversations(ctx)
	require.NoError(t, err)
	require.Len(t, deleted, 1)

	// Hard delete removes conversation and participant rows
	require.NoError(t, m.HardDeleteConversation(ctx, "grp_mock"))

	_, err = m.GetConversation(ctx, "grp_mock")
	assert.ErrorIs(t, err, ErrNotFound)

	listed, err := m.ListParticipants(ctx, "grp_mock")
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestMockStore_Participants(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	conv := &Conversation{
		ID:        "grp_mock",
		Kind:      KindGroup,
		CreatedBy: "alice",
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, m.CreateConversation(ctx, conv, []*Participant{
		{ConversationID: conv.ID, UserID: "alice", Role: RoleOwner, Active: true, JoinedAt: now},
	}))

	bob := &Participant{ConversationID: conv.ID, UserID: "bob", Role: RoleMember, Active: true, JoinedAt: now.Add(time.Second)}
	require.NoError(t, m.AddParticipant(ctx, bob))
	assert.ErrorIs(t, m.AddParticipant(ctx, bob), ErrDuplicateParticipant)

	count, err := m.CountActiveParticipants(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, m.SetParticipantActive(ctx, conv.ID, "bob", false))

	active, err := m.ListActiveParticipants(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "alice", active[0].UserID)

	readAt := now.Add(time.Minute)
	require.NoError(t, m.SetParticipantLastRead(ctx, conv.ID, "alice", readAt))
	p, err := m.GetParticipant(ctx, conv.ID, "alice")
	require.NoError(t, err)
	require.NotNil(t, p.LastReadAt)
	assert.True(t, p.LastReadAt.Equal(readAt))
}
