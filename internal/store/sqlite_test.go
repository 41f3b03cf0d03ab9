// ABOUTME: Tests for the SQLite store covering conversations and participants
// ABOUTME: Uses a temp-dir database per test via newTestStore

package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func TestCreateConversation(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	conv := &Conversation{
		ID:        "dm_alice_bob",
		Kind:      KindDirect,
		CreatedBy: "alice",
		CreatedAt: now,
		UpdatedAt: now,
	}
	participants := []*Participant{
		{ConversationID: conv.ID, UserID: "alice", Role: RoleMember, Active: true, JoinedAt: now},
		{ConversationID: conv.ID, UserID: "bob", Role: RoleMember, Active: true, JoinedAt: now},
	}

	if err := store.CreateConversation(ctx, conv, participants); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	got, err := store.GetConversation(ctx, "dm_alice_bob")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if got.Kind != KindDirect {
		t.Errorf("expected kind DIRECT, got %s", got.Kind)
	}
	if got.DeletedAt != nil {
		t.Errorf("expected DeletedAt nil for live conversation, got %v", got.DeletedAt)
	}

	listed, err := store.ListParticipants(ctx, conv.ID)
	if err != nil {
		t.Fatalf("ListParticipants failed: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("expected 2 participants, got %d", len(listed))
	}
}

func TestCreateConversation_Duplicate(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	conv := &Conversation{
		ID:        "dm_alice_bob",
		Kind:      KindDirect,
		CreatedBy: "alice",
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := store.CreateConversation(ctx, conv, nil); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	err := store.CreateConversation(ctx, conv, nil)
	if err != ErrDuplicateConversation {
		t.Errorf("expected ErrDuplicateConversation, got %v", err)
	}
}

func TestCreateConversation_RollsBackOnParticipantFailure(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	conv := &Conversation{
		ID:        "grp_test",
		Kind:      KindGroup,
		Name:      "Test",
		CreatedBy: "alice",
		CreatedAt: now,
		UpdatedAt: now,
	}
	// Duplicate participant rows force the second insert to fail
	participants := []*Participant{
		{ConversationID: conv.ID, UserID: "alice", Role: RoleOwner, Active: true, JoinedAt: now},
		{ConversationID: conv.ID, UserID: "alice", Role: RoleOwner, Active: true, JoinedAt: now},
	}

	if err := store.CreateConversation(ctx, conv, participants); err == nil {
		t.Fatal("expected CreateConversation to fail on duplicate participant")
	}

	// The conversation insert must have been rolled back
	_, err := store.GetConversation(ctx, "grp_test")
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound after rollback, got %v", err)
	}
}

func TestGetConversation_NotFound(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	_, err := store.GetConversation(context.Background(), "nonexistent")
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListConversationsForUser(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	for i, id := range []string{"grp_one", "grp_two", "grp_three"} {
		conv := &Conversation{
			ID:        id,
			Kind:      KindGroup,
			Name:      id,
			CreatedBy: "alice",
			CreatedAt: base,
			UpdatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		participants := []*Participant{
			{ConversationID: id, UserID: "alice", Role: RoleOwner, Active: true, JoinedAt: base},
		}
		if err := store.CreateConversation(ctx, conv, participants); err != nil {
			t.Fatalf("CreateConversation %s failed: %v", id, err)
		}
	}

	// A direct conversation for the kind filter
	dm := &Conversation{
		ID:        "dm_alice_bob",
		Kind:      KindDirect,
		CreatedBy: "alice",
		CreatedAt: base,
		UpdatedAt: base.Add(time.Hour),
	}
	dmParts := []*Participant{
		{ConversationID: dm.ID, UserID: "alice", Role: RoleMember, Active: true, JoinedAt: base},
		{ConversationID: dm.ID, UserID: "bob", Role: RoleMember, Active: true, JoinedAt: base},
	}
	if err := store.CreateConversation(ctx, dm, dmParts); err != nil {
		t.Fatalf("CreateConversation dm failed: %v", err)
	}

	convs, err := store.ListConversationsForUser(ctx, "alice")
	if err != nil {
		t.Fatalf("ListConversationsForUser failed: %v", err)
	}
	if len(convs) != 4 {
		t.Fatalf("expected 4 conversations, got %d", len(convs))
	}
	// Most recently updated first
	if convs[0].ID != "dm_alice_bob" {
		t.Errorf("expected dm_alice_bob first, got %s", convs[0].ID)
	}

	groups, err := store.ListConversationsForUserByKind(ctx, "alice", KindGroup)
	if err != nil {
		t.Fatalf("ListConversationsForUserByKind failed: %v", err)
	}
	if len(groups) != 3 {
		t.Errorf("expected 3 group conversations, got %d", len(groups))
	}

	// bob only sees the direct conversation
	bobConvs, err := store.ListConversationsForUser(ctx, "bob")
	if err != nil {
		t.Fatalf("ListConversationsForUser bob failed: %v", err)
	}
	if len(bobConvs) != 1 {
		t.Errorf("expected 1 conversation for bob, got %d", len(bobConvs))
	}
}

func TestListConversationsForUser_ExcludesInactiveAndDeleted(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	for _, id := range []string{"grp_left", "grp_gone"} {
		conv := &Conversation{
			ID:        id,
			Kind:      KindGroup,
			CreatedBy: "alice",
			CreatedAt: now,
			UpdatedAt: now,
		}
		participants := []*Participant{
			{ConversationID: id, UserID: "alice", Role: RoleOwner, Active: true, JoinedAt: now},
		}
		if err := store.CreateConversation(ctx, conv, participants); err != nil {
			t.Fatalf("CreateConversation %s failed: %v", id, err)
		}
	}

	// alice left grp_left
	if err := store.SetParticipantActive(ctx, "grp_left", "alice", false); err != nil {
		t.Fatalf("SetParticipantActive failed: %v", err)
	}
	// grp_gone was soft-deleted
	if err := store.SoftDeleteConversation(ctx, "grp_gone", now); err != nil {
		t.Fatalf("SoftDeleteConversation failed: %v", err)
	}

	convs, err := store.ListConversationsForUser(ctx, "alice")
	if err != nil {
		t.Fatalf("ListConversationsForUser failed: %v", err)
	}
	if len(convs) != 0 {
		t.Errorf("expected no conversations, got %d", len(convs))
	}
}

func TestUpdateConversationSettings(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	conv := &Conversation{
		ID:        "grp_settings",
		Kind:      KindGroup,
		Name:      "Before",
		CreatedBy: "alice",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.CreateConversation(ctx, conv, nil); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	name := "After"
	public := true
	if err := store.UpdateConversationSettings(ctx, "grp_settings", SettingsUpdate{Name: &name, IsPublic: &public}); err != nil {
		t.Fatalf("UpdateConversationSettings failed: %v", err)
	}

	got, err := store.GetConversation(ctx, "grp_settings")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if got.Name != "After" {
		t.Errorf("expected name After, got %s", got.Name)
	}
	if !got.IsPublic {
		t.Error("expected conversation to be public")
	}
	// Untouched fields stay as they were
	if got.Description != "" {
		t.Errorf("expected empty description, got %s", got.Description)
	}

	// Empty update is a no-op, not an error
	if err := store.UpdateConversationSettings(ctx, "grp_settings", SettingsUpdate{}); err != nil {
		t.Errorf("empty update failed: %v", err)
	}

	err = store.UpdateConversationSettings(ctx, "nonexistent", SettingsUpdate{Name: &name})
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSoftDeleteConversation(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	conv := &Conversation{
		ID:        "grp_doomed",
		Kind:      KindGroup,
		CreatedBy: "alice",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.CreateConversation(ctx, conv, nil); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	deletedAt := now.Add(time.Minute)
	if err := store.SoftDeleteConversation(ctx, "grp_doomed", deletedAt); err != nil {
		t.Fatalf("SoftDeleteConversation failed: %v", err)
	}

	got, err := store.GetConversation(ctx, "grp_doomed")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if got.DeletedAt == nil {
		t.Fatal("expected DeletedAt to be set")
	}
	if !got.DeletedAt.Equal(deletedAt) {
		t.Errorf("expected DeletedAt %v, got %v", deletedAt, *got.DeletedAt)
	}

	// Second soft delete keeps the original timestamp
	if err := store.SoftDeleteConversation(ctx, "grp_doomed", deletedAt.Add(time.Hour)); err != nil {
		t.Fatalf("second SoftDeleteConversation failed: %v", err)
	}
	got, err = store.GetConversation(ctx, "grp_doomed")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if !got.DeletedAt.Equal(deletedAt) {
		t.Errorf("expected original DeletedAt %v, got %v", deletedAt, *got.DeletedAt)
	}

	err = store.SoftDeleteConversation(ctx, "nonexistent", now)
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestHardDeleteConversation(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	conv := &Conversation{
		ID:        "grp_purge",
		Kind:      KindGroup,
		CreatedBy: "alice",
		CreatedAt: now,
		UpdatedAt: now,
	}
	participants := []*Participant{
		{ConversationID: conv.ID, UserID: "alice", Role: RoleOwner, Active: true, JoinedAt: now},
		{ConversationID: conv.ID, UserID: "bob", Role: RoleMember, Active: true, JoinedAt: now},
	}
	if err := store.CreateConversation(ctx, conv, participants); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	if err := store.HardDeleteConversation(ctx, "grp_purge"); err != nil {
		t.Fatalf("HardDeleteConversation failed: %v", err)
	}

	_, err := store.GetConversation(ctx, "grp_purge")
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound after hard delete, got %v", err)
	}

	listed, err := store.ListParticipants(ctx, "grp_purge")
	if err != nil {
		t.Fatalf("ListParticipants failed: %v", err)
	}
	if len(listed) != 0 {
		t.Errorf("expected participant rows removed, got %d", len(listed))
	}

	err = store.HardDeleteConversation(ctx, "nonexistent")
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListSoftDeletedConversations(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	for i := range 3 {
		id := fmt.Sprintf("grp_%d", i)
		conv := &Conversation{
			ID:        id,
			Kind:      KindGroup,
			CreatedBy: "alice",
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := store.CreateConversation(ctx, conv, nil); err != nil {
			t.Fatalf("CreateConversation %s failed: %v", id, err)
		}
	}

	// Delete grp_2 first, then grp_0; grp_1 stays live
	if err := store.SoftDeleteConversation(ctx, "grp_2", now.Add(-2*time.Hour)); err != nil {
		t.Fatalf("SoftDeleteConversation failed: %v", err)
	}
	if err := store.SoftDeleteConversation(ctx, "grp_0", now.Add(-time.Hour)); err != nil {
		t.Fatalf("SoftDeleteConversation failed: %v", err)
	}

	deleted, err := store.ListSoftDeletedConversations(ctx)
	if err != nil {
		t.Fatalf("ListSoftDeletedConversations failed: %v", err)
	}
	if len(deleted) != 2 {
		t.Fatalf("expected 2 soft-deleted conversations, got %d", len(deleted))
	}
	if deleted[0].ID != "grp_2" || deleted[1].ID != "grp_0" {
		t.Errorf("expected oldest deletion first, got %s then %s", deleted[0].ID, deleted[1].ID)
	}

	ids, err := store.ListActiveConversationIDs(ctx)
	if err != nil {
		t.Fatalf("ListActiveConversationIDs failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != "grp_1" {
		t.Errorf("expected only grp_1 active, got %v", ids)
	}
}

func TestParticipantLifecycle(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	conv := &Conversation{
		ID:        "grp_members",
		Kind:      KindGroup,
		CreatedBy: "alice",
		CreatedAt: now,
		UpdatedAt: now,
	}
	owner := []*Participant{
		{ConversationID: conv.ID, UserID: "alice", Role: RoleOwner, Active: true, JoinedAt: now},
	}
	if err := store.CreateConversation(ctx, conv, owner); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	bob := &Participant{
		ConversationID: conv.ID,
		UserID:         "bob",
		Role:           RoleMember,
		Active:         true,
		JoinedAt:       now.Add(time.Second),
	}
	if err := store.AddParticipant(ctx, bob); err != nil {
		t.Fatalf("AddParticipant failed: %v", err)
	}

	if err := store.AddParticipant(ctx, bob); err != ErrDuplicateParticipant {
		t.Errorf("expected ErrDuplicateParticipant, got %v", err)
	}

	count, err := store.CountActiveParticipants(ctx, conv.ID)
	if err != nil {
		t.Fatalf("CountActiveParticipants failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 active participants, got %d", count)
	}

	// Deactivate bob; the row survives but drops out of active listings
	if err := store.SetParticipantActive(ctx, conv.ID, "bob", false); err != nil {
		t.Fatalf("SetParticipantActive failed: %v", err)
	}

	active, err := store.ListActiveParticipants(ctx, conv.ID)
	if err != nil {
		t.Fatalf("ListActiveParticipants failed: %v", err)
	}
	if len(active) != 1 || active[0].UserID != "alice" {
		t.Errorf("expected only alice active, got %v", active)
	}

	all, err := store.ListParticipants(ctx, conv.ID)
	if err != nil {
		t.Fatalf("ListParticipants failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 participant rows, got %d", len(all))
	}

	got, err := store.GetParticipant(ctx, conv.ID, "bob")
	if err != nil {
		t.Fatalf("GetParticipant failed: %v", err)
	}
	if got.Active {
		t.Error("expected bob to be inactive")
	}
	if got.Role != RoleMember {
		t.Errorf("expected role MEMBER, got %s", got.Role)
	}

	_, err = store.GetParticipant(ctx, conv.ID, "stranger")
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSetParticipantLastRead(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	conv := &Conversation{
		ID:        "grp_read",
		Kind:      KindGroup,
		CreatedBy: "alice",
		CreatedAt: now,
		UpdatedAt: now,
	}
	participants := []*Participant{
		{ConversationID: conv.ID, UserID: "alice", Role: RoleOwner, Active: true, JoinedAt: now},
	}
	if err := store.CreateConversation(ctx, conv, participants); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	readAt := now.Add(5 * time.Minute)
	if err := store.SetParticipantLastRead(ctx, conv.ID, "alice", readAt); err != nil {
		t.Fatalf("SetParticipantLastRead failed: %v", err)
	}

	got, err := store.GetParticipant(ctx, conv.ID, "alice")
	if err != nil {
		t.Fatalf("GetParticipant failed: %v", err)
	}
	if got.LastReadAt == nil || !got.LastReadAt.Equal(readAt) {
		t.Errorf("expected LastReadAt %v, got %v", readAt, got.LastReadAt)
	}

	err = store.SetParticipantLastRead(ctx, conv.ID, "stranger", readAt)
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestTouchConversation(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	conv := &Conversation{
		ID:        "grp_touch",
		Kind:      KindGroup,
		CreatedBy: "alice",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.CreateConversation(ctx, conv, nil); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	later := now.Add(time.Hour)
	if err := store.TouchConversation(ctx, "grp_touch", later); err != nil {
		t.Fatalf("TouchConversation failed: %v", err)
	}

	got, err := store.GetConversation(ctx, "grp_touch")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if !got.UpdatedAt.Equal(later) {
		t.Errorf("expected UpdatedAt %v, got %v", later, got.UpdatedAt)
	}

	// Touching a missing conversation is not an error
	if err := store.TouchConversation(ctx, "nonexistent", later); err != nil {
		t.Errorf("TouchConversation on missing id failed: %v", err)
	}
}

func TestSchemaReopen(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)
	user := &User{
		ID:           "u1",
		Username:     "alice",
		Email:        "alice@example.com",
		PasswordHash: "hash",
		CreatedAt:    now,
	}
	if err := store.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	store.Close()

	// Reopening an existing database must not fail or lose data
	store, err = NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("reopening store failed: %v", err)
	}
	defer store.Close()

	got, err := store.GetUser(ctx, "u1")
	if err != nil {
		t.Fatalf("GetUser after reopen failed: %v", err)
	}
	if got.Username != "alice" {
		t.Errorf("expected username alice, got %s", got.Username)
	}
}

// newTestStore creates a new SQLite store in a temporary directory for testing
func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}

	return store
}
