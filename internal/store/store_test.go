package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestStore creates a temporary SQLite store for testing.
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

func testUser(id, username, email string) *User {
	return &User{
		ID:           id,
		Username:     username,
		Email:        email,
		PasswordHash: "$2a$12$fakehashfakehashfakehash",
		DisplayName:  username,
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
}

func TestStore_CreateUser(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	user := testUser("u1", "alice", "alice@example.com")
	err := store.CreateUser(ctx, user)
	require.NoError(t, err)

	retrieved, err := store.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "alice", retrieved.Username)
	assert.Equal(t, "alice@example.com", retrieved.Email)
	assert.False(t, retrieved.Online)
	assert.Nil(t, retrieved.LastSeenAt)
}

func TestStore_CreateUser_UsernameTaken(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateUser(ctx, testUser("u1", "alice", "alice@example.com")))

	err := store.CreateUser(ctx, testUser("u2", "alice", "other@example.com"))
	assert.ErrorIs(t, err, ErrUsernameTaken)
}

func TestStore_CreateUser_EmailTaken(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateUser(ctx, testUser("u1", "alice", "alice@example.com")))

	err := store.CreateUser(ctx, testUser("u2", "bob", "alice@example.com"))
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestStore_GetUserByUsername(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateUser(ctx, testUser("u1", "alice", "alice@example.com")))

	retrieved, err := store.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "u1", retrieved.ID)

	_, err = store.GetUserByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_GetUserByEmail(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateUser(ctx, testUser("u1", "alice", "alice@example.com")))

	retrieved, err := store.GetUserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", retrieved.ID)

	_, err = store.GetUserByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_GetUsersByIDs(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateUser(ctx, testUser("u1", "alice", "alice@example.com")))
	require.NoError(t, store.CreateUser(ctx, testUser("u2", "bob", "bob@example.com")))

	users, err := store.GetUsersByIDs(ctx, []string{"u2", "u1", "missing"})
	require.NoError(t, err)
	require.Len(t, users, 2)
	// Ordered by username; missing IDs silently omitted
	assert.Equal(t, "alice", users[0].Username)
	assert.Equal(t, "bob", users[1].Username)

	users, err = store.GetUsersByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestStore_UpdateUserProfile(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateUser(ctx, testUser("u1", "alice", "alice@example.com")))

	displayName := "Alice A."
	avatar := "https://example.com/a.png"
	err := store.UpdateUserProfile(ctx, "u1", ProfileUpdate{DisplayName: &displayName, AvatarURL: &avatar})
	require.NoError(t, err)

	retrieved, err := store.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Alice A.", retrieved.DisplayName)
	assert.Equal(t, "https://example.com/a.png", retrieved.AvatarURL)

	// Partial update leaves the other field alone
	onlyName := "Alice B."
	require.NoError(t, store.UpdateUserProfile(ctx, "u1", ProfileUpdate{DisplayName: &onlyName}))
	retrieved, err = store.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Alice B.", retrieved.DisplayName)
	assert.Equal(t, "https://example.com/a.png", retrieved.AvatarURL)

	err = store.UpdateUserProfile(ctx, "missing", ProfileUpdate{DisplayName: &onlyName})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_UpdateUserPassword(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateUser(ctx, testUser("u1", "alice", "alice@example.com")))

	err := store.UpdateUserPassword(ctx, "u1", "$2a$12$newhash")
	require.NoError(t, err)

	retrieved, err := store.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "$2a$12$newhash", retrieved.PasswordHash)

	err = store.UpdateUserPassword(ctx, "missing", "$2a$12$newhash")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_SetUserPresence(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateUser(ctx, testUser("u1", "alice", "alice@example.com")))

	seen := time.Now().UTC().Truncate(time.Second)
	err := store.SetUserPresence(ctx, "u1", true, seen)
	require.NoError(t, err)

	retrieved, err := store.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, retrieved.Online)
	require.NotNil(t, retrieved.LastSeenAt)
	assert.True(t, retrieved.LastSeenAt.Equal(seen))

	err = store.SetUserPresence(ctx, "u1", false, seen.Add(time.Minute))
	require.NoError(t, err)

	retrieved, err = store.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, retrieved.Online)
}
