// ABOUTME: Tests for the cleanup reconciler
// ABOUTME: Covers orphan purge, tombstone purge, retention expiry, and dry-run

package cleanup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-im/parley/internal/conversation"
	"github.com/parley-im/parley/internal/msgstore"
	"github.com/parley-im/parley/internal/store"
)

type fixture struct {
	rec   *Reconciler
	users *store.MockStore
	msgs  *msgstore.Memory
	conv  *conversation.Service
}

func newFixture(t *testing.T, userIDs ...string) *fixture {
	t.Helper()

	users := store.NewMockStore()
	for _, id := range userIDs {
		require.NoError(t, users.CreateUser(context.Background(), &store.User{
			ID:       id,
			Username: id,
			Email:    id + "@example.com",
		}))
	}
	msgs := msgstore.NewMemory()
	return &fixture{
		rec:   New(users, msgs, 30, nil),
		users: users,
		msgs:  msgs,
		conv:  conversation.New(users, msgs, nil),
	}
}

func (f *fixture) seed(t *testing.T, convID, sender string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, f.msgs.Append(context.Background(), &msgstore.Message{
			ConversationID: convID,
			SenderID:       sender,
			Content:        "x",
			Timestamp:      time.Now().UTC(),
			Status:         msgstore.StatusSent,
		}))
	}
}

func TestRunRemovesOrphanedMessages(t *testing.T) {
	f := newFixture(t, "u1", "u2")
	ctx := context.Background()

	live, err := f.conv.CreateDirect(ctx, "u1", "u2")
	require.NoError(t, err)
	f.seed(t, live.ID, "u1", 2)
	f.seed(t, "dm_ghost_gone", "ghost", 3)

	report := f.rec.Run(ctx, false)
	assert.Equal(t, int64(3), report.OrphanMessages)
	assert.Zero(t, report.Errors)

	n, err := f.msgs.CountByConversation(ctx, "dm_ghost_gone")
	require.NoError(t, err)
	assert.Zero(t, n)

	// Live conversation untouched
	n, err = f.msgs.CountByConversation(ctx, live.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestRunPurgesSoftDeletedMessagesImmediately(t *testing.T) {
	f := newFixture(t, "u1", "u2")
	ctx := context.Background()

	conv, err := f.conv.CreateDirect(ctx, "u1", "u2")
	require.NoError(t, err)
	f.seed(t, conv.ID, "u1", 4)
	require.NoError(t, f.users.SoftDeleteConversation(ctx, conv.ID, time.Now().UTC()))

	report := f.rec.Run(ctx, false)
	assert.Equal(t, int64(4), report.SoftDeletedMessages)
	// Fresh tombstone stays within retention
	assert.Zero(t, report.ExpiredConversations)

	n, err := f.msgs.CountByConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	// The tombstoned row itself survives
	_, err = f.users.GetConversation(ctx, conv.ID)
	assert.NoError(t, err)
}

func TestRunHardDeletesExpiredTombstones(t *testing.T) {
	f := newFixture(t, "u1", "u2")
	ctx := context.Background()

	conv, err := f.conv.CreateDirect(ctx, "u1", "u2")
	require.NoError(t, err)
	f.seed(t, conv.ID, "u1", 1)
	old := time.Now().UTC().AddDate(0, 0, -31)
	require.NoError(t, f.users.SoftDeleteConversation(ctx, conv.ID, old))

	report := f.rec.Run(ctx, false)
	assert.Equal(t, int64(1), report.ExpiredConversations)

	_, err = f.users.GetConversation(ctx, conv.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDryRunReportsWithoutMutating(t *testing.T) {
	f := newFixture(t, "u1", "u2")
	ctx := context.Background()

	conv, err := f.conv.CreateDirect(ctx, "u1", "u2")
	require.NoError(t, err)
	f.seed(t, conv.ID, "u1", 2)
	require.NoError(t, f.users.SoftDeleteConversation(ctx, conv.ID, time.Now().UTC().AddDate(0, 0, -40)))
	f.seed(t, "grp_orphaned", "ghost", 3)

	report := f.rec.Run(ctx, true)
	assert.True(t, report.DryRun)
	assert.Equal(t, int64(3), report.OrphanMessages)
	assert.Equal(t, int64(2), report.SoftDeletedMessages)
	assert.Equal(t, int64(1), report.ExpiredConversations)
	assert.NotEmpty(t, report.Findings)
	for _, finding := range report.Findings {
		if finding.Kind != "expired_tombstone" {
			assert.NotEmpty(t, finding.SampleIDs)
		}
	}

	// Nothing was removed
	n, err := f.msgs.CountByConversation(ctx, "grp_orphaned")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	n, err = f.msgs.CountByConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	_, err = f.users.GetConversation(ctx, conv.ID)
	assert.NoError(t, err)
}

func TestPhaseFailureDoesNotBlockOthers(t *testing.T) {
	f := newFixture(t, "u1", "u2")
	ctx := context.Background()

	conv, err := f.conv.CreateDirect(ctx, "u1", "u2")
	require.NoError(t, err)
	f.seed(t, conv.ID, "u1", 2)
	require.NoError(t, f.users.SoftDeleteConversation(ctx, conv.ID, time.Now().UTC()))

	f.users.FailOn("ListActiveConversationIDs")

	report := f.rec.Run(ctx, false)
	// Orphan phase failed but the tombstone purge still ran
	assert.NotZero(t, report.Errors)
	assert.Equal(t, int64(2), report.SoftDeletedMessages)
}
