// ABOUTME: Tests for message store semantics using the in-memory implementation
// ABOUTME: Covers receipt monotonicity, sender exclusion, and aggregate status

package msgstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedMessage(t *testing.T, s *Memory, conv, sender string, ts time.Time, content string) *Message {
	t.Helper()
	msg := &Message{
		ConversationID: conv,
		SenderID:       sender,
		SenderUsername: sender,
		Content:        content,
		Type:           TypeText,
		Timestamp:      ts,
		Status:         StatusSent,
	}
	require.NoError(t, s.Append(context.Background(), msg))
	return msg
}

func TestAppend_AssignsIDAndVectors(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	msg := &Message{
		ConversationID: "grp_1",
		SenderID:       "u1",
		Content:        "hello",
		Timestamp:      time.Now().UTC(),
		Status:         StatusSent,
	}
	require.NoError(t, s.Append(ctx, msg))
	assert.NotEmpty(t, msg.ID)

	got, err := s.Get(ctx, msg.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.DeliveredTo)
	assert.NotNil(t, got.ReadBy)
	assert.Empty(t, got.DeliveredTo)
}

func TestGet_NotFound(t *testing.T) {
	s := NewMemory()
	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMarkDelivered_FirstInstantWins(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	msg := seedMessage(t, s, "grp_1", "u1", now, "hello")

	first := now.Add(time.Second)
	require.NoError(t, s.MarkDelivered(ctx, msg.ID, "u2", first))
	require.NoError(t, s.MarkDelivered(ctx, msg.ID, "u2", first.Add(time.Hour)))

	got, err := s.Get(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, got.DeliveredTo["u2"].Equal(first), "earlier instant must be kept")
}

func TestMarkRead_ImpliesDelivered(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	msg := seedMessage(t, s, "grp_1", "u1", now, "hello")

	readAt := now.Add(time.Minute)
	require.NoError(t, s.MarkRead(ctx, msg.ID, "u2", readAt))

	got, err := s.Get(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, got.DeliveredTo["u2"].Equal(readAt))
	assert.True(t, got.ReadBy["u2"].Equal(readAt))

	// A later delivered transition cannot regress anything
	require.NoError(t, s.MarkDelivered(ctx, msg.ID, "u2", readAt.Add(time.Hour)))
	got, err = s.Get(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, got.DeliveredTo["u2"].Equal(readAt))
	assert.True(t, got.ReadBy["u2"].Equal(readAt))
}

func TestReceipts_SenderExcluded(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	msg := seedMessage(t, s, "grp_1", "u1", now, "hello")

	require.NoError(t, s.MarkDelivered(ctx, msg.ID, "u1", now))
	require.NoError(t, s.MarkRead(ctx, msg.ID, "u1", now))

	got, err := s.Get(ctx, msg.ID)
	require.NoError(t, err)
	assert.NotContains(t, got.DeliveredTo, "u1")
	assert.NotContains(t, got.ReadBy, "u1")
}

func TestMarkConversationRead(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	m1 := seedMessage(t, s, "grp_1", "u1", now, "one")
	m2 := seedMessage(t, s, "grp_1", "u1", now.Add(time.Second), "two")
	mine := seedMessage(t, s, "grp_1", "u2", now.Add(2*time.Second), "mine")
	other := seedMessage(t, s, "grp_2", "u1", now, "elsewhere")

	readAt := now.Add(time.Minute)
	modified, err := s.MarkConversationRead(ctx, "grp_1", "u2", readAt)
	require.NoError(t, err)
	assert.Equal(t, int64(2), modified)

	for _, id := range []string{m1.ID, m2.ID} {
		got, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.Contains(t, got.ReadBy, "u2")
		assert.Contains(t, got.DeliveredTo, "u2")
	}

	got, err := s.Get(ctx, mine.ID)
	require.NoError(t, err)
	assert.NotContains(t, got.ReadBy, "u2", "own messages are never self-read")

	got, err = s.Get(ctx, other.ID)
	require.NoError(t, err)
	assert.Empty(t, got.ReadBy, "other conversations are untouched")

	// Second pass changes nothing
	modified, err = s.MarkConversationRead(ctx, "grp_1", "u2", readAt.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, modified)
}

func TestAggregateStatus(t *testing.T) {
	now := time.Now().UTC()

	msg := &Message{
		SenderID:    "u1",
		DeliveredTo: map[string]time.Time{},
		ReadBy:      map[string]time.Time{},
	}
	assert.Equal(t, StatusSent, msg.AggregateStatus(), "no recipients yet")

	msg.DeliveredTo["u2"] = now
	msg.DeliveredTo["u3"] = now
	assert.Equal(t, StatusDelivered, msg.AggregateStatus())

	msg.ReadBy["u2"] = now
	assert.Equal(t, StatusDelivered, msg.AggregateStatus(), "partial read stays DELIVERED")

	msg.ReadBy["u3"] = now
	assert.Equal(t, StatusRead, msg.AggregateStatus())
}

func TestListByConversation(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	for i := range 5 {
		seedMessage(t, s, "grp_1", "u1", base.Add(time.Duration(i)*time.Second), fmt.Sprintf("m%d", i))
	}
	seedMessage(t, s, "grp_2", "u1", base, "other")

	msgs, err := s.ListByConversation(ctx, "grp_1", time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 5)
	for i := 1; i < len(msgs); i++ {
		assert.False(t, msgs[i].Timestamp.Before(msgs[i-1].Timestamp), "ascending order")
	}

	// since is exclusive
	msgs, err = s.ListByConversation(ctx, "grp_1", base.Add(2*time.Second), 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m3", msgs[0].Content)

	msgs, err = s.ListByConversation(ctx, "grp_1", time.Time{}, 3)
	require.NoError(t, err)
	assert.Len(t, msgs, 3)
}

func TestListAround(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	center := time.Now().UTC().Truncate(time.Second)

	inWindow := []*Message{
		seedMessage(t, s, "grp_1", "u1", center.Add(-300*time.Second), "edge low"),
		seedMessage(t, s, "grp_1", "u1", center, "center"),
		seedMessage(t, s, "grp_1", "u1", center.Add(300*time.Second), "edge high"),
	}
	seedMessage(t, s, "grp_1", "u1", center.Add(-301*time.Second), "too old")
	seedMessage(t, s, "grp_1", "u1", center.Add(301*time.Second), "too new")

	msgs, err := s.ListAround(ctx, "grp_1", center, 300*time.Second)
	require.NoError(t, err)
	require.Len(t, msgs, len(inWindow))
	assert.Equal(t, "edge low", msgs[0].Content)
	assert.Equal(t, "edge high", msgs[2].Content)
}

func TestSearchLiteral(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	seedMessage(t, s, "grp_1", "u1", base, "Deploy complete")
	seedMessage(t, s, "grp_1", "u1", base.Add(time.Second), "deploy failed again")
	seedMessage(t, s, "grp_1", "u1", base.Add(2*time.Second), "lunch?")

	msgs, err := s.SearchLiteral(ctx, "grp_1", "deploy", 0, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	// Newest first
	assert.Equal(t, "deploy failed again", msgs[0].Content)

	msgs, err = s.SearchLiteral(ctx, "grp_1", "deploy", 1, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Deploy complete", msgs[0].Content)

	msgs, err = s.SearchLiteral(ctx, "grp_1", "nothing", 0, 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestPurgeAndCleanupSupport(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	for i := range 3 {
		seedMessage(t, s, "grp_1", "u1", base.Add(time.Duration(i)*time.Second), "a")
	}
	seedMessage(t, s, "grp_2", "u1", base, "b")

	count, err := s.CountByConversation(ctx, "grp_1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	ids, err := s.SampleIDs(ctx, "grp_1", 2)
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	convIDs, err := s.ListConversationIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"grp_1", "grp_2"}, convIDs)

	deleted, err := s.PurgeConversation(ctx, "grp_1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)

	convIDs, err = s.ListConversationIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"grp_2"}, convIDs)
}
