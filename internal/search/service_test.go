// ABOUTME: Tests for the search service
// ABOUTME: Covers sanitization, access gating, filters, highlighting, and context windows

package search

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-im/parley/internal/conversation"
	"github.com/parley-im/parley/internal/msgstore"
	"github.com/parley-im/parley/internal/store"
)

type fixture struct {
	svc  *Service
	conv *conversation.Service
	msgs *msgstore.Memory
}

func newFixture(t *testing.T, userIDs ...string) *fixture {
	t.Helper()

	s := store.NewMockStore()
	for _, id := range userIDs {
		require.NoError(t, s.CreateUser(context.Background(), &store.User{
			ID:       id,
			Username: id,
			Email:    id + "@example.com",
		}))
	}
	msgs := msgstore.NewMemory()
	conv := conversation.New(s, msgs, nil)
	return &fixture{svc: New(msgs, conv, nil), conv: conv, msgs: msgs}
}

func (f *fixture) seed(t *testing.T, convID, sender, content string, at time.Time) *msgstore.Message {
	t.Helper()
	msg := &msgstore.Message{
		ConversationID: convID,
		SenderID:       sender,
		SenderUsername: sender,
		Content:        content,
		Type:           msgstore.TypeText,
		Timestamp:      at,
		Status:         msgstore.StatusSent,
	}
	require.NoError(t, f.msgs.Append(context.Background(), msg))
	return msg
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "hello world", Sanitize(`  hello   world  `))
	assert.Equal(t, "its here", Sanitize(`it's "here"`))
	assert.Equal(t, "ab", Sanitize("a\\b"))
	assert.Equal(t, "", Sanitize(`  "'\  `))

	long := Sanitize(fmt.Sprintf("%0300d", 7))
	assert.Len(t, []rune(long), 200)
}

func TestSearchEmptyQueryReturnsEmptyResult(t *testing.T) {
	f := newFixture(t, "u1", "u2")
	conv, err := f.conv.CreateDirect(context.Background(), "u1", "u2")
	require.NoError(t, err)
	f.seed(t, conv.ID, "u1", "hello", time.Now().UTC())

	res, err := f.svc.Search(context.Background(), conv.ID, "u1", `  "'  `, nil, Page{})
	require.NoError(t, err)
	assert.Empty(t, res.Messages)
}

func TestSearchDeniedViewerGetsEmptyNotError(t *testing.T) {
	f := newFixture(t, "u1", "u2", "outsider")
	conv, err := f.conv.CreateDirect(context.Background(), "u1", "u2")
	require.NoError(t, err)
	f.seed(t, conv.ID, "u1", "secret plans", time.Now().UTC())

	res, err := f.svc.Search(context.Background(), conv.ID, "outsider", "secret", nil, Page{})
	require.NoError(t, err)
	assert.Empty(t, res.Messages)
}

func TestSearchHighlightsMatches(t *testing.T) {
	f := newFixture(t, "u1", "u2")
	conv, err := f.conv.CreateDirect(context.Background(), "u1", "u2")
	require.NoError(t, err)
	f.seed(t, conv.ID, "u1", "Hello there, hello again", time.Now().UTC())

	res, err := f.svc.Search(context.Background(), conv.ID, "u1", "hello", nil, Page{})
	require.NoError(t, err)
	require.Len(t, res.Messages, 1)
	assert.Equal(t, "<mark>Hello</mark> there, <mark>hello</mark> again", res.Messages[0].Content)
}

func TestHighlightUnicodeCaseMapping(t *testing.T) {
	// Lowercasing can change UTF-8 byte lengths: U+023A grows from two
	// bytes to three, U+212A shrinks from three to one. Highlighting must
	// keep offsets valid on the original string either way.
	assert.Equal(t, "Ⱥ <mark>hello</mark>", highlight("Ⱥ hello", "hello"))
	assert.Equal(t, "<mark>Kelvin</mark> scale", highlight("Kelvin scale", "kelvin"))

	// Case-insensitive match on non-ASCII letters, original casing kept
	assert.Equal(t, "<mark>Grüße</mark> aus Berlin", highlight("Grüße aus Berlin", "grüße"))
	assert.Equal(t, "no match here", highlight("no match here", "Ⱥ"))
}

func TestSearchSenderAndDateFilters(t *testing.T) {
	f := newFixture(t, "u1", "u2")
	conv, err := f.conv.CreateDirect(context.Background(), "u1", "u2")
	require.NoError(t, err)

	day1 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	day3 := time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC)
	f.seed(t, conv.ID, "u1", "report one", day1)
	f.seed(t, conv.ID, "u2", "report two", day2)
	f.seed(t, conv.ID, "u1", "report three", day3)

	res, err := f.svc.Search(context.Background(), conv.ID, "u1", "report",
		&Filters{Sender: "u1"}, Page{})
	require.NoError(t, err)
	assert.Len(t, res.Messages, 2)

	// From inclusive, To covers the whole named day
	res, err = f.svc.Search(context.Background(), conv.ID, "u1", "report",
		&Filters{From: day2.Truncate(24 * time.Hour), To: day2.Truncate(24 * time.Hour)}, Page{})
	require.NoError(t, err)
	require.Len(t, res.Messages, 1)
	assert.Contains(t, res.Messages[0].Content, "two")
}

func TestSearchPagination(t *testing.T) {
	f := newFixture(t, "u1", "u2")
	conv, err := f.conv.CreateDirect(context.Background(), "u1", "u2")
	require.NoError(t, err)

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		f.seed(t, conv.ID, "u1", fmt.Sprintf("note %d", i), base.Add(time.Duration(i)*time.Minute))
	}

	res, err := f.svc.Search(context.Background(), conv.ID, "u1", "note", nil, Page{Number: 2, Size: 2})
	require.NoError(t, err)
	require.Len(t, res.Messages, 2)
	// Newest first: page 2 of size 2 holds notes 2 and 1
	assert.Contains(t, res.Messages[0].Content, "2")
	assert.Contains(t, res.Messages[1].Content, "1")
}

func TestContextWindowCentersOnTarget(t *testing.T) {
	f := newFixture(t, "u1", "u2")
	conv, err := f.conv.CreateDirect(context.Background(), "u1", "u2")
	require.NoError(t, err)

	base := time.Now().UTC().Add(-time.Hour)
	var target *msgstore.Message
	for i := 0; i < 9; i++ {
		m := f.seed(t, conv.ID, "u1", fmt.Sprintf("m%d", i), base.Add(time.Duration(i)*10*time.Second))
		if i == 4 {
			target = m
		}
	}
	// Outside the 300s radius, never part of the window
	f.seed(t, conv.ID, "u1", "far away", base.Add(time.Hour))

	window, err := f.svc.Context(context.Background(), target.ID, "u2", 5)
	require.NoError(t, err)
	require.Len(t, window, 5)
	assert.Equal(t, "m2", window[0].Content)
	assert.Equal(t, "m4", window[2].Content)
	assert.Equal(t, "m6", window[4].Content)
}

func TestContextDeniedViewerGetsEmptyWindow(t *testing.T) {
	f := newFixture(t, "u1", "u2", "outsider")
	conv, err := f.conv.CreateDirect(context.Background(), "u1", "u2")
	require.NoError(t, err)
	msg := f.seed(t, conv.ID, "u1", "hello", time.Now().UTC())

	window, err := f.svc.Context(context.Background(), msg.ID, "outsider", 5)
	require.NoError(t, err)
	assert.Empty(t, window)
}

func TestContextUnknownMessage(t *testing.T) {
	f := newFixture(t, "u1")
	_, err := f.svc.Context(context.Background(), "missing", "u1", 5)
	assert.ErrorIs(t, err, msgstore.ErrNotFound)
}
