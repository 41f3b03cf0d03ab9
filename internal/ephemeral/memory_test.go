// ABOUTME: Tests for the in-memory ephemeral store
// ABOUTME: Covers TTL expiry, single-use GetDel, counters, and sets

package ephemeral

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySetGet(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", "v", 0))

	val, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", val)

	_, err = m.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryTTLExpiry(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", "v", 10*time.Millisecond))
	time.Sleep(20 * time.Millisecond)

	_, err := m.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err := m.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryGetDelIsSingleUse(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "reset", "user-1", time.Minute))

	val, err := m.GetDel(ctx, "reset")
	require.NoError(t, err)
	assert.Equal(t, "user-1", val)

	_, err = m.GetDel(ctx, "reset")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryIncr(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		n, err := m.Incr(ctx, "counter", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}
}

func TestMemoryIncrWindowExpiry(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	n, err := m.Incr(ctx, "counter", 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	time.Sleep(20 * time.Millisecond)

	n, err = m.Incr(ctx, "counter", 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "counter restarts after the window expires")
}

func TestMemorySets(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	require.NoError(t, m.SetAdd(ctx, "sessions", "c1"))
	require.NoError(t, m.SetAdd(ctx, "sessions", "c2"))
	require.NoError(t, m.SetAdd(ctx, "sessions", "c1")) // idempotent

	members, err := m.SetMembers(ctx, "sessions")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"c1", "c2"}, members)

	require.NoError(t, m.SetRemove(ctx, "sessions", "c1"))
	members, err = m.SetMembers(ctx, "sessions")
	require.NoError(t, err)
	assert.Equal(t, []string{"c2"}, members)
}

func TestMemoryFailingMode(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	m.SetFailing(true)

	assert.ErrorIs(t, m.Set(ctx, "k", "v", 0), ErrUnavailable)
	_, err := m.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrUnavailable)
	_, err = m.Exists(ctx, "k")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, m.Ping(ctx), ErrUnavailable)

	m.SetFailing(false)
	assert.NoError(t, m.Ping(ctx))
}
