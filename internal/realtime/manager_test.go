// ABOUTME: Tests for the connection manager
// ABOUTME: Verifies binding, session set, and presence key lifecycle

package realtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-im/parley/internal/ephemeral"
)

func TestRegisterWritesBindingSessionAndPresence(t *testing.T) {
	eph := ephemeral.NewMemory()
	defer eph.Close()
	m := NewConnectionManager(eph, "inst-1", nil)
	ctx := context.Background()

	require.NoError(t, m.Register(ctx, "u1", "conn-1"))

	inst, err := eph.Get(ctx, ephemeral.KeyUserServer("u1"))
	require.NoError(t, err)
	assert.Equal(t, "inst-1", inst)

	sessions, err := m.Sessions(ctx)
	require.NoError(t, err)
	assert.Contains(t, sessions, "conn-1")

	p, err := m.Presence(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, ephemeral.PresenceOnline, p)
}

func TestUnregisterRemovesBindingAndMarksOffline(t *testing.T) {
	eph := ephemeral.NewMemory()
	defer eph.Close()
	m := NewConnectionManager(eph, "inst-1", nil)
	ctx := context.Background()

	require.NoError(t, m.Register(ctx, "u1", "conn-1"))
	m.Unregister(ctx, "u1", "conn-1")

	_, err := eph.Get(ctx, ephemeral.KeyUserServer("u1"))
	assert.ErrorIs(t, err, ephemeral.ErrNotFound)

	sessions, err := m.Sessions(ctx)
	require.NoError(t, err)
	assert.NotContains(t, sessions, "conn-1")

	// Offline is written explicitly with a grace TTL rather than deleted
	p, err := m.Presence(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, ephemeral.PresenceOffline, p)
}

func TestPresenceDefaultsToOffline(t *testing.T) {
	eph := ephemeral.NewMemory()
	defer eph.Close()
	m := NewConnectionManager(eph, "inst-1", nil)

	p, err := m.Presence(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, ephemeral.PresenceOffline, p)
}

func TestRefreshRestoresOnlinePresence(t *testing.T) {
	eph := ephemeral.NewMemory()
	defer eph.Close()
	m := NewConnectionManager(eph, "inst-1", nil)
	ctx := context.Background()

	require.NoError(t, m.Register(ctx, "u1", "conn-1"))
	m.Unregister(ctx, "u1", "conn-1")
	m.Refresh(ctx, "u1")

	p, err := m.Presence(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, ephemeral.PresenceOnline, p)

	inst, err := eph.Get(ctx, ephemeral.KeyUserServer("u1"))
	require.NoError(t, err)
	assert.Equal(t, "inst-1", inst)
}
