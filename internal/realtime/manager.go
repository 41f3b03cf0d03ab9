// ABOUTME: Connection manager tracking live sessions in the ephemeral store
// ABOUTME: Maintains user-to-instance bindings and presence keys with TTL refresh

package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/parley-im/parley/internal/ephemeral"
)

// Ephemeral key TTLs. The binding outlives any realistic connection; presence
// expires quickly so a crashed instance degrades to offline without cleanup.
const (
	bindingTTL      = 24 * time.Hour
	presenceTTL     = 5 * time.Minute
	offlineGraceTTL = time.Minute
)

// ConnectionManager records which instance serves each user and which
// connections are live on this instance. All state lives in the ephemeral
// store so every instance sees the same view.
type ConnectionManager struct {
	eph        ephemeral.Store
	instanceID string
	logger     *slog.Logger
}

// NewConnectionManager creates a manager for this instance.
func NewConnectionManager(eph ephemeral.Store, instanceID string, logger *slog.Logger) *ConnectionManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConnectionManager{
		eph:        eph,
		instanceID: instanceID,
		logger:     logger.With("component", "connmgr", "instance_id", instanceID),
	}
}

// InstanceID returns the identity of this server instance.
func (m *ConnectionManager) InstanceID() string {
	return m.instanceID
}

// Register binds the user to this instance, adds the connection to the
// instance session set, and marks the user online.
func (m *ConnectionManager) Register(ctx context.Context, userID, connectionID string) error {
	if err := m.eph.Set(ctx, ephemeral.KeyUserServer(userID), m.instanceID, bindingTTL); err != nil {
		return fmt.Errorf("binding user to instance: %w", err)
	}
	if err := m.eph.SetAdd(ctx, ephemeral.KeySessions(m.instanceID), connectionID); err != nil {
		return fmt.Errorf("recording session: %w", err)
	}
	if err := m.eph.Set(ctx, ephemeral.KeyPresence(userID), ephemeral.PresenceOnline, presenceTTL); err != nil {
		return fmt.Errorf("marking presence: %w", err)
	}
	m.logger.Debug("connection registered", "user_id", userID, "connection_id", connectionID)
	return nil
}

// Unregister removes the connection and binding and marks the user offline
// with a short grace TTL so a quick reconnect never shows a flicker of stale
// state. Errors are logged, not returned: the connection is gone either way.
func (m *ConnectionManager) Unregister(ctx context.Context, userID, connectionID string) {
	if err := m.eph.SetRemove(ctx, ephemeral.KeySessions(m.instanceID), connectionID); err != nil {
		m.logger.Error("removing session", "connection_id", connectionID, "error", err)
	}
	if err := m.eph.Delete(ctx, ephemeral.KeyUserServer(userID)); err != nil {
		m.logger.Error("removing instance binding", "user_id", userID, "error", err)
	}
	if err := m.eph.Set(ctx, ephemeral.KeyPresence(userID), ephemeral.PresenceOffline, offlineGraceTTL); err != nil {
		m.logger.Error("marking offline", "user_id", userID, "error", err)
	}
	m.logger.Debug("connection unregistered", "user_id", userID, "connection_id", connectionID)
}

// Refresh re-arms the binding and presence TTLs. Called on heartbeats and
// inbound activity.
func (m *ConnectionManager) Refresh(ctx context.Context, userID string) {
	if err := m.eph.Set(ctx, ephemeral.KeyUserServer(userID), m.instanceID, bindingTTL); err != nil {
		m.logger.Error("refreshing instance binding", "user_id", userID, "error", err)
	}
	if err := m.eph.Set(ctx, ephemeral.KeyPresence(userID), ephemeral.PresenceOnline, presenceTTL); err != nil {
		m.logger.Error("refreshing presence", "user_id", userID, "error", err)
	}
}

// Presence returns the stored presence for a user. An expired or missing key
// reads as offline.
func (m *ConnectionManager) Presence(ctx context.Context, userID string) (string, error) {
	v, err := m.eph.Get(ctx, ephemeral.KeyPresence(userID))
	if errors.Is(err, ephemeral.ErrNotFound) {
		return ephemeral.PresenceOffline, nil
	}
	if err != nil {
		return "", fmt.Errorf("reading presence: %w", err)
	}
	return v, nil
}

// Sessions lists the connection ids currently recorded for this instance.
func (m *ConnectionManager) Sessions(ctx context.Context) ([]string, error) {
	return m.eph.SetMembers(ctx, ephemeral.KeySessions(m.instanceID))
}
