// ABOUTME: Store interface and key scheme for ephemeral TTL-based state
// ABOUTME: Covers session bindings, presence, token blocklist, reset tokens, rate counters

package ephemeral

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key does not exist or has expired
var ErrNotFound = errors.New("key not found")

// ErrUnavailable wraps backend failures. Callers that fail open (the token
// blocklist check) detect it with errors.Is.
var ErrUnavailable = errors.New("ephemeral store unavailable")

// Key scheme. All ephemeral state lives under these prefixes.
func KeyUserServer(userID string) string   { return "user:server:" + userID }
func KeySessions(instanceID string) string { return "server:sessions:" + instanceID }
func KeyPresence(userID string) string     { return "user:presence:" + userID }
func KeyTokenBlock(jti string) string      { return "jwt:blacklist:" + jti }
func KeyResetToken(token string) string    { return "password-reset:" + token }
func KeyResetRate(email string) string     { return "password-reset-rate:" + email }

// Presence values stored under KeyPresence
const (
	PresenceOnline  = "online"
	PresenceOffline = "offline"
)

// Store defines the interface for key/value state with TTLs.
// All writes are idempotent; TTL expiry is preferred over explicit deletes.
type Store interface {
	// Set stores value under key with the given TTL. A zero TTL means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	// GetDel atomically reads and deletes key. Used for single-use reset tokens.
	GetDel(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)

	// Incr increments the counter at key, setting ttl when the counter is
	// created. Returns the value after the increment.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Sets
	SetAdd(ctx context.Context, key string, member string) error
	SetRemove(ctx context.Context, key string, member string) error
	SetMembers(ctx context.Context, key string) ([]string, error)

	Ping(ctx context.Context) error
	Close() error
}
