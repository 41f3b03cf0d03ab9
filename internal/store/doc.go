// Package store provides persistent storage for users, conversations, and
// participants using SQLite.
//
// # Architecture
//
// The package exposes a single Store interface covering three entity
// families:
//
//   - Users: registration, lookup by id/username/email, profile and
//     password updates, presence
//   - Conversations: creation with initial participants, listing, settings,
//     soft delete and hard delete
//   - Participants: membership rows with roles, activation state, and read
//     high-water marks
//
// SQLiteStore implements the interface for production; MockStore implements
// it in memory for tests.
//
// # Data Models
//
//   - User: identity and authentication principal with unique username and
//     email
//   - Conversation: DIRECT (two-party, canonical id) or GROUP (multi-party)
//     message container; DeletedAt marks soft deletion
//   - Participant: (conversation, user) row carrying a role (OWNER, ADMIN,
//     MEMBER) and an active flag; deactivation revokes access without
//     destroying history
//
// Message content is deliberately not stored here; it lives in the message
// store, which scales independently of the relational data.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// Timestamps are stored as RFC3339 UTC strings. Nullable timestamps
// (last_seen_at, deleted_at, last_read_at) map to *time.Time fields.
//
// # Error Handling
//
// Common errors:
//
//   - ErrNotFound: requested entity does not exist
//   - ErrUsernameTaken, ErrEmailTaken: registration conflicts
//   - ErrDuplicateConversation: conversation id already exists
//   - ErrDuplicateParticipant: user already in the conversation
//
// All methods accept context.Context for cancellation support.
//
// # Testing
//
// Use NewMockStore() for unit tests:
//
//	store := store.NewMockStore()
//
// Use NewSQLiteStore with a temp-dir path for integration tests with real
// SQLite.
//
// # Migrations
//
// Additive migrations run automatically on store initialization using
// pragma_table_info column checks.
package store
