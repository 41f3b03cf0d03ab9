// ABOUTME: Package documentation for the conversation service
// ABOUTME: Explains direct-id canonicalization and the soft-delete lifecycle

// Package conversation implements the conversation lifecycle: direct and
// group creation, membership and roles, access checks, settings, and the
// deletion cascade.
//
// Direct conversations use the canonical id dm_<lo>_<hi> (user ids in
// lexicographic order), so the pair's unique primary key makes creation
// idempotent under races. Group ids are random. Removing a participant
// deactivates their row rather than deleting it, preserving history while
// revoking access; soft-deleted conversations stay queryable until the
// cleanup reconciler purges them after the retention window.
package conversation
