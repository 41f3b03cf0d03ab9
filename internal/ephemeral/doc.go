// ABOUTME: Package documentation for the ephemeral key/value store
// ABOUTME: Explains the TTL-first write policy and key scheme

// Package ephemeral provides TTL-based key/value state shared across server
// instances: session bindings, presence, the token blocklist, single-use
// password-reset tokens, and rate counters.
//
// All writes are idempotent (set-with-TTL, set-add, counter increment) and
// rely on TTL expiry rather than explicit deletes where possible, so a
// crashed instance leaves no permanent residue. The production backend is
// Redis; tests use the in-memory implementation.
package ephemeral
