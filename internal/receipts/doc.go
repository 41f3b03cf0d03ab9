// ABOUTME: Package documentation for the receipt service
// ABOUTME: Explains monotonic vectors and author-only aggregate visibility

// Package receipts records per-recipient delivered and read transitions on
// messages. Vector writes are monotonic and idempotent (the first instant
// wins), the sender is never a recipient of their own message, and updates
// from users outside the conversation are dropped silently. The aggregate
// status derived from the vectors is visible only to the message's author.
package receipts
