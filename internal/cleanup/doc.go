// ABOUTME: Package documentation for the cleanup reconciler
// ABOUTME: Explains the three removal phases and the dry-run report

// Package cleanup reconciles the message store against the relational
// conversation rows. Orphaned messages, messages of soft-deleted
// conversations, and conversations whose tombstone has outlived the
// retention window are removed on a schedule. A dry run produces the same
// report with counts and sample ids but mutates nothing.
package cleanup
