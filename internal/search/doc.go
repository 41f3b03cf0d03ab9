// ABOUTME: Package documentation for message search
// ABOUTME: Explains the index-first strategy and access gating

// Package search finds messages within a conversation. Queries run against
// the message store's text index and degrade to a literal scan when the
// index is unavailable. Viewers without conversation access always receive
// empty results rather than errors. Matches are highlighted in place with
// <mark> markers, and a context lookup reconstructs the traffic surrounding
// a single message.
package search
