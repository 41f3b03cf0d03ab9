// ABOUTME: Package documentation for the message pipeline
// ABOUTME: Explains the single-consumer ordering guarantee and the fallback path

// Package pipeline accepts message drafts from many producers and processes
// them on a single worker, which gives each instance FIFO persistence and
// fanout order. When the bounded queue is full, the producer runs the same
// steps synchronously so no message is lost at the cost of ingress latency.
package pipeline
