// ABOUTME: Package documentation for the realtime gateway
// ABOUTME: Explains the session model, fanout scope, and presence tracking

// Package realtime serves long-lived websocket connections. Each connection
// gets one session with a read pump and a write pump; inbound JSON frames
// are chat messages, receipt updates, or heartbeats. Persisted messages fan
// out only to live sessions of the conversation's participants on this
// instance, and slow consumers drop frames rather than stalling the fanout.
// The connection manager mirrors session state into the ephemeral store so
// presence and instance bindings are visible across the deployment.
package realtime
