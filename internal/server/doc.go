// ABOUTME: Package documentation for the HTTP server
// ABOUTME: Describes the route surface and the component wiring

// Package server wires the stores, the auth stack, the message pipeline,
// and the realtime hub behind a single HTTP listener. It owns the route
// table, the sentinel-to-status error mapping, and the graceful shutdown
// sequence: stop accepting requests, drain the pipeline, close live
// connections, release the stores.
package server
