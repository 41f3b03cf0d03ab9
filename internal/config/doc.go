// Package config handles configuration loading for parleyd.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from PARLEY_CONFIG environment variable
//  2. ~/.config/parley/parleyd.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	token:
//	  secret: "${PARLEY_TOKEN_SECRET}"
//	instance:
//	  id: "${SERVER_ID:-server-1}"
//
// Syntax: ${VAR_NAME} or ${VAR_NAME:-default}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	token:
//	  ttl: "24h"
//	realtime:
//	  idle_timeout: "60s"
//	cleanup:
//	  interval: "1h"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  host: "0.0.0.0"
//	  port: 8080
//	  cors_origins: ["*"]
//
// Stores:
//
//	store:
//	  path: "/var/lib/parley/parley.db"   # relational (SQLite)
//	message_store:
//	  uri: "mongodb://localhost:27017"    # document (MongoDB)
//	  database: "parley"
//	ephemeral:
//	  addr: "localhost:6379"              # key/value with TTL (Redis)
//
// Tokens:
//
//	token:
//	  secret: "${PARLEY_TOKEN_SECRET}"    # required
//	  ttl: "24h"
//	  issuer: "parley"
//	  audience: "parley-clients"
//	  allow_legacy: false                 # accept tokens missing iss/aud (migration only)
//
// Pipeline and realtime:
//
//	pipeline:
//	  queue_capacity: 10000
//	  drain_timeout: "10s"
//	realtime:
//	  idle_timeout: "60s"
//	  send_buffer: 64
//
// Cleanup and password reset:
//
//	cleanup:
//	  interval: "1h"
//	  retention_days: 30
//	reset:
//	  token_ttl: "30m"
//	  rate_window: "1h"
//	  rate_limit: 5
//
// # Validation
//
// Load() validates that the token secret, store paths, and ephemeral address
// are configured, and that durations parse. Defaults fill everything else.
package config
