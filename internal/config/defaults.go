// Package config - defaults.go centralizes magic numbers and default values.
//
// DESIGN: All default values that appear in multiple places should be defined here.
// This makes configuration more maintainable and auditable.
package config

import "time"

// =============================================================================
// SERVER
// =============================================================================

// DefaultHost is the listen address. The service is a local companion and
// binds to loopback unless explicitly told otherwise.
const DefaultHost = "127.0.0.1"

// DefaultPort is the port the Factorio mod expects the companion on.
const DefaultPort = 3925

// DefaultReadTimeout for the HTTP server.
const DefaultReadTimeout = 30 * time.Second

// DefaultWriteTimeout for the HTTP server. Generous because a single
// upstream completion can take most of the upstream timeout.
const DefaultWriteTimeout = 2 * time.Minute

// MaxRequestBodySize is the maximum allowed request body (4MB). Factory
// snapshots are text but can get large on megabases.
const MaxRequestBodySize = 4 * 1024 * 1024

// =============================================================================
// UPSTREAM
// =============================================================================

// DefaultUpstreamBaseURL is the OpenAI REST API base.
const DefaultUpstreamBaseURL = "https://api.openai.com/v1"

// DefaultUpstreamTimeout bounds a single chat completion call.
const DefaultUpstreamTimeout = 90 * time.Second

// DefaultKeyCheckTimeout bounds the lightweight key validation call.
const DefaultKeyCheckTimeout = 30 * time.Second

// MaxResponseSize is the maximum allowed upstream response body (10MB).
const MaxResponseSize = 10 * 1024 * 1024

// MaxErrorBodyLogLen limits error response body in logs to prevent bloat.
const MaxErrorBodyLogLen = 500

// =============================================================================
// SNAPSHOT CACHE
// =============================================================================

// DefaultSnapshotCapacity is the number of resident snapshots. Oldest is
// evicted FIFO when a new one arrives at capacity.
const DefaultSnapshotCapacity = 5

// DefaultLoadThreshold is the admission cutoff. Snapshots whose load score
// exceeds it are rejected outright and the mod is told to narrow its scan.
const DefaultLoadThreshold = 100.0

// DefaultIdleTimeout is how long an untouched snapshot survives.
const DefaultIdleTimeout = 10 * time.Minute

// DefaultSweepInterval is the frequency of the idle sweeper.
const DefaultSweepInterval = 1 * time.Minute

// =============================================================================
// TOKEN ESTIMATION
// =============================================================================

// TokenEstimateRatio is the approximate number of characters per token.
// Used as a fallback when the tokenizer encoding cannot be loaded.
const TokenEstimateRatio = 4

// =============================================================================
// STATUS FEED
// =============================================================================

// DefaultStatusHeartbeat is how often the live status feed pushes a
// document even when nothing changed.
const DefaultStatusHeartbeat = 30 * time.Second
