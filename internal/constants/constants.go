// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// HTTP server constants
const (
	// RequestTimeout bounds a single API request, including waits for session locks
	RequestTimeout = 30 * time.Second

	// ReadTimeout bounds reading a request, headers and body
	ReadTimeout = 10 * time.Second

	// IdleTimeout closes idle keep-alive connections
	IdleTimeout = 60 * time.Second

	// ShutdownTimeout is how long in-flight requests get to finish on shutdown
	ShutdownTimeout = 30 * time.Second

	// MaxRequestBodyBytes caps JSON request bodies; a landmark sample is a few kilobytes
	MaxRequestBodyBytes = 1 << 20
)

// CLI constants
const (
	// WorkerPoolSize is the default number of parallel enrollments in a batch
	WorkerPoolSize = 4

	// DefaultSimilarLimit is the default number of look-alike templates to report
	DefaultSimilarLimit = 5
)
