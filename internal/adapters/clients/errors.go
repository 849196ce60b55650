// Package clients is the resilient HTTP client used to reach the remote
// toggle server.
package clients

import "errors"

// Transport-level failures. The acl package maps them to domain errors.
var (
	// ErrCircuitOpen is returned without a network call while the breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker open")

	// ErrMaxRetriesExceeded wraps the last error once attempts are spent.
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)
